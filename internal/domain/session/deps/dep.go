package deps

import (
	"context"

	"github.com/dapen17/vps1/internal/domain"
	"github.com/dapen17/vps1/internal/domain/session/entities"
	"github.com/dapen17/vps1/internal/infrastructure/telegram"
)

// AccountService manages stored sessions and their connections
type AccountService interface {
	SessionsOf(ctx context.Context, ownerID int64) ([]domain.Account, error)
	SessionCount(ctx context.Context) (int, error)
	MaxSessions() int
	Logout(ctx context.Context, ref domain.SessionRef) error
	Reset(ctx context.Context, match func(domain.SessionRef) bool) (int, error)
	Restart(ctx context.Context, ownerID int64) (int, error)
	ReconnectAll(ctx context.Context) (int, error)
	ExportSessions(ctx context.Context) ([]domain.SessionFile, error)
}

// LoginService runs the interactive login of new accounts
type LoginService interface {
	StartLogin(ctx context.Context, ownerID int64, phone string) error
	VerifyCode(ctx context.Context, ownerID int64, code string) (domain.Account, error)
	SubmitPassword(ctx context.Context, ownerID int64, password string) (domain.Account, error)
	StartQRLogin(ctx context.Context, ownerID int64, h telegram.QRHandler) error
}

// StatePersister writes the automation state to disk
type StatePersister interface {
	Persist(ctx context.Context)
}

// ArchiveUploader stores session archives off-host and returns a download link
type ArchiveUploader interface {
	UploadSessionArchive(ctx context.Context, name string, data []byte) (string, error)
}

// EventPublisher publishes account events
type EventPublisher interface {
	Publish(ctx context.Context, event entities.AccountEvent) error
}
