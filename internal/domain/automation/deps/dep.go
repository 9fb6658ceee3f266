package deps

import (
	"context"
	"errors"

	"github.com/dapen17/vps1/internal/domain/automation/entities"
)

// ErrStateNotFound is returned by a StateRepository that has nothing stored yet
var ErrStateNotFound = errors.New("automation state not found")

// StateRepository persists the automation state document
type StateRepository interface {
	Load(ctx context.Context) (*entities.Document, error)
	Save(ctx context.Context, doc *entities.Document) error
}

// EventPublisher publishes automation events
type EventPublisher interface {
	Publish(ctx context.Context, event entities.Event) error
}

// SnapshotUploader stores copies of the state document off-host
type SnapshotUploader interface {
	UploadSnapshot(ctx context.Context, name string, data []byte) error
}
