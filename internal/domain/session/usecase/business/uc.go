// Package business contains the control bot use cases for attaching and managing accounts
package business

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/config"
	"github.com/dapen17/vps1/internal/domain"
	"github.com/dapen17/vps1/internal/domain/session/deps"
	"github.com/dapen17/vps1/internal/domain/session/entities"
	sessionerrors "github.com/dapen17/vps1/internal/domain/session/errors"
	"github.com/dapen17/vps1/internal/infrastructure/telegram"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// UseCase contains business logic of the control bot
type UseCase struct {
	accounts  deps.AccountService
	logins    deps.LoginService
	persister deps.StatePersister
	uploader  deps.ArchiveUploader
	publisher deps.EventPublisher
	admins    *config.ControlBotConfig
	logger    zerolog.Logger
}

// NewUseCase creates a new UseCase instance. uploader may be nil.
func NewUseCase(
	accounts deps.AccountService,
	logins deps.LoginService,
	persister deps.StatePersister,
	uploader deps.ArchiveUploader,
	publisher deps.EventPublisher,
	admins *config.ControlBotConfig,
	logger zerolog.Logger,
) *UseCase {
	return &UseCase{
		accounts:  accounts,
		logins:    logins,
		persister: persister,
		uploader:  uploader,
		publisher: publisher,
		admins:    admins,
		logger:    logger,
	}
}

// IsAdmin reports whether a control bot user may run admin commands
func (uc *UseCase) IsAdmin(userID int64) bool {
	return uc.admins != nil && uc.admins.IsAdmin(userID)
}

// Login sends a login code to phone and returns the normalized number
func (uc *UseCase) Login(ctx context.Context, ownerID int64, phone string) (string, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	if err := uc.logins.StartLogin(ctx, ownerID, normalized); err != nil {
		return "", mapAccountError(err)
	}

	uc.publish(ctx, entities.AccountEvent{Type: entities.EventLoginStarted, OwnerID: ownerID, Phone: MaskPhone(normalized)})
	return normalized, nil
}

// Verify completes a pending login with the code from Telegram
func (uc *UseCase) Verify(ctx context.Context, ownerID int64, code string) (entities.LoginResult, error) {
	digits := DigitsOnly(code)
	if digits == "" {
		return entities.LoginResult{}, sessionerrors.ErrInvalidCodeInput
	}

	account, err := uc.logins.VerifyCode(ctx, ownerID, digits)
	return uc.loginResult(ctx, ownerID, account, err)
}

// Password completes a pending login that requires two-step verification
func (uc *UseCase) Password(ctx context.Context, ownerID int64, password string) (entities.LoginResult, error) {
	password = strings.TrimSpace(password)
	if password == "" {
		return entities.LoginResult{}, sessionerrors.ErrEmptyPassword
	}

	account, err := uc.logins.SubmitPassword(ctx, ownerID, password)
	return uc.loginResult(ctx, ownerID, account, err)
}

func (uc *UseCase) loginResult(ctx context.Context, ownerID int64, account domain.Account, err error) (entities.LoginResult, error) {
	if errors.Is(err, domain.ErrPasswordRequired) {
		return entities.LoginResult{PasswordRequired: true}, nil
	}
	if err != nil {
		return entities.LoginResult{}, mapAccountError(err)
	}

	uc.accountAttached(ctx, ownerID, account)
	return entities.LoginResult{Account: account}, nil
}

func (uc *UseCase) accountAttached(ctx context.Context, ownerID int64, account domain.Account) {
	uc.logger.Info().
		Int64("owner_id", ownerID).
		Int64("account_id", account.ID).
		Msg("Account attached through the control bot")

	uc.publish(ctx, entities.AccountEvent{
		Type:      entities.EventAccountAttached,
		OwnerID:   ownerID,
		AccountID: account.ID,
		Phone:     MaskPhone(account.Phone),
	})
}

// QRLogin starts a QR code login. h receives the QR images and the final outcome.
func (uc *UseCase) QRLogin(ctx context.Context, ownerID int64, h telegram.QRHandler) error {
	err := uc.logins.StartQRLogin(ctx, ownerID, &qrObserver{QRHandler: h, uc: uc, ownerID: ownerID})
	if err != nil {
		return mapAccountError(err)
	}
	return nil
}

// qrObserver reports successful QR logins before handing the outcome on
type qrObserver struct {
	telegram.QRHandler
	uc      *UseCase
	ownerID int64
}

func (o *qrObserver) OnQRLogin(ctx context.Context, account domain.Account, err error) {
	if err == nil {
		o.uc.accountAttached(ctx, o.ownerID, account)
	}
	o.QRHandler.OnQRLogin(ctx, account, mapAccountError(err))
}

// Logout logs out the owner's account with the given phone number
func (uc *UseCase) Logout(ctx context.Context, ownerID int64, phone string) (string, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	if err := uc.accounts.Logout(ctx, domain.SessionRef{OwnerID: ownerID, Phone: normalized}); err != nil {
		return "", mapAccountError(err)
	}

	uc.publish(ctx, entities.AccountEvent{Type: entities.EventAccountLogout, OwnerID: ownerID, Phone: MaskPhone(normalized)})
	return normalized, nil
}

// List returns the owner's accounts with the global session usage
func (uc *UseCase) List(ctx context.Context, ownerID int64) (entities.SessionList, error) {
	accounts, err := uc.accounts.SessionsOf(ctx, ownerID)
	if err != nil {
		return entities.SessionList{}, err
	}
	total, err := uc.accounts.SessionCount(ctx)
	if err != nil {
		return entities.SessionList{}, err
	}

	return entities.SessionList{
		Accounts: accounts,
		Total:    total,
		Max:      uc.accounts.MaxSessions(),
	}, nil
}

// ResetAll logs out every session of the caller, or every stored session for admins
func (uc *UseCase) ResetAll(ctx context.Context, ownerID int64) (int, error) {
	admin := uc.IsAdmin(ownerID)
	removed, err := uc.accounts.Reset(ctx, func(ref domain.SessionRef) bool {
		return admin || ref.OwnerID == ownerID
	})
	if err != nil {
		uc.logger.Warn().Err(err).Int64("owner_id", ownerID).Msg("Some sessions could not be reset")
	}

	uc.logger.Info().
		Int64("owner_id", ownerID).
		Bool("admin", admin).
		Int("removed", removed).
		Msg("Sessions reset")
	uc.publish(ctx, entities.AccountEvent{Type: entities.EventSessionsReset, OwnerID: ownerID, Count: removed})

	if removed == 0 && err != nil {
		return 0, err
	}
	return removed, nil
}

// Restart saves the automation state and reconnects the caller's accounts
func (uc *UseCase) Restart(ctx context.Context, ownerID int64) (int, error) {
	if uc.persister != nil {
		uc.persister.Persist(ctx)
	}

	restarted, err := uc.accounts.Restart(ctx, ownerID)
	if err != nil {
		uc.logger.Warn().Err(err).Int64("owner_id", ownerID).Msg("Some accounts failed to restart")
	}
	return restarted, err
}

// Reconnect connects every stored session that is currently disconnected
func (uc *UseCase) Reconnect(ctx context.Context) (int, error) {
	reconnected, err := uc.accounts.ReconnectAll(ctx)
	if err != nil {
		uc.logger.Warn().Err(err).Msg("Some sessions failed to reconnect")
	}
	return reconnected, err
}

// ExportSessions packs every stored session into a zip archive. Admin only.
func (uc *UseCase) ExportSessions(ctx context.Context, userID int64) (entities.Archive, error) {
	if !uc.IsAdmin(userID) {
		return entities.Archive{}, sessionerrors.ErrAdminOnly
	}

	files, err := uc.accounts.ExportSessions(ctx)
	if err != nil {
		return entities.Archive{}, err
	}
	if len(files) == 0 {
		return entities.Archive{}, sessionerrors.ErrNoSessions
	}

	data, err := buildArchive(files)
	if err != nil {
		return entities.Archive{}, err
	}

	archive := entities.Archive{
		Name:  fmt.Sprintf("sessions_%s.zip", time.Now().UTC().Format("20060102_150405")),
		Data:  data,
		Files: len(files),
	}

	if uc.uploader != nil {
		link, err := uc.uploader.UploadSessionArchive(ctx, archive.Name, data)
		if err != nil {
			uc.logger.Warn().Err(err).Msg("Failed to upload session archive")
		} else {
			archive.Link = link
		}
	}

	uc.logger.Info().Int64("user_id", userID).Int("files", archive.Files).Msg("Sessions exported")
	uc.publish(ctx, entities.AccountEvent{Type: entities.EventSessionsExport, OwnerID: userID, Count: archive.Files})
	return archive, nil
}

func (uc *UseCase) publish(ctx context.Context, event entities.AccountEvent) {
	if uc.publisher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = time.Now().UTC()

	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.logger.Warn().Err(err).Str("event_type", event.Type).Msg("Failed to publish account event")
	}
}

// mapAccountError converts account layer errors into user-facing domain errors
func mapAccountError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrSessionLimit):
		return sessionerrors.ErrSessionLimit
	case errors.Is(err, telegram.ErrInvalidPhone):
		return sessionerrors.ErrInvalidPhone
	case errors.Is(err, domain.ErrInvalidCode):
		return sessionerrors.ErrWrongCode
	case errors.Is(err, domain.ErrInvalidPassword):
		return sessionerrors.ErrWrongPassword
	case errors.Is(err, domain.ErrNoPendingLogin):
		return sessionerrors.ErrNoPendingLogin
	case errors.Is(err, domain.ErrAccountNotFound):
		return sessionerrors.ErrAccountNotFound
	default:
		return err
	}
}

// NormalizePhone strips formatting from a phone number and returns its digits
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")

	var b strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", sessionerrors.ErrInvalidPhone
		}
	}

	digits := b.String()
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", sessionerrors.ErrInvalidPhone
	}
	return digits, nil
}

// DigitsOnly drops everything but digits. Login codes are often sent spaced out.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskPhone keeps the first two and last two digits of a phone number
func MaskPhone(phone string) string {
	if len(phone) < 4 {
		return "***"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
