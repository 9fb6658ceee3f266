package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"rsc.io/qr"

	"github.com/dapen17/vps1/internal/domain"
)

// Telegram QR tokens expire in about thirty seconds and are refreshed until this timeout
const qrLoginTimeout = 5 * time.Minute

// QRHandler receives the progress of a QR login
type QRHandler interface {
	// OnQRCode is called with a PNG image every time a new login token is issued
	OnQRCode(ctx context.Context, png []byte, expires time.Time) error

	// OnQRLogin is called once when the login ends. err is domain.ErrPasswordRequired
	// when the owner has to send the two-step verification password.
	OnQRLogin(ctx context.Context, account domain.Account, err error)
}

// EncodeQR renders a login URL as a PNG QR code
func EncodeQR(url string) ([]byte, error) {
	code, err := qr.Encode(url, qr.L)
	if err != nil {
		return nil, fmt.Errorf("encode QR: %w", err)
	}
	return code.PNG(), nil
}

// StartQRLogin starts a QR login for an owner. It returns after the first QR
// code was handed to h; the rest of the login runs in the background.
func (l *LoginManager) StartQRLogin(ctx context.Context, ownerID int64, h QRHandler) error {
	if err := l.manager.CheckSessionLimit(ctx, domain.SessionRef{OwnerID: ownerID}); err != nil {
		return err
	}

	l.cancelPending(ownerID)

	dispatcher := tg.NewUpdateDispatcher()
	loggedIn := qrlogin.OnLoginToken(dispatcher)

	temp, err := startTempClient(ctx, l.apiID, l.apiHash, telegram.Options{UpdateHandler: dispatcher})
	if err != nil {
		return err
	}

	first := make(chan error, 1)
	go l.runQRLogin(ownerID, temp, loggedIn, h, first)

	select {
	case err := <-first:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *LoginManager) runQRLogin(ownerID int64, temp *tempClient, loggedIn <-chan struct{}, h QRHandler, first chan<- error) {
	ctx, cancel := context.WithTimeout(context.Background(), qrLoginTimeout)
	defer cancel()

	logger := l.logger.With().Int64("owner_id", ownerID).Logger()
	shown := false

	_, err := temp.client.QR().Auth(ctx, loggedIn, func(ctx context.Context, token qrlogin.Token) error {
		png, err := EncodeQR(token.URL())
		if err != nil {
			return err
		}
		if err := h.OnQRCode(ctx, png, token.Expires()); err != nil {
			return fmt.Errorf("show QR: %w", err)
		}
		if !shown {
			shown = true
			first <- nil
		}
		logger.Debug().Time("expires", token.Expires()).Msg("QR code issued")
		return nil
	})

	if !shown {
		temp.close()
		if err == nil {
			err = errors.New("QR login ended before a code was issued")
		}
		first <- err
		return
	}

	switch {
	case err == nil:
		account, err := l.finalize(ctx, ownerID, &pendingLogin{ref: domain.SessionRef{OwnerID: ownerID}, temp: temp})
		h.OnQRLogin(ctx, account, err)

	case errors.Is(err, auth.ErrPasswordAuthNeeded) || tgerr.Is(err, "SESSION_PASSWORD_NEEDED"):
		l.mu.Lock()
		l.pending[ownerID] = &pendingLogin{
			ref:          domain.SessionRef{OwnerID: ownerID},
			temp:         temp,
			needPassword: true,
			expiresAt:    time.Now().Add(loginTimeout),
		}
		l.mu.Unlock()
		logger.Info().Msg("QR login needs two-step verification password")
		h.OnQRLogin(ctx, domain.Account{}, domain.ErrPasswordRequired)

	default:
		temp.close()
		logger.Warn().Err(err).Msg("QR login failed")
		h.OnQRLogin(ctx, domain.Account{}, mapLoginError(err))
	}
}
