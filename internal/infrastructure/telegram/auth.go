package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/internal/domain"
)

// ErrInvalidPhone is returned when Telegram rejects the phone number
var ErrInvalidPhone = errors.New("invalid phone number")

const (
	loginTimeout      = 10 * time.Minute
	clientReadyWindow = 30 * time.Second
)

// tempClient is an unauthorized client used while a login is in progress.
// Its session lives in memory until the login completes.
type tempClient struct {
	client  *telegram.Client
	storage *MemorySessionStorage
	cancel  context.CancelFunc
	done    chan struct{}
}

// startTempClient runs a fresh client in the background and waits until it can serve requests
func startTempClient(ctx context.Context, apiID int, apiHash string, opts telegram.Options) (*tempClient, error) {
	storage := NewMemorySessionStorage()
	opts.SessionStorage = storage
	client := telegram.NewClient(apiID, apiHash, opts)

	runCtx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	ready := make(chan struct{})
	errChan := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		err := client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return nil
		})
		errChan <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, clientReadyWindow)
	defer waitCancel()

	select {
	case <-ready:
		return &tempClient{client: client, storage: storage, cancel: cancel, done: done}, nil
	case err := <-errChan:
		cancel()
		return nil, fmt.Errorf("failed to start login client: %w", err)
	case <-waitCtx.Done():
		cancel()
		return nil, waitCtx.Err()
	}
}

func (t *tempClient) close() {
	t.cancel()
	<-t.done
}

type pendingLogin struct {
	ref          domain.SessionRef
	temp         *tempClient
	codeHash     string
	needPassword bool
	expiresAt    time.Time
}

// LoginManager drives phone and QR logins started from the control bot.
// One login per owner can be pending at a time.
type LoginManager struct {
	apiID   int
	apiHash string
	manager *AccountManager
	store   SessionStore

	mu      sync.Mutex
	pending map[int64]*pendingLogin

	logger zerolog.Logger
}

// NewLoginManager creates a login manager
func NewLoginManager(apiID int, apiHash string, manager *AccountManager, store SessionStore, logger zerolog.Logger) *LoginManager {
	return &LoginManager{
		apiID:   apiID,
		apiHash: apiHash,
		manager: manager,
		store:   store,
		pending: make(map[int64]*pendingLogin),
		logger:  logger.With().Str("component", "login_manager").Logger(),
	}
}

// StartLogin sends a login code to phone. A pending login of the same owner is replaced.
func (l *LoginManager) StartLogin(ctx context.Context, ownerID int64, phone string) error {
	ref := domain.SessionRef{OwnerID: ownerID, Phone: phone}
	if err := l.manager.CheckSessionLimit(ctx, ref); err != nil {
		return err
	}

	l.cancelPending(ownerID)

	temp, err := startTempClient(ctx, l.apiID, l.apiHash, telegram.Options{})
	if err != nil {
		return err
	}

	sent, err := temp.client.API().AuthSendCode(ctx, &tg.AuthSendCodeRequest{
		PhoneNumber: phone,
		APIID:       l.apiID,
		APIHash:     l.apiHash,
		Settings:    tg.CodeSettings{},
	})
	if err != nil {
		temp.close()
		return mapLoginError(err)
	}

	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		temp.close()
		return fmt.Errorf("unexpected send code response %T", sent)
	}

	l.mu.Lock()
	l.pending[ownerID] = &pendingLogin{
		ref:       ref,
		temp:      temp,
		codeHash:  code.PhoneCodeHash,
		expiresAt: time.Now().Add(loginTimeout),
	}
	l.mu.Unlock()

	l.logger.Info().Int64("owner_id", ownerID).Str("phone", maskPhoneNumber(phone)).Msg("Login code sent")
	return nil
}

// VerifyCode completes a pending login with the code received in Telegram.
// Returns domain.ErrPasswordRequired when the account has two-step verification.
func (l *LoginManager) VerifyCode(ctx context.Context, ownerID int64, code string) (domain.Account, error) {
	p, err := l.take(ownerID)
	if err != nil {
		return domain.Account{}, err
	}
	if p.needPassword {
		return domain.Account{}, domain.ErrPasswordRequired
	}

	_, err = p.temp.client.Auth().SignIn(ctx, p.ref.Phone, code, p.codeHash)
	switch {
	case errors.Is(err, auth.ErrPasswordAuthNeeded):
		l.mu.Lock()
		p.needPassword = true
		l.mu.Unlock()
		return domain.Account{}, domain.ErrPasswordRequired
	case err != nil:
		mapped := mapLoginError(err)
		if !errors.Is(mapped, domain.ErrInvalidCode) {
			l.cancelPending(ownerID)
		}
		return domain.Account{}, mapped
	}

	return l.finalize(ctx, ownerID, p)
}

// SubmitPassword completes a pending login that requires two-step verification
func (l *LoginManager) SubmitPassword(ctx context.Context, ownerID int64, password string) (domain.Account, error) {
	p, err := l.take(ownerID)
	if err != nil {
		return domain.Account{}, err
	}
	if !p.needPassword {
		return domain.Account{}, domain.ErrNoPendingLogin
	}

	if _, err := p.temp.client.Auth().Password(ctx, password); err != nil {
		if errors.Is(err, auth.ErrPasswordInvalid) || tgerr.Is(err, "PASSWORD_HASH_INVALID") {
			return domain.Account{}, domain.ErrInvalidPassword
		}
		l.cancelPending(ownerID)
		return domain.Account{}, mapLoginError(err)
	}

	return l.finalize(ctx, ownerID, p)
}

// Cancel drops the pending login of an owner
func (l *LoginManager) Cancel(ownerID int64) bool {
	return l.cancelPending(ownerID)
}

// HasPending reports whether an owner has a login in progress
func (l *LoginManager) HasPending(ownerID int64) bool {
	_, err := l.take(ownerID)
	return err == nil
}

func (l *LoginManager) take(ownerID int64) (*pendingLogin, error) {
	l.mu.Lock()
	p, ok := l.pending[ownerID]
	if ok && time.Now().After(p.expiresAt) {
		delete(l.pending, ownerID)
		l.mu.Unlock()
		p.temp.close()
		return nil, domain.ErrNoPendingLogin
	}
	l.mu.Unlock()

	if !ok {
		return nil, domain.ErrNoPendingLogin
	}
	return p, nil
}

func (l *LoginManager) cancelPending(ownerID int64) bool {
	l.mu.Lock()
	p, ok := l.pending[ownerID]
	delete(l.pending, ownerID)
	l.mu.Unlock()

	if ok {
		p.temp.close()
	}
	return ok
}

// finalize moves the authorized session to the session store and attaches the account
func (l *LoginManager) finalize(ctx context.Context, ownerID int64, p *pendingLogin) (domain.Account, error) {
	l.mu.Lock()
	if l.pending[ownerID] == p {
		delete(l.pending, ownerID)
	}
	l.mu.Unlock()
	defer p.temp.close()

	ref := p.ref
	if ref.Phone == "" {
		self, err := p.temp.client.Self(ctx)
		if err != nil {
			return domain.Account{}, fmt.Errorf("get self: %w", err)
		}
		ref.Phone = self.Phone
		if ref.Phone == "" {
			ref.Phone = fmt.Sprintf("user%d", self.ID)
		}
	}

	return l.persistAndAttach(ctx, ref, p.temp)
}

func (l *LoginManager) persistAndAttach(ctx context.Context, ref domain.SessionRef, temp *tempClient) (domain.Account, error) {
	data, err := temp.storage.LoadSession(ctx)
	if err != nil {
		return domain.Account{}, fmt.Errorf("read login session: %w", err)
	}

	storage, err := l.store.Storage(ctx, ref)
	if err != nil {
		return domain.Account{}, fmt.Errorf("open session storage: %w", err)
	}
	if err := storage.StoreSession(ctx, data); err != nil {
		return domain.Account{}, fmt.Errorf("store session: %w", err)
	}

	// The login client must release the auth key before the account client reuses it
	temp.close()

	account, err := l.manager.Attach(ctx, ref)
	if err != nil && !errors.Is(err, domain.ErrAccountAlreadyExists) {
		return domain.Account{}, err
	}

	l.logger.Info().
		Int64("owner_id", ref.OwnerID).
		Int64("account_id", account.ID).
		Str("phone", maskPhoneNumber(ref.Phone)).
		Msg("Account logged in")
	return account, nil
}

// mapLoginError converts Telegram auth errors into domain errors
func mapLoginError(err error) error {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &domain.RateLimitedError{RetryAfter: d}
	}
	switch {
	case tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EXPIRED", "PHONE_CODE_EMPTY"):
		return domain.ErrInvalidCode
	case tgerr.Is(err, "PHONE_NUMBER_INVALID", "PHONE_NUMBER_BANNED", "PHONE_NUMBER_UNOCCUPIED"):
		return fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	case tgerr.Is(err, "SESSION_PASSWORD_NEEDED"):
		return domain.ErrPasswordRequired
	case tgerr.Is(err, "PASSWORD_HASH_INVALID"):
		return domain.ErrInvalidPassword
	default:
		return err
	}
}
