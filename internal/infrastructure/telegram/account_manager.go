package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dapen17/vps1/internal/domain"
	"github.com/dapen17/vps1/internal/infrastructure/metrics"
)

// Client is an account client the manager can connect and log out
type Client interface {
	domain.AccountClient

	// Connect connects with the stored session
	Connect(ctx context.Context) error

	// Logout terminates the authorization and disconnects
	Logout(ctx context.Context) error
}

// ClientFactory is a function type for creating Telegram clients
type ClientFactory func(cfg MTProtoClientConfig) (Client, error)

// AccountManagerConfig holds account manager settings
type AccountManagerConfig struct {
	APIID             int
	APIHash           string
	RequestsPerSec    int
	MaxSessions       int
	MaxConcurrent     int
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

func (c AccountManagerConfig) withDefaults() AccountManagerConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 5
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 10 * time.Second
	}
	return c
}

// AccountManager keeps the attached accounts connected and exposes them to
// the automation layer. It implements domain.AccountRegistry.
type AccountManager struct {
	cfg     AccountManagerConfig
	store   SessionStore
	metrics *metrics.Metrics

	// clientFactory is used to create new clients (can be overridden for testing)
	clientFactory ClientFactory

	mu        sync.RWMutex
	clients   map[string]Client // session key -> client
	order     []string
	byID      map[int64]string // telegram user id -> session key
	listeners []domain.AccountListener
	handler   domain.MessageHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewAccountManager creates a new account manager
func NewAccountManager(cfg AccountManagerConfig, store SessionStore, m *metrics.Metrics, logger zerolog.Logger) *AccountManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &AccountManager{
		cfg:           cfg.withDefaults(),
		store:         store,
		metrics:       m,
		clientFactory: defaultClientFactory,
		clients:       make(map[string]Client),
		byID:          make(map[int64]string),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger.With().Str("component", "account_manager").Logger(),
	}
}

// defaultClientFactory is the default factory that creates real MTProtoClient instances
func defaultClientFactory(cfg MTProtoClientConfig) (Client, error) {
	client, err := NewMTProtoClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func sessionKey(ref domain.SessionRef) string {
	return fmt.Sprintf("%d_%s", ref.OwnerID, ref.Phone)
}

// SetMessageHandler sets the handler that receives messages of every account
func (m *AccountManager) SetMessageHandler(h domain.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// AddListener registers a listener for attach and detach events
func (m *AccountManager) AddListener(l domain.AccountListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// MaxSessions returns the configured session limit
func (m *AccountManager) MaxSessions() int {
	return m.cfg.MaxSessions
}

func (m *AccountManager) dispatch(ctx context.Context, msg domain.IncomingMessage) error {
	m.mu.RLock()
	h := m.handler
	m.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h(ctx, msg)
}

// RestoreSessions connects every stored session in parallel. Sessions that are
// no longer authorized are removed from the store.
func (m *AccountManager) RestoreSessions(ctx context.Context) *domain.InitializationReport {
	report := &domain.InitializationReport{Errors: make(map[string]error)}

	refs, err := m.store.List(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to list stored sessions")
		report.Errors["list"] = err
		return report
	}
	report.TotalAccounts = len(refs)

	if len(refs) == 0 {
		m.logger.Info().Msg("No stored sessions to restore")
		return report
	}

	m.logger.Info().
		Int("count", len(refs)).
		Int("max_concurrent", m.cfg.MaxConcurrent).
		Msg("Starting session restore")

	var (
		g        errgroup.Group
		reportMu sync.Mutex
	)
	g.SetLimit(m.cfg.MaxConcurrent)

	for _, ref := range refs {
		g.Go(func() error {
			masked := maskPhoneNumber(ref.Phone)

			_, err := m.connect(ctx, ref)

			reportMu.Lock()
			defer reportMu.Unlock()

			if err == nil {
				report.SuccessfulAccounts++
				return nil
			}

			report.FailedAccounts++
			report.Errors[masked] = err
			if isDeadSession(err) {
				if delErr := m.store.Delete(ctx, ref); delErr != nil {
					m.logger.Warn().Err(delErr).Str("phone", masked).Msg("Failed to remove invalid session")
				} else {
					report.RemovedSessions++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Info().
		Int("total", report.TotalAccounts).
		Int("successful", report.SuccessfulAccounts).
		Int("failed", report.FailedAccounts).
		Int("removed", report.RemovedSessions).
		Msg("Session restore completed")

	return report
}

func isDeadSession(err error) bool {
	return errors.Is(err, domain.ErrNotAuthorized) || errors.Is(err, domain.ErrSessionRevoked)
}

// Attach connects an account whose session was just stored by a login flow
func (m *AccountManager) Attach(ctx context.Context, ref domain.SessionRef) (domain.Account, error) {
	return m.connect(ctx, ref)
}

func (m *AccountManager) connect(ctx context.Context, ref domain.SessionRef) (domain.Account, error) {
	key := sessionKey(ref)
	logger := m.logger.With().Str("phone", maskPhoneNumber(ref.Phone)).Int64("owner_id", ref.OwnerID).Logger()

	m.mu.RLock()
	existing := m.clients[key]
	m.mu.RUnlock()
	if existing != nil && existing.IsConnected() {
		return existing.Account(), domain.ErrAccountAlreadyExists
	}

	storage, err := m.store.Storage(ctx, ref)
	if err != nil {
		return domain.Account{}, fmt.Errorf("open session storage: %w", err)
	}

	var client Client
	client, err = m.clientFactory(MTProtoClientConfig{
		APIID:          m.cfg.APIID,
		APIHash:        m.cfg.APIHash,
		Ref:            ref,
		Storage:        storage,
		RequestsPerSec: m.cfg.RequestsPerSec,
		Handler:        m.dispatch,
		OnClosed:       func(err error) { m.handleClosed(ref, client, err) },
		Logger:         m.logger,
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("create client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to connect account")
		m.recordStatus(ctx, ref, domain.Account{}, statusFor(err), err)
		return domain.Account{}, err
	}

	account := client.Account()

	m.mu.Lock()
	if otherKey, dup := m.byID[account.ID]; dup && otherKey != key {
		m.mu.Unlock()
		m.disconnect(client)
		return account, domain.ErrAccountAlreadyExists
	}
	if _, known := m.clients[key]; !known {
		m.order = append(m.order, key)
	}
	m.clients[key] = client
	m.byID[account.ID] = key
	listeners := append([]domain.AccountListener(nil), m.listeners...)
	m.mu.Unlock()

	logger.Info().Int64("account_id", account.ID).Msg("Account attached")
	m.recordStatus(ctx, ref, account, AccountStatusActive, nil)
	m.refreshGauges()

	for _, l := range listeners {
		l.OnAccountAttached(ctx, account, client)
	}

	return account, nil
}

func statusFor(err error) string {
	if isDeadSession(err) {
		return AccountStatusRevoked
	}
	var rl *domain.RateLimitedError
	if errors.As(err, &rl) {
		return AccountStatusFlood
	}
	return AccountStatusInactive
}

// detach removes the client registered for ref. When client is non-nil it is
// only removed if it is still the registered one.
func (m *AccountManager) detach(ref domain.SessionRef, client Client) (Client, bool) {
	key := sessionKey(ref)

	m.mu.Lock()
	cur, ok := m.clients[key]
	if !ok || (client != nil && cur != client) {
		m.mu.Unlock()
		return nil, false
	}
	delete(m.clients, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	account := cur.Account()
	if m.byID[account.ID] == key {
		delete(m.byID, account.ID)
	}
	listeners := append([]domain.AccountListener(nil), m.listeners...)
	m.mu.Unlock()

	m.refreshGauges()
	for _, l := range listeners {
		l.OnAccountDetached(m.ctx, account)
	}
	return cur, true
}

// handleClosed reacts to a connection that ended on its own
func (m *AccountManager) handleClosed(ref domain.SessionRef, client Client, err error) {
	if _, ok := m.detach(ref, client); !ok {
		return
	}

	if isDeadSession(err) {
		m.logger.Warn().Err(err).Str("phone", maskPhoneNumber(ref.Phone)).Msg("Session revoked, removing it")
		m.recordStatus(m.ctx, ref, domain.Account{}, AccountStatusRevoked, err)
		if delErr := m.store.Delete(m.ctx, ref); delErr != nil {
			m.logger.Warn().Err(delErr).Msg("Failed to remove revoked session")
		}
		return
	}

	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go m.reconnectLoop(ref)
}

func (m *AccountManager) reconnectLoop(ref domain.SessionRef) {
	defer m.wg.Done()
	logger := m.logger.With().Str("phone", maskPhoneNumber(ref.Phone)).Logger()

	for attempt := 1; attempt <= m.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-time.After(m.cfg.ReconnectDelay):
		case <-m.ctx.Done():
			return
		}

		_, err := m.connect(m.ctx, ref)
		if err == nil || errors.Is(err, domain.ErrAccountAlreadyExists) {
			m.metrics.RecordAccountReconnection()
			logger.Info().Int("attempt", attempt).Msg("Account reconnected")
			return
		}
		if isDeadSession(err) {
			_ = m.store.Delete(m.ctx, ref)
			return
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect attempt failed")
	}

	logger.Error().Int("attempts", m.cfg.ReconnectAttempts).Msg("Giving up reconnecting account")
}

func (m *AccountManager) disconnect(client Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to disconnect client")
	}
}

func (m *AccountManager) recordStatus(ctx context.Context, ref domain.SessionRef, account domain.Account, status string, lastErr error) {
	recorder, ok := m.store.(StatusRecorder)
	if !ok {
		return
	}
	if err := recorder.RecordStatus(ctx, ref, account, status, lastErr); err != nil {
		m.logger.Debug().Err(err).Msg("Failed to record account status")
	}
}

func (m *AccountManager) refreshGauges() {
	m.mu.RLock()
	total := len(m.clients)
	active := 0
	for _, c := range m.clients {
		if c.IsConnected() {
			active++
		}
	}
	m.mu.RUnlock()
	m.metrics.UpdateAccounts(active, total)
}

// CheckSessionLimit returns domain.ErrSessionLimit when a new session for ref
// would exceed the limit. Re-logging an existing session is always allowed.
func (m *AccountManager) CheckSessionLimit(ctx context.Context, ref domain.SessionRef) error {
	refs, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if r == ref {
			return nil
		}
	}
	if len(refs) >= m.cfg.MaxSessions {
		return domain.ErrSessionLimit
	}
	return nil
}

// SessionCount returns the number of stored sessions
func (m *AccountManager) SessionCount(ctx context.Context) (int, error) {
	refs, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(refs), nil
}

// SessionsOf returns every stored account of an owner with its connection state
func (m *AccountManager) SessionsOf(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	refs, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]domain.Account, 0)
	for _, ref := range refs {
		if ref.OwnerID != ownerID {
			continue
		}
		if c, ok := m.clients[sessionKey(ref)]; ok {
			accounts = append(accounts, c.Account())
			continue
		}
		accounts = append(accounts, domain.Account{OwnerID: ref.OwnerID, Phone: ref.Phone})
	}
	return accounts, nil
}

// Logout logs an account out and deletes its session
func (m *AccountManager) Logout(ctx context.Context, ref domain.SessionRef) error {
	client, attached := m.detach(ref, nil)
	if attached {
		if err := client.Logout(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to log out client")
		}
	} else {
		refs, err := m.store.List(ctx)
		if err != nil {
			return err
		}
		found := false
		for _, r := range refs {
			if r == ref {
				found = true
				break
			}
		}
		if !found {
			return domain.ErrAccountNotFound
		}
	}

	if err := m.store.Delete(ctx, ref); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.logger.Info().Str("phone", maskPhoneNumber(ref.Phone)).Int64("owner_id", ref.OwnerID).Msg("Account logged out")
	return nil
}

// Reset logs out every stored session accepted by match and returns how many were removed
func (m *AccountManager) Reset(ctx context.Context, match func(domain.SessionRef) bool) (int, error) {
	refs, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, ref := range refs {
		if !match(ref) {
			continue
		}
		if err := m.Logout(ctx, ref); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Restart disconnects and reconnects the attached accounts of an owner
func (m *AccountManager) Restart(ctx context.Context, ownerID int64) (int, error) {
	refs := m.attachedRefs(func(ref domain.SessionRef) bool { return ref.OwnerID == ownerID })

	restarted := 0
	var errs []error
	for _, ref := range refs {
		if client, ok := m.detach(ref, nil); ok {
			m.disconnect(client)
		}
		if _, err := m.connect(ctx, ref); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", maskPhoneNumber(ref.Phone), err))
			continue
		}
		restarted++
	}
	return restarted, errors.Join(errs...)
}

// ReconnectAll connects every stored session that is not connected
func (m *AccountManager) ReconnectAll(ctx context.Context) (int, error) {
	refs, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	reconnected := 0
	var errs []error
	for _, ref := range refs {
		m.mu.RLock()
		c, ok := m.clients[sessionKey(ref)]
		m.mu.RUnlock()
		if ok && c.IsConnected() {
			continue
		}
		if ok {
			m.detach(ref, c)
		}

		if _, err := m.connect(ctx, ref); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", maskPhoneNumber(ref.Phone), err))
			continue
		}
		m.metrics.RecordAccountReconnection()
		reconnected++
	}
	return reconnected, errors.Join(errs...)
}

// ExportSessions returns the session blobs of every stored account
func (m *AccountManager) ExportSessions(ctx context.Context) ([]domain.SessionFile, error) {
	refs, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	files := make([]domain.SessionFile, 0, len(refs))
	for _, ref := range refs {
		f, err := m.store.Export(ctx, ref)
		if err != nil {
			m.logger.Warn().Err(err).Str("phone", maskPhoneNumber(ref.Phone)).Msg("Failed to export session")
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

func (m *AccountManager) attachedRefs(match func(domain.SessionRef) bool) []domain.SessionRef {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := make([]domain.SessionRef, 0, len(m.order))
	for _, key := range m.order {
		c := m.clients[key]
		a := c.Account()
		ref := domain.SessionRef{OwnerID: a.OwnerID, Phone: a.Phone}
		if match(ref) {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Accounts returns a snapshot of every attached account
func (m *AccountManager) Accounts() []domain.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]domain.Account, 0, len(m.order))
	for _, key := range m.order {
		accounts = append(accounts, m.clients[key].Account())
	}
	return accounts
}

// ForEachActiveAccount calls fn for every connected account
func (m *AccountManager) ForEachActiveAccount(fn func(domain.Account, domain.Messenger)) {
	m.mu.RLock()
	clients := make([]Client, 0, len(m.order))
	for _, key := range m.order {
		clients = append(clients, m.clients[key])
	}
	m.mu.RUnlock()

	for _, c := range clients {
		if c.IsConnected() {
			fn(c.Account(), c)
		}
	}
}

// Messenger returns the messenger of a connected account
func (m *AccountManager) Messenger(accountID int64) (domain.Messenger, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.byID[accountID]
	if !ok {
		return nil, false
	}
	c := m.clients[key]
	if !c.IsConnected() {
		return nil, false
	}
	return c, true
}

// OwnerOf returns the control-bot owner of an account
func (m *AccountManager) OwnerOf(accountID int64) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.byID[accountID]
	if !ok {
		return 0, false
	}
	return m.clients[key].Account().OwnerID, true
}

// Shutdown disconnects all accounts and stops reconnect attempts.
// Returns the number of disconnected accounts.
func (m *AccountManager) Shutdown(ctx context.Context) int {
	m.mu.Lock()
	m.cancel()
	clients := make([]Client, 0, len(m.clients))
	for _, key := range m.order {
		clients = append(clients, m.clients[key])
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c Client) {
			defer wg.Done()
			if err := c.Disconnect(ctx); err != nil {
				m.logger.Warn().Err(err).Msg("Failed to disconnect client")
			}
		}(c)
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn().Msg("Timeout waiting for reconnect attempts to stop")
	}

	return len(clients)
}

// Ensure AccountManager implements domain.AccountRegistry interface
var _ domain.AccountRegistry = (*AccountManager)(nil)
