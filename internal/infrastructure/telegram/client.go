package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/updates"
	updhook "github.com/gotd/td/telegram/updates/hook"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dapen17/vps1/internal/domain"
)

const dialogsPageSize = 100

// MTProtoClient implements domain.AccountClient for one attached user account using gotd/td
type MTProtoClient struct {
	// Telegram client instance
	client *telegram.Client
	api    *tg.Client
	sender *message.Sender

	// API credentials
	apiID   int
	apiHash string

	storage session.Storage
	ref     domain.SessionRef
	account domain.Account
	peers   *peerCache

	// refreshMu serializes dialog reloads triggered by unknown chats
	refreshMu sync.Mutex

	handler  domain.MessageHandler
	onClosed func(err error)

	// Connection state
	connected     bool
	disconnecting bool
	mu            sync.RWMutex
	cancelFunc    context.CancelFunc
	runDone       chan struct{}

	logger      zerolog.Logger
	rateLimiter *rate.Limiter
}

// MTProtoClientConfig holds configuration for MTProtoClient
type MTProtoClientConfig struct {
	APIID          int
	APIHash        string
	Ref            domain.SessionRef
	Storage        session.Storage
	RequestsPerSec int

	// Handler receives new messages seen by the account
	Handler domain.MessageHandler

	// OnClosed is called when the connection ends without Disconnect being called
	OnClosed func(err error)

	Logger zerolog.Logger
}

// maskPhoneNumber masks phone number for logging (keeps first 2 and last 2 digits)
func maskPhoneNumber(phone string) string {
	if len(phone) < 4 {
		return "***"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}

// NewMTProtoClient creates a new MTProto client instance
func NewMTProtoClient(cfg MTProtoClientConfig) (*MTProtoClient, error) {
	if cfg.APIID == 0 {
		return nil, fmt.Errorf("APIID is required")
	}
	if cfg.APIHash == "" {
		return nil, fmt.Errorf("APIHash is required")
	}
	if cfg.Ref.Phone == "" {
		return nil, fmt.Errorf("PhoneNumber is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("session storage is required")
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 10
	}

	return &MTProtoClient{
		apiID:   cfg.APIID,
		apiHash: cfg.APIHash,
		storage: cfg.Storage,
		ref:     cfg.Ref,
		account: domain.Account{
			OwnerID: cfg.Ref.OwnerID,
			Phone:   cfg.Ref.Phone,
		},
		peers:    newPeerCache(),
		handler:  cfg.Handler,
		onClosed: cfg.OnClosed,
		logger: cfg.Logger.With().
			Str("component", "mtproto_client").
			Str("phone", maskPhoneNumber(cfg.Ref.Phone)).
			Logger(),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.RequestsPerSec),
	}, nil
}

// Connect connects to Telegram with the stored session. The session must
// already be authorized; login happens through the control bot.
// The connection outlives ctx, which only bounds the wait for readiness.
func (c *MTProtoClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		c.logger.Debug().Msg("already connected")
		return nil
	}
	if c.disconnecting {
		c.mu.Unlock()
		return fmt.Errorf("disconnect in progress, cannot connect")
	}
	if c.cancelFunc != nil {
		c.mu.Unlock()
		return fmt.Errorf("connect already in progress")
	}

	c.logger.Info().Msg("connecting to Telegram")

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(c.onNewMessage)
	dispatcher.OnNewChannelMessage(c.onNewChannelMessage)

	// Private and basic group messages arrive as short updates, which only
	// the updates manager expands. Its state lives in memory, so messages
	// sent while the account was offline are not replayed.
	gaps := updates.New(updates.Config{
		Handler: dispatcher,
	})

	client := telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		SessionStorage: c.storage,
		UpdateHandler:  gaps,
		Middlewares: []telegram.Middleware{
			updhook.UpdateHook(gaps.Handle),
		},
	})

	clientCtx, cancel := context.WithCancel(context.Background())
	readyChan := make(chan struct{})
	errChan := make(chan error, 1)
	runDone := make(chan struct{})

	c.client = client
	c.cancelFunc = cancel
	c.runDone = runDone
	c.mu.Unlock()

	go func() {
		defer close(runDone)
		err := client.Run(clientCtx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to check auth status: %w", err)
			}
			if !status.Authorized {
				return domain.ErrNotAuthorized
			}

			self := status.User
			if self == nil {
				if self, err = client.Self(ctx); err != nil {
					return fmt.Errorf("failed to get self: %w", err)
				}
			}

			api := client.API()
			c.mu.Lock()
			c.api = api
			c.sender = message.NewSender(api)
			c.account.ID = self.ID
			c.account.Username = self.Username
			c.mu.Unlock()

			// Runs until ctx is done, dispatching updates to the handlers
			return gaps.Run(ctx, api, self.ID, updates.AuthOptions{
				OnStart: func(ctx context.Context) {
					c.mu.Lock()
					c.connected = true
					c.mu.Unlock()

					c.logger.Info().Int64("account_id", self.ID).Msg("successfully connected to Telegram")
					close(readyChan)
				},
			})
		})

		err = classifyRunError(err)
		select {
		case errChan <- err:
		default:
		}
		c.handleRunExit(err)
	}()

	select {
	case <-readyChan:
		return nil
	case err := <-errChan:
		cancel()
		if err == nil {
			err = errors.New("client stopped before becoming ready")
		}
		return fmt.Errorf("failed to connect: %w", err)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// handleRunExit resets connection state after client.Run returns and reports
// the loss to the owner unless it was requested through Disconnect.
func (c *MTProtoClient) handleRunExit(err error) {
	c.mu.Lock()
	wasConnected := c.connected
	requested := c.disconnecting
	if !requested {
		c.client = nil
		c.api = nil
		c.sender = nil
		c.connected = false
		c.cancelFunc = nil
		c.runDone = nil
	}
	onClosed := c.onClosed
	c.mu.Unlock()

	if requested || !wasConnected {
		return
	}

	c.logger.Warn().Err(err).Msg("connection to Telegram lost")
	if onClosed != nil {
		onClosed(err)
	}
}

func classifyRunError(err error) error {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "SESSION_REVOKED", "USER_DEACTIVATED", "USER_DEACTIVATED_BAN", "AUTH_KEY_DUPLICATED"):
		return fmt.Errorf("%w: %v", domain.ErrSessionRevoked, err)
	default:
		return err
	}
}

// Disconnect disconnects from Telegram with graceful shutdown.
// Multiple calls to Disconnect() are safe and will return nil if already disconnected.
func (c *MTProtoClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()

	if c.disconnecting {
		c.mu.Unlock()
		c.logger.Debug().Msg("disconnect already in progress")
		return nil
	}

	if c.cancelFunc == nil {
		c.mu.Unlock()
		c.logger.Debug().Msg("already disconnected")
		return nil
	}

	c.logger.Info().Msg("disconnecting from Telegram")

	c.disconnecting = true
	cancelFunc := c.cancelFunc
	runDone := c.runDone
	c.mu.Unlock()

	cancelFunc()
	if runDone != nil {
		select {
		case <-runDone:
			c.logger.Debug().Msg("client stopped gracefully")
		case <-ctx.Done():
			c.logger.Warn().Msg("disconnect timeout reached while waiting for client shutdown")
		}
	}

	c.mu.Lock()
	c.client = nil
	c.api = nil
	c.sender = nil
	c.connected = false
	c.cancelFunc = nil
	c.runDone = nil
	c.disconnecting = false
	c.mu.Unlock()

	c.logger.Info().Msg("successfully disconnected from Telegram")
	return nil
}

// Logout terminates the authorization on Telegram servers and disconnects
func (c *MTProtoClient) Logout(ctx context.Context) error {
	api, err := c.apiClient()
	if err == nil {
		if _, err := api.AuthLogOut(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("failed to log out on Telegram, dropping session locally")
		}
	}
	return c.Disconnect(ctx)
}

// IsConnected checks if client is connected to Telegram
func (c *MTProtoClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Account returns a snapshot of the account description
func (c *MTProtoClient) Account() domain.Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	account := c.account
	account.Connected = c.connected
	return account
}

// AccountID returns the Telegram user ID of the account, zero before the first connect
func (c *MTProtoClient) AccountID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account.ID
}

// Ref returns the reference of the session the client runs on
func (c *MTProtoClient) Ref() domain.SessionRef {
	return c.ref
}

func (c *MTProtoClient) apiClient() (*tg.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.api == nil {
		return nil, domain.ErrNotConnected
	}
	return c.api, nil
}

func (c *MTProtoClient) messageSender() (*message.Sender, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.sender == nil {
		return nil, domain.ErrNotConnected
	}
	return c.sender, nil
}

// SendMessage sends text to a chat
func (c *MTProtoClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	sender, err := c.messageSender()
	if err != nil {
		return err
	}
	peer, err := c.resolvePeer(ctx, chatID)
	if err != nil {
		return err
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	if _, err := sender.To(peer).Text(ctx, text); err != nil {
		c.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
		return wrapError("send message", err)
	}
	return nil
}

// Reply sends text as a reply to a message in a chat
func (c *MTProtoClient) Reply(ctx context.Context, chatID int64, replyToID int, text string) error {
	sender, err := c.messageSender()
	if err != nil {
		return err
	}
	peer, err := c.resolvePeer(ctx, chatID)
	if err != nil {
		return err
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	if _, err := sender.To(peer).Reply(replyToID).Text(ctx, text); err != nil {
		c.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
		return wrapError("reply", err)
	}
	return nil
}

// MarkRead acknowledges messages of a chat up to maxID
func (c *MTProtoClient) MarkRead(ctx context.Context, chatID int64, maxID int) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	peer, err := c.resolvePeer(ctx, chatID)
	if err != nil {
		return err
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	if channel, ok := peer.(*tg.InputPeerChannel); ok {
		_, err = api.ChannelsReadHistory(ctx, &tg.ChannelsReadHistoryRequest{
			Channel: &tg.InputChannel{ChannelID: channel.ChannelID, AccessHash: channel.AccessHash},
			MaxID:   maxID,
		})
	} else {
		_, err = api.MessagesReadHistory(ctx, &tg.MessagesReadHistoryRequest{
			Peer:  peer,
			MaxID: maxID,
		})
	}
	if err != nil {
		return wrapError("mark read", err)
	}
	return nil
}

// IterChats walks the account's dialogs page by page
func (c *MTProtoClient) IterChats(ctx context.Context, fn func(domain.Chat) error) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}

	req := &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      dialogsPageSize,
	}
	seen := make(map[int64]struct{})

	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait cancelled: %w", err)
		}

		res, err := api.MessagesGetDialogs(ctx, req)
		if err != nil {
			return wrapError("get dialogs", err)
		}

		page, ok := readDialogsPage(res)
		if !ok {
			return nil
		}
		c.peers.addUsers(page.users)
		c.peers.addChats(page.chats)

		var last *tg.Dialog
		for _, d := range page.dialogs {
			dialog, ok := d.(*tg.Dialog)
			if !ok {
				continue
			}
			last = dialog

			chatID, ok := markPeer(dialog.Peer)
			if !ok {
				continue
			}
			if _, dup := seen[chatID]; dup {
				continue
			}
			seen[chatID] = struct{}{}

			chat, ok := c.peers.chat(chatID)
			if !ok {
				continue
			}
			if err := fn(chat); err != nil {
				return err
			}
		}

		if page.final || last == nil || len(page.dialogs) < dialogsPageSize {
			return nil
		}

		next, ok := c.nextDialogsOffset(last, page.messages)
		if !ok || (next.OffsetID == req.OffsetID && next.OffsetDate == req.OffsetDate) {
			return nil
		}
		req.OffsetPeer = next.OffsetPeer
		req.OffsetID = next.OffsetID
		req.OffsetDate = next.OffsetDate
	}
}

// resolvePeer turns a chat id into an input peer. Access hashes of a fresh
// connection are unknown until dialogs or updates mention the chat, so a miss
// reloads the dialogs once.
func (c *MTProtoClient) resolvePeer(ctx context.Context, chatID int64) (tg.InputPeerClass, error) {
	if peer, err := c.peers.resolve(chatID); err == nil {
		return peer, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if peer, err := c.peers.resolve(chatID); err == nil {
		return peer, nil
	}

	c.logger.Debug().Int64("chat_id", chatID).Msg("unknown chat, reloading dialogs")
	if err := c.IterChats(ctx, func(domain.Chat) error { return nil }); err != nil {
		return nil, fmt.Errorf("chat %d: reload dialogs: %w", chatID, err)
	}

	peer, err := c.peers.resolve(chatID)
	if err != nil {
		return nil, fmt.Errorf("chat %d: %w", chatID, err)
	}
	return peer, nil
}

type dialogsPage struct {
	dialogs  []tg.DialogClass
	messages []tg.MessageClass
	chats    []tg.ChatClass
	users    []tg.UserClass
	final    bool
}

func readDialogsPage(res tg.MessagesDialogsClass) (dialogsPage, bool) {
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		return dialogsPage{dialogs: d.Dialogs, messages: d.Messages, chats: d.Chats, users: d.Users, final: true}, true
	case *tg.MessagesDialogsSlice:
		return dialogsPage{dialogs: d.Dialogs, messages: d.Messages, chats: d.Chats, users: d.Users}, true
	default:
		return dialogsPage{}, false
	}
}

func (c *MTProtoClient) nextDialogsOffset(last *tg.Dialog, messages []tg.MessageClass) (*tg.MessagesGetDialogsRequest, bool) {
	chatID, ok := markPeer(last.Peer)
	if !ok {
		return nil, false
	}
	peer, err := c.peers.resolve(chatID)
	if err != nil {
		return nil, false
	}

	next := &tg.MessagesGetDialogsRequest{OffsetPeer: peer, OffsetID: last.TopMessage}
	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok || msg.ID != last.TopMessage {
			continue
		}
		if id, ok := markPeer(msg.PeerID); ok && id == chatID {
			next.OffsetDate = msg.Date
			break
		}
	}
	return next, true
}

func (c *MTProtoClient) onNewMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	c.peers.addEntities(e)
	c.dispatch(ctx, u.Message)
	return nil
}

func (c *MTProtoClient) onNewChannelMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
	c.peers.addEntities(e)
	c.dispatch(ctx, u.Message)
	return nil
}

func (c *MTProtoClient) dispatch(ctx context.Context, m tg.MessageClass) {
	msg, ok := m.(*tg.Message)
	if !ok || c.handler == nil {
		return
	}

	incoming, ok := toIncoming(c.AccountID(), msg)
	if !ok {
		return
	}

	if err := c.handler(ctx, incoming); err != nil {
		c.logger.Error().Err(err).Int64("chat_id", incoming.ChatID).Msg("message handler failed")
	}
}

// toIncoming converts an MTProto message into the domain view
func toIncoming(accountID int64, msg *tg.Message) (domain.IncomingMessage, bool) {
	chatID, ok := markPeer(msg.PeerID)
	if !ok {
		return domain.IncomingMessage{}, false
	}

	_, private := msg.PeerID.(*tg.PeerUser)
	senderID := chatID
	if from, ok := msg.GetFromID(); ok {
		if id, ok := markPeer(from); ok {
			senderID = id
		}
	}
	if msg.Out {
		senderID = accountID
	}

	return domain.IncomingMessage{
		AccountID: accountID,
		ChatID:    chatID,
		MessageID: msg.ID,
		SenderID:  senderID,
		Text:      msg.Message,
		Out:       msg.Out,
		Private:   private,
		Date:      time.Unix(int64(msg.Date), 0),
	}, true
}

// wrapError turns flood waits into *domain.RateLimitedError
func wrapError(op string, err error) error {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &domain.RateLimitedError{RetryAfter: d}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// Ensure MTProtoClient implements domain.AccountClient interface
var _ domain.AccountClient = (*MTProtoClient)(nil)
