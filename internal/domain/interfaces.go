package domain

import "context"

// Messenger performs message operations on behalf of one attached account
type Messenger interface {
	// AccountID returns the Telegram user ID of the account
	AccountID() int64

	// SendMessage sends text to a chat. Fails with *RateLimitedError on flood control.
	SendMessage(ctx context.Context, chatID int64, text string) error

	// Reply sends text as a reply to a message in a chat
	Reply(ctx context.Context, chatID int64, replyToID int, text string) error

	// IterChats walks the account's dialogs page by page, calling fn for each chat.
	// Iteration stops at the first error returned by fn.
	IterChats(ctx context.Context, fn func(Chat) error) error

	// MarkRead acknowledges messages of a chat up to maxID
	MarkRead(ctx context.Context, chatID int64, maxID int) error
}

// MessageHandler receives incoming messages of attached accounts
type MessageHandler func(ctx context.Context, msg IncomingMessage) error

// AccountClient is a connected Telegram user client
type AccountClient interface {
	Messenger

	// Account returns a snapshot of the account description
	Account() Account

	// IsConnected checks if client is connected
	IsConnected() bool

	// Disconnect disconnects from Telegram
	Disconnect(ctx context.Context) error
}

// AccountRegistry exposes attached accounts to the automation layer
type AccountRegistry interface {
	// ForEachActiveAccount calls fn for every connected account
	ForEachActiveAccount(fn func(Account, Messenger))

	// Messenger returns the messenger of a connected account
	Messenger(accountID int64) (Messenger, bool)

	// OwnerOf returns the control-bot owner of an account
	OwnerOf(accountID int64) (int64, bool)
}

// AccountListener is notified when accounts become available or go away
type AccountListener interface {
	OnAccountAttached(ctx context.Context, account Account, messenger Messenger)
	OnAccountDetached(ctx context.Context, account Account)
}
