package domain

import "time"

// Account describes a Telegram user account attached through the control bot
type Account struct {
	// ID is the account's own Telegram user ID, known once authorized
	ID int64
	// OwnerID is the control-bot user who attached the account
	OwnerID   int64
	Phone     string
	Username  string
	Connected bool
}

// Chat is a dialog reachable by an attached account
type Chat struct {
	ID      int64
	Title   string
	IsGroup bool
}

// IncomingMessage is a new message observed by an attached account
type IncomingMessage struct {
	AccountID int64
	ChatID    int64
	MessageID int
	SenderID  int64
	Text      string
	Out       bool
	Private   bool
	Date      time.Time
}

// SessionRef identifies a persisted MTProto session
type SessionRef struct {
	OwnerID int64
	Phone   string
}

// SessionFile is an exported session blob
type SessionFile struct {
	Name string
	Data []byte
}

// InitializationReport summarizes session restore at startup
type InitializationReport struct {
	TotalAccounts      int
	SuccessfulAccounts int
	FailedAccounts     int
	RemovedSessions    int
	Errors             map[string]error
}
