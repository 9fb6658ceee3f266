// Package entities contains the session domain models
package entities

import (
	"time"

	"github.com/dapen17/vps1/internal/domain"
)

// LoginResult is the outcome of a login step
type LoginResult struct {
	Account domain.Account
	// PasswordRequired is set when the account has two-step verification
	PasswordRequired bool
}

// SessionList is the reply of /list
type SessionList struct {
	Accounts []domain.Account
	Total    int
	Max      int
}

// Archive is a zip of exported session files
type Archive struct {
	Name  string
	Data  []byte
	Files int
	// Link is a presigned download link, empty when no object storage is configured
	Link string
}

// Event types published for account changes
const (
	EventLoginStarted    = "login.started"
	EventAccountAttached = "account.attached"
	EventAccountLogout   = "account.logged_out"
	EventSessionsReset   = "sessions.reset"
	EventSessionsExport  = "sessions.exported"
)

// AccountEvent describes an account change made through the control bot
type AccountEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OwnerID    int64     `json:"owner_id"`
	AccountID  int64     `json:"account_id,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Count      int       `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
