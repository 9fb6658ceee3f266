package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAccountNotFound is returned when account is not found
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists is returned when account already exists
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrNotConnected is returned when operation requires connection
	ErrNotConnected = errors.New("not connected to Telegram")

	// ErrNotAuthorized is returned when a session exists but is not logged in
	ErrNotAuthorized = errors.New("session is not authorized")

	// ErrSessionRevoked is returned when session is revoked
	ErrSessionRevoked = errors.New("session has been revoked")

	// ErrPasswordRequired is returned when the account has two-step verification
	ErrPasswordRequired = errors.New("two-step verification password required")

	// ErrInvalidCode is returned when the login code is wrong or expired
	ErrInvalidCode = errors.New("invalid or expired login code")

	// ErrInvalidPassword is returned when the 2FA password is wrong
	ErrInvalidPassword = errors.New("invalid two-step verification password")

	// ErrNoPendingLogin is returned when a login step arrives without a started login
	ErrNoPendingLogin = errors.New("no pending login")

	// ErrSessionLimit is returned when the session limit is reached
	ErrSessionLimit = errors.New("session limit reached")

	// ErrPeerNotFound is returned when a chat cannot be resolved to an input peer
	ErrPeerNotFound = errors.New("peer not found")
)

// RateLimitedError is returned when Telegram asks the client to wait
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// AsRateLimited extracts the cooldown from err
func AsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
