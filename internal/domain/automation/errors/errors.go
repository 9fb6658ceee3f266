// Package errors contains domain-specific errors for automation
package errors

import (
	pkgerrors "github.com/dapen17/vps1/pkg/errors"
)

// Domain errors for automation operations
var (
	ErrInvalidInterval       = pkgerrors.NewValidationError("invalid interval, use a format like 10s, 1m, 2h or 1d")
	ErrNonPositiveInterval   = pkgerrors.NewValidationError("interval must be greater than zero")
	ErrEmptyMessage          = pkgerrors.NewValidationError("message text cannot be empty")
	ErrMissingReplyText      = pkgerrors.NewValidationError("put the auto-reply text on the line after the command")
	ErrSlotOutOfRange        = pkgerrors.NewValidationError("slot number is out of range")
	ErrSpamAlreadyRunning    = pkgerrors.NewConflictError("spam is already running for this account in this chat")
	ErrBroadcastRunning      = pkgerrors.NewConflictError("broadcast slot is already running")
	ErrSlotTaken             = pkgerrors.NewConflictError("broadcast slot is already used by another account")
	ErrSpamNotRunning        = pkgerrors.NewNotFoundError("no spam is running for this account in this chat")
	ErrBroadcastNotRunning   = pkgerrors.NewNotFoundError("broadcast slot is not running")
	ErrNotBlacklisted        = pkgerrors.NewNotFoundError("chat is not in the blacklist")
	ErrAccountNotAvailable   = pkgerrors.NewServiceUnavailableError("account is not connected")
	ErrMissingScheduleParams = pkgerrors.NewInternalError("running automation has no stored message or interval")
)
