// Package errors contains domain-specific errors for the control bot session flow
package errors

import (
	pkgerrors "github.com/dapen17/vps1/pkg/errors"
)

// Domain errors for session operations
var (
	ErrInvalidPhone     = pkgerrors.NewValidationError("invalid phone number, use the international format like +628123456789")
	ErrInvalidCodeInput = pkgerrors.NewValidationError("the login code must contain digits")
	ErrEmptyPassword    = pkgerrors.NewValidationError("password cannot be empty")
	ErrWrongCode        = pkgerrors.NewValidationError("the login code is wrong or expired")
	ErrWrongPassword    = pkgerrors.NewValidationError("the two-step verification password is wrong")
	ErrNoPendingLogin   = pkgerrors.NewNotFoundError("no login in progress, start with /login <phone>")
	ErrAccountNotFound  = pkgerrors.NewNotFoundError("no session for this phone number")
	ErrNoSessions       = pkgerrors.NewNotFoundError("no sessions are stored")
	ErrSessionLimit     = pkgerrors.NewConflictError("the session limit is reached, log out an account first")
	ErrAdminOnly        = pkgerrors.NewPermissionError("you are not allowed to use this command")
)
