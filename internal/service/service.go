// Package service implements the procurement workflows on top of the store.
// Every method takes the calling principal and runs as that principal, so
// row security applies to the workflow exactly as it does to a raw query.
package service

import (
	"errors"
	"time"

	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/runtime"
)

var (
	// ErrInvalidCredentials indicates the username or password is wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInactiveAccount indicates the account is suspended or inactive.
	ErrInactiveAccount = errors.New("account suspended or inactive")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidResetToken indicates the reset token is unknown or used.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
	// ErrResetTokenExpired indicates the reset token is past its expiry.
	ErrResetTokenExpired = errors.New("reset token has expired")
	// ErrLimitExceeded indicates the daily allowance of the user's tier is
	// used up.
	ErrLimitExceeded = errors.New("daily limit reached for subscription tier")
	// ErrUnknownAction indicates an action type without a tier limit.
	ErrUnknownAction = errors.New("unknown limited action")
	// ErrStorageDisabled indicates an upload without configured storage.
	ErrStorageDisabled = errors.New("file storage is not configured")
)

// InvalidInputError is a request that fails validation before touching
// the database.
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) error {
	return &InvalidInputError{Field: field, Message: msg}
}

func requireUser(p policy.Principal) error {
	if !p.Authenticated() && !p.System {
		return runtime.ErrAccessDenied
	}
	return nil
}

func requireAdmin(p policy.Principal) error {
	if !p.Admin && !p.System {
		return runtime.ErrAccessDenied
	}
	return nil
}

// startOfDay is midnight UTC of t's day.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
