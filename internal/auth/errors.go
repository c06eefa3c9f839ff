package auth

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure modes of the auth flows. Handlers dispatch
// on these with errors.Is and map them to HTTP statuses; detail-carrying
// variants below answer errors.Is for their sentinel so both forms of
// dispatch work.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountLocked         = errors.New("account temporarily locked")
	ErrVerificationRequired  = errors.New("email verification required")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrAlreadyVerified       = errors.New("account already verified")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrAccountNotFound       = errors.New("account not found")
)

// ValidationError reports malformed input (missing field, bad email format,
// short password, mismatched confirmation).
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError reports a duplicate identity at registration. Field names
// which identity collided ("email" or "username"); revealing it is a known,
// accepted enumeration trade-off carried over from the product behavior.
type ConflictError struct {
	Field string
	Msg   string
}

func (e *ConflictError) Error() string { return e.Msg }

// LockedError is ErrAccountLocked with the remaining lock time attached.
type LockedError struct {
	Until       time.Time
	MinutesLeft int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account temporarily locked, retry in %d minutes", e.MinutesLeft)
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// BadPasswordError is ErrInvalidCredentials with the number of attempts left
// before the account locks. The caller already proved knowledge of the
// account's email, so reporting the countdown leaks nothing new.
type BadPasswordError struct{ AttemptsLeft int }

func (e *BadPasswordError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempts left", e.AttemptsLeft)
}

func (e *BadPasswordError) Is(target error) bool { return target == ErrInvalidCredentials }
