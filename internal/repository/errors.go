package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrEmailExists and ErrUsernameExists surface duplicate-key inserts.
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
	// ErrTokenNotFound is the single answer for every failed one-time token
	// consumption: unknown value, wrong purpose or expired. Collapsing the
	// three cases stops callers from probing which tokens ever existed.
	ErrTokenNotFound = errors.New("one-time token not found")
)
