package model

import "time"

// Session mirrors the 'sessions' table: the durable half of a login. One row
// per user (user_id is UNIQUE); a new login replaces the existing row rather
// than adding a second one.
type Session struct {
	ID           uint64
	UserID       string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
