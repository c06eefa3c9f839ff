package model

import "time"

// User mirrors the 'users' table. Besides the identity columns it carries the
// security state the login flow depends on: the brute-force counter with its
// optional lock timestamp, and the live one-time token for each purpose
// (email verification, password reset). At most one token per purpose exists
// at a time; issuing a new one overwrites the previous value.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsVerified   bool

	EmailToken       *string
	EmailTokenExpiry *time.Time
	ResetToken       *string
	ResetTokenExpiry *time.Time

	LoginAttempts int
	LockedUntil   *time.Time
	LastLogin     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SafeUser is the projection of a User that may leave the service. Password
// hashes, one-time tokens and lockout counters never appear here.
type SafeUser struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	IsVerified bool       `json:"is_verified"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Safe returns the externally visible projection of u.
func (u User) Safe() SafeUser {
	return SafeUser{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		IsVerified: u.IsVerified,
		LastLogin:  u.LastLogin,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// Locked reports whether the account is under an active temporary lock at
// instant now. A lockedUntil in the past counts as unlocked.
func (u User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
