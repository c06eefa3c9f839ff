package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/orsocook/auth-service/internal/utils"
)

// OneTimeTokenRepo manages the single-use secrets that prove possession of an
// email inbox. Tokens live on the user row itself, one slot per purpose, so
// issuing a new token for a purpose overwrites (and thereby invalidates) the
// previous one. Consumption is fused with the state change it authorizes in
// a single conditional UPDATE: two concurrent consumers of the same value get
// exactly one success, because only the statement that still sees the token
// in place touches the row.
type OneTimeTokenRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewOneTimeTokenRepo(db *sql.DB) *OneTimeTokenRepo {
	return &OneTimeTokenRepo{DB: db, now: time.Now}
}

// WithClock swaps the time source; used by expiry tests.
func (r *OneTimeTokenRepo) WithClock(now func() time.Time) *OneTimeTokenRepo {
	r.now = now
	return r
}

// IssueVerify writes a fresh email-verification token for the user and
// returns its value. Any previously issued verification token stops working.
func (r *OneTimeTokenRepo) IssueVerify(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	value, err := utils.RandomHex(32)
	if err != nil {
		return "", err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET email_token=?, email_token_expiry=? WHERE id=?",
		value, r.now().UTC().Add(ttl), userID)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrNotFound
	}
	return value, nil
}

// IssueReset writes a fresh password-reset token for the user.
func (r *OneTimeTokenRepo) IssueReset(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	value, err := utils.RandomHex(32)
	if err != nil {
		return "", err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token=?, reset_token_expiry=? WHERE id=?",
		value, r.now().UTC().Add(ttl), userID)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrNotFound
	}
	return value, nil
}

// ConsumeVerify validates a verification token and, in the same statement,
// marks the account verified and clears the token slot. Unknown, expired and
// wrong-purpose values are indistinguishable to the caller.
func (r *OneTimeTokenRepo) ConsumeVerify(ctx context.Context, value string) (string, error) {
	if value == "" {
		return "", ErrTokenNotFound
	}
	now := r.now().UTC()
	var userID string
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM users WHERE email_token=? AND email_token_expiry > ? LIMIT 1",
		value, now).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrTokenNotFound
		}
		return "", err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET is_verified=1, email_token=NULL, email_token_expiry=NULL
		 WHERE id=? AND email_token=? AND email_token_expiry > ?`,
		userID, value, now)
	if err != nil {
		return "", err
	}
	// Zero rows here means another consumer won the race.
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrTokenNotFound
	}
	return userID, nil
}

// ConsumeReset validates a reset token and, in the same statement, swaps the
// password hash, clears the token slot and lifts any active lockout. A
// successful reset proves inbox possession, which outranks a stale
// brute-force lock.
func (r *OneTimeTokenRepo) ConsumeReset(ctx context.Context, value, newHash string) (string, error) {
	if value == "" {
		return "", ErrTokenNotFound
	}
	now := r.now().UTC()
	var userID string
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM users WHERE reset_token=? AND reset_token_expiry > ? LIMIT 1",
		value, now).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrTokenNotFound
		}
		return "", err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=?, reset_token=NULL, reset_token_expiry=NULL,
		        login_attempts=0, locked_until=NULL
		 WHERE id=? AND reset_token=? AND reset_token_expiry > ?`,
		newHash, userID, value, now)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrTokenNotFound
	}
	return userID, nil
}
