package repository

import (
	"context"
	"database/sql"
	"time"
)

// SessionRepo persists the refresh session backing each login. The sessions
// table has a UNIQUE key on user_id, so an account holds at most one session
// row: a second login replaces the first one's token (last write wins)
// instead of adding a row. Only a SHA-256 hash of the refresh token is
// stored.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Upsert installs tokenHash as the account's current session, creating the
// row if the account has none. Concurrent logins for the same account cannot
// duplicate rows; the unique key serializes them.
func (r *SessionRepo) Upsert(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO sessions (user_id, refresh_token, expires_at) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE refresh_token=VALUES(refresh_token), expires_at=VALUES(expires_at)`,
		userID, tokenHash, expiresAt.UTC())
	return err
}

// Revoke deletes the session matching tokenHash. Deleting a session that does
// not exist is not an error; logout stays idempotent and leaks nothing about
// which sessions exist.
func (r *SessionRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE refresh_token=?", tokenHash)
	return err
}

// DeleteExpired sweeps rows whose expiry has passed. Housekeeping only; the
// auth flows never consult expired rows.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
