package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/orsocook/auth-service/internal/model"
)

const userColumns = `id,username,email,password_hash,is_verified,
email_token,email_token_expiry,reset_token,reset_token_expiry,
login_attempts,locked_until,last_login,created_at,updated_at`

// UserRepo is the credential store: CRUD over the 'users' table plus the
// conditional single-statement updates the security flows depend on.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a new, unverified user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, is_verified, email_token, email_token_expiry)
		 VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Username, strings.ToLower(strings.TrimSpace(u.Email)), u.PasswordHash,
		u.IsVerified, u.EmailToken, u.EmailTokenExpiry)
	if err != nil {
		low := strings.ToLower(err.Error())
		if strings.Contains(low, "1062") {
			// Duplicate key; the index name tells us which field raced us.
			if strings.Contains(low, "username") {
				return ErrUsernameExists
			}
			return ErrEmailExists
		}
		return err
	}
	return nil
}

// FindByEmail fetches a user by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

// FindByUsername fetches a user by username.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (model.User, error) {
	return r.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", username)
}

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, id string) (model.User, error) {
	return r.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// FindByEmailOrUsername is the registration conflict probe.
func (r *UserRepo) FindByEmailOrUsername(ctx context.Context, email, username string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.findOne(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? OR username=? LIMIT 1", email, username)
}

// RecordLoginFailure increments the failed-attempt counter and, when the new
// count reaches maxAttempts, arms the lock in the same statement. Doing both
// in one conditional UPDATE keeps concurrent failures from losing the lock
// transition (two callers both reading attempts=4 and neither locking).
// It returns the counter and lock state after the update.
func (r *UserRepo) RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users
		 SET login_attempts = login_attempts + 1,
		     locked_until = IF(login_attempts >= ?, ?, locked_until)
		 WHERE id=?`,
		maxAttempts, lockUntil.UTC(), id)
	if err != nil {
		return 0, nil, err
	}
	var (
		attempts int
		locked   sql.NullTime
	)
	err = r.DB.QueryRowContext(ctx,
		"SELECT login_attempts, locked_until FROM users WHERE id=? LIMIT 1", id).
		Scan(&attempts, &locked)
	if err != nil {
		return 0, nil, err
	}
	if locked.Valid {
		t := locked.Time
		return attempts, &t, nil
	}
	return attempts, nil, nil
}

// RecordLoginSuccess resets the failure counter, clears any lock and stamps
// the last login time.
func (r *UserRepo) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET login_attempts=0, locked_until=NULL, last_login=? WHERE id=?",
		now.UTC(), id)
	return err
}

// ClearExpiredLock lazily resets a lock whose deadline has passed. The WHERE
// clause makes it a no-op when the lock is still active or already clear.
func (r *UserRepo) ClearExpiredLock(ctx context.Context, id string, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET login_attempts=0, locked_until=NULL
		 WHERE id=? AND locked_until IS NOT NULL AND locked_until <= ?`,
		id, now.UTC())
	return err
}

func (r *UserRepo) findOne(ctx context.Context, query string, args ...any) (model.User, error) {
	var (
		u                model.User
		emailToken       sql.NullString
		emailTokenExpiry sql.NullTime
		resetToken       sql.NullString
		resetTokenExpiry sql.NullTime
		lockedUntil      sql.NullTime
		lastLogin        sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsVerified,
		&emailToken, &emailTokenExpiry, &resetToken, &resetTokenExpiry,
		&u.LoginAttempts, &lockedUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	if emailToken.Valid {
		u.EmailToken = &emailToken.String
	}
	if emailTokenExpiry.Valid {
		u.EmailTokenExpiry = &emailTokenExpiry.Time
	}
	if resetToken.Valid {
		u.ResetToken = &resetToken.String
	}
	if resetTokenExpiry.Valid {
		u.ResetTokenExpiry = &resetTokenExpiry.Time
	}
	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Time
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return u, nil
}
