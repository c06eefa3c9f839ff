package auth

import (
	"context"
	"time"

	"github.com/orsocook/auth-service/internal/model"
)

// CredentialStore is the durable store for user records. The MySQL
// implementation lives in internal/repository; tests plug in an in-memory
// fake. Counter updates must be atomic single statements on the store side
// (see RecordLoginFailure in the repository).
type CredentialStore interface {
	Create(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (model.User, error)

	RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (attempts int, lockedUntil *time.Time, err error)
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error
	ClearExpiredLock(ctx context.Context, id string, now time.Time) error
}

// OneTimeTokens issues and consumes the single-use email-verification and
// password-reset secrets. Consume calls are atomic: of two concurrent
// consumers of one value exactly one succeeds.
type OneTimeTokens interface {
	IssueVerify(ctx context.Context, userID string, ttl time.Duration) (string, error)
	IssueReset(ctx context.Context, userID string, ttl time.Duration) (string, error)
	ConsumeVerify(ctx context.Context, value string) (userID string, err error)
	ConsumeReset(ctx context.Context, value, newHash string) (userID string, err error)
}

// SessionStore keeps the single refresh session per account.
type SessionStore interface {
	Upsert(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	Revoke(ctx context.Context, tokenHash string) error
}

// Notifier delivers verification and reset links. Delivery is a side effect,
// not a precondition: callers log failures and proceed.
type Notifier interface {
	SendVerification(ctx context.Context, email, tokenValue, displayName string) error
	SendPasswordReset(ctx context.Context, email, tokenValue, displayName string) error
}
