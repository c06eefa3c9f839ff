package auth

import (
	"context"
	"math"
	"time"

	"github.com/orsocook/auth-service/internal/model"
)

// Policy is the per-account brute-force state machine:
// Unlocked(attempts 0..max-1) -> Locked(until) -> Unlocked(0). Counters are
// per account, not per IP; distributed guessing across many accounts is
// handled separately by the transport rate limiter.
type Policy struct {
	store       CredentialStore
	maxAttempts int
	lockFor     time.Duration
	now         func() time.Time
}

// FailureOutcome reports the state after one recorded failure.
type FailureOutcome struct {
	Locked       bool
	UnlockAt     *time.Time
	AttemptsLeft int
}

func NewPolicy(store CredentialStore, maxAttempts int, lockFor time.Duration) *Policy {
	return &Policy{store: store, maxAttempts: maxAttempts, lockFor: lockFor, now: time.Now}
}

// WithClock swaps the time source; used by tests.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// IsLocked reports whether u is under an active lock right now. A past-dated
// lockedUntil counts as unlocked.
func (p *Policy) IsLocked(u model.User) bool {
	return u.Locked(p.now())
}

// MinutesLeft returns the whole minutes remaining on u's lock, rounded up,
// never below zero.
func (p *Policy) MinutesLeft(u model.User) int {
	if u.LockedUntil == nil {
		return 0
	}
	left := u.LockedUntil.Sub(p.now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Minutes()))
}

// RecordFailure increments the account's failure counter; if the counter
// reaches the threshold the account transitions to Locked until now+lockFor.
// The increment-and-lock happens in one conditional store update so
// concurrent failures cannot both skip the lock transition.
func (p *Policy) RecordFailure(ctx context.Context, u model.User) (FailureOutcome, error) {
	lockUntil := p.now().Add(p.lockFor)
	attempts, lockedUntil, err := p.store.RecordLoginFailure(ctx, u.ID, p.maxAttempts, lockUntil)
	if err != nil {
		return FailureOutcome{}, err
	}
	out := FailureOutcome{UnlockAt: lockedUntil}
	if lockedUntil != nil && lockedUntil.After(p.now()) {
		out.Locked = true
		return out, nil
	}
	out.AttemptsLeft = p.maxAttempts - attempts
	if out.AttemptsLeft < 0 {
		out.AttemptsLeft = 0
	}
	return out, nil
}

// RecordSuccess resets the counter and clears any lock.
func (p *Policy) RecordSuccess(ctx context.Context, u model.User) error {
	return p.store.RecordLoginSuccess(ctx, u.ID, p.now())
}

// ClearStaleLock lazily resets an expired lock so the stale field does not
// linger on the row. No-op when the lock is still active or absent.
func (p *Policy) ClearStaleLock(ctx context.Context, u model.User) error {
	if u.LockedUntil == nil || u.LockedUntil.After(p.now()) {
		return nil
	}
	return p.store.ClearExpiredLock(ctx, u.ID, p.now())
}
