package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/orsocook/auth-service/internal/token"
)

// fakeClock is a shared, steppable time source wired into the service, the
// policy, the codec and the store, so expiry behavior is tested without
// sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	svc      *Service
	store    *MockStore
	notifier *MockNotifier
	clock    *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	store := NewMockStore().WithClock(clock.Now)
	notif := &MockNotifier{}
	codec := token.NewCodec("access-secret", "refresh-secret",
		15*time.Minute, 7*24*time.Hour).WithClock(clock.Now)
	policy := NewPolicy(store, 5, 15*time.Minute).WithClock(clock.Now)
	svc := NewService(store, store, store, notif, codec, policy, Options{
		VerifyTTL:  24 * time.Hour,
		ResetTTL:   time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
		BcryptCost: bcrypt.MinCost, // keep hashing cheap in tests
	}).WithClock(clock.Now)
	return &testEnv{svc: svc, store: store, notifier: notif, clock: clock}
}

func (e *testEnv) register(t *testing.T, username, email, password string) RegisterResult {
	t.Helper()
	res, err := e.svc.Register(context.Background(), username, email, password)
	require.NoError(t, err)
	return res
}

func (e *testEnv) registerVerified(t *testing.T, username, email, password string) {
	t.Helper()
	e.register(t, username, email, password)
	_, err := e.svc.VerifyEmail(context.Background(), e.store.VerifyTokenFor(email))
	require.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name                      string
		username, email, password string
	}{
		{"missing username", "", "bob@x.com", "password1"},
		{"missing email", "bob", "", "password1"},
		{"missing password", "bob", "bob@x.com", ""},
		{"bad email", "bob", "not-an-email", "password1"},
		{"short password", "bob", "bob@x.com", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Register(ctx, tc.username, tc.email, tc.password)
			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestRegisterConflictReportsField(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "bob", "bob@x.com", "password1")

	_, err := env.svc.Register(ctx, "other", "bob@x.com", "password1")
	var cErr *ConflictError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "email", cErr.Field)

	_, err = env.svc.Register(ctx, "bob", "other@x.com", "password1")
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "username", cErr.Field)
}

func TestRegisterCreatesUnverifiedAndMailsToken(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "bob", "bob@x.com", "password1")

	assert.False(t, res.User.IsVerified)
	assert.True(t, res.RequiresVerification)
	assert.True(t, res.EmailSent)

	sent := env.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "email-verify", sent[0].Purpose)
	assert.Equal(t, "bob@x.com", sent[0].Email)
	assert.Equal(t, env.store.VerifyTokenFor("bob@x.com"), sent[0].Token)
}

func TestRegisterSucceedsWhenMailFails(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.Fail = true

	res := env.register(t, "bob", "bob@x.com", "password1")
	assert.False(t, res.EmailSent)

	// The account exists despite the lost mail.
	_, ok := env.store.UserByEmail("bob@x.com")
	assert.True(t, ok)
}

func TestLoginRequiresVerification(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob", "bob@x.com", "password1")

	_, err := env.svc.Login(context.Background(), "bob@x.com", "password1")
	assert.ErrorIs(t, err, ErrVerificationRequired)
}

func TestVerifyEmailAutoLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "bob", "bob@x.com", "password1")

	tokenValue := env.store.VerifyTokenFor("bob@x.com")
	res, err := env.svc.VerifyEmail(ctx, tokenValue)
	require.NoError(t, err)
	assert.True(t, res.User.IsVerified)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)

	// Single use: the same token never works twice.
	_, err = env.svc.VerifyEmail(ctx, tokenValue)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.VerifyEmail(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob", "bob@x.com", "password1")
	tokenValue := env.store.VerifyTokenFor("bob@x.com")

	env.clock.Advance(25 * time.Hour)
	_, err := env.svc.VerifyEmail(context.Background(), tokenValue)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestVerificationTokenSupersession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "bob", "bob@x.com", "password1")
	first := env.store.VerifyTokenFor("bob@x.com")

	require.NoError(t, env.svc.ResendVerification(ctx, "bob@x.com"))
	second := env.store.VerifyTokenFor("bob@x.com")
	require.NotEqual(t, first, second)

	_, err := env.svc.VerifyEmail(ctx, first)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	_, err = env.svc.VerifyEmail(ctx, second)
	assert.NoError(t, err)
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Unknown email: generic success, nothing dispatched.
	require.NoError(t, env.svc.ResendVerification(ctx, "absent@x.com"))
	assert.Empty(t, env.notifier.Sent())

	env.registerVerified(t, "bob", "bob@x.com", "password1")
	err := env.svc.ResendVerification(ctx, "bob@x.com")
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestLoginWrongPasswordCountsDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	for i := 1; i <= 4; i++ {
		_, err := env.svc.Login(ctx, "bob@x.com", "wrong")
		var pwErr *BadPasswordError
		require.ErrorAs(t, err, &pwErr)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, 5-i, pwErr.AttemptsLeft)
	}
}

func TestLockoutAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	var err error
	for i := 0; i < 5; i++ {
		_, err = env.svc.Login(ctx, "bob@x.com", "wrong")
	}
	var lErr *LockedError
	require.ErrorAs(t, err, &lErr)
	assert.ErrorIs(t, err, ErrAccountLocked)
	assert.Equal(t, 15, lErr.MinutesLeft)

	// Correct password changes nothing while the lock holds; the password
	// is not even evaluated.
	_, err = env.svc.Login(ctx, "bob@x.com", "password1")
	assert.ErrorIs(t, err, ErrAccountLocked)

	// Lock expires lazily: once the deadline passes, login works again and
	// the counter is back at zero.
	env.clock.Advance(16 * time.Minute)
	_, err = env.svc.Login(ctx, "bob@x.com", "password1")
	require.NoError(t, err)

	u, _ := env.store.UserByEmail("bob@x.com")
	assert.Zero(t, u.LoginAttempts)
	assert.Nil(t, u.LockedUntil)
}

func TestLoginUnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Login(context.Background(), "absent@x.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginSuccessResetsCounterAndStoresSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	_, _ = env.svc.Login(ctx, "bob@x.com", "wrong")
	_, _ = env.svc.Login(ctx, "bob@x.com", "wrong")

	res, err := env.svc.Login(ctx, "bob@x.com", "password1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, 1, env.store.SessionCount())

	u, _ := env.store.UserByEmail("bob@x.com")
	assert.Zero(t, u.LoginAttempts)
	require.NotNil(t, u.LastLogin)
}

func TestSingleSessionPerAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	first, err := env.svc.Login(ctx, "bob@x.com", "password1")
	require.NoError(t, err)
	second, err := env.svc.Login(ctx, "bob@x.com", "password1")
	require.NoError(t, err)

	// The second login replaced the first session row instead of adding one.
	assert.Equal(t, 1, env.store.SessionCount())

	// The first refresh token still verifies cryptographically until its
	// TTL runs out; only its session row is gone. Accepted gap.
	_, _, err = env.svc.Refresh(ctx, first.RefreshToken)
	assert.NoError(t, err)
	_, _, err = env.svc.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	res, err := env.svc.Login(ctx, "bob@x.com", "password1")
	require.NoError(t, err)

	access, exp, err := env.svc.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.True(t, exp.After(env.clock.Now()))

	// Garbage and access-tokens-as-refresh are both unauthorized.
	_, _, err = env.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = env.svc.Refresh(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshForDeletedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	res, err := env.svc.Login(ctx, "bob@x.com", "password1")
	require.NoError(t, err)

	u, _ := env.store.UserByEmail("bob@x.com")
	env.store.DeleteUser(u.ID)

	_, _, err = env.svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	res, err := env.svc.Login(ctx, "bob@x.com", "password1")
	require.NoError(t, err)

	env.clock.Advance(8 * 24 * time.Hour)
	_, _, err = env.svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	res, err := env.svc.Login(ctx, "bob@x.com", "password1")
	require.NoError(t, err)
	require.Equal(t, 1, env.store.SessionCount())

	require.NoError(t, env.svc.Logout(ctx, res.RefreshToken))
	assert.Zero(t, env.store.SessionCount())

	// Revoking again, or revoking nonsense, is still success.
	assert.NoError(t, env.svc.Logout(ctx, res.RefreshToken))
	assert.NoError(t, env.svc.Logout(ctx, "never-existed"))
	assert.NoError(t, env.svc.Logout(ctx, ""))
}

func TestForgotPasswordSilentForUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	// Both calls report the same nil outcome; only the real account gets
	// mail. The handler layer renders one fixed envelope for both.
	require.NoError(t, env.svc.ForgotPassword(ctx, "bob@x.com"))
	require.NoError(t, env.svc.ForgotPassword(ctx, "absent@x.com"))

	var resets int
	for _, m := range env.notifier.Sent() {
		if m.Purpose == "password-reset" {
			resets++
			assert.Equal(t, "bob@x.com", m.Email)
		}
	}
	assert.Equal(t, 1, resets)
}

func TestResetPasswordValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var vErr *ValidationError
	err := env.svc.ResetPassword(ctx, "tok", "newpass1", "different")
	assert.ErrorAs(t, err, &vErr)
	err = env.svc.ResetPassword(ctx, "tok", "short", "short")
	assert.ErrorAs(t, err, &vErr)
}

func TestResetPasswordSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	require.NoError(t, env.svc.ForgotPassword(ctx, "bob@x.com"))
	tokenValue := env.store.ResetTokenFor("bob@x.com")

	require.NoError(t, env.svc.ResetPassword(ctx, tokenValue, "newpass1", "newpass1"))
	err := env.svc.ResetPassword(ctx, tokenValue, "other-pass1", "other-pass1")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	require.NoError(t, env.svc.ForgotPassword(ctx, "bob@x.com"))
	tokenValue := env.store.ResetTokenFor("bob@x.com")

	env.clock.Advance(61 * time.Minute)
	err := env.svc.ResetPassword(ctx, tokenValue, "newpass1", "newpass1")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestResetPasswordClearsLockout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	for i := 0; i < 5; i++ {
		_, _ = env.svc.Login(ctx, "bob@x.com", "wrong")
	}
	u, _ := env.store.UserByEmail("bob@x.com")
	require.NotNil(t, u.LockedUntil)

	require.NoError(t, env.svc.ForgotPassword(ctx, "bob@x.com"))
	tokenValue := env.store.ResetTokenFor("bob@x.com")
	require.NoError(t, env.svc.ResetPassword(ctx, tokenValue, "newpass1", "newpass1"))

	u, _ = env.store.UserByEmail("bob@x.com")
	assert.Zero(t, u.LoginAttempts)
	assert.Nil(t, u.LockedUntil)

	// The lock is gone immediately, not just after its deadline.
	res, err := env.svc.Login(ctx, "bob@x.com", "newpass1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
}

func TestVerificationIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	// None of the subsequent flows may flip the account back to unverified.
	_, _ = env.svc.Login(ctx, "bob@x.com", "wrong")
	_ = env.svc.ForgotPassword(ctx, "bob@x.com")
	_ = env.svc.ResetPassword(ctx, env.store.ResetTokenFor("bob@x.com"), "newpass1", "newpass1")
	_, _ = env.svc.Login(ctx, "bob@x.com", "newpass1")

	u, _ := env.store.UserByEmail("bob@x.com")
	assert.True(t, u.IsVerified)
}

func TestCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "bob", "bob@x.com", "password1")

	u, _ := env.store.UserByEmail("bob@x.com")
	safe, err := env.svc.CurrentUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", safe.Username)

	_, err = env.svc.CurrentUser(ctx, "missing-id")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

// TestFullLifecycle walks the whole account story end to end: register,
// blocked login, verify with auto-login, brute force into a lock, recover by
// reset, log back in cleanly.
func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.svc.Register(ctx, "bob", "bob@x.com", "password1")
	require.NoError(t, err)
	assert.False(t, reg.User.IsVerified)

	_, err = env.svc.Login(ctx, "bob@x.com", "password1")
	assert.ErrorIs(t, err, ErrVerificationRequired)

	verified, err := env.svc.VerifyEmail(ctx, env.store.VerifyTokenFor("bob@x.com"))
	require.NoError(t, err)
	assert.True(t, verified.User.IsVerified)
	assert.NotEmpty(t, verified.AccessToken)

	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = env.svc.Login(ctx, "bob@x.com", "wrong")
	}
	assert.ErrorIs(t, lastErr, ErrAccountLocked)

	_, err = env.svc.Login(ctx, "bob@x.com", "password1")
	assert.ErrorIs(t, err, ErrAccountLocked)

	require.NoError(t, env.svc.ForgotPassword(ctx, "bob@x.com"))
	require.NoError(t, env.svc.ResetPassword(ctx, env.store.ResetTokenFor("bob@x.com"), "newpass1", "newpass1"))

	res, err := env.svc.Login(ctx, "bob@x.com", "newpass1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)

	u, _ := env.store.UserByEmail("bob@x.com")
	assert.Zero(t, u.LoginAttempts)
}
