package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/orsocook/auth-service/internal/model"
	"github.com/orsocook/auth-service/internal/repository"
	"github.com/orsocook/auth-service/internal/utils"
)

// MockStore is an in-memory implementation of CredentialStore, OneTimeTokens
// and SessionStore for tests. It reproduces the semantics the MySQL
// repositories get from conditional single-statement updates: counter
// increments, token consumption and session upserts are each atomic under
// one mutex, and consuming a token clears it together with the state change
// it authorizes.
type MockStore struct {
	mu       sync.Mutex
	users    map[string]*model.User    // by id
	sessions map[string]*model.Session // by refresh token hash
	now      func() time.Time
}

func NewMockStore() *MockStore {
	return &MockStore{
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
		now:      time.Now,
	}
}

// WithClock swaps the time source; used by expiry tests.
func (m *MockStore) WithClock(now func() time.Time) *MockStore {
	m.now = now
	return m
}

// ----- CredentialStore -----

func (m *MockStore) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrEmailExists
		}
		if existing.Username == u.Username {
			return repository.ErrUsernameExists
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MockStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *MockStore) FindByUsername(_ context.Context, username string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *MockStore) FindByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return *u, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (m *MockStore) FindByEmailOrUsername(_ context.Context, email, username string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email || u.Username == username {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *MockStore) RecordLoginFailure(_ context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}
	u.LoginAttempts++
	if u.LoginAttempts >= maxAttempts {
		t := lockUntil.UTC()
		u.LockedUntil = &t
	}
	if u.LockedUntil == nil {
		return u.LoginAttempts, nil, nil
	}
	t := *u.LockedUntil
	return u.LoginAttempts, &t, nil
}

func (m *MockStore) RecordLoginSuccess(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.LoginAttempts = 0
	u.LockedUntil = nil
	t := now.UTC()
	u.LastLogin = &t
	return nil
}

func (m *MockStore) ClearExpiredLock(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.LockedUntil != nil && !u.LockedUntil.After(now) {
		u.LoginAttempts = 0
		u.LockedUntil = nil
	}
	return nil
}

// ----- OneTimeTokens -----

func (m *MockStore) IssueVerify(_ context.Context, userID string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	value, err := utils.RandomHex(32)
	if err != nil {
		return "", err
	}
	exp := m.now().UTC().Add(ttl)
	u.EmailToken = &value
	u.EmailTokenExpiry = &exp
	return value, nil
}

func (m *MockStore) IssueReset(_ context.Context, userID string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	value, err := utils.RandomHex(32)
	if err != nil {
		return "", err
	}
	exp := m.now().UTC().Add(ttl)
	u.ResetToken = &value
	u.ResetTokenExpiry = &exp
	return value, nil
}

func (m *MockStore) ConsumeVerify(_ context.Context, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		return "", repository.ErrTokenNotFound
	}
	now := m.now()
	for _, u := range m.users {
		if u.EmailToken != nil && *u.EmailToken == value &&
			u.EmailTokenExpiry != nil && u.EmailTokenExpiry.After(now) {
			u.IsVerified = true
			u.EmailToken = nil
			u.EmailTokenExpiry = nil
			return u.ID, nil
		}
	}
	return "", repository.ErrTokenNotFound
}

func (m *MockStore) ConsumeReset(_ context.Context, value, newHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		return "", repository.ErrTokenNotFound
	}
	now := m.now()
	for _, u := range m.users {
		if u.ResetToken != nil && *u.ResetToken == value &&
			u.ResetTokenExpiry != nil && u.ResetTokenExpiry.After(now) {
			u.PasswordHash = newHash
			u.ResetToken = nil
			u.ResetTokenExpiry = nil
			u.LoginAttempts = 0
			u.LockedUntil = nil
			return u.ID, nil
		}
	}
	return "", repository.ErrTokenNotFound
}

// ----- SessionStore -----

func (m *MockStore) Upsert(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, hash)
		}
	}
	m.sessions[tokenHash] = &model.Session{
		UserID:       userID,
		RefreshToken: tokenHash,
		ExpiresAt:    expiresAt.UTC(),
	}
	return nil
}

func (m *MockStore) Revoke(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

// ----- test inspection helpers -----

// DeleteUser removes a user outright, standing in for the external
// account-deletion flow.
func (m *MockStore) DeleteUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

// UserByEmail returns a copy of the stored user, for assertions.
func (m *MockStore) UserByEmail(email string) (model.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return *u, true
		}
	}
	return model.User{}, false
}

// VerifyTokenFor returns the live verification token for an email, if any.
func (m *MockStore) VerifyTokenFor(email string) string {
	u, ok := m.UserByEmail(email)
	if !ok || u.EmailToken == nil {
		return ""
	}
	return *u.EmailToken
}

// ResetTokenFor returns the live reset token for an email, if any.
func (m *MockStore) ResetTokenFor(email string) string {
	u, ok := m.UserByEmail(email)
	if !ok || u.ResetToken == nil {
		return ""
	}
	return *u.ResetToken
}

// SessionCount reports how many session rows exist.
func (m *MockStore) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HasSession reports whether a session row matches the token hash.
func (m *MockStore) HasSession(tokenHash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[tokenHash]
	return ok
}

var errNotifierDown = errors.New("notifier unavailable")

// MockNotifier records dispatched mail instead of sending it.
type MockNotifier struct {
	mu    sync.Mutex
	Fail  bool // when set, every send reports failure
	Calls []MockMail
}

// MockMail is one recorded dispatch.
type MockMail struct {
	Purpose string
	Email   string
	Token   string
	Name    string
}

func (n *MockNotifier) SendVerification(_ context.Context, email, tokenValue, displayName string) error {
	return n.record("email-verify", email, tokenValue, displayName)
}

func (n *MockNotifier) SendPasswordReset(_ context.Context, email, tokenValue, displayName string) error {
	return n.record("password-reset", email, tokenValue, displayName)
}

func (n *MockNotifier) record(purpose, email, tokenValue, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return errNotifierDown
	}
	n.Calls = append(n.Calls, MockMail{Purpose: purpose, Email: email, Token: tokenValue, Name: name})
	return nil
}

// Sent returns a copy of the recorded dispatches.
func (n *MockNotifier) Sent() []MockMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]MockMail, len(n.Calls))
	copy(out, n.Calls)
	return out
}
