// Package auth implements the account security and session lifecycle core:
// registration gated by email verification, hardened password login,
// password recovery and the access/refresh token pair behind it.
package auth

import (
	"context"
	"errors"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/orsocook/auth-service/internal/model"
	"github.com/orsocook/auth-service/internal/repository"
	"github.com/orsocook/auth-service/internal/token"
	"github.com/orsocook/auth-service/internal/utils"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLen = 8

// Options carries the tunable lifetimes and costs of the auth flows.
type Options struct {
	VerifyTTL  time.Duration // email verification token lifetime
	ResetTTL   time.Duration // password reset token lifetime
	RefreshTTL time.Duration // stored session lifetime
	BcryptCost int
}

// Service orchestrates the credential store, one-time tokens, session store,
// token codec and notifier into the public auth operations. It holds no
// state of its own; all collaborators are injected.
type Service struct {
	users    CredentialStore
	tokens   OneTimeTokens
	sessions SessionStore
	notifier Notifier
	codec    *token.Codec
	policy   *Policy
	opts     Options
	now      func() time.Time
	newID    func() string
}

func NewService(users CredentialStore, tokens OneTimeTokens, sessions SessionStore,
	notifier Notifier, codec *token.Codec, policy *Policy, opts Options) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		notifier: notifier,
		codec:    codec,
		policy:   policy,
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock swaps the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RegisterResult is the outcome of a successful registration. No tokens are
// issued yet; the account must verify its email first.
type RegisterResult struct {
	User                 model.SafeUser
	RequiresVerification bool
	EmailSent            bool
}

// AuthResult is the account view plus a fresh token pair, returned by login
// and by verification (auto-login after verify).
type AuthResult struct {
	User           model.SafeUser
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

// Register creates an unverified account, issues an email-verification token
// and asks the notifier to deliver it. A failed delivery is logged, not
// surfaced: the registration state change stands on its own.
func (s *Service) Register(ctx context.Context, username, email, password string) (RegisterResult, error) {
	if username == "" || email == "" || password == "" {
		return RegisterResult{}, &ValidationError{Msg: "username, email and password are required"}
	}
	if !emailPattern.MatchString(email) {
		return RegisterResult{}, &ValidationError{Msg: "invalid email format"}
	}
	if len(password) < minPasswordLen {
		return RegisterResult{}, &ValidationError{Msg: "password must be at least 8 characters"}
	}

	if existing, err := s.users.FindByEmailOrUsername(ctx, email, username); err == nil {
		if existing.Email == email {
			return RegisterResult{}, &ConflictError{Field: "email", Msg: "email already registered"}
		}
		return RegisterResult{}, &ConflictError{Field: "username", Msg: "username already taken"}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return RegisterResult{}, err
	}

	hash, err := utils.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return RegisterResult{}, err
	}
	u := &model.User{
		ID:           s.newID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsVerified:   false,
		CreatedAt:    s.now().UTC(),
		UpdatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return RegisterResult{}, &ConflictError{Field: "email", Msg: "email already registered"}
		case errors.Is(err, repository.ErrUsernameExists):
			return RegisterResult{}, &ConflictError{Field: "username", Msg: "username already taken"}
		}
		return RegisterResult{}, err
	}

	verifyToken, err := s.tokens.IssueVerify(ctx, u.ID, s.opts.VerifyTTL)
	if err != nil {
		return RegisterResult{}, err
	}

	emailSent := true
	if err := s.notifier.SendVerification(ctx, u.Email, verifyToken, u.Username); err != nil {
		log.Printf("auth: verification mail for %s not dispatched: %v", u.Email, err)
		emailSent = false
	}

	return RegisterResult{User: u.Safe(), RequiresVerification: true, EmailSent: emailSent}, nil
}

// VerifyEmail consumes an email-verification token. On success the account
// becomes verified (a terminal transition) and a fresh token pair is
// returned so the user is logged in right after verifying.
func (s *Service) VerifyEmail(ctx context.Context, tokenValue string) (AuthResult, error) {
	userID, err := s.tokens.ConsumeVerify(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return AuthResult{}, ErrInvalidOrExpiredToken
		}
		return AuthResult{}, err
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return AuthResult{}, err
	}
	return s.mintPair(u)
}

// Login validates a password against an account. Order matters: unknown
// account, active lock and pending verification are each rejected before the
// password is even evaluated. A wrong password feeds the lockout policy and
// reports how many attempts remain (or that the lock just armed).
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Equalize the cost of unknown-account and wrong-password paths.
			_, _ = utils.HashPassword("dummy", s.opts.BcryptCost)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if s.policy.IsLocked(u) {
		return AuthResult{}, &LockedError{Until: *u.LockedUntil, MinutesLeft: s.policy.MinutesLeft(u)}
	}
	if err := s.policy.ClearStaleLock(ctx, u); err != nil {
		return AuthResult{}, err
	}

	if !u.IsVerified {
		return AuthResult{}, ErrVerificationRequired
	}

	if !utils.VerifyPassword(u.PasswordHash, password) {
		outcome, err := s.policy.RecordFailure(ctx, u)
		if err != nil {
			return AuthResult{}, err
		}
		if outcome.Locked {
			return AuthResult{}, &LockedError{Until: *outcome.UnlockAt, MinutesLeft: s.policy.MinutesLeft(model.User{LockedUntil: outcome.UnlockAt})}
		}
		return AuthResult{}, &BadPasswordError{AttemptsLeft: outcome.AttemptsLeft}
	}

	if err := s.policy.RecordSuccess(ctx, u); err != nil {
		return AuthResult{}, err
	}
	now := s.now().UTC()
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastLogin = &now

	res, err := s.mintPair(u)
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.sessions.Upsert(ctx, u.ID, utils.HashRefreshRaw(res.RefreshToken), res.RefreshExpires); err != nil {
		return AuthResult{}, err
	}
	return res, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is neither rotated nor checked against the session
// store; that gap is a documented product decision, not an oversight.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return "", time.Time{}, ErrUnauthorized
	}
	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", time.Time{}, ErrUnauthorized
		}
		return "", time.Time{}, err
	}
	return s.mintAccess(u)
}

// Logout revokes the session matching the refresh token. Revoking a session
// that does not exist is still a success; logout is idempotent and leaks
// nothing about which sessions exist.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, utils.HashRefreshRaw(refreshToken))
}

// ForgotPassword issues a password-reset token and dispatches it, if the
// email belongs to an account. The caller gets the same answer either way;
// the handler must render one fixed envelope for both outcomes.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	resetToken, err := s.tokens.IssueReset(ctx, u.ID, s.opts.ResetTTL)
	if err != nil {
		return err
	}
	if err := s.notifier.SendPasswordReset(ctx, u.Email, resetToken, u.Username); err != nil {
		log.Printf("auth: reset mail for %s not dispatched: %v", u.Email, err)
	}
	return nil
}

// ResetPassword consumes a reset token and installs the new password. The
// consuming update also zeroes the failure counter and lifts any active
// lock: proving inbox possession outranks a brute-force lock.
func (s *Service) ResetPassword(ctx context.Context, tokenValue, password, confirm string) error {
	if password != confirm {
		return &ValidationError{Msg: "passwords do not match"}
	}
	if len(password) < minPasswordLen {
		return &ValidationError{Msg: "password must be at least 8 characters"}
	}
	hash, err := utils.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return err
	}
	if _, err := s.tokens.ConsumeReset(ctx, tokenValue, hash); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	return nil
}

// ResendVerification reissues the verification token for an unverified
// account, superseding any previously mailed link. Unknown emails get the
// same generic success as known ones; an already verified account is the one
// case reported distinctly.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if u.IsVerified {
		return ErrAlreadyVerified
	}
	verifyToken, err := s.tokens.IssueVerify(ctx, u.ID, s.opts.VerifyTTL)
	if err != nil {
		return err
	}
	if err := s.notifier.SendVerification(ctx, u.Email, verifyToken, u.Username); err != nil {
		log.Printf("auth: verification mail for %s not dispatched: %v", u.Email, err)
	}
	return nil
}

// CurrentUser loads the safe projection of an account, for the /me endpoint.
func (s *Service) CurrentUser(ctx context.Context, userID string) (model.SafeUser, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.SafeUser{}, ErrAccountNotFound
		}
		return model.SafeUser{}, err
	}
	return u.Safe(), nil
}

func (s *Service) mintPair(u model.User) (AuthResult, error) {
	access, accessExp, err := s.codec.MintAccess(u.ID, u.Username, u.Email, u.IsVerified)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, refreshExp, err := s.codec.MintRefresh(u.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		User:           u.Safe(),
		AccessToken:    access,
		AccessExpires:  accessExp,
		RefreshToken:   refresh,
		RefreshExpires: refreshExp,
	}, nil
}

func (s *Service) mintAccess(u model.User) (string, time.Time, error) {
	return s.codec.MintAccess(u.ID, u.Username, u.Email, u.IsVerified)
}
