// Package token signs and verifies the stateless access/refresh token pair.
// Access and refresh tokens are signed with distinct secrets so that
// compromise of one key cannot be used to forge the other kind.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired means the signature checked out but the token's
	// lifetime has elapsed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed covers every other verification failure: bad
	// signature, wrong structure, wrong signing method, wrong key.
	ErrTokenMalformed = errors.New("token malformed")
)

// AccessClaims is the closed claim set carried by access tokens.
type AccessClaims struct {
	UserID     string `json:"uid"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	IsVerified bool   `json:"is_verified"`
	jwt.RegisteredClaims
}

// RefreshClaims carries only the account id; refresh tokens grant nothing by
// themselves beyond the right to mint a new access token.
type RefreshClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Codec mints and verifies HS256 tokens. The zero value is not usable; build
// one with NewCodec.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// WithClock replaces the codec's time source. Intended for tests that need
// to step past expiries without sleeping.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// MintAccess builds and signs a short-lived access token for a user.
// Returns the serialized token together with its expiration time.
func (c *Codec) MintAccess(userID, username, email string, verified bool) (string, time.Time, error) {
	now := c.now().UTC()
	exp := now.Add(c.accessTTL)
	claims := AccessClaims{
		UserID:     userID,
		Username:   username,
		Email:      email,
		IsVerified: verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// MintRefresh builds and signs a long-lived refresh token carrying only the
// account id.
func (c *Codec) MintRefresh(userID string) (string, time.Time, error) {
	now := c.now().UTC()
	exp := now.Add(c.refreshTTL)
	claims := RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccess parses and validates an access token. Expired tokens report
// ErrTokenExpired; everything else reports ErrTokenMalformed. Callers may
// word user-facing messages differently for the two, but both mean "not
// authenticated".
func (c *Codec) VerifyAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(raw, claims, c.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token.
func (c *Codec) VerifyRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.verify(raw, claims, c.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *Codec) verify(raw string, claims jwt.Claims, secret []byte) error {
	tok, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrTokenMalformed
			}
			return secret, nil
		},
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenMalformed
	}
	if !tok.Valid {
		return ErrTokenMalformed
	}
	return nil
}
