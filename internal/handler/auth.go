package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/orsocook/auth-service/internal/auth"
	"github.com/orsocook/auth-service/internal/model"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Service *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{Service: svc}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type emailReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type authResp struct {
	User    model.SafeUser `json:"user"`
	Access  tokenPart      `json:"access"`
	Refresh tokenPart      `json:"refresh"`
}

// genericResetMsg is returned for forgot-password regardless of whether the
// email exists; the two cases must be byte-identical.
const genericResetMsg = "if the email is registered, you will receive reset instructions"

// genericResendMsg likewise hides whether the email exists.
const genericResendMsg = "if the email is registered, you will receive a new verification mail"

// Register creates an unverified account. No tokens are returned; the user
// must verify the mailed link first.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Service.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message":               "registration complete, verify your email to activate the account",
		"user":                  res.User,
		"requires_verification": res.RequiresVerification,
		"email_sent":            res.EmailSent,
	})
}

// VerifyEmail consumes the mailed verification token and logs the user in.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	tokenValue := c.Param("token")
	if tokenValue == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Service.VerifyEmail(ctx, tokenValue)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, authResp{
		User:    res.User,
		Access:  tokenPart{Token: res.AccessToken, Expires: res.AccessExpires},
		Refresh: tokenPart{Token: res.RefreshToken, Expires: res.RefreshExpires},
	})
}

// Login verifies credentials and returns a fresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Service.Login(ctx, req.Email, req.Password)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, authResp{
		User:    res.User,
		Access:  tokenPart{Token: res.AccessToken, Expires: res.AccessExpires},
		Refresh: tokenPart{Token: res.RefreshToken, Expires: res.RefreshExpires},
	})
}

// Refresh exchanges a refresh token for a new access token only; the refresh
// token is not rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	access, exp, err := h.Service.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: access, Expires: exp},
	})
}

// Logout revokes the session behind the refresh token. Always succeeds for
// well-formed requests, whether or not a session was actually revoked.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Service.Logout(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// ForgotPassword starts password recovery. The response is identical whether
// or not the email belongs to an account.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Service.ForgotPassword(ctx, strings.ToLower(strings.TrimSpace(req.Email))); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password reset request failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": genericResetMsg})
}

// ResetPassword consumes the mailed reset token and installs a new password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	tokenValue := c.Param("token")
	var req resetReq
	if err := c.Bind(&req); err != nil || tokenValue == "" || req.Password == "" || req.ConfirmPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token, password and confirm_password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Service.ResetPassword(ctx, tokenValue, req.Password, req.ConfirmPassword); err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password reset, you can now log in with the new password"})
}

// ResendVerification reissues the verification mail, superseding earlier
// links. Unknown emails get the same generic success as known ones.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Service.ResendVerification(ctx, strings.ToLower(strings.TrimSpace(req.Email))); err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": genericResendMsg})
}

// Me returns the authenticated account, looked up fresh from the store.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Service.CurrentUser(ctx, userID)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u})
}

// reqCtx bounds every store call to the request with a timeout.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// writeAuthError maps the service error taxonomy onto HTTP statuses.
func writeAuthError(c echo.Context, err error) error {
	var (
		vErr  *auth.ValidationError
		cErr  *auth.ConflictError
		lErr  *auth.LockedError
		pwErr *auth.BadPasswordError
	)
	switch {
	case errors.As(err, &vErr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": vErr.Msg})
	case errors.As(err, &cErr):
		return c.JSON(http.StatusConflict, echo.Map{"error": cErr.Msg, "field": cErr.Field})
	case errors.As(err, &lErr):
		return c.JSON(http.StatusLocked, echo.Map{
			"error":     "account temporarily locked",
			"locked":    true,
			"lock_time": lErr.MinutesLeft,
		})
	case errors.As(err, &pwErr):
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":         "invalid credentials",
			"attempts_left": pwErr.AttemptsLeft,
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, auth.ErrVerificationRequired):
		return c.JSON(http.StatusForbidden, echo.Map{
			"error":                 "verify your email before logging in",
			"requires_verification": true,
		})
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired token"})
	case errors.Is(err, auth.ErrAlreadyVerified):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "account already verified"})
	case errors.Is(err, auth.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	case errors.Is(err, auth.ErrAccountNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
	default:
		c.Logger().Errorf("auth: internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
