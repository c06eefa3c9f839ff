package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/orsocook/auth-service/internal/token"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// through the codec and injects the typed claims into the request context.
// Handlers read the authenticated identity via c.Get("user_id") or fetch the
// full claim set via c.Get("claims"). Expired and malformed tokens both end
// the request with 401; the message differs so clients can prompt a refresh.
func JWTAuth(codec *token.Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims, err := codec.VerifyAccess(raw)
			if err != nil {
				if errors.Is(err, token.ErrTokenExpired) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired"})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set("user_id", claims.UserID)
			c.Set("claims", claims)
			return next(c)
		}
	}
}
