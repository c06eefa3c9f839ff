// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/orsocook/auth-service/internal/config"
	"github.com/orsocook/auth-service/internal/handler"
	"github.com/orsocook/auth-service/internal/middleware"
	"github.com/orsocook/auth-service/internal/token"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance. Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication routes. Unauthenticated
// operations live under /v1/auth behind the rate limiter; protected
// endpoints live under /v1 behind the JWT guard.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, codec *token.Codec,
	rlCfg config.RateLimitConfig, rdb *redis.Client) {

	g := e.Group("/v1/auth")
	// Auth endpoints are the brute-force surface; every one of them gets
	// the per-source token bucket.
	g.Use(middleware.NewTokenBucket(rlCfg, rdb))

	g.POST("/register", a.Register)
	g.GET("/verify-email/:token", a.VerifyEmail)
	g.POST("/resend-verification", a.ResendVerification)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password/:token", a.ResetPassword)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(codec))
	auth.GET("/me", a.Me)
}
