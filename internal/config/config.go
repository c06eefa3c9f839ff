package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
)

// Config holds all runtime configuration values. Each field corresponds to an
// environment variable. Secrets for access and refresh tokens are distinct on
// purpose: a leaked access secret must not allow forging refresh tokens and
// vice versa.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	JWTSecret     string // signs short-lived access tokens
	RefreshSecret string // signs long-lived refresh tokens

	AccessTTLMin     int // access token time-to-live in minutes
	RefreshTTLDays   int // refresh token time-to-live in days
	VerifyTTLHours   int // email verification token time-to-live in hours
	ResetTTLMin      int // password reset token time-to-live in minutes
	MaxLoginAttempts int // failed logins before a temporary lock
	LockMinutes      int // duration of the temporary lock
	BcryptCost       int // bcrypt cost for password hashing

	FrontendURL string // base URL used to build verification/reset links
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing values cause
// the program to exit with a fatal log message. Security knobs fall back to
// documented defaults so a minimal .env still yields a safe setup.
func Load() Config {
	return Config{
		Env:    must("APP_ENV"),
		Port:   must("APP_PORT"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret:     must("JWT_SECRET"),
		RefreshSecret: must("REFRESH_SECRET"),

		AccessTTLMin:     envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays:   envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		VerifyTTLHours:   envInt("EMAIL_TOKEN_EXPIRY_HOURS", 24),
		ResetTTLMin:      envInt("RESET_TOKEN_EXPIRY_MINUTES", 60),
		MaxLoginAttempts: envInt("MAX_LOGIN_ATTEMPTS", 5),
		LockMinutes:      envInt("ACCOUNT_LOCK_TIME_MINUTES", 15),
		BcryptCost:       envInt("BCRYPT_COST", 12),

		FrontendURL: envStr("FRONTEND_URL", "http://localhost:3000"),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}
