package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/orsocook/auth-service/internal/auth"
	"github.com/orsocook/auth-service/internal/config"
	"github.com/orsocook/auth-service/internal/database"
	"github.com/orsocook/auth-service/internal/handler"
	"github.com/orsocook/auth-service/internal/notifier"
	"github.com/orsocook/auth-service/internal/queue"
	"github.com/orsocook/auth-service/internal/repository"
	"github.com/orsocook/auth-service/internal/router"
	"github.com/orsocook/auth-service/internal/token"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Print("redis unavailable, rate limiting disabled")
	}

	codec := token.NewCodec(cfg.JWTSecret, cfg.RefreshSecret,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour)

	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db)
	oneTime := repository.NewOneTimeTokenRepo(db)

	policy := auth.NewPolicy(users, cfg.MaxLoginAttempts,
		time.Duration(cfg.LockMinutes)*time.Minute)

	svc := auth.NewService(users, oneTime, sessions,
		notifier.NewAMQPNotifier(cfg.FrontendURL), codec, policy,
		auth.Options{
			VerifyTTL:  time.Duration(cfg.VerifyTTLHours) * time.Hour,
			ResetTTL:   time.Duration(cfg.ResetTTLMin) * time.Minute,
			RefreshTTL: time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour,
			BcryptCost: cfg.BcryptCost,
		})

	// Deliver queued verification/reset mail in the background. The consumer
	// reconnects on broker failures for the life of the process.
	go func() {
		if err := queue.StartEmailConsumer(); err != nil {
			log.Printf("mail consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(svc), codec, config.LoadRateLimitConfig(), rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
