package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"eventgate/internal/attendance"
	"eventgate/internal/auth"
	"eventgate/internal/config"
	"eventgate/internal/httpapi"
	"eventgate/internal/httpmiddleware"
	"eventgate/internal/logging"
	"eventgate/internal/mailer"
	"eventgate/internal/queue"
	"eventgate/internal/registration"
	"eventgate/internal/staff"
	"eventgate/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Production() && cfg.JWTSigningKey == config.DevSigningKey {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if n, err := db.SeedStaff(ctx, cfg.StaffEmails); err != nil {
		return fmt.Errorf("seed staff: %w", err)
	} else if n > 0 {
		logger.Info().Int("added", n).Msg("staff allow-list seeded")
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" || cfg.RateLimitBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
	}

	regRepo := registration.NewRepository(db.Client)
	confirmer := mailer.NewConfirmer(newSender(cfg, logger), cfg.EventName, logger)

	var notifier registration.Notifier = confirmer
	if cfg.MailDelivery == "queue" {
		q, closeQueue, err := newQueue(cfg, redisClient)
		if err != nil {
			return fmt.Errorf("queue: %w", err)
		}
		defer closeQueue()
		notifier = queue.Notifier{Queue: q}

		// An in-memory queue only exists inside this process, so it is drained here.
		if cfg.QueueBackend == "memory" {
			worker := queue.NewWorker(q, regRepo, confirmer, logger)
			go func() {
				if err := worker.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("in-process mail worker stopped")
				}
			}()
		}
		logger.Info().Str("backend", cfg.QueueBackend).Msg("confirmation mail queued")
	}

	tokens := auth.NewTokens(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.SessionTTL)
	gate := staff.NewGate(
		staff.GoogleVerifier{ClientID: cfg.GoogleClientID},
		staff.NewRepository(db.Client),
		tokens,
		logger,
	)
	if cfg.GoogleClientID == "" {
		logger.Warn().Msg("GOOGLE_CLIENT_ID not set; staff login will fail")
	}

	h := httpapi.NewHandler(
		registration.NewService(regRepo, notifier, logger),
		attendance.NewService(regRepo, logger),
		gate,
		cfg.Development(),
		logger,
	)

	health := map[string]httpapi.HealthCheck{"db": db.Healthy}
	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}
	if redisClient != nil {
		health["redis"] = redisClient.Healthy
	}

	r := httpapi.NewRouter(h, httpapi.RouterConfig{
		Tokens:      tokens,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins,
		Health:      health,
		Log:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Str("env", cfg.Env).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced shutdown")
	}
	logger.Info().Msg("server exited")
	return nil
}

func newSender(cfg config.App, logger zerolog.Logger) mailer.Sender {
	if !cfg.SMTPConfigured() {
		logger.Warn().Msg("SMTP not configured; confirmation emails are logged, not sent")
		return mailer.LogSender{Log: logger}
	}
	return mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom, cfg.MailFromName)
}

func newQueue(cfg config.App, redisClient *store.Redis) (queue.Queue, func(), error) {
	switch cfg.QueueBackend {
	case "memory":
		return queue.NewInMemory(256), func() {}, nil
	case "redis":
		return queue.NewRedisQueue(redisClient.Client, cfg.QueueName), func() {}, nil
	case "rabbitmq":
		q, err := queue.NewRabbitQueue(cfg.RabbitMQURL, cfg.QueueName)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
}
