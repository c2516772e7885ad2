package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"eventgate/internal/config"
	"eventgate/internal/logging"
	"eventgate/internal/mailer"
	"eventgate/internal/queue"
	"eventgate/internal/registration"
	"eventgate/internal/store"
)

// Worker consumes confirmation jobs published by the API in queue delivery mode
// and sends the emails.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		logger.Fatal().Msg("QUEUE_BACKEND=memory is drained by the API process; use redis or rabbitmq for a separate worker")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	var q queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			logger.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet")
		}
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueName)
	case "rabbitmq":
		rq, err := queue.NewRabbitQueue(cfg.RabbitMQURL, cfg.QueueName)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq connect failed")
		}
		defer rq.Close()
		q = rq
	default:
		logger.Fatal().Str("backend", cfg.QueueBackend).Msg("unknown queue backend")
	}

	var sender mailer.Sender = mailer.LogSender{Log: logger}
	if cfg.SMTPConfigured() {
		sender = mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom, cfg.MailFromName)
	} else {
		logger.Warn().Msg("SMTP not configured; confirmation emails are logged, not sent")
	}
	confirmer := mailer.NewConfirmer(sender, cfg.EventName, logger)

	worker := queue.NewWorker(q, registration.NewRepository(db.Client), confirmer, logger)
	logger.Info().Str("backend", cfg.QueueBackend).Str("queue", cfg.QueueName).Msg("worker started, waiting for messages")
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("worker stopped")
		return
	}
	logger.Info().Msg("worker stopped")
}
