package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadmarket_backend/internal/distribution"
	distrepo "leadmarket_backend/internal/distribution/repository"
	"leadmarket_backend/internal/email"
	"leadmarket_backend/internal/events"
	"leadmarket_backend/internal/notification"
	"leadmarket_backend/internal/scheduler"
	"leadmarket_backend/platform/config"
	"leadmarket_backend/platform/db"
	"leadmarket_backend/platform/logger"
	"leadmarket_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	store := distrepo.New(pool)

	// Worker-side engine wiring (no HTTP handlers required).
	distributionModule, err := distribution.NewModule(store, cfg, eventBus, validator.New(), log)
	if err != nil {
		log.Error("failed to initialize distribution module", "error", err)
		panic("failed to initialize distribution module: " + err.Error())
	}

	var sender email.Sender = email.NoopSender{}
	if cfg.IsSMTPEnabled() {
		sender = email.NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
	} else {
		log.Warn("SMTP_HOST not configured; agency emails disabled")
	}
	// Tasks are delivered directly here; the queue is only used by the API.
	notificationModule := notification.New(store, sender, nil, cfg.GetAppBaseURL(), log)

	sweep, err := scheduler.NewPeriodicSweep(cfg, log)
	if err != nil {
		log.Error("failed to initialize expiry sweep", "error", err)
		panic("failed to initialize expiry sweep: " + err.Error())
	}
	go sweep.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, notificationModule, distributionModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
