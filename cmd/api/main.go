package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadmarket_backend/internal/archive"
	"leadmarket_backend/internal/distribution"
	distrepo "leadmarket_backend/internal/distribution/repository"
	"leadmarket_backend/internal/email"
	"leadmarket_backend/internal/events"
	apphttp "leadmarket_backend/internal/http"
	"leadmarket_backend/internal/http/router"
	"leadmarket_backend/internal/notification"
	"leadmarket_backend/internal/scheduler"
	"leadmarket_backend/migrations"
	"leadmarket_backend/platform/config"
	"leadmarket_backend/platform/db"
	"leadmarket_backend/platform/logger"
	"leadmarket_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	store := distrepo.New(pool)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules
	// ========================================================================

	distributionModule, err := distribution.NewModule(store, cfg, eventBus, val, log)
	if err != nil {
		log.Error("failed to initialize distribution module", "error", err)
		panic("failed to initialize distribution module: " + err.Error())
	}

	queue, closeQueue := initNotificationQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}
	notificationModule := notification.New(store, newSender(cfg, log), queue, cfg.GetAppBaseURL(), log)
	notificationModule.RegisterHandlers(eventBus)

	if cfg.IsMinIOEnabled() {
		initArchive(ctx, cfg, eventBus, log)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			distributionModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if queue == nil && cfg.GetExpirySweepInterval() > 0 {
		loop := scheduler.NewExpiryLoop(distributionModule.Service(), log, cfg.GetExpirySweepInterval())
		g.Go(func() error {
			loop.Run(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
	}
	eventBus.Wait()
}

// initNotificationQueue returns a nil queue when Redis is not configured, in
// which case notifications are delivered inline.
func initNotificationQueue(cfg config.SchedulerConfig, log *logger.Logger) (notification.Queue, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; lead notifications delivered in-process")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize notification queue client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func newSender(cfg config.SMTPConfig, log *logger.Logger) email.Sender {
	if !cfg.IsSMTPEnabled() {
		log.Warn("SMTP_HOST not configured; agency emails disabled")
		return email.NoopSender{}
	}
	return email.NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
}

func initArchive(ctx context.Context, cfg config.MinIOConfig, bus events.Bus, log *logger.Logger) {
	objects, err := archive.NewMinIOStore(cfg)
	if err != nil {
		log.Error("failed to initialize payload archive", "error", err)
		return
	}

	bucket := cfg.GetMinioBucketLeadPayloads()
	if err := withRetry(ctx, log, "ensure lead payload bucket", 5, 2*time.Second, func() error {
		return objects.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		return
	}

	archive.New(objects, bucket, log).RegisterHandlers(bus)
	log.Info("raw payload archive enabled", "bucket", bucket)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
