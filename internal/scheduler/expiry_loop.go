package scheduler

import (
	"context"
	"time"

	"leadmarket_backend/platform/logger"
)

// ExpiryLoop sweeps expired assignments in-process on a ticker. Used when no
// Redis is configured for the asynq scheduler.
type ExpiryLoop struct {
	sweeper  Sweeper
	log      *logger.Logger
	interval time.Duration
	limit    int
}

func NewExpiryLoop(sweeper Sweeper, log *logger.Logger, interval time.Duration) *ExpiryLoop {
	return &ExpiryLoop{sweeper: sweeper, log: log, interval: interval, limit: defaultSweepLimit}
}

func (l *ExpiryLoop) Run(ctx context.Context) {
	if l == nil || l.interval <= 0 {
		return
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

func (l *ExpiryLoop) sweep(ctx context.Context) {
	n, err := l.sweeper.SweepExpired(ctx, l.limit)
	if err != nil {
		l.log.Warn("expiry sweep failed", "error", err)
		return
	}
	if n > 0 {
		l.log.Info("expiry sweep expired assignments", "expired", n)
	}
}
