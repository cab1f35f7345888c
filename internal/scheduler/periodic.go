package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadmarket_backend/platform/config"
	"leadmarket_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// PeriodicSweep enqueues the expiry sweep on a fixed interval. Reads expire
// assignments lazily, so the sweep only keeps stored state tidy.
type PeriodicSweep struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

// NewPeriodicSweep returns nil when interval is not positive.
func NewPeriodicSweep(cfg config.SchedulerConfig, log *logger.Logger) (*PeriodicSweep, error) {
	interval := cfg.GetExpirySweepInterval()
	if interval <= 0 {
		return nil, nil
	}

	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	task, err := NewExpirySweepTask(ExpirySweepPayload{Limit: defaultSweepLimit})
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	spec := fmt.Sprintf("@every %s", interval)
	// Unique for one interval so overlapping schedulers enqueue one sweep.
	if _, err := scheduler.Register(spec, task, asynq.Queue(queueName(cfg)), asynq.Unique(interval)); err != nil {
		return nil, fmt.Errorf("register expiry sweep: %w", err)
	}
	return &PeriodicSweep{scheduler: scheduler, log: log}, nil
}

func (p *PeriodicSweep) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}
	if err := p.scheduler.Start(); err != nil {
		p.log.Error("expiry sweep scheduler failed to start", "error", err)
		return
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
}
