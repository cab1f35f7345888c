package scheduler

import (
	"context"
	"fmt"

	"leadmarket_backend/platform/config"
	"leadmarket_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const defaultSweepLimit = 1000

// Deliverer sends the notification for one assignment.
type Deliverer interface {
	Deliver(ctx context.Context, assignmentID uuid.UUID) error
}

// Sweeper expires assignments whose window has passed.
type Sweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	deliverer Deliverer
	sweeper   Sweeper
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, deliverer Deliverer, sweeper Sweeper, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(deliverer, sweeper, log)
	w.server = server
	return w, nil
}

func newWorker(deliverer Deliverer, sweeper Sweeper, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:       mux,
		deliverer: deliverer,
		sweeper:   sweeper,
		log:       log,
	}

	mux.HandleFunc(TaskLeadAssignedNotification, w.handleLeadAssigned)
	mux.HandleFunc(TaskExpirySweep, w.handleExpirySweep)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleLeadAssigned(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadAssignedPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	assignmentID, err := uuid.Parse(payload.AssignmentID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if err := w.deliverer.Deliver(ctx, assignmentID); err != nil {
		w.log.Warn("lead assigned notification failed", "assignmentId", assignmentID, "error", err)
		return err
	}
	return nil
}

func (w *Worker) handleExpirySweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseExpirySweepPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}

	n, err := w.sweeper.SweepExpired(ctx, limit)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info("expiry sweep expired assignments", "expired", n)
	}
	return nil
}
