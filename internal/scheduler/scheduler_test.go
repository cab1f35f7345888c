package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadmarket_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type testConfig struct {
	redisURL string
	interval time.Duration
}

func (c testConfig) GetRedisURL() string                   { return c.redisURL }
func (c testConfig) GetRedisTLSInsecure() bool             { return false }
func (c testConfig) GetAsynqQueueName() string             { return "leads" }
func (c testConfig) GetAsynqConcurrency() int              { return 2 }
func (c testConfig) GetExpirySweepInterval() time.Duration { return c.interval }

func TestEnqueueLeadAssignedIsKeyedByLeadAndAgency(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig{redisURL: "redis://" + mr.Addr()}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()
	leadID, agencyID := uuid.New(), uuid.New()
	for i := 0; i < 2; i++ {
		if err := client.EnqueueLeadAssigned(ctx, leadID, agencyID, uuid.New()); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := client.EnqueueLeadAssigned(ctx, leadID, uuid.New(), uuid.New()); err != nil {
		t.Fatal(err)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()
	tasks, err := inspector.ListPendingTasks("leads")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 pending tasks, got %d", len(tasks))
	}

	want := "lead-assigned:" + leadID.String() + ":" + agencyID.String()
	found := false
	for _, info := range tasks {
		if info.ID == want {
			found = true
			if info.Type != TaskLeadAssignedNotification || info.MaxRetry != notificationMaxRetry {
				t.Fatalf("unexpected task %+v", info)
			}
		}
	}
	if !found {
		t.Fatalf("task %s not queued", want)
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testConfig{}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := NewClient(testConfig{redisURL: "://bad"}); err == nil {
		t.Fatal("expected parse error")
	}
}

type fakeDeliverer struct {
	ids []uuid.UUID
	err error
}

func (d *fakeDeliverer) Deliver(_ context.Context, id uuid.UUID) error {
	d.ids = append(d.ids, id)
	return d.err
}

type fakeSweeper struct {
	mu     sync.Mutex
	limits []int
}

func (s *fakeSweeper) SweepExpired(_ context.Context, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, limit)
	return 3, nil
}

func (s *fakeSweeper) snapshot() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.limits...)
}

func TestWorkerHandlers(t *testing.T) {
	deliverer := &fakeDeliverer{}
	sweeper := &fakeSweeper{}
	w := newWorker(deliverer, sweeper, logger.NewDiscard())
	ctx := context.Background()

	assignmentID := uuid.New()
	task, err := NewLeadAssignedTask(LeadAssignedPayload{
		LeadID: uuid.NewString(), AgencyID: uuid.NewString(), AssignmentID: assignmentID.String(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.mux.ProcessTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	if len(deliverer.ids) != 1 || deliverer.ids[0] != assignmentID {
		t.Fatalf("delivered %v", deliverer.ids)
	}

	deliverer.err = errors.New("smtp down")
	if err := w.mux.ProcessTask(ctx, task); err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("delivery failure should be retried, got %v", err)
	}

	bad := asynq.NewTask(TaskLeadAssignedNotification, []byte(`{"assignmentId":"nope"}`))
	if err := w.mux.ProcessTask(ctx, bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload should skip retry, got %v", err)
	}

	if err := w.mux.ProcessTask(ctx, asynq.NewTask(TaskExpirySweep, nil)); err != nil {
		t.Fatal(err)
	}
	sweep, _ := NewExpirySweepTask(ExpirySweepPayload{Limit: 50})
	if err := w.mux.ProcessTask(ctx, sweep); err != nil {
		t.Fatal(err)
	}
	if len(sweeper.limits) != 2 || sweeper.limits[0] != defaultSweepLimit || sweeper.limits[1] != 50 {
		t.Fatalf("sweep limits %v", sweeper.limits)
	}
}

func TestPeriodicSweepDisabledByDefault(t *testing.T) {
	p, err := NewPeriodicSweep(testConfig{}, logger.NewDiscard())
	if err != nil || p != nil {
		t.Fatalf("expected disabled sweep, got %v %v", p, err)
	}
	p.Run(context.Background())
}

func TestExpiryLoopSweepsUntilCancelled(t *testing.T) {
	sweeper := &fakeSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewExpiryLoop(sweeper, logger.NewDiscard(), time.Millisecond).Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n := len(sweeper.snapshot()); n >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	limits := sweeper.snapshot()
	if len(limits) < 2 || limits[0] != defaultSweepLimit {
		t.Fatalf("sweep limits %v", limits)
	}
}
