package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"leadmarket_backend/platform/logger"
)

type pingEvent struct{ BaseEvent }

func (pingEvent) EventName() string { return "test.ping" }

func TestInMemoryBusPublishSync(t *testing.T) {
	bus := NewInMemoryBus(logger.NewDiscard())
	var calls int32
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}))

	err := bus.PublishSync(context.Background(), pingEvent{NewBaseEvent()})
	if err == nil {
		t.Fatal("expected joined handler error")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 handler calls, got %d", got)
	}
}

func TestInMemoryBusPublishAsyncIgnoresFailures(t *testing.T) {
	bus := NewInMemoryBus(logger.NewDiscard())
	var calls int32
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		panic("handler blew up")
	}))
	bus.Subscribe("test.other", HandlerFunc(func(ctx context.Context, e Event) error {
		t.Error("unrelated handler should not run")
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, pingEvent{NewBaseEvent()})
	cancel()
	bus.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 handler call, got %d", got)
	}
}
