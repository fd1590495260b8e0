package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Stop()

	var mu sync.Mutex
	var received []Event
	bus.SubscribeFunc(TypeRequestCreated, func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
		return nil
	})

	err := bus.Publish(context.Background(), Event{
		Type:      TypeRequestCreated,
		RequestID: "req-1",
		Data:      map[string]interface{}{"agent_id": "agent-1"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event was never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if received[0].RequestID != "req-1" {
		t.Errorf("expected request ID req-1, got %s", received[0].RequestID)
	}
}

func TestBus_PublishNoHandlers(t *testing.T) {
	bus := NewBus()
	defer bus.Stop()

	err := bus.Publish(context.Background(), Event{Type: TypeResolved, RequestID: "req-1"})
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", err)
	}
}

func TestBus_PublishAfterStop(t *testing.T) {
	bus := NewBus()
	bus.SubscribeFunc(TypeResolved, func(ctx context.Context, event Event) error { return nil })
	bus.Stop()

	err := bus.Publish(context.Background(), Event{Type: TypeResolved, RequestID: "req-1"})
	if !errors.Is(err, ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
}

func TestBus_PublishCancelledContext(t *testing.T) {
	bus := NewBus()
	defer bus.Stop()
	bus.SubscribeFunc(TypeResolved, func(ctx context.Context, event Event) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.Publish(ctx, Event{Type: TypeResolved, RequestID: "req-1"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBus_PublishFullBuffer(t *testing.T) {
	bus := NewBus(WithBufferSize(1))
	defer bus.Stop()

	release := make(chan struct{})
	bus.SubscribeFunc(TypeEscalated, func(ctx context.Context, event Event) error {
		<-release
		return nil
	})

	// First event occupies the processor, second fills the buffer; one of
	// the following publishes must fail with a full channel.
	var full bool
	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), Event{Type: TypeEscalated, RequestID: "req-1"}); errors.Is(err, ErrChannelFull) {
			full = true
		}
		time.Sleep(10 * time.Millisecond)
	}
	close(release)

	if !full {
		t.Error("expected at least one publish to fail with ErrChannelFull")
	}
}

func TestBus_HasSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Stop()

	if bus.HasSubscribers(TypeRequestCreated) {
		t.Error("expected no subscribers initially")
	}
	bus.SubscribeFunc(TypeRequestCreated, func(ctx context.Context, event Event) error { return nil })
	if !bus.HasSubscribers(TypeRequestCreated) {
		t.Error("expected subscriber to be registered")
	}
}

func TestBus_ErrorHandler(t *testing.T) {
	errCh := make(chan error, 1)
	bus := NewBus(WithErrorHandler(func(event Event, err error) {
		errCh <- err
	}))
	defer bus.Stop()

	handlerErr := errors.New("handler failed")
	bus.SubscribeFunc(TypeErrorOccurred, func(ctx context.Context, event Event) error {
		return handlerErr
	})

	if err := bus.Publish(context.Background(), Event{Type: TypeErrorOccurred, RequestID: "req-1"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, handlerErr) {
			t.Errorf("expected handler error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("error handler was never invoked")
	}
}
