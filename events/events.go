// Package events carries approval lifecycle announcements to in-process
// subscribers. Delivery is asynchronous and best effort: a full buffer or a
// failing handler never affects the workflow that published the event.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBusClosed indicates the event bus has been closed.
	ErrBusClosed = errors.New("event bus is closed")
	// ErrChannelFull indicates the event channel is full and cannot accept more events.
	ErrChannelFull = errors.New("event channel is full")
	// ErrNoHandler indicates no handlers are registered for the event type.
	ErrNoHandler = errors.New("no handlers registered for event type")
)

// Event types published by the approval workflow.
const (
	TypeRequestCreated = "request_created"
	TypeEscalated      = "escalated"
	TypeResolved       = "resolved"
	TypeErrorOccurred  = "error_occurred"
)

// Event represents one approval lifecycle transition.
type Event struct {
	Type      string                 // e.g. "request_created", "resolved"
	RequestID string                 // approval request ID
	Data      map[string]interface{} // additional event data
}

// Handler defines the interface for handling events.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus manages event subscriptions and asynchronous publishing.
type Bus struct {
	handlers   map[string][]Handler
	mu         sync.RWMutex
	eventCh    chan Event
	errHandler func(event Event, err error)
	wg         sync.WaitGroup
	closed     bool
	closeMu    sync.RWMutex
}

// BusOption defines functional options for configuring the Bus.
type BusOption func(*Bus)

// WithBufferSize sets the event channel buffer size.
func WithBufferSize(size int) BusOption {
	return func(b *Bus) {
		b.eventCh = make(chan Event, size)
	}
}

// WithErrorHandler sets a custom handler for errors returned by subscribers.
func WithErrorHandler(handler func(event Event, err error)) BusOption {
	return func(b *Bus) {
		b.errHandler = handler
	}
}

// NewBus creates a Bus and starts its processing goroutine. The default
// buffer size is 100.
func NewBus(options ...BusOption) *Bus {
	b := &Bus{
		handlers:   make(map[string][]Handler),
		eventCh:    make(chan Event, 100),
		errHandler: defaultErrorHandler,
	}
	for _, option := range options {
		option(b)
	}

	b.wg.Add(1)
	go b.processEvents()

	return b
}

// Subscribe subscribes a handler to an event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeFunc subscribes a function as a handler to an event type.
func (b *Bus) SubscribeFunc(eventType string, handlerFunc func(ctx context.Context, event Event) error) {
	b.Subscribe(eventType, HandlerFunc(handlerFunc))
}

// HasSubscribers checks if there are any subscribers for a given event type.
func (b *Bus) HasSubscribers(eventType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType]) > 0
}

// Publish enqueues an event for asynchronous delivery. Returns an error if
// the context is canceled, the bus is closed, the buffer is full, or nothing
// is subscribed to the event type. Handlers run on the bus goroutine, never
// on the publisher's.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	b.closeMu.RLock()
	if b.closed {
		b.closeMu.RUnlock()
		return ErrBusClosed
	}
	b.closeMu.RUnlock()

	if !b.HasSubscribers(event.Type) {
		return ErrNoHandler
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.eventCh <- event:
		return nil
	default:
		return ErrChannelFull
	}
}

// Stop stops the processing goroutine and waits for completion. Unprocessed
// events are discarded.
func (b *Bus) Stop() {
	b.closeMu.Lock()
	if !b.closed {
		b.closed = true
		for len(b.eventCh) > 0 {
			<-b.eventCh
		}
		close(b.eventCh)
	}
	b.closeMu.Unlock()

	b.wg.Wait()
}

// processEvents delivers events to subscribers until the bus is stopped.
func (b *Bus) processEvents() {
	defer b.wg.Done()

	for event := range b.eventCh {
		b.mu.RLock()
		handlers := make([]Handler, len(b.handlers[event.Type]))
		copy(handlers, b.handlers[event.Type])
		b.mu.RUnlock()

		for _, handler := range handlers {
			if err := handler.Handle(context.Background(), event); err != nil {
				b.errHandler(event, err)
			}
		}
	}
}

// defaultErrorHandler reports subscriber failures to stdout.
func defaultErrorHandler(event Event, err error) {
	fmt.Printf("error handling event %s (request %s): %v\n", event.Type, event.RequestID, err)
}
