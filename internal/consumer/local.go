package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("local event bus closed")

type localEvent struct {
	eventType string
	payload   any
}

// LocalBus runs event handling on a background worker when the API runs
// without Kafka. Events are applied in publish order.
type LocalBus struct {
	handler *RecommendationHandler
	logger  *slog.Logger
	events  chan localEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewLocalBus constructs a LocalBus with the given queue capacity.
func NewLocalBus(handler *RecommendationHandler, capacity int, logger *slog.Logger) *LocalBus {
	if capacity <= 0 {
		capacity = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{
		handler: handler,
		logger:  logger,
		events:  make(chan localEvent, capacity),
		done:    make(chan struct{}),
	}
}

// Start processes events until Close is called and the queue is drained.
func (b *LocalBus) Start(ctx context.Context) {
	defer close(b.done)
	for evt := range b.events {
		if err := b.handler.Apply(ctx, evt.eventType, evt.payload); err != nil {
			b.logger.Error("local event handling failed", "event_type", evt.eventType, "error", err)
		}
	}
}

// Publish queues an event. It blocks while the queue is full.
func (b *LocalBus) Publish(ctx context.Context, eventType string, payload any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.events <- localEvent{eventType: eventType, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hook adapts Publish to the repository event hook signature.
func (b *LocalBus) Hook(ctx context.Context, eventType string, payload any) {
	if err := b.Publish(ctx, eventType, payload); err != nil {
		b.logger.Warn("dropping local event", "event_type", eventType, "error", err)
	}
}

// Close stops accepting events and waits for queued ones to finish.
func (b *LocalBus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	b.mu.Unlock()
	<-b.done
}
