package event

import (
	"context"
	"sync"

	"cartflow/pkg/logger"

	"go.uber.org/zap"
)

// Publisher is the relay's only dependency on the transport. It either
// returns nil (the row becomes PUBLISHED) or an error (the row becomes FAILED).
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Handler consumes one delivered event. Handlers must be idempotent: the
// outbox guarantees at-least-once delivery, not exactly-once.
type Handler func(ctx context.Context, env Envelope) error

// Bus is an in-process publisher that fans deliveries out to handlers
// registered per event type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish delivers to every handler for the envelope's type. The first
// handler error aborts and propagates so the relay marks the row FAILED;
// redelivery re-runs all handlers, which the processed-event ledger makes safe.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	hs := b.handlers[env.EventType]
	b.mu.RUnlock()

	if len(hs) == 0 {
		logger.Debug("no subscribers for event", zap.String("event_type", env.EventType))
		return nil
	}

	for _, h := range hs {
		if err := h(ctx, env); err != nil {
			return err
		}
	}
	return nil
}
