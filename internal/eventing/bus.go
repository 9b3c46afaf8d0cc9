package eventing

import (
	"context"
	"log"
	"sync"
)

// MatchAll subscribes a handler to every event name.
const MatchAll = "*"

// Handler processes one envelope.
type Handler func(ctx context.Context, env Envelope) error

// Bus is an in-process event bus. Publish delivers synchronously to
// every matching subscriber; one failing handler does not stop the
// others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *log.Logger
}

// NewBus constructs a bus.
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{handlers: make(map[string][]Handler), logger: logger}
}

// Subscribe registers a handler for an event name, or for all events
// with MatchAll.
func (b *Bus) Subscribe(eventName string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish delivers the envelope to matching subscribers. Handler
// errors are logged, not returned; the bus is fire and forget from
// the publisher's side.
func (b *Bus) Publish(ctx context.Context, env Envelope) {
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.handlers[env.EventName])+len(b.handlers[MatchAll]))
	matched = append(matched, b.handlers[env.EventName]...)
	matched = append(matched, b.handlers[MatchAll]...)
	b.mu.RUnlock()

	for _, handler := range matched {
		if err := handler(ctx, env); err != nil {
			b.logger.Printf("eventing: handler for %s failed on event %s: %v", env.EventName, env.EventID, err)
		}
	}
}

// ProcessedStore provides consumer idempotency.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// WrapHandler makes a handler idempotent per consumer name. Envelopes
// without an event id pass straight through.
func WrapHandler(consumerName string, handler Handler, store ProcessedStore) Handler {
	if store == nil {
		return handler
	}
	return func(ctx context.Context, env Envelope) error {
		if env.EventID == "" {
			return handler(ctx, env)
		}
		processed, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}
		if err := handler(ctx, env); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}
