package event

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// HandlerFunc reacts to a lifecycle event. Errors are logged, never
// propagated back into the lifecycle transition that published them.
type HandlerFunc func(ctx context.Context, evt Event) error

// Bus fans lifecycle events out to registered handlers synchronously,
// in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]HandlerFunc
	log      *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[Kind][]HandlerFunc),
		log:      log.Named("event.bus"),
	}
}

// Subscribe registers fn for the given kinds.
func (b *Bus) Subscribe(fn HandlerFunc, kinds ...Kind) {
	if b == nil || fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, kind := range kinds {
		b.handlers[kind] = append(b.handlers[kind], fn)
	}
}

// Publish delivers evt to every handler subscribed to its kind. A
// panicking or failing handler does not stop delivery to the rest.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.RLock()
	handlers := b.handlers[evt.Kind()]
	b.mu.RUnlock()

	for _, fn := range handlers {
		b.deliver(ctx, evt, fn)
	}
}

func (b *Bus) deliver(ctx context.Context, evt Event, fn HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panic",
				zap.String("kind", string(evt.Kind())),
				zap.String("subscription_id", evt.SubscriptionID()),
				zap.Any("panic", r),
			)
		}
	}()

	if err := fn(ctx, evt); err != nil {
		b.log.Warn("event handler failed",
			zap.String("kind", string(evt.Kind())),
			zap.String("subscription_id", evt.SubscriptionID()),
			zap.Error(err),
		)
	}
}
