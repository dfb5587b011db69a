package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/groupbuy/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultHandlerTimeout bounds one asynchronous handler invocation
const DefaultHandlerTimeout = 30 * time.Second

// InMemoryEventBus implements EventBus with in-process pub/sub. Once started
// it dispatches in background goroutines so publishers never wait on
// handlers; before Start and after Stop it dispatches inline.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	timeout  time.Duration

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
		timeout:  DefaultHandlerTimeout,
	}
}

// SetHandlerTimeout overrides the per-handler timeout of async dispatch
func (b *InMemoryEventBus) SetHandlerTimeout(d time.Duration) {
	if d > 0 {
		b.timeout = d
	}
}

// Publish hands events to every registered handler. Handler errors are
// logged, never returned.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, event := range events {
		for _, handler := range b.registry.GetHandlers(event.EventType()) {
			if !b.running {
				b.dispatch(ctx, handler, event)
				continue
			}
			b.wg.Add(1)
			go func(h shared.EventHandler, e shared.DomainEvent) {
				defer b.wg.Done()
				// the request that raised the event may already be finished
				hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
				defer cancel()
				b.dispatch(hctx, h, e)
			}(handler, event)
		}
	}
	return nil
}

// Subscribe registers a handler for specific event types
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed",
		zap.String("handler", fmt.Sprintf("%T", handler)),
		zap.Strings("event_types", eventTypes),
	)
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed", zap.String("handler", fmt.Sprintf("%T", handler)))
}

// Start switches the bus to asynchronous dispatch
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
	b.logger.Info("event bus started", zap.Int("handlers", len(b.registry.GetAllHandlers())))
	return nil
}

// Stop waits for in-flight handlers, or until ctx ends
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus stopped before handlers finished", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// dispatch runs one handler, containing failures and panics
func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.Any("panic", r),
			)
		}
	}()

	if err := handler.Handle(ctx, event); err != nil {
		b.logger.Error("handler failed to process event",
			zap.String("handler", fmt.Sprintf("%T", handler)),
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
			zap.String("aggregate_id", event.AggregateID().String()),
			zap.Error(err),
		)
	}
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
