package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "GroupOrder", uuid.New())}
}

type testHandler struct {
	eventTypes []string
	mu         sync.Mutex
	handled    []shared.DomainEvent
	err        error
	panicWith  any
	block      chan struct{}
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.block != nil {
		<-h.block
	}
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestInMemoryEventBus_SyncBeforeStart(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("GroupOrderCreated")
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent("GroupOrderCreated"),
		newTestEvent("GroupOrderParticipantJoined"),
	))
	assert.Equal(t, 1, handler.count(), "dispatched inline and filtered by type")
}

func TestInMemoryEventBus_AsyncAfterStart(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("GroupOrderStatusChanged")
	handler.block = make(chan struct{})
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, newTestEvent("GroupOrderStatusChanged")))
	cancel()
	assert.Equal(t, 0, handler.count(), "publish returns before the handler runs")

	close(handler.block)
	require.NoError(t, bus.Stop(context.Background()))
	assert.Equal(t, 1, handler.count(), "stop waits for in-flight handlers")
}

func TestInMemoryEventBus_StopTimesOut(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler()
	handler.block = make(chan struct{})
	defer close(handler.block)
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("Anything")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Stop(ctx), context.DeadlineExceeded)
}

func TestInMemoryEventBus_HandlerFailuresAreContained(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))

	failing := newTestHandler("E")
	failing.err = errors.New("smtp down")
	panicking := newTestHandler("E")
	panicking.panicWith = "boom"
	healthy := newTestHandler("E")
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("E")))
	assert.Equal(t, 1, healthy.count())
	assert.Equal(t, 1, logs.FilterMessage("handler failed to process event").Len())
	assert.Equal(t, 1, logs.FilterMessage("handler panicked").Len())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("E")
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("E")))
	assert.Equal(t, 0, handler.count())
}

func TestHandlerRegistry(t *testing.T) {
	registry := NewHandlerRegistry()
	typed := newTestHandler("A", "B")
	wildcard := newTestHandler()

	registry.Register(typed, "A", "B")
	registry.Register(wildcard)

	assert.Equal(t, []shared.EventHandler{typed, wildcard}, registry.GetHandlers("A"))
	assert.Equal(t, []shared.EventHandler{wildcard}, registry.GetHandlers("C"))
	assert.Len(t, registry.GetAllHandlers(), 2)

	registry.Unregister(typed)
	assert.Equal(t, []shared.EventHandler{wildcard}, registry.GetHandlers("A"))
	assert.Len(t, registry.GetAllHandlers(), 1)
}
