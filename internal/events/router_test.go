package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu        sync.Mutex
	events    []types.Event
	supported []types.EventType
	err       error
	onHandle  func()
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event types.Event) error {
	if h.onHandle != nil {
		h.onHandle()
	}
	if h.err != nil {
		return h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandler) SupportedEvents() []types.EventType { return h.supported }

func (h *recordingHandler) received() []types.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events
}

func testRouter() *Router {
	return NewRouter(prometheus.NewRegistry())
}

func TestRouter_RegisterAndUnregister(t *testing.T) {
	router := testRouter()
	h := &recordingHandler{supported: []types.EventType{types.EventTypePaymentPaid, types.EventTypeSplitPaymentStatusChanged}}

	router.Register("feed", h)
	router.Register("empty", &recordingHandler{})
	assert.Equal(t, []string{"feed"}, router.handlerNames())

	router.Unregister("feed")
	assert.Empty(t, router.handlerNames())
	assert.Empty(t, router.handlers)
}

func TestRouter_HandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers only to matching handlers", func(t *testing.T) {
		router := testRouter()
		paid := &recordingHandler{supported: []types.EventType{types.EventTypePaymentPaid}}
		status := &recordingHandler{supported: []types.EventType{types.EventTypeSplitPaymentStatusChanged}}
		router.Register("paid", paid)
		router.Register("status", status)

		require.NoError(t, router.HandleEvent(ctx, testEvent("evt-1", types.EventTypePaymentPaid)))
		assert.Len(t, paid.received(), 1)
		assert.Empty(t, status.received())
	})

	t.Run("runs in registration order", func(t *testing.T) {
		router := testRouter()
		var order []string
		router.Register("first", &recordingHandler{
			supported: []types.EventType{types.EventTypeRefundUpdated},
			onHandle:  func() { order = append(order, "first") },
		})
		router.Register("second", &recordingHandler{
			supported: []types.EventType{types.EventTypeRefundUpdated},
			onHandle:  func() { order = append(order, "second") },
		})

		require.NoError(t, router.HandleEvent(ctx, testEvent("evt-1", types.EventTypeRefundUpdated)))
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("no handlers is counted, not an error", func(t *testing.T) {
		router := testRouter()
		assert.NoError(t, router.HandleEvent(ctx, testEvent("evt-1", types.EventTypeRefundUpdated)))
		assert.Equal(t, 1.0, testutil.ToFloat64(router.metrics.unrouted))
	})

	t.Run("handler errors are joined", func(t *testing.T) {
		router := testRouter()
		boom := errors.New("boom")
		router.Register("broken", &recordingHandler{supported: []types.EventType{types.EventTypePaymentPaid}, err: boom})
		ok := &recordingHandler{supported: []types.EventType{types.EventTypePaymentPaid}}
		router.Register("ok", ok)

		err := router.HandleEvent(ctx, testEvent("evt-1", types.EventTypePaymentPaid))
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Len(t, ok.received(), 1)
		assert.Equal(t, 1.0, testutil.ToFloat64(
			router.metrics.handlerErrors.WithLabelValues("broken", string(types.EventTypePaymentPaid))))
	})

	t.Run("panics are recovered", func(t *testing.T) {
		router := testRouter()
		router.Register("panicky", &recordingHandler{
			supported: []types.EventType{types.EventTypePaymentFailed},
			onHandle:  func() { panic("nil map") },
		})
		after := &recordingHandler{supported: []types.EventType{types.EventTypePaymentFailed}}
		router.Register("after", after)

		err := router.HandleEvent(ctx, testEvent("evt-1", types.EventTypePaymentFailed))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic: nil map")
		assert.Len(t, after.received(), 1)
	})
}

func TestNewRouter_SharesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewRouter(reg)
	second := NewRouter(reg)

	assert.Same(t, first.metrics.handlerErrors, second.metrics.handlerErrors)
}
