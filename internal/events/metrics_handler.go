package events

import (
	"context"

	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsHandler counts published split payment events by type.
type MetricsHandler struct {
	published *prometheus.CounterVec
}

var _ types.EventHandler = (*MetricsHandler)(nil)

// NewMetricsHandler registers its counter with reg.
func NewMetricsHandler(reg prometheus.Registerer) *MetricsHandler {
	return &MetricsHandler{published: registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_events_published_total",
		Help: "Split payment events published, by type",
	}, []string{"event_type"}))}
}

func (h *MetricsHandler) HandleEvent(_ context.Context, event types.Event) error {
	h.published.WithLabelValues(string(event.Type)).Inc()
	return nil
}

func (h *MetricsHandler) SupportedEvents() []types.EventType {
	return []types.EventType{
		types.EventTypeSplitPaymentCreated,
		types.EventTypeSplitPaymentStatusChanged,
		types.EventTypePaymentProcessing,
		types.EventTypePaymentPaid,
		types.EventTypePaymentFailed,
		types.EventTypePaymentReminder,
		types.EventTypeRefundRequested,
		types.EventTypeRefundUpdated,
	}
}
