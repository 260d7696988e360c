package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const defaultHandlerTimeout = 2 * time.Second

type routerMetrics struct {
	handlerLatency *prometheus.HistogramVec
	handlerErrors  *prometheus.CounterVec
	unrouted       prometheus.Counter
}

func newRouterMetrics(reg prometheus.Registerer) *routerMetrics {
	return &routerMetrics{
		handlerLatency: registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_event_handler_duration_seconds",
			Help:    "Time taken by in-process event handlers",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}, []string{"handler"})),
		handlerErrors: registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_event_handler_errors_total",
			Help: "In-process handler failures, panics included",
		}, []string{"handler", "event_type"})),
		unrouted: registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_events_unrouted_total",
			Help: "Events published with no in-process handler",
		})),
	}
}

// registerOrReuse registers c, or returns the collector already registered
// under the same descriptor so several routers can share one registry.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

type namedHandler struct {
	name    string
	handler types.EventHandler
}

// Router runs in-process handlers for each event before it leaves the
// process. Handlers for one event run one after another in registration
// order; a slow or panicking handler cannot stall or crash a publish.
type Router struct {
	log      *zap.SugaredLogger
	metrics  *routerMetrics
	timeout  time.Duration
	mu       sync.RWMutex
	handlers map[types.EventType][]namedHandler
}

// NewRouter creates a router reporting to reg.
func NewRouter(reg prometheus.Registerer) *Router {
	return &Router{
		log:      logger.Named("event_router"),
		metrics:  newRouterMetrics(reg),
		timeout:  defaultHandlerTimeout,
		handlers: make(map[types.EventType][]namedHandler),
	}
}

// Register adds handler under name for every event type it supports.
func (r *Router) Register(name string, handler types.EventHandler) {
	supported := handler.SupportedEvents()
	if len(supported) == 0 {
		r.log.Warnw("Handler supports no events, skipping", "handler", name)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, eventType := range supported {
		r.handlers[eventType] = append(r.handlers[eventType], namedHandler{name: name, handler: handler})
	}
}

// Unregister removes every registration made under name.
func (r *Router) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for eventType, hs := range r.handlers {
		kept := hs[:0]
		for _, h := range hs {
			if h.name != name {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(r.handlers, eventType)
			continue
		}
		r.handlers[eventType] = kept
	}
}

// HandleEvent runs the handlers for event.Type and joins their errors.
func (r *Router) HandleEvent(ctx context.Context, event types.Event) error {
	r.mu.RLock()
	hs := append([]namedHandler(nil), r.handlers[event.Type]...)
	r.mu.RUnlock()

	if len(hs) == 0 {
		r.metrics.unrouted.Inc()
		return nil
	}

	var errs []error
	for _, h := range hs {
		if err := r.run(ctx, h, event); err != nil {
			r.metrics.handlerErrors.WithLabelValues(h.name, string(event.Type)).Inc()
			r.log.Errorw("Event handler failed", "handler", h.name, "eventType", event.Type,
				"splitPaymentID", event.SplitPaymentID, "error", err)
			errs = append(errs, fmt.Errorf("handler %s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Router) run(ctx context.Context, h namedHandler, event types.Event) (err error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		r.metrics.handlerLatency.WithLabelValues(h.name).Observe(time.Since(start).Seconds())
	}()

	return h.handler.HandleEvent(ctx, event)
}

func (r *Router) handlerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var names []string
	for _, hs := range r.handlers {
		for _, h := range hs {
			if _, ok := seen[h.name]; !ok {
				seen[h.name] = struct{}{}
				names = append(names, h.name)
			}
		}
	}
	return names
}
