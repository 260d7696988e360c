package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Service routes each event to local handlers first, then publishes it for
// remote subscribers. It satisfies types.EventPublisher.
type Service struct {
	log       *zap.SugaredLogger
	publisher types.EventPublisher
	router    *Router
	mu        sync.RWMutex
	handlers  map[string]types.EventHandler
}

var _ types.EventPublisher = (*Service)(nil)

// NewService creates an event service over any publisher. Handler metrics
// are registered with reg.
func NewService(publisher types.EventPublisher, reg prometheus.Registerer) *Service {
	return &Service{
		log:       logger.Named("event_service"),
		publisher: publisher,
		router:    NewRouter(reg),
		handlers:  make(map[string]types.EventHandler),
	}
}

// RegisterHandler registers a named in-process handler.
func (s *Service) RegisterHandler(name string, handler types.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[name]; exists {
		return fmt.Errorf("handler with name %s already registered", name)
	}
	s.handlers[name] = handler
	s.router.Register(name, handler)

	s.log.Infow("Registered event handler", "name", name, "supportedEvents", handler.SupportedEvents())
	return nil
}

// Publish hands the event to local handlers, then to the publisher. Local
// handler failures are logged and never block publishing.
func (s *Service) Publish(ctx context.Context, splitPaymentID string, event types.Event) error {
	if err := s.router.HandleEvent(ctx, event); err != nil {
		s.log.Errorw("Error handling event locally", "error", err, "splitPaymentID", splitPaymentID, "eventType", event.Type)
	}
	return s.publisher.Publish(ctx, splitPaymentID, event)
}

func (s *Service) PublishBatch(ctx context.Context, splitPaymentID string, events []types.Event) error {
	for _, event := range events {
		if err := s.router.HandleEvent(ctx, event); err != nil {
			s.log.Errorw("Error handling event locally in batch", "error", err, "splitPaymentID", splitPaymentID, "eventType", event.Type)
		}
	}
	return s.publisher.PublishBatch(ctx, splitPaymentID, events)
}

func (s *Service) Subscribe(ctx context.Context, splitPaymentID string, subscriberID string, filters ...types.EventType) (<-chan types.Event, error) {
	return s.publisher.Subscribe(ctx, splitPaymentID, subscriberID, filters...)
}

func (s *Service) Unsubscribe(ctx context.Context, splitPaymentID string, subscriberID string) error {
	return s.publisher.Unsubscribe(ctx, splitPaymentID, subscriberID)
}

// Shutdown unregisters handlers and shuts down the publisher when it supports it.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for name := range s.handlers {
		s.router.Unregister(name)
		delete(s.handlers, name)
	}
	s.mu.Unlock()

	if sd, ok := s.publisher.(interface{ Shutdown(context.Context) error }); ok {
		if err := sd.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown publisher: %w", err)
		}
	}
	s.log.Info("Event service shutdown complete")
	return nil
}
