package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds configuration for RedisPublisher.
type Config struct {
	PublishTimeout   time.Duration
	SubscribeTimeout time.Duration
	// EventBufferSize is the per-subscriber channel capacity.
	EventBufferSize int
	// Registerer receives the publisher metrics. Nil means the default registry.
	Registerer prometheus.Registerer
}

// DefaultConfig returns default configuration values
func DefaultConfig() Config {
	return Config{
		PublishTimeout:   5 * time.Second,
		SubscribeTimeout: 10 * time.Second,
		EventBufferSize:  100,
	}
}

type publisherMetrics struct {
	publishLatency prometheus.Histogram
	failures       *prometheus.CounterVec
	delivered      *prometheus.CounterVec
	subscribers    prometheus.Gauge
}

func newPublisherMetrics(reg prometheus.Registerer) *publisherMetrics {
	return &publisherMetrics{
		publishLatency: registerOrReuse(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "payment_event_publish_duration_seconds",
			Help:    "Time taken to publish split payment events",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		})),
		failures: registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_event_errors_total",
			Help: "Event publish and delivery failures by stage",
		}, []string{"stage", "reason"})),
		delivered: registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_events_delivered_total",
			Help: "Events handed to stream subscribers, by type",
		}, []string{"event_type"})),
		subscribers: registerOrReuse(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payment_event_active_subscribers",
			Help: "Current number of active stream subscribers",
		})),
	}
}

// RedisPublisher fans split payment events out over Redis Pub/Sub, one
// channel per split payment. Delivery is at most once: a subscriber that is
// offline or too slow misses events and relies on the next snapshot.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	log     *zap.SugaredLogger
	metrics *publisherMetrics
	config  Config
	mu      sync.Mutex
	subs    map[string]*subscription
	wg      sync.WaitGroup
}

var _ types.EventPublisher = (*RedisPublisher)(nil)

type subscription struct {
	key       string
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *subscription) close(log *zap.SugaredLogger) {
	s.closeOnce.Do(func() {
		s.cancel()
		if err := s.pubsub.Close(); err != nil {
			log.Errorw("Failed to close subscription", "subscription", s.key, "error", err)
		}
	})
}

func subscriptionKey(splitPaymentID, subscriberID string) string {
	return splitPaymentID + ":" + subscriberID
}

// NewRedisPublisher creates a new RedisPublisher instance
func NewRedisPublisher(rdb redis.UniversalClient, cfg ...Config) *RedisPublisher {
	config := DefaultConfig()
	if len(cfg) > 0 {
		config = cfg[0]
	}
	if config.EventBufferSize <= 0 {
		config.EventBufferSize = DefaultConfig().EventBufferSize
	}
	reg := config.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &RedisPublisher{
		rdb:     rdb,
		log:     logger.Named("events"),
		metrics: newPublisherMetrics(reg),
		config:  config,
		subs:    make(map[string]*subscription),
	}
}

// encode stamps missing envelope fields and serializes the event.
func (p *RedisPublisher) encode(event types.Event) ([]byte, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Version == 0 {
		event.Version = 1
	}
	if err := event.Validate(); err != nil {
		p.metrics.failures.WithLabelValues("publish", "validation").Inc()
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.metrics.failures.WithLabelValues("publish", "marshal").Inc()
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Publish publishes an event on the split payment's channel.
func (p *RedisPublisher) Publish(ctx context.Context, splitPaymentID string, event types.Event) error {
	timer := prometheus.NewTimer(p.metrics.publishLatency)
	defer timer.ObserveDuration()

	data, err := p.encode(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	if err := p.rdb.Publish(ctx, ChannelName(splitPaymentID), data).Err(); err != nil {
		p.metrics.failures.WithLabelValues("publish", "redis").Inc()
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// PublishBatch publishes several events in one pipeline round trip. Nothing
// is sent if any event fails validation.
func (p *RedisPublisher) PublishBatch(ctx context.Context, splitPaymentID string, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}

	payloads := make([][]byte, 0, len(events))
	for _, event := range events {
		data, err := p.encode(event)
		if err != nil {
			return err
		}
		payloads = append(payloads, data)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	channel := ChannelName(splitPaymentID)
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, data := range payloads {
			pipe.Publish(ctx, channel, data)
		}
		return nil
	})
	if err != nil {
		p.metrics.failures.WithLabelValues("publish", "redis").Inc()
		return fmt.Errorf("execute batch publish: %w", err)
	}
	return nil
}

// Subscribe streams the split payment's events to one subscriber until
// Unsubscribe or Shutdown. Slow consumers lose events rather than block.
func (p *RedisPublisher) Subscribe(ctx context.Context, splitPaymentID string, subscriberID string, filters ...types.EventType) (<-chan types.Event, error) {
	key := subscriptionKey(splitPaymentID, subscriberID)

	p.mu.Lock()
	if _, exists := p.subs[key]; exists {
		p.mu.Unlock()
		p.metrics.failures.WithLabelValues("subscribe", "duplicate").Inc()
		return nil, fmt.Errorf("subscription already exists for split payment %s and subscriber %s", splitPaymentID, subscriberID)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		key:    key,
		pubsub: p.rdb.Subscribe(ctx, ChannelName(splitPaymentID)),
		cancel: cancel,
	}
	p.subs[key] = sub
	p.mu.Unlock()

	p.metrics.subscribers.Inc()
	out := make(chan types.Event, p.config.EventBufferSize)
	ready := make(chan struct{})

	p.wg.Add(1)
	go p.forward(subCtx, sub, out, filters, ready)

	select {
	case <-ready:
	case <-time.After(p.config.SubscribeTimeout):
		p.log.Warnw("Subscription not ready in time, continuing", "subscription", key)
	case <-ctx.Done():
		_ = p.Unsubscribe(context.Background(), splitPaymentID, subscriberID)
		return nil, ctx.Err()
	}
	return out, nil
}

func (p *RedisPublisher) forward(ctx context.Context, sub *subscription, out chan<- types.Event, filters []types.EventType, ready chan<- struct{}) {
	defer p.wg.Done()
	defer func() {
		sub.close(p.log)
		close(out)
		p.metrics.subscribers.Dec()
	}()

	messages := sub.pubsub.Channel()
	close(ready)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var event types.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				p.metrics.failures.WithLabelValues("deliver", "unmarshal").Inc()
				p.log.Errorw("Discarding malformed event", "subscription", sub.key, "error", err)
				continue
			}
			if !matchesFilters(event.Type, filters) {
				continue
			}

			select {
			case out <- event:
				p.metrics.delivered.WithLabelValues(string(event.Type)).Inc()
			default:
				p.metrics.failures.WithLabelValues("deliver", "buffer_full").Inc()
				p.log.Warnw("Subscriber buffer full, dropping event", "subscription", sub.key, "eventType", event.Type)
			}
		}
	}
}

func matchesFilters(eventType types.EventType, filters []types.EventType) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if eventType == f {
			return true
		}
	}
	return false
}

// Unsubscribe ends one subscription. Its channel is closed once the
// forwarding goroutine exits.
func (p *RedisPublisher) Unsubscribe(_ context.Context, splitPaymentID string, subscriberID string) error {
	key := subscriptionKey(splitPaymentID, subscriberID)

	p.mu.Lock()
	sub, exists := p.subs[key]
	delete(p.subs, key)
	p.mu.Unlock()

	if !exists {
		return fmt.Errorf("no subscription found for split payment %s and subscriber %s", splitPaymentID, subscriberID)
	}
	sub.close(p.log)
	return nil
}

// Shutdown cancels every subscription and waits for their goroutines.
func (p *RedisPublisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	active := p.subs
	p.subs = make(map[string]*subscription)
	p.mu.Unlock()

	p.log.Infow("Shutting down event publisher", "subscriptions", len(active))
	for _, sub := range active {
		sub.close(p.log)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
