package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/NomadCrew/nomad-crew-payments/types"
)

// MockPublisher is an in-memory types.EventPublisher for tests.
type MockPublisher struct {
	mu            sync.RWMutex
	events        map[string][]types.Event // key: split payment ID
	subscriptions map[string]chan types.Event
	closed        bool
}

var _ types.EventPublisher = (*MockPublisher)(nil)

// NewMockPublisher creates a new mock publisher for testing
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		events:        make(map[string][]types.Event),
		subscriptions: make(map[string]chan types.Event),
	}
}

func (m *MockPublisher) Publish(ctx context.Context, splitPaymentID string, event types.Event) error {
	return m.PublishBatch(ctx, splitPaymentID, []types.Event{event})
}

func (m *MockPublisher) PublishBatch(ctx context.Context, splitPaymentID string, events []types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("publisher is closed")
	}

	m.events[splitPaymentID] = append(m.events[splitPaymentID], events...)

	if ch, ok := m.subscriptions[splitPaymentID]; ok {
		for _, event := range events {
			select {
			case ch <- event:
			default:
			}
		}
	}
	return nil
}

// Subscribe allows one subscriber per split payment.
func (m *MockPublisher) Subscribe(ctx context.Context, splitPaymentID string, subscriberID string, filters ...types.EventType) (<-chan types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("publisher is closed")
	}
	if _, exists := m.subscriptions[splitPaymentID]; exists {
		return nil, fmt.Errorf("subscription already exists")
	}

	ch := make(chan types.Event, 100)
	m.subscriptions[splitPaymentID] = ch
	return ch, nil
}

func (m *MockPublisher) Unsubscribe(ctx context.Context, splitPaymentID string, subscriberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, exists := m.subscriptions[splitPaymentID]
	if !exists {
		return fmt.Errorf("subscription not found")
	}
	close(ch)
	delete(m.subscriptions, splitPaymentID)
	return nil
}

// GetEvents returns all events published for a split payment.
func (m *MockPublisher) GetEvents(splitPaymentID string) []types.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Event, len(m.events[splitPaymentID]))
	copy(out, m.events[splitPaymentID])
	return out
}

// CountByType counts published events of one type for a split payment.
func (m *MockPublisher) CountByType(splitPaymentID string, eventType types.EventType) int {
	n := 0
	for _, e := range m.GetEvents(splitPaymentID) {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// Close closes every subscription and rejects further publishes.
func (m *MockPublisher) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subscriptions {
		close(ch)
	}
	m.subscriptions = make(map[string]chan types.Event)
	m.closed = true
}
