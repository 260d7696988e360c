package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/google/uuid"
)

// ChannelName is the Redis channel a split payment's events are published on.
func ChannelName(splitPaymentID string) string {
	return fmt.Sprintf("split_payment:%s", splitPaymentID)
}

// PublishEventWithContext builds a standard types.Event around payload and
// publishes it on the split payment's channel.
func PublishEventWithContext(ctx context.Context, publisher types.EventPublisher, eventType types.EventType, splitPaymentID, userID string, payload any, source string) error {
	event, err := NewEvent(eventType, splitPaymentID, userID, payload, source)
	if err != nil {
		return err
	}
	if err := publisher.Publish(ctx, splitPaymentID, event); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// NewEvent marshals payload into an event with a fresh ID and timestamp.
func NewEvent(eventType types.EventType, splitPaymentID, userID string, payload any, source string) (types.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return types.Event{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return types.Event{
		BaseEvent: types.BaseEvent{
			ID:             uuid.NewString(),
			Type:           eventType,
			SplitPaymentID: splitPaymentID,
			UserID:         userID,
			Timestamp:      time.Now().UTC(),
			Version:        1,
		},
		Metadata: types.EventMetadata{
			Source: source,
		},
		Payload: data,
	}, nil
}
