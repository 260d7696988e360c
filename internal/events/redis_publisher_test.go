package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func init() {
	logger.IsTest = true
}

func testEvent(id string, eventType types.EventType) types.Event {
	return types.Event{
		BaseEvent: types.BaseEvent{
			ID:             id,
			Type:           eventType,
			SplitPaymentID: "split-1",
			UserID:         "user-1",
			Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Version:        1,
		},
		Metadata: types.EventMetadata{Source: "test"},
		Payload:  json.RawMessage(`{"newStatus":"completed"}`),
	}
}

func newTestPublisher(rdb redis.UniversalClient) *RedisPublisher {
	cfg := DefaultConfig()
	cfg.Registerer = prometheus.NewRegistry()
	return NewRedisPublisher(rdb, cfg)
}

func TestRedisPublisher_Publish(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	publisher := newTestPublisher(rdb)

	event := testEvent("evt-1", types.EventTypeSplitPaymentStatusChanged)
	data, err := json.Marshal(event)
	require.NoError(t, err)

	mock.ExpectPublish("split_payment:split-1", data).SetVal(1)

	require.NoError(t, publisher.Publish(context.Background(), "split-1", event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_PublishErrors(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	publisher := newTestPublisher(rdb)

	t.Run("invalid event is rejected before redis", func(t *testing.T) {
		event := testEvent("evt-1", "")
		err := publisher.Publish(context.Background(), "split-1", event)
		assert.Error(t, err)
	})

	t.Run("redis failure is wrapped", func(t *testing.T) {
		event := testEvent("evt-2", types.EventTypePaymentPaid)
		data, err := json.Marshal(event)
		require.NoError(t, err)
		mock.ExpectPublish("split_payment:split-1", data).SetErr(errors.New("connection refused"))

		err = publisher.Publish(context.Background(), "split-1", event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis publish")
	})
}

func TestRedisPublisher_PublishBatch(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	publisher := newTestPublisher(rdb)

	batch := []types.Event{
		testEvent("evt-1", types.EventTypePaymentPaid),
		testEvent("evt-2", types.EventTypeSplitPaymentStatusChanged),
	}
	for _, e := range batch {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		mock.ExpectPublish("split_payment:split-1", data).SetVal(1)
	}

	require.NoError(t, publisher.PublishBatch(context.Background(), "split-1", batch))
	require.NoError(t, publisher.PublishBatch(context.Background(), "split-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())

	// One invalid event keeps the whole batch off the wire.
	err := publisher.PublishBatch(context.Background(), "split-1", []types.Event{
		testEvent("evt-3", types.EventTypePaymentPaid),
		testEvent("evt-4", ""),
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping container test in short mode")
	}

	ctx := context.Background()
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
}

func TestRedisPublisher_SubscribeReceivesFilteredEvents(t *testing.T) {
	rdb := setupRedisContainer(t)
	ctx := context.Background()

	publisher := newTestPublisher(rdb)
	defer func() {
		assert.NoError(t, publisher.Shutdown(context.Background()))
	}()

	ch, err := publisher.Subscribe(ctx, "split-1", "viewer-1", types.EventTypeSplitPaymentStatusChanged)
	require.NoError(t, err)

	_, err = publisher.Subscribe(ctx, "split-1", "viewer-1")
	assert.Error(t, err, "duplicate subscription must be rejected")

	require.NoError(t, publisher.Publish(ctx, "split-1", testEvent("evt-1", types.EventTypePaymentPaid)))
	require.NoError(t, publisher.Publish(ctx, "split-1", testEvent("evt-2", types.EventTypeSplitPaymentStatusChanged)))

	select {
	case received := <-ch:
		assert.Equal(t, "evt-2", received.ID)
		assert.Equal(t, "split-1", received.SplitPaymentID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	require.NoError(t, publisher.Unsubscribe(ctx, "split-1", "viewer-1"))
	assert.Error(t, publisher.Unsubscribe(ctx, "split-1", "viewer-1"))
}
