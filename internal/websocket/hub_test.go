package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	channels     map[string]chan types.Event
	unsubscribed []string
	subscribeErr error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{channels: make(map[string]chan types.Event)}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, splitPaymentID, subscriberID string, _ ...types.EventType) (<-chan types.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	ch := make(chan types.Event, 16)
	f.channels[splitPaymentID+":"+subscriberID] = ch
	return ch, nil
}

func (f *fakeSubscriber) Unsubscribe(_ context.Context, splitPaymentID, subscriberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := splitPaymentID + ":" + subscriberID
	if ch, ok := f.channels[key]; ok {
		close(ch)
		delete(f.channels, key)
	}
	f.unsubscribed = append(f.unsubscribed, key)
	return nil
}

func (f *fakeSubscriber) emit(splitPaymentID, subscriberID string, event types.Event) {
	f.mu.Lock()
	ch := f.channels[splitPaymentID+":"+subscriberID]
	f.mu.Unlock()
	ch <- event
}

type fakeCloser struct {
	mu    sync.Mutex
	codes []websocket.StatusCode
}

func (f *fakeCloser) Close(code websocket.StatusCode, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeCloser) closedWith() []websocket.StatusCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]websocket.StatusCode(nil), f.codes...)
}

func TestHub_RegisterForwardsEvents(t *testing.T) {
	subs := newFakeSubscriber()
	hub := NewHub(subs, DefaultHubConfig())

	conn, err := hub.Register(context.Background(), "user-1", "split-1", &fakeCloser{})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.ConnectionCount("split-1"))

	subs.emit("split-1", conn.ID, types.Event{BaseEvent: types.BaseEvent{Type: types.EventTypePaymentPaid}})

	select {
	case event := <-conn.SendChannel():
		assert.Equal(t, types.EventTypePaymentPaid, event.Type)
	case <-time.After(time.Second):
		t.Fatal("event was not forwarded")
	}
}

func TestHub_UnregisterClosesStream(t *testing.T) {
	subs := newFakeSubscriber()
	hub := NewHub(subs, DefaultHubConfig())
	closer := &fakeCloser{}

	conn, err := hub.Register(context.Background(), "user-1", "split-1", closer)
	require.NoError(t, err)

	hub.Unregister(conn.ID)
	hub.Unregister(conn.ID)

	assert.True(t, conn.IsClosed())
	assert.Equal(t, 0, hub.ConnectionCount(""))
	assert.Equal(t, []websocket.StatusCode{websocket.StatusNormalClosure}, closer.closedWith())
	assert.Equal(t, []string{"split-1:" + conn.ID}, subs.unsubscribed)

	_, open := <-conn.SendChannel()
	assert.False(t, open)
}

func TestHub_ConnectionCount(t *testing.T) {
	hub := NewHub(newFakeSubscriber(), DefaultHubConfig())
	ctx := context.Background()

	_, err := hub.Register(ctx, "user-1", "split-1", &fakeCloser{})
	require.NoError(t, err)
	_, err = hub.Register(ctx, "user-1", "split-1", &fakeCloser{})
	require.NoError(t, err)
	_, err = hub.Register(ctx, "user-2", "split-2", &fakeCloser{})
	require.NoError(t, err)

	assert.Equal(t, 2, hub.ConnectionCount("split-1"))
	assert.Equal(t, 1, hub.ConnectionCount("split-2"))
	assert.Equal(t, 0, hub.ConnectionCount("split-3"))
	assert.Equal(t, 3, hub.ConnectionCount(""))
}

func TestHub_ShutdownRefusesNewStreams(t *testing.T) {
	hub := NewHub(newFakeSubscriber(), DefaultHubConfig())
	first, second := &fakeCloser{}, &fakeCloser{}

	_, err := hub.Register(context.Background(), "user-1", "split-1", first)
	require.NoError(t, err)
	_, err = hub.Register(context.Background(), "user-2", "split-1", second)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))

	assert.Equal(t, []websocket.StatusCode{websocket.StatusGoingAway}, first.closedWith())
	assert.Equal(t, []websocket.StatusCode{websocket.StatusGoingAway}, second.closedWith())
	assert.Equal(t, 0, hub.ConnectionCount(""))

	_, err = hub.Register(context.Background(), "user-3", "split-1", &fakeCloser{})
	assert.ErrorIs(t, err, errHubClosed)
}

func TestHub_SubscribeFailure(t *testing.T) {
	subs := newFakeSubscriber()
	subs.subscribeErr = errors.New("redis unavailable")
	hub := NewHub(subs, DefaultHubConfig())

	conn, err := hub.Register(context.Background(), "user-1", "split-1", &fakeCloser{})
	assert.Error(t, err)
	assert.Nil(t, conn)
	assert.Equal(t, 0, hub.ConnectionCount(""))
}

func TestConnection_OfferDropsWhenFull(t *testing.T) {
	conn := &Connection{sendCh: make(chan types.Event, 1), cancel: func() {}}

	assert.True(t, conn.offer(types.Event{BaseEvent: types.BaseEvent{ID: "1"}}))
	assert.False(t, conn.offer(types.Event{BaseEvent: types.BaseEvent{ID: "2"}}))

	conn.closed = true
	assert.True(t, conn.offer(types.Event{BaseEvent: types.BaseEvent{ID: "3"}}))
}
