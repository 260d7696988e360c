package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var errHubClosed = errors.New("stream hub is shut down")

// EventSubscriber is the subscribe half of types.EventPublisher.
type EventSubscriber interface {
	Subscribe(ctx context.Context, splitPaymentID string, subscriberID string, filters ...types.EventType) (<-chan types.Event, error)
	Unsubscribe(ctx context.Context, splitPaymentID string, subscriberID string) error
}

// Closer is the part of a websocket connection the hub closes on shutdown.
type Closer interface {
	Close(code websocket.StatusCode, reason string) error
}

// Hub tracks open split payment streams. A user may follow several splits,
// and the same split from several devices, so streams are keyed by their
// own ID rather than by user.
type Hub struct {
	log          *zap.SugaredLogger
	events       EventSubscriber
	connections  map[string]*Connection
	mu           sync.RWMutex
	shutdownOnce sync.Once
	closed       bool
	sendBuffer   int
}

// Connection is one open stream for one split payment.
type Connection struct {
	ID             string
	UserID         string
	SplitPaymentID string
	Conn           Closer

	cancel context.CancelFunc
	sendCh chan types.Event
	mu     sync.Mutex
	closed bool
}

type HubConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
	}
}

func NewHub(events EventSubscriber, cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultHubConfig().SendBuffer
	}
	return &Hub{
		log:         logger.Named("stream_hub"),
		events:      events,
		connections: make(map[string]*Connection),
		sendBuffer:  cfg.SendBuffer,
	}
}

// Register subscribes a new stream to the split payment's events.
func (h *Hub) Register(ctx context.Context, userID, splitPaymentID string, conn Closer) (*Connection, error) {
	subCtx, cancel := context.WithCancel(ctx)
	connection := &Connection{
		ID:             uuid.NewString(),
		UserID:         userID,
		SplitPaymentID: splitPaymentID,
		Conn:           conn,
		cancel:         cancel,
		sendCh:         make(chan types.Event, h.sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return nil, errHubClosed
	}
	h.connections[connection.ID] = connection
	h.mu.Unlock()

	eventCh, err := h.events.Subscribe(subCtx, splitPaymentID, connection.ID)
	if err != nil {
		cancel()
		h.mu.Lock()
		delete(h.connections, connection.ID)
		h.mu.Unlock()
		return nil, err
	}

	go h.forward(subCtx, connection, eventCh)

	h.log.Infow("Status stream registered",
		"userID", userID,
		"splitPaymentID", splitPaymentID,
		"connectionID", connection.ID)
	return connection, nil
}

// forward copies events into the connection's buffer. A slow client loses
// events rather than stalling the subscription; it can resync from the view.
func (h *Hub) forward(ctx context.Context, conn *Connection, eventCh <-chan types.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if !conn.offer(event) {
				h.log.Warnw("Stream send buffer full, dropping event",
					"connectionID", conn.ID,
					"splitPaymentID", conn.SplitPaymentID,
					"eventType", event.Type)
			}
		}
	}
}

// Unregister closes the stream and drops its subscription.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	conn, ok := h.connections[connectionID]
	delete(h.connections, connectionID)
	h.mu.Unlock()

	if ok {
		h.closeConnection(conn, websocket.StatusNormalClosure, "unregistered")
	}
}

func (h *Hub) closeConnection(conn *Connection, code websocket.StatusCode, reason string) {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return
	}
	conn.closed = true
	conn.cancel()
	close(conn.sendCh)
	conn.mu.Unlock()

	_ = h.events.Unsubscribe(context.Background(), conn.SplitPaymentID, conn.ID)
	_ = conn.Conn.Close(code, reason)

	h.log.Infow("Status stream closed",
		"connectionID", conn.ID,
		"splitPaymentID", conn.SplitPaymentID,
		"reason", reason)
}

// ConnectionCount returns the number of open streams, optionally for one split.
func (h *Hub) ConnectionCount(splitPaymentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if splitPaymentID == "" {
		return len(h.connections)
	}
	n := 0
	for _, c := range h.connections {
		if c.SplitPaymentID == splitPaymentID {
			n++
		}
	}
	return n
}

// Shutdown closes every stream with StatusGoingAway and refuses new ones.
func (h *Hub) Shutdown(_ context.Context) error {
	h.shutdownOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		connections := make([]*Connection, 0, len(h.connections))
		for _, conn := range h.connections {
			connections = append(connections, conn)
		}
		h.connections = make(map[string]*Connection)
		h.mu.Unlock()

		for _, conn := range connections {
			h.closeConnection(conn, websocket.StatusGoingAway, "server shutdown")
		}
		h.log.Infow("Status stream hub shut down", "closed", len(connections))
	})
	return nil
}

// offer queues an event without blocking. It reports false only when the
// buffer is full; events for a closed connection are discarded silently.
func (c *Connection) offer(event types.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.sendCh <- event:
		return true
	default:
		return false
	}
}

func (c *Connection) SendChannel() <-chan types.Event {
	return c.sendCh
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
