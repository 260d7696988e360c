package websocket

import (
	"context"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/middleware"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
	MessageTypeSnapshot = "snapshot"
	MessageTypeEvent    = "event"
)

// SplitViewer authorizes the caller and returns the split's current state.
type SplitViewer interface {
	GetSplitPaymentView(ctx context.Context, splitPaymentID, userID string) (*types.SplitPaymentView, error)
}

// Handler serves GET /split-payments/:id/stream. The stream opens with a
// snapshot of the split, then relays every realtime event for it.
type Handler struct {
	log            *zap.SugaredLogger
	hub            *Hub
	views          SplitViewer
	pingInterval   time.Duration
	writeTimeout   time.Duration
	allowedOrigins []string
	isDevelopment  bool
}

func NewHandler(hub *Hub, views SplitViewer, serverCfg *config.ServerConfig, hubCfg HubConfig) *Handler {
	defaults := DefaultHubConfig()
	if hubCfg.PingInterval <= 0 {
		hubCfg.PingInterval = defaults.PingInterval
	}
	if hubCfg.WriteTimeout <= 0 {
		hubCfg.WriteTimeout = defaults.WriteTimeout
	}
	return &Handler{
		log:            logger.Named("stream_handler"),
		hub:            hub,
		views:          views,
		pingInterval:   hubCfg.PingInterval,
		writeTimeout:   hubCfg.WriteTimeout,
		allowedOrigins: serverCfg.AllowedOrigins,
		isDevelopment:  serverCfg.Environment == config.EnvDevelopment,
	}
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionContextTakeover}
	if h.isDevelopment {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.allowedOrigins
	}
	return opts
}

type ClientMessage struct {
	Type string `json:"type"`
}

type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// StreamSplitPayment godoc
// @Summary Stream split payment status
// @Description Upgrades to a websocket that sends a snapshot and then realtime events for the split payment
// @Tags split-payments
// @Param id path string true "Split payment ID"
// @Param token query string false "Access token for browsers that cannot set headers"
// @Success 101
// @Failure 401 {object} middleware.ErrorResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /split-payments/{id}/stream [get]
func (h *Handler) StreamSplitPayment(c *gin.Context) {
	userID := middleware.GetUserID(c)
	splitID := c.Param("id")

	// Authorize before upgrading so failures are plain JSON errors.
	view, err := h.views.GetSplitPaymentView(c.Request.Context(), splitID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, h.acceptOptions())
	if err != nil {
		h.log.Warnw("Failed to accept websocket", "userID", userID, "splitPaymentID", splitID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	connection, err := h.hub.Register(ctx, userID, splitID, conn)
	if err != nil {
		h.log.Errorw("Failed to register status stream", "userID", userID, "splitPaymentID", splitID, "error", err)
		_ = conn.Close(websocket.StatusInternalError, "subscription failed")
		return
	}
	defer h.hub.Unregister(connection.ID)

	if err := h.send(ctx, conn, ServerMessage{Type: MessageTypeSnapshot, Payload: view}); err != nil {
		return
	}

	errCh := make(chan error, 3)
	go func() { errCh <- h.readLoop(ctx, conn) }()
	go func() { errCh <- h.writeLoop(ctx, conn, connection) }()
	go func() { errCh <- h.pingLoop(ctx, conn) }()

	err = <-errCh
	if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
		h.log.Debugw("Status stream ended", "connectionID", connection.ID, "error", err)
	}
}

// readLoop answers client pings; reading also lets the library process
// control frames. A malformed message closes the stream.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}
		if msg.Type == MessageTypePing {
			if err := h.send(ctx, conn, ServerMessage{Type: MessageTypePong}); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, connection *Connection) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-connection.SendChannel():
			if !ok {
				return nil
			}
			if err := h.send(ctx, conn, ServerMessage{Type: MessageTypeEvent, Payload: event}); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}
