package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pollroom/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Development default; deployments front this with stricter origin
		// checking.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Dispatcher receives decoded client events. The hub implements it.
type Dispatcher interface {
	Dispatch(connID string, env types.Envelope) error
	Disconnect(connID string)
}

// HandlerConfig carries the connection tuning knobs.
type HandlerConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	BufferSize   int
}

// Handler upgrades HTTP requests to WebSocket connections, assigns each a
// server-side identity, and pumps inbound frames into the dispatcher.
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	cfg        HandlerConfig
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, dispatcher Dispatcher, cfg HandlerConfig) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// HandleWebSocket upgrades the request and starts the connection's read
// pump. Clients are anonymous at this point; identity is the generated
// connection ID and role is assigned by join events.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(uuid.New().String(), wsConn, h.cfg.BufferSize)
	if err := h.registry.Register(conn); err != nil {
		slog.Error("connection registration failed", "conn_id", conn.ID(), "error", err)
		_ = conn.Close()
		return
	}

	slog.Info("client connected", "conn_id", conn.ID())
	go h.handleConnection(conn)
}

// handleConnection runs the read pump with heartbeat monitoring. On exit the
// connection is handed to the dispatcher for engine-side cleanup.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.dispatcher.Disconnect(conn.ID())
		_ = conn.Close()
		slog.Info("client disconnected", "conn_id", conn.ID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "conn_id", conn.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Debug("malformed client frame", "conn_id", conn.ID(), "error", err)
			continue
		}

		if err := h.dispatcher.Dispatch(conn.ID(), env); err != nil {
			slog.Warn("event dispatch failed", "conn_id", conn.ID(), "type", env.Type, "error", err)
		}
	}
}
