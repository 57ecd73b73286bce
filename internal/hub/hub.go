// Package hub serializes inbound connection events into engine operations.
// Read pumps enqueue decoded envelopes; a single processing goroutine
// decodes payloads, invokes the engine, and reports failures back to the
// originating connection only.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"pollroom/internal/broadcast"
	"pollroom/internal/session"
	"pollroom/pkg/types"
)

// kindBadRequest flags frames the hub itself could not interpret.
const kindBadRequest = "bad_request"

// clientEvent pairs an inbound envelope with its sender.
type clientEvent struct {
	connID string
	env    types.Envelope
}

// Hub dispatches client events to the session engine.
type Hub struct {
	events      chan clientEvent
	disconnects chan string
	shutdown    chan struct{}

	engine *session.Engine
	router *broadcast.Router

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub over the given engine and broadcast router.
func NewHub(engine *session.Engine, router *broadcast.Router) *Hub {
	return &Hub{
		events:      make(chan clientEvent, 1000),
		disconnects: make(chan string, 100),
		shutdown:    make(chan struct{}),
		engine:      engine,
		router:      router,
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	slog.Info("starting event hub")
	go h.run(ctx)

	return nil
}

// Stop shuts the hub down.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}

	return nil
}

// Dispatch queues a client event for processing. Non-blocking: a full queue
// rejects the event rather than stalling the read pump.
func (h *Hub) Dispatch(connID string, env types.Envelope) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.events <- clientEvent{connID: connID, env: env}:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Disconnect queues connection cleanup. Falls back to a synchronous engine
// call when the queue is saturated so roster state never leaks.
func (h *Hub) Disconnect(connID string) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()

	if !running {
		h.engine.Disconnect(connID)
		return
	}

	select {
	case h.disconnects <- connID:
	default:
		slog.Warn("disconnect queue full, cleaning up inline", "conn_id", connID)
		h.engine.Disconnect(connID)
	}
}

func (h *Hub) run(ctx context.Context) {
	defer slog.Info("event hub stopped")

	for {
		select {
		case event := <-h.events:
			h.handleEvent(event)
		case connID := <-h.disconnects:
			h.engine.Disconnect(connID)
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleEvent decodes one envelope and applies it to the engine. Engine
// errors become an "error" event to the sender; other connections are never
// affected.
func (h *Hub) handleEvent(event clientEvent) {
	connID := event.connID
	var err error

	switch event.env.Type {
	case types.EventJoinTeacher:
		h.engine.JoinTeacher(connID)

	case types.EventJoinStudent:
		var req types.JoinStudentRequest
		if h.decode(event.env.Payload, &req, connID) {
			err = h.engine.JoinStudent(connID, req.Name)
		}

	case types.EventCreatePoll:
		var req types.CreatePollRequest
		if h.decode(event.env.Payload, &req, connID) {
			err = h.engine.CreatePoll(connID, req)
		}

	case types.EventSubmitAnswer:
		var req types.SubmitAnswerRequest
		if h.decode(event.env.Payload, &req, connID) {
			err = h.engine.SubmitAnswer(connID, req.Answer)
		}

	case types.EventSendMessage:
		var req types.SendMessageRequest
		if h.decode(event.env.Payload, &req, connID) {
			h.engine.PostChat(connID, req.Text)
		}

	case types.EventKickStudent:
		var req types.KickStudentRequest
		if h.decode(event.env.Payload, &req, connID) {
			err = h.engine.KickStudent(connID, req.StudentID)
		}

	case types.EventGetPollHistory:
		h.engine.SendHistory(connID)

	default:
		slog.Debug("unknown event type", "conn_id", connID, "type", event.env.Type)
		h.router.ToConn(connID, types.EventError, types.ErrorPayload{
			Kind:    kindBadRequest,
			Message: "unknown event type: " + event.env.Type,
		})
		return
	}

	if err != nil {
		slog.Debug("engine rejected event", "conn_id", connID, "type", event.env.Type, "error", err)
		h.router.ToConn(connID, types.EventError, types.ErrorPayload{
			Kind:    session.Kind(err),
			Message: err.Error(),
		})
	}
}

// decode unmarshals a payload into v, reporting malformed frames to the
// sender itself. A missing payload decodes to zero values and is left to
// engine validation.
func (h *Hub) decode(payload json.RawMessage, v any, connID string) bool {
	if len(payload) == 0 {
		return true
	}
	if err := json.Unmarshal(payload, v); err != nil {
		slog.Debug("malformed payload", "conn_id", connID, "error", err)
		h.router.ToConn(connID, types.EventError, types.ErrorPayload{
			Kind:    kindBadRequest,
			Message: "malformed payload",
		})
		return false
	}
	return true
}
