// Package broadcast fans engine state changes out to audiences computed
// from the connection registry at send time: everyone, the teacher, or all
// students. Delivery is fire-and-forget per connection; one failed or slow
// recipient never blocks the rest.
package broadcast

import (
	"log/slog"

	"pollroom/internal/websocket"
	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// Router delivers events to named audiences.
type Router struct {
	registry *websocket.Registry
}

// NewRouter creates a broadcast router over the given registry.
func NewRouter(registry *websocket.Registry) *Router {
	return &Router{registry: registry}
}

// ToAll delivers an event to every live connection.
func (r *Router) ToAll(eventType string, payload any) {
	r.deliver(r.registry.All(), eventType, payload)
}

// ToTeacher delivers an event to the teacher connection, if one is joined.
func (r *Router) ToTeacher(eventType string, payload any) {
	r.deliver(r.registry.Teachers(), eventType, payload)
}

// ToStudents delivers an event to every joined student connection.
func (r *Router) ToStudents(eventType string, payload any) {
	r.deliver(r.registry.Students(), eventType, payload)
}

// ToConn delivers an event to a single connection. No-op when the
// connection is gone.
func (r *Router) ToConn(connID string, eventType string, payload any) {
	conn, ok := r.registry.Get(connID)
	if !ok {
		return
	}
	r.deliver([]interfaces.Conn{conn}, eventType, payload)
}

func (r *Router) deliver(conns []interfaces.Conn, eventType string, payload any) {
	event := types.Event{Type: eventType, Payload: payload}
	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			// Likely a closed or saturated connection. Keep going.
			slog.Debug("event delivery failed", "conn_id", conn.ID(), "type", eventType, "error", err)
		}
	}
}
