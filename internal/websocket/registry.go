package websocket

import (
	"log/slog"
	"sync"

	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// Registry tracks live connections by ID. Roles live on the connections
// themselves; the registry only answers membership and audience queries.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]interfaces.Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]interfaces.Conn),
	}
}

// Register adds a connection. An existing connection under the same ID is
// closed asynchronously and replaced.
func (r *Registry) Register(conn interfaces.Conn) error {
	if conn == nil {
		return ErrNilConnection
	}
	if conn.ID() == "" {
		return ErrEmptyConnID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[conn.ID()]; ok && existing != conn {
		go func() {
			if err := existing.Close(); err != nil {
				slog.Debug("failed to close replaced connection", "conn_id", conn.ID(), "error", err)
			}
		}()
	}
	r.conns[conn.ID()] = conn

	return nil
}

// Unregister removes a connection by ID. Idempotent.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

// Get returns the connection registered under connID.
func (r *Registry) Get(connID string) (interfaces.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// Role returns the role of the connection registered under connID, or
// RoleUnknown when no such connection exists.
func (r *Registry) Role(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if conn, ok := r.conns[connID]; ok {
		return conn.Role()
	}
	return types.RoleUnknown
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []interfaces.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Students returns a snapshot of connections holding the student role.
func (r *Registry) Students() []interfaces.Conn {
	return r.byRole(types.RoleStudent)
}

// Teachers returns a snapshot of connections holding the teacher role.
// The engine keeps this to at most one.
func (r *Registry) Teachers() []interfaces.Conn {
	return r.byRole(types.RoleTeacher)
}

func (r *Registry) byRole(role string) []interfaces.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []interfaces.Conn
	for _, conn := range r.conns {
		if conn.Role() == role {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Stats returns connection counts for monitoring.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := map[string]int{
		"connections": len(r.conns),
		"students":    0,
		"teachers":    0,
	}
	for _, conn := range r.conns {
		switch conn.Role() {
		case types.RoleStudent:
			stats["students"]++
		case types.RoleTeacher:
			stats["teachers"]++
		}
	}
	return stats
}
