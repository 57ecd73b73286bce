package interfaces

// Conn is the engine-facing view of one live client connection. The
// websocket package provides the production implementation; tests substitute
// in-memory fakes so the engine and broadcast layers run without a network.
type Conn interface {
	// ID returns the server-assigned connection identifier.
	ID() string

	// Role returns RoleTeacher, RoleStudent, or RoleUnknown.
	Role() string

	// SetRole updates the connection's role. Safe for concurrent use.
	SetRole(role string)

	// WriteJSON queues v for delivery. It must not block: implementations
	// drop the frame and return an error when the write buffer is full.
	WriteJSON(v any) error

	// Close tears the connection down. Idempotent.
	Close() error
}
