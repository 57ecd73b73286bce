// Package session owns the authoritative in-memory state of one classroom
// polling session: the roster of joined students, the poll lifecycle state
// machine, the history of closed polls, and the chat log. Every mutating
// operation runs under a single mutex so state transitions are atomic with
// respect to concurrent connection events and the auto-close timer.
package session

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pollroom/internal/broadcast"
	"pollroom/internal/websocket"
	"pollroom/pkg/types"
)

// Options tunes engine behavior.
type Options struct {
	// DefaultTimeLimit is applied, in seconds, when a poll request carries
	// no positive time limit.
	DefaultTimeLimit int

	// ChatHistoryLimit caps the retained chat log; 0 keeps everything.
	ChatHistoryLimit int
}

// Engine is the process-wide session state machine. State is memory-only
// and lives for the process lifetime.
type Engine struct {
	registry *websocket.Registry
	router   *broadcast.Router
	opts     Options

	mu        sync.Mutex
	current   *types.Poll
	history   []types.HistoryEntry
	roster    map[string]*types.Participant
	joinOrder []string
	teacherID string
	chat      []types.ChatMessage
	timer     *time.Timer

	// Injectable for deterministic tests.
	now   func() time.Time
	after func(d time.Duration, f func()) *time.Timer
}

// NewEngine creates an empty session engine.
func NewEngine(registry *websocket.Registry, router *broadcast.Router, opts Options) *Engine {
	if opts.DefaultTimeLimit <= 0 {
		opts.DefaultTimeLimit = 60
	}
	return &Engine{
		registry: registry,
		router:   router,
		opts:     opts,
		roster:   make(map[string]*types.Participant),
		now:      time.Now,
		after:    time.AfterFunc,
	}
}

// JoinTeacher makes connID the session's teacher connection, displacing any
// earlier teacher without notifying it. The new teacher receives the poll
// history and the full chat log.
func (e *Engine) JoinTeacher(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.teacherID != "" && e.teacherID != connID {
		if old, ok := e.registry.Get(e.teacherID); ok {
			old.SetRole(types.RoleUnknown)
		}
	}
	e.teacherID = connID
	if conn, ok := e.registry.Get(connID); ok {
		conn.SetRole(types.RoleTeacher)
	}

	e.router.ToConn(connID, types.EventPollHistory, e.historyLocked())
	e.router.ToConn(connID, types.EventChatMessages, e.chatLocked())

	slog.Info("teacher joined", "conn_id", connID)
}

// JoinStudent adds (or resets) a roster entry for connID. The joiner gets a
// join acknowledgment, the active poll if one is running, and the chat log;
// the teacher gets the updated roster.
func (e *Engine) JoinStudent(connID, name string) error {
	if !types.IsValidDisplayName(name) {
		return ErrInvalidName
	}
	name = strings.TrimSpace(name)

	e.mu.Lock()
	defer e.mu.Unlock()

	if conn, ok := e.registry.Get(connID); ok {
		conn.SetRole(types.RoleStudent)
	}

	if _, exists := e.roster[connID]; !exists {
		e.joinOrder = append(e.joinOrder, connID)
	}
	e.roster[connID] = &types.Participant{ID: connID, Name: name}

	e.router.ToConn(connID, types.EventStudentJoined, types.StudentJoinedPayload{ID: connID, Name: name})
	if e.current != nil && e.current.IsActive {
		// Late joiners can still answer before the poll closes.
		e.router.ToConn(connID, types.EventNewPoll, e.current)
	}
	e.router.ToConn(connID, types.EventChatMessages, e.chatLocked())
	e.router.ToTeacher(types.EventStudentList, e.rosterLocked())

	slog.Info("student joined", "conn_id", connID, "name", name)
	return nil
}

// Disconnect releases all state derived from connID and drops it from the
// registry. Idempotent. An in-flight poll continues for the remaining
// participants; a pending answer from the departed student is kept.
func (e *Engine) Disconnect(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.teacherID == connID {
		e.teacherID = ""
		slog.Info("teacher disconnected", "conn_id", connID)
	}

	if _, ok := e.roster[connID]; ok {
		e.removeParticipantLocked(connID)
		e.router.ToTeacher(types.EventStudentList, e.rosterLocked())
	}

	e.registry.Unregister(connID)
}

// KickStudent removes targetID from the session on the teacher's request:
// the target is told it was kicked and its connection is closed, then the
// teacher gets the updated roster. Kicking an unknown or already-gone
// target is a no-op apart from the roster rebroadcast.
func (e *Engine) KickStudent(requesterID, targetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registry.Role(requesterID) != types.RoleTeacher {
		return ErrNotAuthorized
	}

	if conn, ok := e.registry.Get(targetID); ok {
		e.router.ToConn(targetID, types.EventKicked, nil)
		if err := conn.Close(); err != nil {
			slog.Debug("failed to close kicked connection", "conn_id", targetID, "error", err)
		}
	}

	e.removeParticipantLocked(targetID)
	e.registry.Unregister(targetID)
	e.router.ToTeacher(types.EventStudentList, e.rosterLocked())

	slog.Info("student kicked", "conn_id", targetID)
	return nil
}

// PostChat appends a chat message and broadcasts it to everyone, the sender
// included. Sender name and role are resolved at send time, not cached.
func (e *Engine) PostChat(connID, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sender := "Unknown"
	isTeacher := e.teacherID == connID
	if isTeacher {
		sender = "Teacher"
	} else if p, ok := e.roster[connID]; ok {
		sender = p.Name
	}

	msg := types.ChatMessage{
		ID:        uuid.New().String(),
		Text:      text,
		Sender:    sender,
		IsTeacher: isTeacher,
		SentAt:    e.now(),
	}
	e.chat = append(e.chat, msg)
	if e.opts.ChatHistoryLimit > 0 && len(e.chat) > e.opts.ChatHistoryLimit {
		e.chat = e.chat[len(e.chat)-e.opts.ChatHistoryLimit:]
	}

	e.router.ToAll(types.EventNewMessage, msg)
}

// SendHistory delivers the closed-poll history to one connection.
func (e *Engine) SendHistory(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.router.ToConn(connID, types.EventPollHistory, e.historyLocked())
}

// Roster returns an ordered snapshot of the joined students.
func (e *Engine) Roster() []types.Participant {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rosterLocked()
}

// History returns a snapshot of closed polls with their final results.
func (e *Engine) History() []types.HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.historyLocked()
}

// ChatMessages returns a snapshot of the chat log.
func (e *Engine) ChatMessages() []types.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chatLocked()
}

// CurrentPoll returns a copy of the active poll, or false when none is
// running.
func (e *Engine) CurrentPoll() (types.Poll, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return types.Poll{}, false
	}
	poll := *e.current
	poll.Options = append([]string(nil), e.current.Options...)
	poll.Answers = append([]types.Answer(nil), e.current.Answers...)
	return poll, true
}

func (e *Engine) removeParticipantLocked(connID string) {
	if _, ok := e.roster[connID]; !ok {
		return
	}
	delete(e.roster, connID)
	for i, id := range e.joinOrder {
		if id == connID {
			e.joinOrder = append(e.joinOrder[:i], e.joinOrder[i+1:]...)
			break
		}
	}
}

func (e *Engine) rosterLocked() []types.Participant {
	roster := make([]types.Participant, 0, len(e.roster))
	for _, id := range e.joinOrder {
		if p, ok := e.roster[id]; ok {
			roster = append(roster, *p)
		}
	}
	return roster
}

func (e *Engine) historyLocked() []types.HistoryEntry {
	history := make([]types.HistoryEntry, len(e.history))
	copy(history, e.history)
	return history
}

func (e *Engine) chatLocked() []types.ChatMessage {
	chat := make([]types.ChatMessage, len(e.chat))
	copy(chat, e.chat)
	return chat
}
