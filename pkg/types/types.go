package types

import (
	"encoding/json"
	"time"
)

// Connection roles. A connection starts out unknown and acquires a role
// when it joins as teacher or student.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleUnknown = "unknown"
)

// Inbound event types accepted from clients.
const (
	EventJoinTeacher    = "join-teacher"
	EventJoinStudent    = "join-student"
	EventCreatePoll     = "create-poll"
	EventSubmitAnswer   = "submit-answer"
	EventSendMessage    = "send-message"
	EventKickStudent    = "kick-student"
	EventGetPollHistory = "get-poll-history"
)

// Outbound event types emitted to clients. Names match the original
// frontend wire protocol.
const (
	EventStudentJoined = "student-joined"
	EventNewPoll       = "new-poll"
	EventPollCreated   = "poll-created"
	EventPollResults   = "poll-results"
	EventPollClosed    = "poll-closed"
	EventStudentList   = "student-list"
	EventChatMessages  = "chat-messages"
	EventNewMessage    = "new-message"
	EventKicked        = "kicked"
	EventPollHistory   = "poll-history"
	EventError         = "error"
)

// Participant is a joined student, keyed by its connection ID.
type Participant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	HasAnswered bool   `json:"hasAnswered"`
}

// Answer is one recorded submission. Option is stored verbatim even when it
// is not among the poll's declared options; aggregation decides what counts.
type Answer struct {
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	Option      string    `json:"answer"`
	AnsweredAt  time.Time `json:"timestamp"`
}

// Poll is a single question put to the roster. At most one poll has
// IsActive set at any time; closed polls live on in the history log.
type Poll struct {
	ID        string     `json:"id"`
	Question  string     `json:"question"`
	Options   []string   `json:"options"`
	TimeLimit int        `json:"timeLimit"` // seconds
	CreatedAt time.Time  `json:"createdAt"`
	Answers   []Answer   `json:"answers"`
	IsActive  bool       `json:"isActive"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// PollResult is derived from a poll's answers against the live roster size.
// Answers with unrecognized option labels contribute to TotalAnswers but to
// no counter, so sum(Counts) <= TotalAnswers.
type PollResult struct {
	PollID            string         `json:"pollId"`
	Question          string         `json:"question"`
	Options           []string       `json:"options"`
	Counts            map[string]int `json:"counts"`
	Percentages       map[string]int `json:"percentages"`
	TotalAnswers      int            `json:"totalAnswers"`
	TotalParticipants int            `json:"totalStudents"`
}

// HistoryEntry is a closed poll with its final result. Embedding keeps the
// wire shape flat: poll fields plus a results field.
type HistoryEntry struct {
	Poll
	Results *PollResult `json:"results"`
}

// ChatMessage is one entry in the process-wide chat log. Immutable once
// appended.
type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	IsTeacher bool      `json:"isTeacher"`
	SentAt    time.Time `json:"timestamp"`
}

// Envelope frames every inbound client message. Payload shape depends on
// Type and is decoded by the hub.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event frames every outbound message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound payloads.

type JoinStudentRequest struct {
	Name string `json:"name"`
}

type CreatePollRequest struct {
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
}

type SubmitAnswerRequest struct {
	Answer string `json:"answer"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

type KickStudentRequest struct {
	StudentID string `json:"studentId"`
}

// ErrorPayload is the body of an "error" event, delivered only to the
// connection whose request failed.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StudentJoinedPayload acknowledges a successful student join.
type StudentJoinedPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
