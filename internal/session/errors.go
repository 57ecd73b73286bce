package session

import "errors"

// Engine error types. All are recoverable: they surface as an "error" event
// to the originating connection and never stop processing of other events.
var (
	ErrNoActivePoll          = errors.New("no active poll")
	ErrUnknownParticipant    = errors.New("connection has not joined as a student")
	ErrDuplicateAnswer       = errors.New("participant already answered this poll")
	ErrInvalidPollDefinition = errors.New("poll requires at least 2 distinct non-empty options and no poll in progress")
	ErrInvalidName           = errors.New("display name cannot be empty")
	ErrNotAuthorized         = errors.New("only the teacher can perform this action")
)

// Wire error kinds carried in ErrorPayload.Kind.
const (
	KindNoActivePoll          = "no_active_poll"
	KindUnknownParticipant    = "unknown_participant"
	KindDuplicateAnswer       = "duplicate_answer"
	KindInvalidPollDefinition = "invalid_poll_definition"
	KindInvalidName           = "invalid_name"
	KindNotAuthorized         = "not_authorized"
	KindInternal              = "internal_error"
)

// Kind maps an engine error to its wire error kind.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNoActivePoll):
		return KindNoActivePoll
	case errors.Is(err, ErrUnknownParticipant):
		return KindUnknownParticipant
	case errors.Is(err, ErrDuplicateAnswer):
		return KindDuplicateAnswer
	case errors.Is(err, ErrInvalidPollDefinition):
		return KindInvalidPollDefinition
	case errors.Is(err, ErrInvalidName):
		return KindInvalidName
	case errors.Is(err, ErrNotAuthorized):
		return KindNotAuthorized
	default:
		return KindInternal
	}
}
