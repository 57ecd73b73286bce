package session

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"pollroom/pkg/types"
)

// CreatePoll starts a new poll. Only the teacher connection may create
// polls, at most one poll is active at a time, and at least two distinct
// non-empty options must survive normalization. Every roster participant's
// answered flag is reset, students receive the poll definition, the teacher
// receives a creation acknowledgment, and a one-shot auto-close timer is
// armed for the poll's time limit.
func (e *Engine) CreatePoll(connID string, req types.CreatePollRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registry.Role(connID) != types.RoleTeacher {
		return ErrNotAuthorized
	}
	if e.current != nil && e.current.IsActive {
		return ErrInvalidPollDefinition
	}

	options := types.NormalizeOptions(req.Options)
	if len(options) < 2 {
		return ErrInvalidPollDefinition
	}

	timeLimit := req.TimeLimit
	if timeLimit <= 0 {
		timeLimit = e.opts.DefaultTimeLimit
	}

	poll := &types.Poll{
		ID:        uuid.New().String(),
		Question:  strings.TrimSpace(req.Question),
		Options:   options,
		TimeLimit: timeLimit,
		CreatedAt: e.now(),
		Answers:   []types.Answer{},
		IsActive:  true,
	}
	e.current = poll

	for _, p := range e.roster {
		p.HasAnswered = false
	}

	e.router.ToStudents(types.EventNewPoll, poll)
	e.router.ToTeacher(types.EventPollCreated, poll)

	// The timer is bound to this poll's identity: if the poll already closed
	// by full participation and a new one started, the stale callback finds
	// a different current poll and does nothing.
	pollID := poll.ID
	e.timer = e.after(time.Duration(timeLimit)*time.Second, func() {
		e.closeIfCurrent(pollID)
	})

	slog.Info("poll created", "poll_id", poll.ID, "question", poll.Question, "time_limit", timeLimit)
	return nil
}

// SubmitAnswer records one answer from a joined student. Each participant
// answers at most once per poll; a second submission is rejected, not
// overwritten. Off-list option labels are accepted into the record to
// tolerate client/server option skew, but the aggregator does not count
// them toward any option. When every current roster participant has
// answered, the poll closes immediately.
func (e *Engine) SubmitAnswer(connID, option string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || !e.current.IsActive {
		return ErrNoActivePoll
	}
	participant, ok := e.roster[connID]
	if !ok {
		return ErrUnknownParticipant
	}
	if participant.HasAnswered {
		return ErrDuplicateAnswer
	}

	e.current.Answers = append(e.current.Answers, types.Answer{
		StudentID:   connID,
		StudentName: participant.Name,
		Option:      option,
		AnsweredAt:  e.now(),
	})
	participant.HasAnswered = true

	e.router.ToAll(types.EventPollResults, Aggregate(e.current, len(e.roster)))

	slog.Info("answer submitted", "poll_id", e.current.ID, "conn_id", connID)

	if e.allAnsweredLocked() {
		e.closeLocked()
	}
	return nil
}

// closeIfCurrent closes the poll identified by pollID if it is still the
// active poll. Fired by the auto-close timer; the identity check makes
// stale timers harmless.
func (e *Engine) closeIfCurrent(pollID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.ID != pollID || !e.current.IsActive {
		return
	}
	e.closeLocked()
}

// closeLocked finalizes the active poll: computes the final result against
// the roster at close time, appends the poll to history, announces the
// result to everyone, and returns the machine to the no-active-poll state.
func (e *Engine) closeLocked() {
	poll := e.current
	closedAt := e.now()
	poll.IsActive = false
	poll.ClosedAt = &closedAt

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	result := Aggregate(poll, len(e.roster))

	entry := types.HistoryEntry{Poll: *poll, Results: result}
	entry.Answers = append([]types.Answer(nil), poll.Answers...)
	e.history = append(e.history, entry)

	e.router.ToAll(types.EventPollClosed, result)
	e.current = nil

	slog.Info("poll closed", "poll_id", poll.ID, "total_answers", result.TotalAnswers)
}

func (e *Engine) allAnsweredLocked() bool {
	if len(e.roster) == 0 {
		return false
	}
	for _, p := range e.roster {
		if !p.HasAnswered {
			return false
		}
	}
	return true
}
