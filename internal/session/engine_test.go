package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pollroom/internal/broadcast"
	"pollroom/internal/websocket"
	"pollroom/pkg/types"
)

// fakeConn records delivered events so tests can observe broadcasts without
// a network.
type fakeConn struct {
	id string

	mu     sync.Mutex
	role   string
	closed bool
	events []types.Event
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, role: types.RoleUnknown}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Role() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *fakeConn) SetRole(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, v.(types.Event))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) eventsOfType(eventType string) []types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []types.Event
	for _, ev := range c.events {
		if ev.Type == eventType {
			matched = append(matched, ev)
		}
	}
	return matched
}

func (c *fakeConn) lastEventOfType(eventType string) (types.Event, bool) {
	matched := c.eventsOfType(eventType)
	if len(matched) == 0 {
		return types.Event{}, false
	}
	return matched[len(matched)-1], true
}

type capturedTimer struct {
	duration time.Duration
	fire     func()
}

type testRig struct {
	engine   *Engine
	registry *websocket.Registry
	timers   []capturedTimer
}

func newTestRig(t *testing.T, opts Options) *testRig {
	t.Helper()

	registry := websocket.NewRegistry()
	router := broadcast.NewRouter(registry)
	engine := NewEngine(registry, router, opts)

	rig := &testRig{engine: engine, registry: registry}
	engine.now = func() time.Time {
		return time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	}
	engine.after = func(d time.Duration, f func()) *time.Timer {
		rig.timers = append(rig.timers, capturedTimer{duration: d, fire: f})
		return time.NewTimer(time.Hour)
	}
	return rig
}

func (r *testRig) connect(t *testing.T, id string) *fakeConn {
	t.Helper()
	conn := newFakeConn(id)
	require.NoError(t, r.registry.Register(conn))
	return conn
}

func (r *testRig) joinTeacher(t *testing.T, id string) *fakeConn {
	t.Helper()
	conn := r.connect(t, id)
	r.engine.JoinTeacher(id)
	return conn
}

func (r *testRig) joinStudent(t *testing.T, id, name string) *fakeConn {
	t.Helper()
	conn := r.connect(t, id)
	require.NoError(t, r.engine.JoinStudent(id, name))
	return conn
}

func (r *testRig) createPoll(t *testing.T, teacherID string, question string, options []string, timeLimit int) {
	t.Helper()
	require.NoError(t, r.engine.CreatePoll(teacherID, types.CreatePollRequest{
		Question:  question,
		Options:   options,
		TimeLimit: timeLimit,
	}))
}

func TestJoinStudent_InvalidName(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.connect(t, "s1")

	require.ErrorIs(t, rig.engine.JoinStudent("s1", ""), ErrInvalidName)
	require.ErrorIs(t, rig.engine.JoinStudent("s1", "   "), ErrInvalidName)
	require.Empty(t, rig.engine.Roster())
}

func TestJoinStudent_ReceivesAckAndChatLog(t *testing.T) {
	rig := newTestRig(t, Options{})
	teacher := rig.joinTeacher(t, "t1")
	ana := rig.joinStudent(t, "s1", "Ana")

	joined, ok := ana.lastEventOfType(types.EventStudentJoined)
	require.True(t, ok)
	require.Equal(t, types.StudentJoinedPayload{ID: "s1", Name: "Ana"}, joined.Payload)

	_, ok = ana.lastEventOfType(types.EventChatMessages)
	require.True(t, ok)

	rosterEv, ok := teacher.lastEventOfType(types.EventStudentList)
	require.True(t, ok)
	roster := rosterEv.Payload.([]types.Participant)
	require.Len(t, roster, 1)
	require.Equal(t, "Ana", roster[0].Name)
}

func TestJoinStudent_LateJoinerReceivesActivePoll(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.createPoll(t, "t1", "Pick a color", []string{"Red", "Blue"}, 60)

	late := rig.joinStudent(t, "s2", "Ben")
	pollEv, ok := late.lastEventOfType(types.EventNewPoll)
	require.True(t, ok)
	require.Equal(t, "Pick a color", pollEv.Payload.(*types.Poll).Question)
}

func TestJoinTeacher_DisplacesPreviousTeacherSilently(t *testing.T) {
	rig := newTestRig(t, Options{})
	first := rig.joinTeacher(t, "t1")
	second := rig.joinTeacher(t, "t2")

	require.Equal(t, types.RoleUnknown, first.Role())
	require.Equal(t, types.RoleTeacher, second.Role())
	require.Empty(t, first.eventsOfType(types.EventKicked))

	_, ok := second.lastEventOfType(types.EventPollHistory)
	require.True(t, ok)
	_, ok = second.lastEventOfType(types.EventChatMessages)
	require.True(t, ok)
}

func TestCreatePoll_ResetsAnsweredFlags(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.joinStudent(t, "s2", "Ben")

	rig.createPoll(t, "t1", "Q1", []string{"A", "B"}, 60)
	require.NoError(t, rig.engine.SubmitAnswer("s1", "A"))
	require.NoError(t, rig.engine.SubmitAnswer("s2", "B"))

	// Full participation closed Q1; the next poll starts with clean flags
	// and an empty answer sequence.
	rig.createPoll(t, "t1", "Q2", []string{"C", "D"}, 60)

	poll, ok := rig.engine.CurrentPoll()
	require.True(t, ok)
	require.True(t, poll.IsActive)
	require.Empty(t, poll.Answers)
	for _, p := range rig.engine.Roster() {
		require.False(t, p.HasAnswered)
	}
}

func TestCreatePoll_RejectedWhileActive(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.createPoll(t, "t1", "Q1", []string{"A", "B"}, 60)

	err := rig.engine.CreatePoll("t1", types.CreatePollRequest{
		Question: "Q2",
		Options:  []string{"C", "D"},
	})
	require.ErrorIs(t, err, ErrInvalidPollDefinition)

	poll, ok := rig.engine.CurrentPoll()
	require.True(t, ok)
	require.Equal(t, "Q1", poll.Question)
	require.Empty(t, rig.engine.History())
}

func TestCreatePoll_RequiresTwoUsableOptions(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")

	for _, options := range [][]string{
		nil,
		{"A"},
		{"A", "A"},
		{"A", "  ", ""},
		{" A ", "A"},
	} {
		err := rig.engine.CreatePoll("t1", types.CreatePollRequest{Question: "Q", Options: options})
		require.ErrorIs(t, err, ErrInvalidPollDefinition, "options %v", options)
	}

	_, ok := rig.engine.CurrentPoll()
	require.False(t, ok)
}

func TestCreatePoll_RequiresTeacherRole(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinStudent(t, "s1", "Ana")

	err := rig.engine.CreatePoll("s1", types.CreatePollRequest{Question: "Q", Options: []string{"A", "B"}})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestCreatePoll_DefaultTimeLimit(t *testing.T) {
	rig := newTestRig(t, Options{DefaultTimeLimit: 60})
	rig.joinTeacher(t, "t1")
	rig.createPoll(t, "t1", "Q", []string{"A", "B"}, 0)

	poll, ok := rig.engine.CurrentPoll()
	require.True(t, ok)
	require.Equal(t, 60, poll.TimeLimit)
	require.Len(t, rig.timers, 1)
	require.Equal(t, 60*time.Second, rig.timers[0].duration)
}

func TestSubmitAnswer_NoActivePoll(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinStudent(t, "s1", "Ana")

	require.ErrorIs(t, rig.engine.SubmitAnswer("s1", "A"), ErrNoActivePoll)
}

func TestSubmitAnswer_UnknownParticipant(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.createPoll(t, "t1", "Q", []string{"A", "B"}, 60)

	require.ErrorIs(t, rig.engine.SubmitAnswer("ghost", "A"), ErrUnknownParticipant)
}

func TestSubmitAnswer_DuplicateRejectedNotOverwritten(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.joinStudent(t, "s2", "Ben")
	rig.createPoll(t, "t1", "Q", []string{"A", "B"}, 60)

	require.NoError(t, rig.engine.SubmitAnswer("s1", "A"))
	require.ErrorIs(t, rig.engine.SubmitAnswer("s1", "B"), ErrDuplicateAnswer)

	poll, ok := rig.engine.CurrentPoll()
	require.True(t, ok)
	require.Len(t, poll.Answers, 1)
	require.Equal(t, "A", poll.Answers[0].Option)
}

func TestSubmitAnswer_BroadcastsLiveResultsToEveryone(t *testing.T) {
	rig := newTestRig(t, Options{})
	teacher := rig.joinTeacher(t, "t1")
	ana := rig.joinStudent(t, "s1", "Ana")
	ben := rig.joinStudent(t, "s2", "Ben")
	rig.createPoll(t, "t1", "Q", []string{"A", "B"}, 60)

	require.NoError(t, rig.engine.SubmitAnswer("s1", "A"))

	for _, conn := range []*fakeConn{teacher, ana, ben} {
		ev, ok := conn.lastEventOfType(types.EventPollResults)
		require.True(t, ok, "conn %s missing results", conn.id)
		result := ev.Payload.(*types.PollResult)
		require.Equal(t, 1, result.TotalAnswers)
		require.Equal(t, 1, result.Counts["A"])
	}
}

func TestFullParticipation_ClosesImmediately(t *testing.T) {
	rig := newTestRig(t, Options{})
	teacher := rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.joinStudent(t, "s2", "Ben")
	rig.createPoll(t, "t1", "Q", []string{"A", "B"}, 60)

	require.NoError(t, rig.engine.SubmitAnswer("s1", "A"))
	_, ok := rig.engine.CurrentPoll()
	require.True(t, ok, "poll must stay open until everyone answered")

	require.NoError(t, rig.engine.SubmitAnswer("s2", "B"))
	_, ok = rig.engine.CurrentPoll()
	require.False(t, ok, "poll must close after the last participant answers")

	_, ok = teacher.lastEventOfType(types.EventPollClosed)
	require.True(t, ok)
	require.Len(t, rig.engine.History(), 1)

	// The machine is back in its initial state; a new poll is accepted.
	rig.createPoll(t, "t1", "Q2", []string{"C", "D"}, 60)
}

func TestFullParticipation_LateJoinerKeepsPollOpen(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.createPoll(t, "t1", "Q", []string{"A", "B"}, 60)

	rig.joinStudent(t, "s2", "Ben")
	require.NoError(t, rig.engine.SubmitAnswer("s1", "A"))

	_, ok := rig.engine.CurrentPoll()
	require.True(t, ok, "unanswered late joiner keeps the poll open")
}

func TestTimer_ClosesPollOnExpiry(t *testing.T) {
	rig := newTestRig(t, Options{})
	teacher := rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.createPoll(t, "t1", "Q", []string{"A", "B"}, 30)

	require.Len(t, rig.timers, 1)
	require.Equal(t, 30*time.Second, rig.timers[0].duration, "timer must not fire before the full limit")

	rig.timers[0].fire()

	_, ok := rig.engine.CurrentPoll()
	require.False(t, ok)
	closed, ok := teacher.lastEventOfType(types.EventPollClosed)
	require.True(t, ok)
	require.Equal(t, 0, closed.Payload.(*types.PollResult).TotalAnswers)
}

func TestTimer_StaleTimerDoesNotCloseLaterPoll(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")

	rig.createPoll(t, "t1", "Q1", []string{"A", "B"}, 30)
	require.NoError(t, rig.engine.SubmitAnswer("s1", "A")) // closes Q1 by full participation

	rig.createPoll(t, "t1", "Q2", []string{"C", "D"}, 30)
	require.Len(t, rig.timers, 2)

	// The first poll's timer fires late; the identity check ignores it.
	rig.timers[0].fire()

	poll, ok := rig.engine.CurrentPoll()
	require.True(t, ok)
	require.Equal(t, "Q2", poll.Question)
	require.Len(t, rig.engine.History(), 1)
}

func TestTimer_DoubleFireIsHarmless(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")
	rig.createPoll(t, "t1", "Q", []string{"A", "B"}, 30)

	rig.timers[0].fire()
	rig.timers[0].fire()

	require.Len(t, rig.engine.History(), 1)
}

func TestKick_NotifiesRemovesAndRebroadcasts(t *testing.T) {
	rig := newTestRig(t, Options{})
	teacher := rig.joinTeacher(t, "t1")
	ana := rig.joinStudent(t, "s1", "Ana")
	rig.joinStudent(t, "s2", "Ben")

	require.NoError(t, rig.engine.KickStudent("t1", "s1"))

	_, ok := ana.lastEventOfType(types.EventKicked)
	require.True(t, ok)
	require.True(t, ana.closed)

	rosterEv, ok := teacher.lastEventOfType(types.EventStudentList)
	require.True(t, ok)
	roster := rosterEv.Payload.([]types.Participant)
	require.Len(t, roster, 1)
	require.Equal(t, "Ben", roster[0].Name)
}

func TestKick_UnknownTargetIsNoOp(t *testing.T) {
	rig := newTestRig(t, Options{})
	teacher := rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")

	require.NoError(t, rig.engine.KickStudent("t1", "already-gone"))

	rosterEv, ok := teacher.lastEventOfType(types.EventStudentList)
	require.True(t, ok)
	require.Len(t, rosterEv.Payload.([]types.Participant), 1)
}

func TestKick_RequiresTeacherRole(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinStudent(t, "s1", "Ana")
	rig.joinStudent(t, "s2", "Ben")

	require.ErrorIs(t, rig.engine.KickStudent("s1", "s2"), ErrNotAuthorized)
	require.Len(t, rig.engine.Roster(), 2)
}

func TestKick_UnansweredTargetDoesNotCountAsAnswer(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.joinStudent(t, "s2", "Ben")
	rig.createPoll(t, "t1", "Q", []string{"A", "B"}, 60)

	require.NoError(t, rig.engine.SubmitAnswer("s1", "A"))
	require.NoError(t, rig.engine.KickStudent("t1", "s2"))

	// Ben never answered; his removal must not inject an answer. The poll
	// stays open until the timer fires (the full-participation check only
	// runs on answer submission).
	poll, ok := rig.engine.CurrentPoll()
	require.True(t, ok)
	require.Len(t, poll.Answers, 1)
}

func TestDisconnect_StudentRemovedAndRosterRebroadcast(t *testing.T) {
	rig := newTestRig(t, Options{})
	teacher := rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")

	rig.engine.Disconnect("s1")

	require.Empty(t, rig.engine.Roster())
	rosterEv, ok := teacher.lastEventOfType(types.EventStudentList)
	require.True(t, ok)
	require.Empty(t, rosterEv.Payload.([]types.Participant))

	// Idempotent.
	rig.engine.Disconnect("s1")
}

func TestDisconnect_MidPollKeepsAnswerAndPollRunning(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.joinStudent(t, "s2", "Ben")
	rig.createPoll(t, "t1", "Q", []string{"A", "B"}, 60)

	require.NoError(t, rig.engine.SubmitAnswer("s1", "A"))
	rig.engine.Disconnect("s1")

	poll, ok := rig.engine.CurrentPoll()
	require.True(t, ok)
	require.Len(t, poll.Answers, 1, "recorded answer survives disconnect")
}

func TestPostChat_ResolvesSenderAtSendTime(t *testing.T) {
	rig := newTestRig(t, Options{})
	teacher := rig.joinTeacher(t, "t1")
	ana := rig.joinStudent(t, "s1", "Ana")

	rig.engine.PostChat("t1", "welcome")
	rig.engine.PostChat("s1", "hi")
	rig.engine.PostChat("nobody", "???")

	msgs := rig.engine.ChatMessages()
	require.Len(t, msgs, 3)
	require.Equal(t, "Teacher", msgs[0].Sender)
	require.True(t, msgs[0].IsTeacher)
	require.Equal(t, "Ana", msgs[1].Sender)
	require.False(t, msgs[1].IsTeacher)
	require.Equal(t, "Unknown", msgs[2].Sender)

	// Everyone, sender included, sees each message as it arrives.
	require.Len(t, teacher.eventsOfType(types.EventNewMessage), 3)
	require.Len(t, ana.eventsOfType(types.EventNewMessage), 3)
}

func TestPostChat_HistoryLimitTrimsOldest(t *testing.T) {
	rig := newTestRig(t, Options{ChatHistoryLimit: 2})
	rig.joinStudent(t, "s1", "Ana")

	rig.engine.PostChat("s1", "one")
	rig.engine.PostChat("s1", "two")
	rig.engine.PostChat("s1", "three")

	msgs := rig.engine.ChatMessages()
	require.Len(t, msgs, 2)
	require.Equal(t, "two", msgs[0].Text)
	require.Equal(t, "three", msgs[1].Text)
}

func TestSendHistory_DeliversToRequesterOnly(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.createPoll(t, "t1", "Q", []string{"A", "B"}, 60)
	require.NoError(t, rig.engine.SubmitAnswer("s1", "A")) // closes the poll

	requester := rig.joinStudent(t, "s2", "Ben")
	rig.engine.SendHistory("s2")

	ev, ok := requester.lastEventOfType(types.EventPollHistory)
	require.True(t, ok)
	history := ev.Payload.([]types.HistoryEntry)
	require.Len(t, history, 1)
	require.Equal(t, "Q", history[0].Question)
	require.NotNil(t, history[0].Results)
}
