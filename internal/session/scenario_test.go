package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pollroom/pkg/types"
)

// Two students answer different options; the poll closes by full
// participation with a 50/50 split, no timer needed.
func TestScenario_FullParticipationSplit(t *testing.T) {
	rig := newTestRig(t, Options{})
	teacher := rig.joinTeacher(t, "t1")
	rig.createPoll(t, "t1", "Pick a color", []string{"Red", "Blue"}, 60)

	rig.joinStudent(t, "s1", "Ana")
	rig.joinStudent(t, "s2", "Ben")

	require.NoError(t, rig.engine.SubmitAnswer("s1", "Red"))
	require.NoError(t, rig.engine.SubmitAnswer("s2", "Blue"))

	closed, ok := teacher.lastEventOfType(types.EventPollClosed)
	require.True(t, ok, "poll must close without waiting for the timer")
	result := closed.Payload.(*types.PollResult)

	require.Equal(t, map[string]int{"Red": 1, "Blue": 1}, result.Counts)
	require.Equal(t, map[string]int{"Red": 50, "Blue": 50}, result.Percentages)
	require.Equal(t, 2, result.TotalAnswers)
	require.Equal(t, 2, result.TotalParticipants)

	_, ok = rig.engine.CurrentPoll()
	require.False(t, ok)
}

// Nobody answers; the poll closes when its 10-second timer fires, with zero
// totals and zero percentages across the board.
func TestScenario_TimerCloseWithNoAnswers(t *testing.T) {
	rig := newTestRig(t, Options{})
	teacher := rig.joinTeacher(t, "t1")
	rig.joinStudent(t, "s1", "Ana")
	rig.createPoll(t, "t1", "Anyone there?", []string{"Yes", "No"}, 10)

	require.Len(t, rig.timers, 1)
	require.Equal(t, 10*time.Second, rig.timers[0].duration)

	_, ok := teacher.lastEventOfType(types.EventPollClosed)
	require.False(t, ok, "poll must not close before the timer fires")

	rig.timers[0].fire()

	closed, ok := teacher.lastEventOfType(types.EventPollClosed)
	require.True(t, ok)
	result := closed.Payload.(*types.PollResult)
	require.Equal(t, 0, result.TotalAnswers)
	for _, opt := range []string{"Yes", "No"} {
		require.Equal(t, 0, result.Percentages[opt])
	}
}

// A student chats, disconnects, and rejoins under a new connection; the new
// connection receives the full prior chat history.
func TestScenario_ChatHistorySurvivesRejoin(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.joinStudent(t, "s1", "Ana")
	rig.engine.PostChat("s1", "hello")
	rig.engine.Disconnect("s1")

	rejoined := rig.joinStudent(t, "s2", "Ana")

	ev, ok := rejoined.lastEventOfType(types.EventChatMessages)
	require.True(t, ok)
	msgs := ev.Payload.([]types.ChatMessage)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Text)
	require.Equal(t, "Ana", msgs[0].Sender)
}
