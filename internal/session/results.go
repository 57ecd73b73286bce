package session

import (
	"math"

	"pollroom/pkg/types"
)

// Aggregate computes a poll's result against the current roster size.
//
// Only answers whose label matches a declared option increment a counter;
// answers with unrecognized labels (client/server option-list skew) still
// count toward TotalAnswers, so sum(Counts) <= TotalAnswers. Percentages
// round half away from zero and are all zero when nobody answered.
func Aggregate(poll *types.Poll, rosterSize int) *types.PollResult {
	counts := make(map[string]int, len(poll.Options))
	for _, opt := range poll.Options {
		counts[opt] = 0
	}

	for _, answer := range poll.Answers {
		if _, declared := counts[answer.Option]; declared {
			counts[answer.Option]++
		}
	}

	totalAnswers := len(poll.Answers)
	percentages := make(map[string]int, len(poll.Options))
	for _, opt := range poll.Options {
		if totalAnswers > 0 {
			percentages[opt] = int(math.Round(float64(counts[opt]) / float64(totalAnswers) * 100))
		} else {
			percentages[opt] = 0
		}
	}

	options := make([]string, len(poll.Options))
	copy(options, poll.Options)

	return &types.PollResult{
		PollID:            poll.ID,
		Question:          poll.Question,
		Options:           options,
		Counts:            counts,
		Percentages:       percentages,
		TotalAnswers:      totalAnswers,
		TotalParticipants: rosterSize,
	}
}
