package game

import "github.com/classpulse/backend/internal/models"

// Round is one open/close cycle of a question. A respondent's later
// submission overwrites their earlier one within the same round.
type Round struct {
	answers map[string]string // respondent id -> answer
}

func newRound() *Round {
	return &Round{answers: make(map[string]string)}
}

func (r *Round) record(respondent, answer string) {
	r.answers[respondent] = answer
}

// Total is the number of distinct respondents who answered in this round.
func (r *Round) Total() int {
	return len(r.answers)
}

// Tally maps each answer option to the number of respondents who picked it.
type Tally map[string]int

// tally counts the round's answers, zero-filling every option of the
// question so the display layer always sees the full option set.
func (r *Round) tally(q models.Question) Tally {
	t := make(Tally, len(q.Options))
	for _, opt := range q.Options {
		t[opt] = 0
	}
	for _, answer := range r.answers {
		t[answer]++
	}
	return t
}

// Percent renders a count as a percentage of total. A zero total yields 0
// rather than dividing by zero; clients rely on this rounding convention.
func Percent(count, total int) float64 {
	if total < 1 {
		total = 1
	}
	return float64(count) / float64(total) * 100
}
