package resolver

import "time"

// Budget measures a request's time allowance against a start instant taken
// once at request entry. time.Now carries a monotonic reading, so wall clock
// changes do not affect it.
type Budget struct {
	start time.Time
	total time.Duration
}

// NewBudget starts a budget of total
func NewBudget(total time.Duration) Budget {
	if total < 0 {
		total = 0
	}
	return Budget{start: time.Now(), total: total}
}

// Elapsed returns time spent since the budget started
func (b Budget) Elapsed() time.Duration {
	return time.Since(b.start)
}

// Remaining returns the unspent allowance, never negative
func (b Budget) Remaining() time.Duration {
	if left := b.total - b.Elapsed(); left > 0 {
		return left
	}
	return 0
}

// Deadline is the instant the budget runs out
func (b Budget) Deadline() time.Time {
	return b.start.Add(b.total)
}

// Allows reports whether a stage needing minCost may start. Stages with no
// cost always may.
func (b Budget) Allows(minCost time.Duration) bool {
	if minCost <= 0 {
		return true
	}
	return b.Remaining() > minCost
}
