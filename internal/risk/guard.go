// Package risk enforces deployment-level trading limits. The live
// engine consults it before every entry: once a deployment's daily
// loss limit is breached or its position slots are full, new entries
// are blocked until the next trading day or until a slot frees up.
// Exits are never blocked; a limit stops the bleeding, it does not
// trap a losing position.
package risk

import (
	"fmt"
	"sync"
	"time"
)

// Decision is the verdict for one proposed entry.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(format string, args ...interface{}) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Limits are the per-deployment risk settings in force for a tick.
// MaxPositions comes from the strategy spec; DailyLossLimit is the
// deployment row's dollar cutoff, nil when the user set none.
type Limits struct {
	MaxPositions   int
	DailyLossLimit *float64
}

// EntryState is the portfolio snapshot the limits are checked against.
type EntryState struct {
	// OpenPositions counts the deployment's virtual positions.
	OpenPositions int

	// DayStartValue is the virtual portfolio value at the first tick
	// of the current trading day.
	DayStartValue float64

	// PortfolioValue is the current virtual portfolio value.
	PortfolioValue float64
}

// CheckEntry reports whether a new entry is allowed under the limits.
func CheckEntry(limits Limits, state EntryState) Decision {
	if limits.MaxPositions > 0 && state.OpenPositions >= limits.MaxPositions {
		return deny("position limit reached (%d/%d)", state.OpenPositions, limits.MaxPositions)
	}

	if limits.DailyLossLimit != nil && *limits.DailyLossLimit > 0 {
		loss := state.DayStartValue - state.PortfolioValue
		if loss >= *limits.DailyLossLimit {
			return deny("daily loss limit breached ($%.2f lost, limit $%.2f)", loss, *limits.DailyLossLimit)
		}
	}

	return allow()
}

// DayTracker pins the portfolio value observed at the first tick of
// each trading day, the baseline for the daily loss limit. A process
// restart mid-day reseeds from the current value, which can only make
// the limit more permissive for the remainder of that day.
type DayTracker struct {
	mu    sync.Mutex
	day   string
	value float64
}

// DayStart returns the day's baseline portfolio value, seeding it from
// the current value when the day rolls over.
func (t *DayTracker) DayStart(now time.Time, portfolioValue float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := now.Format("2006-01-02")
	if t.day != day {
		t.day = day
		t.value = portfolioValue
	}
	return t.value
}
