package live

import "time"

// NYSE regular session: 9:30-16:00 Eastern, Monday through Friday.
// Times are evaluated in the exchange timezone, never host time, so a
// trader process in UTC or PST gates on the same wall clock as the
// exchange.
const (
	marketOpenMinutes  = 9*60 + 30
	marketCloseMinutes = 16 * 60
)

var nyse = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("live: missing tzdata for " + name)
	}
	return loc
}

// IsMarketOpen reports whether the NYSE regular session is open at t.
// Holidays are not modeled; a tick on a holiday is suppressed upstream
// by the broker rejecting the order, not by this predicate.
func IsMarketOpen(t time.Time) bool {
	et := t.In(nyse)

	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := et.Hour()*60 + et.Minute()
	return minutes >= marketOpenMinutes && minutes < marketCloseMinutes
}
