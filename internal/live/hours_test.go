package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		open bool
	}{
		{"monday mid-session", time.Date(2026, 3, 2, 10, 0, 0, 0, nyse), true},
		{"monday before open", time.Date(2026, 3, 2, 9, 29, 0, 0, nyse), false},
		{"monday at the bell", time.Date(2026, 3, 2, 9, 30, 0, 0, nyse), true},
		{"monday at close", time.Date(2026, 3, 2, 16, 0, 0, 0, nyse), false},
		{"friday last minute", time.Date(2026, 3, 6, 15, 59, 0, 0, nyse), true},
		{"saturday", time.Date(2026, 3, 7, 12, 0, 0, 0, nyse), false},
		{"sunday", time.Date(2026, 3, 8, 12, 0, 0, 0, nyse), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.open, IsMarketOpen(tc.t))
		})
	}
}

func TestIsMarketOpenConvertsToExchangeTime(t *testing.T) {
	// 18:00 UTC on an EST Monday is 13:00 in New York: open, even
	// though 18:00 is past the close on the host's clock.
	assert.True(t, IsMarketOpen(time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)))

	// 22:00 UTC the same day is 17:00 in New York: closed.
	assert.False(t, IsMarketOpen(time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)))

	// A west-coast wall clock before its own 9:30 can still be inside
	// the session.
	la, err := time.LoadLocation("America/Los_Angeles")
	if err == nil {
		assert.True(t, IsMarketOpen(time.Date(2026, 3, 2, 7, 0, 0, 0, la)))
	}
}
