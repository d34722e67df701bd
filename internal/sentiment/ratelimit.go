package sentiment

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces calls to an external provider so its published cap is
// never exceeded. Calls are spread evenly across the window, which keeps
// every rolling window of that length at or under the cap; a caller that
// arrives too early sleeps until the next slot opens.
type Pacer struct {
	lim *rate.Limiter
}

// NewPacer allows calls requests per window. A non-positive cap or window
// disables pacing entirely.
func NewPacer(calls int, window time.Duration) *Pacer {
	if calls <= 0 || window <= 0 {
		return &Pacer{}
	}
	return &Pacer{lim: rate.NewLimiter(rate.Every(window/time.Duration(calls)), 1)}
}

// Wait blocks until the next call is allowed, or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.lim == nil {
		return nil
	}
	return p.lim.Wait(ctx)
}
