package marketdata

import (
	"context"
	"time"
)

// Provider serves historical bars and current prices.
type Provider interface {
	// GetBars returns bars for the symbol in [start, end], oldest first.
	GetBars(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]Bar, error)

	// GetCurrentPrice returns the latest traded price for the symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}
