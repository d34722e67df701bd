// Package marketdata fetches historical bars and current prices for US
// equities. The Provider interface is the only surface the rest of the
// system sees; the Alpaca implementation and the Redis caching wrapper
// both satisfy it.
package marketdata

import (
	"fmt"
	"time"
)

// Bar is one OHLCV aggregate. Bars within a series are ordered by
// strictly increasing Timestamp.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Timeframe identifies a bar aggregation interval. The minute and hour
// values line up with deployment execution frequencies.
type Timeframe string

const (
	TimeframeMin1  Timeframe = "1m"
	TimeframeMin5  Timeframe = "5m"
	TimeframeMin15 Timeframe = "15m"
	TimeframeMin30 Timeframe = "30m"
	TimeframeHour  Timeframe = "1h"
	TimeframeDay   Timeframe = "1d"
)

// Valid reports whether the timeframe is one of the supported intervals.
func (t Timeframe) Valid() bool {
	switch t {
	case TimeframeMin1, TimeframeMin5, TimeframeMin15, TimeframeMin30, TimeframeHour, TimeframeDay:
		return true
	}
	return false
}

// UpstreamDataError reports a market-data fetch failure for one symbol.
// Multi-symbol operations skip the failed symbol and continue; callers
// that need the symbol can match on this type.
type UpstreamDataError struct {
	Symbol string
	Source string
	Err    error
}

func (e *UpstreamDataError) Error() string {
	return fmt.Sprintf("market data unavailable for %s from %s: %v", e.Symbol, e.Source, e.Err)
}

func (e *UpstreamDataError) Unwrap() error {
	return e.Err
}
