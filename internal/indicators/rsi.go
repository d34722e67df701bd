package indicators

import (
	"github.com/cinar/indicator/v2/momentum"
)

// DefaultRSIPeriod is the lookback used when a strategy does not
// configure one.
const DefaultRSIPeriod = 14

// rsiWarmupValue is reported while the window is too short for a real
// RSI. Neutral by construction: it satisfies neither an oversold nor an
// overbought comparison at conventional thresholds.
const rsiWarmupValue = 50.0

// RSI returns the relative strength index for a symbol's current bar.
// It needs period+1 bars; until then it returns the neutral warm-up
// value with ok=false, and callers that gate trades on RSI must treat
// the indicator as unavailable rather than inspect the value.
func (e *Engine) RSI(symbol string, period int) (value float64, ok bool) {
	if period < 1 {
		period = DefaultRSIPeriod
	}
	closes := e.closes[symbol]
	if len(closes) < period+1 {
		return rsiWarmupValue, false
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	values := collect(rsi.Compute(seriesChan(closes)))
	if len(values) == 0 {
		return rsiWarmupValue, false
	}
	return values[len(values)-1], true
}
