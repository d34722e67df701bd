package indicators

import (
	"github.com/cinar/indicator/v2/trend"
)

// SMACrossResult reports the relationship between a fast and a slow
// simple moving average on the current bar.
type SMACrossResult struct {
	Fast         float64 `json:"fast"`
	Slow         float64 `json:"slow"`
	CrossedAbove bool    `json:"crossed_above"` // fast crossed above slow on this bar
	CrossedBelow bool    `json:"crossed_below"` // fast crossed below slow on this bar
}

// SMA returns the simple moving average of the last period closes.
func (e *Engine) SMA(symbol string, period int) (value float64, ok bool) {
	if period < 1 {
		return 0, false
	}
	closes := e.closes[symbol]
	if len(closes) < period {
		return 0, false
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	values := collect(sma.Compute(seriesChan(closes)))
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

// SMACross computes a fast and a slow SMA and detects whether the fast
// average crossed the slow one on the current bar. A cross is decided
// from the last two aligned values of both series, so it needs slow+1
// bars of history.
func (e *Engine) SMACross(symbol string, fastPeriod, slowPeriod int) (SMACrossResult, bool) {
	var res SMACrossResult
	if fastPeriod < 1 || slowPeriod < 1 || fastPeriod >= slowPeriod {
		return res, false
	}
	closes := e.closes[symbol]
	if len(closes) < slowPeriod+1 {
		return res, false
	}

	fast := collect(trend.NewSmaWithPeriod[float64](fastPeriod).Compute(seriesChan(closes)))
	slow := collect(trend.NewSmaWithPeriod[float64](slowPeriod).Compute(seriesChan(closes)))
	if len(fast) < 2 || len(slow) < 2 {
		return res, false
	}

	// Both series end on the current bar; align from the tail.
	curFast, prevFast := fast[len(fast)-1], fast[len(fast)-2]
	curSlow, prevSlow := slow[len(slow)-1], slow[len(slow)-2]

	res.Fast = curFast
	res.Slow = curSlow
	res.CrossedAbove = prevFast <= prevSlow && curFast > curSlow
	res.CrossedBelow = prevFast >= prevSlow && curFast < curSlow
	return res, true
}
