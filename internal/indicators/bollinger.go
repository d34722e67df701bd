package indicators

import (
	"github.com/cinar/indicator/v2/volatility"
)

// DefaultBollingerPeriod is the conventional 20-bar lookback.
const DefaultBollingerPeriod = 20

// BollingerResult holds the band values for the current bar. Width is the
// band spread as a percentage of the middle band, a volatility proxy
// surfaced in per-day diagnostics.
type BollingerResult struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	Width  float64 `json:"width"`
}

// Bollinger computes Bollinger Bands (period-bar SMA, 2 standard
// deviations) for a symbol's current bar. Needs period bars.
func (e *Engine) Bollinger(symbol string, period int) (BollingerResult, bool) {
	var res BollingerResult
	if period < 2 {
		period = DefaultBollingerPeriod
	}
	closes := e.closes[symbol]
	if len(closes) < period {
		return res, false
	}

	bands := volatility.NewBollingerBandsWithPeriod[float64](period)
	lowerCh, middleCh, upperCh := bands.Compute(seriesChan(closes))

	// The three output channels advance in lockstep; drain them together.
	var lower, middle, upper []float64
	for {
		l, lok := <-lowerCh
		m, mok := <-middleCh
		u, uok := <-upperCh
		if !lok || !mok || !uok {
			break
		}
		lower = append(lower, l)
		middle = append(middle, m)
		upper = append(upper, u)
	}
	if len(middle) == 0 {
		return res, false
	}

	last := len(middle) - 1
	res.Upper = upper[last]
	res.Middle = middle[last]
	res.Lower = lower[last]
	if res.Middle != 0 {
		res.Width = ((res.Upper - res.Lower) / res.Middle) * 100
	}
	return res, true
}
