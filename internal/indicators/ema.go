package indicators

import (
	"github.com/cinar/indicator/v2/trend"
)

// EMA returns the exponential moving average of the closes with the
// given span. Needs at least span bars.
func (e *Engine) EMA(symbol string, span int) (value float64, ok bool) {
	if span < 1 {
		return 0, false
	}
	closes := e.closes[symbol]
	if len(closes) < span {
		return 0, false
	}

	ema := trend.NewEmaWithPeriod[float64](span)
	values := collect(ema.Compute(seriesChan(closes)))
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}
