package indicators

import (
	"github.com/cinar/indicator/v2/trend"
)

// Default MACD parameters, the conventional 12/26/9 configuration.
const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACDCrossover labels the signal-line event on the current bar.
type MACDCrossover string

const (
	MACDCrossNone    MACDCrossover = "none"
	MACDCrossBullish MACDCrossover = "bullish" // MACD line crossed above the signal line
	MACDCrossBearish MACDCrossover = "bearish" // MACD line crossed below the signal line
)

// MACDResult holds the MACD line, signal line, histogram, and the
// crossover event for the current bar.
type MACDResult struct {
	MACD      float64       `json:"macd"`
	Signal    float64       `json:"signal"`
	Histogram float64       `json:"histogram"`
	Crossover MACDCrossover `json:"crossover"`
}

// MACD computes the MACD line, its signal line, and the histogram for a
// symbol's current bar. Zero or negative parameters fall back to the
// 12/26/9 defaults. Crossovers are decided from the histogram's sign
// change between the previous and current bar, so the warm-up is
// slow+signal bars.
func (e *Engine) MACD(symbol string, fast, slow, signal int) (MACDResult, bool) {
	var res MACDResult
	if fast < 1 {
		fast = DefaultMACDFast
	}
	if slow < 1 {
		slow = DefaultMACDSlow
	}
	if signal < 1 {
		signal = DefaultMACDSignal
	}
	if fast >= slow {
		return res, false
	}

	closes := e.closes[symbol]
	minRequired := slow + signal
	if len(closes) < minRequired {
		return res, false
	}

	macd := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdCh, signalCh := macd.Compute(seriesChan(closes))

	// The two output channels advance in lockstep; drain them together.
	var macdVals, signalVals []float64
	for m := range macdCh {
		s, open := <-signalCh
		if !open {
			break
		}
		macdVals = append(macdVals, m)
		signalVals = append(signalVals, s)
	}
	if len(macdVals) < 2 {
		return res, false
	}

	last := len(macdVals) - 1
	res.MACD = macdVals[last]
	res.Signal = signalVals[last]
	res.Histogram = res.MACD - res.Signal

	prevHist := macdVals[last-1] - signalVals[last-1]
	switch {
	case prevHist <= 0 && res.Histogram > 0:
		res.Crossover = MACDCrossBullish
	case prevHist >= 0 && res.Histogram < 0:
		res.Crossover = MACDCrossBearish
	default:
		res.Crossover = MACDCrossNone
	}
	return res, true
}
