// Performance Metrics Unit Tests
package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// HELPERS
// ============================================================================

func equityCurve(values ...float64) []PortfolioPoint {
	points := make([]PortfolioPoint, len(values))
	for i, v := range values {
		points[i] = PortfolioPoint{
			Date:           day0.AddDate(0, 0, i).Format(dayFormat),
			PortfolioValue: v,
			Cash:           v,
		}
	}
	return points
}

func trade(pnl, pnlPct float64, daysHeld int, reason string) TradeRecord {
	return TradeRecord{
		Symbol:     "AAPL",
		PnL:        pnl,
		PnLPct:     pnlPct,
		DaysHeld:   daysHeld,
		ExitReason: reason,
	}
}

// ============================================================================
// SUMMARY
// ============================================================================

func TestComputeSummary_EmptyHistory(t *testing.T) {
	s := computeSummary(10_000, nil, nil)
	assert.Equal(t, 10_000.0, s.InitialCapital)
	assert.Equal(t, 10_000.0, s.FinalEquity, "no history means flat equity")
	assert.Zero(t, s.TotalReturnPct)
	assert.Zero(t, s.TotalTrades)
}

func TestComputeSummary_ReturnAndDates(t *testing.T) {
	s := computeSummary(10_000, equityCurve(10_000, 10_500, 11_000), nil)

	assert.Equal(t, "2024-08-01", s.StartDate)
	assert.Equal(t, "2024-08-03", s.EndDate)
	assert.Equal(t, 3, s.TradingDays)
	assert.InDelta(t, 11_000.0, s.FinalEquity, 1e-9)
	assert.InDelta(t, 10.0, s.TotalReturnPct, 1e-9)
}

// ============================================================================
// BUY AND HOLD
// ============================================================================

func TestBuyHoldReturn(t *testing.T) {
	history := equityCurve(10_000, 10_000, 10_000)
	history[0].Price = 100
	history[1].Price = 105
	history[2].Price = 110

	assert.InDelta(t, 10.0, buyHoldReturn(history), 1e-9)
}

func TestBuyHoldReturn_SkipsDaysWithoutBenchmarkPrice(t *testing.T) {
	// The benchmark may start trading after the window opens; days with
	// no price must not count as price zero.
	history := equityCurve(10_000, 10_000, 10_000)
	history[1].Price = 100
	history[2].Price = 108

	assert.InDelta(t, 8.0, buyHoldReturn(history), 1e-9)
}

func TestBuyHoldReturn_NoPrices(t *testing.T) {
	assert.Zero(t, buyHoldReturn(equityCurve(10_000, 10_100)))
}

// ============================================================================
// SHARPE RATIO
// ============================================================================

func TestSharpeRatio_ConstantEquityIsZero(t *testing.T) {
	assert.Zero(t, sharpeRatio(equityCurve(10_000, 10_000, 10_000)))
}

func TestSharpeRatio_TooFewPoints(t *testing.T) {
	assert.Zero(t, sharpeRatio(equityCurve(10_000)))
	assert.Zero(t, sharpeRatio(equityCurve(10_000, 10_100)), "one return is not a distribution")
}

func TestSharpeRatio_AnnualizedSign(t *testing.T) {
	up := sharpeRatio(equityCurve(10_000, 10_100, 10_150, 10_300, 10_320))
	down := sharpeRatio(equityCurve(10_000, 9_900, 9_850, 9_700, 9_680))

	assert.Positive(t, up)
	assert.Negative(t, down)
	assert.InDelta(t, up, -down, 1.0, "mirror-image paths give near-mirror ratios")
}

func TestSharpeRatio_MatchesHandComputation(t *testing.T) {
	history := equityCurve(10_000, 10_200, 10_100)
	returns := []float64{0.02, 10_100.0/10_200.0 - 1}

	mean := (returns[0] + returns[1]) / 2
	variance := (math.Pow(returns[0]-mean, 2) + math.Pow(returns[1]-mean, 2)) / 1 // sample, n-1
	want := mean / math.Sqrt(variance) * math.Sqrt(252)

	assert.InDelta(t, want, sharpeRatio(history), 1e-9)
}

// ============================================================================
// MAX DRAWDOWN
// ============================================================================

func TestMaxDrawdown_MonotonicRiseIsZero(t *testing.T) {
	assert.Zero(t, maxDrawdown(equityCurve(10_000, 10_500, 11_000)))
}

func TestMaxDrawdown_PeakToTrough(t *testing.T) {
	// Peak 12,000 then trough 9,000: 25% drawdown, despite the recovery.
	dd := maxDrawdown(equityCurve(10_000, 12_000, 9_000, 11_500))
	assert.InDelta(t, 25.0, dd, 1e-9)
}

func TestMaxDrawdown_UsesWorstPeak(t *testing.T) {
	// Two drawdowns: 10% off the first peak, then 20% off the higher
	// second peak. The worst one wins.
	dd := maxDrawdown(equityCurve(10_000, 9_000, 12_000, 9_600))
	assert.InDelta(t, 20.0, dd, 1e-9)
}

// ============================================================================
// TRADE STATISTICS
// ============================================================================

func TestFillTradeStats_WinsAndLosses(t *testing.T) {
	trades := []TradeRecord{
		trade(500, 5, 2, "take_profit"),
		trade(300, 3, 4, "take_profit"),
		trade(-200, -2, 1, "stop_loss"),
		trade(0, 0, 3, "end_of_period"), // zero P&L counts as a loss
	}

	var s Summary
	fillTradeStats(&s, trades)

	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 2, s.LosingTrades)
	assert.InDelta(t, 50.0, s.WinRate, 1e-9)
	assert.InDelta(t, 400.0, s.AverageWin, 1e-9)
	assert.InDelta(t, -100.0, s.AverageLoss, 1e-9)
	assert.InDelta(t, 500.0, s.LargestWin, 1e-9)
	assert.InDelta(t, -200.0, s.LargestLoss, 1e-9)
	assert.InDelta(t, 2.5, s.AvgDaysHeld, 1e-9)
	assert.InDelta(t, 4.0, s.ProfitFactor, 1e-9) // 800 / |-200|
}

func TestFillTradeStats_NoLosersZeroProfitFactor(t *testing.T) {
	var s Summary
	fillTradeStats(&s, []TradeRecord{trade(100, 1, 1, "take_profit")})

	assert.Equal(t, 1, s.WinningTrades)
	assert.Zero(t, s.LosingTrades)
	assert.Zero(t, s.ProfitFactor, "profit factor stays 0 when nothing lost")
	assert.InDelta(t, 100.0, s.WinRate, 1e-9)
}

func TestFillTradeStats_NoTrades(t *testing.T) {
	var s Summary
	fillTradeStats(&s, nil)
	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.WinRate)
}

// ============================================================================
// EXIT ANALYSIS
// ============================================================================

func TestAnalyzeExits_HistogramAndMeans(t *testing.T) {
	trades := []TradeRecord{
		trade(500, 5, 2, "take_profit"),
		trade(300, 3, 1, "take_profit"),
		trade(-200, -2, 1, "stop_loss"),
	}

	analysis := analyzeExits(trades)

	require.Equal(t, map[string]int{"take_profit": 2, "stop_loss": 1}, analysis.Reasons)
	assert.InDelta(t, 4.0, analysis.AvgPnLPct["take_profit"], 1e-9)
	assert.InDelta(t, -2.0, analysis.AvgPnLPct["stop_loss"], 1e-9)
}

func TestAnalyzeExits_Empty(t *testing.T) {
	analysis := analyzeExits(nil)
	assert.Empty(t, analysis.Reasons)
	assert.Empty(t, analysis.AvgPnLPct)
}
