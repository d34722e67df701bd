// Performance metrics calculation for backtest results.
package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// tradingDaysPerYear annualizes daily return statistics.
const tradingDaysPerYear = 252

// computeSummary derives the headline metrics from the equity curve
// and the closed round-trips.
func computeSummary(initialCapital float64, history []PortfolioPoint, trades []TradeRecord) Summary {
	s := Summary{
		InitialCapital: initialCapital,
		FinalEquity:    initialCapital,
		TradingDays:    len(history),
	}
	if len(history) > 0 {
		s.StartDate = history[0].Date
		s.EndDate = history[len(history)-1].Date
		s.FinalEquity = history[len(history)-1].PortfolioValue
	}
	if initialCapital > 0 {
		s.TotalReturnPct = (s.FinalEquity/initialCapital - 1) * 100
	}

	s.BuyHoldReturnPct = buyHoldReturn(history)
	s.SharpeRatio = sharpeRatio(history)
	s.MaxDrawdownPct = maxDrawdown(history)
	fillTradeStats(&s, trades)
	return s
}

// buyHoldReturn is the benchmark's close-to-close return over the run.
func buyHoldReturn(history []PortfolioPoint) float64 {
	var first, last float64
	for _, p := range history {
		if p.Price <= 0 {
			continue
		}
		if first == 0 {
			first = p.Price
		}
		last = p.Price
	}
	if first == 0 {
		return 0
	}
	return (last/first - 1) * 100
}

// sharpeRatio annualizes the mean over standard deviation of daily
// portfolio returns by the square root of the trading year.
func sharpeRatio(history []PortfolioPoint) float64 {
	returns := dailyReturns(history)
	if len(returns) < 2 {
		return 0
	}

	mean := stat.Mean(returns, nil)
	std := stat.StdDev(returns, nil)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

func dailyReturns(history []PortfolioPoint) []float64 {
	var returns []float64
	for i := 1; i < len(history); i++ {
		prev := history[i-1].PortfolioValue
		if prev <= 0 {
			continue
		}
		returns = append(returns, history[i].PortfolioValue/prev-1)
	}
	return returns
}

// maxDrawdown is the largest peak-to-trough decline of portfolio
// value, as a positive percentage.
func maxDrawdown(history []PortfolioPoint) float64 {
	var peak, worst float64
	for _, p := range history {
		if p.PortfolioValue > peak {
			peak = p.PortfolioValue
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.PortfolioValue) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

// fillTradeStats computes win/loss statistics over closed round-trips.
// Zero-P&L trades count as losses; the profit factor stays 0 when no
// trade lost money.
func fillTradeStats(s *Summary, trades []TradeRecord) {
	s.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var sumWin, sumLoss, daysHeld float64
	for _, tr := range trades {
		daysHeld += float64(tr.DaysHeld)
		if tr.PnL > 0 {
			s.WinningTrades++
			sumWin += tr.PnL
			if tr.PnL > s.LargestWin {
				s.LargestWin = tr.PnL
			}
		} else {
			s.LosingTrades++
			sumLoss += tr.PnL
			if tr.PnL < s.LargestLoss {
				s.LargestLoss = tr.PnL
			}
		}
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	if s.WinningTrades > 0 {
		s.AverageWin = sumWin / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = sumLoss / float64(s.LosingTrades)
	}
	s.AvgDaysHeld = daysHeld / float64(s.TotalTrades)
	if sumLoss != 0 {
		s.ProfitFactor = sumWin / math.Abs(sumLoss)
	}
}

// analyzeExits builds the exit-reason histogram and the mean trade
// P&L percentage per reason.
func analyzeExits(trades []TradeRecord) ExitAnalysis {
	analysis := ExitAnalysis{
		Reasons:   make(map[string]int),
		AvgPnLPct: make(map[string]float64),
	}

	sums := make(map[string]float64)
	for _, tr := range trades {
		analysis.Reasons[tr.ExitReason]++
		sums[tr.ExitReason] += tr.PnLPct
	}
	for reason, count := range analysis.Reasons {
		analysis.AvgPnLPct[reason] = sums[reason] / float64(count)
	}
	return analysis
}
