package conditions

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/indicators"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
)

// Exit reasons. These are the keys of the backtest's exit-reason
// histogram and the exit_reason column of recorded trades.
const (
	ReasonStopLoss          = "stop_loss"
	ReasonTakeProfit        = "take_profit"
	ReasonPartialTakeProfit = "partial_take_profit"
	ReasonTrailingStop      = "trailing_stop"
	ReasonSignalExit        = "signal_exit"
	ReasonEndOfPeriod       = "end_of_period"
)

// ExitState tracks what has already happened to an open position. After
// a partial take-profit the take-profit arm is disarmed for good: the
// trailing stop (and signal exits) govern the remainder, so a position
// can never bleed out through repeated fractional sells.
type ExitState struct {
	EntryPrice       float64
	EntryShares      float64
	PartialExitDone  bool
	HighSincePartial float64
}

// MarkPartialExit disarms the take-profit and seeds the trailing high.
func (st *ExitState) MarkPartialExit(price float64) {
	st.PartialExitDone = true
	st.HighSincePartial = price
}

// Observe advances the trailing high. Call once per bar after a partial
// exit, before evaluating exits for that bar.
func (st *ExitState) Observe(price float64) {
	if st.PartialExitDone && price > st.HighSincePartial {
		st.HighSincePartial = price
	}
}

// ExitDecision is the evaluator's verdict for one bar. Quantity 0 means
// the full remaining position; PartialExit tells the caller to
// MarkPartialExit once the sale fills.
type ExitDecision struct {
	Exit        bool
	Quantity    float64
	Reason      string
	Detail      string
	PartialExit bool
}

// EvaluateExit walks the exit chain for an open position: custom exit,
// then stop-loss, then take-profit, then the signal-based exit derived
// from the entry condition. At most one exit fires per bar. After a
// partial exit only the trailing stop and signal exits remain armed.
func EvaluateExit(s *strategy.Spec, env *Env, st *ExitState) ExitDecision {
	if env.Position == nil || env.Position.Quantity <= 0 {
		return ExitDecision{}
	}

	entry := st.EntryPrice
	if entry <= 0 {
		entry = env.Position.AvgEntryPrice
	}
	var pnlPct float64
	if entry > 0 {
		pnlPct = (env.Close - entry) / entry
	}

	// Custom exits are declarative only. They are never executed, so the
	// conservative verdict is no match.
	if s.Exit.CustomExit != "" {
		log.Debug().
			Str("symbol", env.Symbol).
			Str("custom_exit", s.Exit.CustomExit).
			Msg("Custom exit is declarative only, not evaluated")
	}

	if st.PartialExitDone {
		if s.Exit.StopLoss > 0 {
			stopLevel := st.HighSincePartial * (1 - s.Exit.StopLoss)
			if env.Close <= stopLevel {
				return ExitDecision{
					Exit:   true,
					Reason: ReasonTrailingStop,
					Detail: fmt.Sprintf("close %.2f fell below trailing stop %.2f (high %.2f)", env.Close, stopLevel, st.HighSincePartial),
				}
			}
		}
		if matched, reason := EvaluateSignalExit(s, env); matched {
			return ExitDecision{Exit: true, Reason: ReasonSignalExit, Detail: reason}
		}
		return ExitDecision{}
	}

	if s.Exit.StopLoss > 0 && pnlPct <= -s.Exit.StopLoss {
		return stopLossDecision(s, env, st, pnlPct)
	}

	if s.Exit.TakeProfit > 0 && pnlPct >= s.Exit.TakeProfit {
		return takeProfitDecision(s, env, st, pnlPct)
	}

	if matched, reason := EvaluateSignalExit(s, env); matched {
		return ExitDecision{Exit: true, Reason: ReasonSignalExit, Detail: reason}
	}

	return ExitDecision{}
}

func stopLossDecision(s *strategy.Spec, env *Env, st *ExitState, pnlPct float64) ExitDecision {
	detail := fmt.Sprintf("P&L %.2f%% breached stop-loss %.2f%%", pnlPct*100, s.Exit.StopLoss*100)

	pct := s.Exit.StopLossPctShares
	if pct <= 0 || pct >= 1 {
		return ExitDecision{Exit: true, Reason: ReasonStopLoss, Detail: detail}
	}

	shares := fractionalShares(st.EntryShares, pct)
	if shares >= env.Position.Quantity {
		return ExitDecision{Exit: true, Reason: ReasonStopLoss, Detail: detail}
	}
	return ExitDecision{
		Exit:        true,
		Quantity:    shares,
		Reason:      ReasonStopLoss,
		Detail:      detail,
		PartialExit: true,
	}
}

func takeProfitDecision(s *strategy.Spec, env *Env, st *ExitState, pnlPct float64) ExitDecision {
	detail := fmt.Sprintf("P&L %.2f%% reached take-profit %.2f%%", pnlPct*100, s.Exit.TakeProfit*100)

	pct := s.Exit.TakeProfitPctShares
	if pct <= 0 || pct >= 1 {
		return ExitDecision{Exit: true, Reason: ReasonTakeProfit, Detail: detail}
	}

	shares := fractionalShares(st.EntryShares, pct)
	if shares >= env.Position.Quantity {
		return ExitDecision{Exit: true, Reason: ReasonTakeProfit, Detail: detail}
	}
	return ExitDecision{
		Exit:        true,
		Quantity:    shares,
		Reason:      ReasonPartialTakeProfit,
		Detail:      detail,
		PartialExit: true,
	}
}

// fractionalShares rounds a fraction of the entry size to whole shares,
// selling at least one.
func fractionalShares(entryShares, pct float64) float64 {
	shares := math.Round(entryShares * pct)
	if shares < 1 {
		shares = 1
	}
	return shares
}

// EvaluateSignalExit checks the sell side of the entry condition: RSI
// beyond its sell threshold, the opposite MACD crossover, a bearish SMA
// cross, sentiment under its sell threshold, or negative news. Families
// without a natural reverse (price, custom) never signal-exit.
func EvaluateSignalExit(s *strategy.Spec, env *Env) (bool, string) {
	switch s.EntrySignal {
	case strategy.SignalRSI:
		return rsiSignalExit(s, env)
	case strategy.SignalMACD:
		return macdSignalExit(s, env)
	case strategy.SignalSMA:
		return smaSignalExit(s, env)
	case strategy.SignalSentiment:
		return sentimentSignalExit(s, env)
	case strategy.SignalNews:
		return newsSignalExit(s, env)
	default:
		return false, ""
	}
}

func rsiSignalExit(s *strategy.Spec, env *Env) (bool, string) {
	sellThreshold := s.Param("sell_threshold", 0)
	if sellThreshold <= 0 {
		return false, ""
	}

	period := int(s.Param("period", indicators.DefaultRSIPeriod))
	v, ok := env.Engine.RSI(env.Symbol, period)
	if !ok {
		return false, ""
	}

	// The exit relation is the inverse of the entry: an oversold entry
	// sells on the way up, a momentum entry sells on the way down.
	if s.ParamString("comparison", "below") == "below" {
		if v > sellThreshold {
			return true, fmt.Sprintf("RSI(%d) %.2f above sell threshold %.2f", period, v, sellThreshold)
		}
		return false, ""
	}
	if v < sellThreshold {
		return true, fmt.Sprintf("RSI(%d) %.2f below sell threshold %.2f", period, v, sellThreshold)
	}
	return false, ""
}

func macdSignalExit(s *strategy.Spec, env *Env) (bool, string) {
	fast := int(s.Param("fast_period", indicators.DefaultMACDFast))
	slow := int(s.Param("slow_period", indicators.DefaultMACDSlow))
	signal := int(s.Param("signal_period", indicators.DefaultMACDSignal))

	res, ok := env.Engine.MACD(env.Symbol, fast, slow, signal)
	if !ok {
		return false, ""
	}

	opposite := indicators.MACDCrossBearish
	if s.ParamString("crossover", "bullish") == "bearish" {
		opposite = indicators.MACDCrossBullish
	}

	if res.Crossover == opposite {
		return true, fmt.Sprintf("MACD %s crossover", opposite)
	}
	return false, ""
}

func smaSignalExit(s *strategy.Spec, env *Env) (bool, string) {
	fast := int(s.Param("fast_period", defaultSMAFastPeriod))
	slow := int(s.Param("slow_period", defaultSMASlowPeriod))

	res, ok := env.Engine.SMACross(env.Symbol, fast, slow)
	if !ok {
		return false, ""
	}

	if res.CrossedBelow {
		return true, fmt.Sprintf("SMA(%d) %.2f crossed below SMA(%d) %.2f", fast, res.Fast, slow, res.Slow)
	}
	return false, ""
}

func sentimentSignalExit(s *strategy.Spec, env *Env) (bool, string) {
	sellThreshold, hasSell := sentimentSellThreshold(s)
	if !hasSell {
		return false, ""
	}

	v, ok := lookupSentiment(env)
	if !ok {
		return false, ""
	}

	if v < sellThreshold {
		return true, fmt.Sprintf("sentiment %.3f below sell threshold %.3f", v, sellThreshold)
	}
	return false, ""
}

// sentimentSellThreshold reads the optional sell threshold; zero is a
// legitimate value for sentiment, so presence is checked explicitly.
func sentimentSellThreshold(s *strategy.Spec) (float64, bool) {
	if s.EntryConditions.Parameters == nil {
		return 0, false
	}
	raw, ok := s.EntryConditions.Parameters["sell_threshold"]
	if !ok {
		return 0, false
	}
	v, ok := raw.(float64)
	return v, ok
}

func newsSignalExit(s *strategy.Spec, env *Env) (bool, string) {
	v, ok := lookupSentiment(env)
	if !ok {
		return false, ""
	}

	if newsLabel(v) == "negative" {
		return true, fmt.Sprintf("negative news sentiment %.3f", v)
	}
	return false, ""
}
