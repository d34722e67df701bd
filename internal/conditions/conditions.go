// Package conditions evaluates a strategy's entry and exit rules against
// one (symbol, date) of market state. Evaluators are pure: the same spec
// and environment always produce the same verdict, which is what keeps
// backtests reproducible. Dispatch is by tagged signal kind; an unknown
// kind is surfaced as a warning and never silently matches.
package conditions

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/broker"
	"github.com/ajitpratap0/stockfunk/internal/indicators"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
)

// SentimentLookup resolves the per-day sentiment scalar for a symbol.
// ok=false means no data for that date; evaluators must treat absence as
// "no signal", never as zero.
type SentimentLookup func(symbol string, date time.Time) (float64, bool)

// Env is the read-only evaluation context for one symbol on one bar.
// Engine must already hold the bar history up to and including the
// current bar; Position is nil when flat.
type Env struct {
	Symbol    string
	Date      time.Time
	Close     float64
	Engine    *indicators.Engine
	Sentiment SentimentLookup
	Position  *broker.Position
}

// News labels follow the classic lexicon convention: a compound score
// beyond ±0.1 is directional, anything between is neutral.
const newsLabelThreshold = 0.1

// Default thresholds used when a spec omits the parameter.
const (
	defaultRSIThreshold       = 30.0
	defaultSentimentThreshold = 0.1
	defaultSMAFastPeriod      = 10
	defaultSMASlowPeriod      = 20
	defaultBreakoutPeriod     = 20
)

// EvaluateEntry reports whether the strategy's entry condition matches
// the environment, with a human-readable reason either way.
func EvaluateEntry(s *strategy.Spec, env *Env) (bool, string) {
	switch s.EntrySignal {
	case strategy.SignalRSI:
		return evalRSIEntry(s, env)
	case strategy.SignalMACD:
		return evalMACDEntry(s, env)
	case strategy.SignalSMA:
		return evalSMAEntry(s, env)
	case strategy.SignalSentiment:
		return evalSentimentEntry(s, env)
	case strategy.SignalNews:
		return evalNewsEntry(s, env)
	case strategy.SignalPrice:
		return evalPriceEntry(s, env)
	case strategy.SignalCustom:
		return false, "custom entry conditions are declarative and have no built-in evaluator"
	default:
		log.Warn().
			Str("signal", string(s.EntrySignal)).
			Str("symbol", env.Symbol).
			Msg("Unknown entry condition kind, emitting no signal")
		return false, fmt.Sprintf("unknown condition kind %q", s.EntrySignal)
	}
}

func evalRSIEntry(s *strategy.Spec, env *Env) (bool, string) {
	period := int(s.Param("period", indicators.DefaultRSIPeriod))
	threshold := s.Param("threshold", defaultRSIThreshold)
	comparison := s.ParamString("comparison", "below")

	v, ok := env.Engine.RSI(env.Symbol, period)
	if !ok {
		return false, fmt.Sprintf("RSI(%d) warming up", period)
	}

	switch comparison {
	case "below":
		if v < threshold {
			return true, fmt.Sprintf("RSI(%d) %.2f below %.2f", period, v, threshold)
		}
	case "above":
		if v > threshold {
			return true, fmt.Sprintf("RSI(%d) %.2f above %.2f", period, v, threshold)
		}
	default:
		log.Warn().
			Str("comparison", comparison).
			Str("symbol", env.Symbol).
			Msg("Unknown RSI comparison, emitting no signal")
		return false, fmt.Sprintf("unknown comparison %q", comparison)
	}
	return false, fmt.Sprintf("RSI(%d) %.2f not %s %.2f", period, v, comparison, threshold)
}

func evalMACDEntry(s *strategy.Spec, env *Env) (bool, string) {
	fast := int(s.Param("fast_period", indicators.DefaultMACDFast))
	slow := int(s.Param("slow_period", indicators.DefaultMACDSlow))
	signal := int(s.Param("signal_period", indicators.DefaultMACDSignal))
	want := s.ParamString("crossover", "bullish")

	res, ok := env.Engine.MACD(env.Symbol, fast, slow, signal)
	if !ok {
		return false, fmt.Sprintf("MACD(%d,%d,%d) warming up", fast, slow, signal)
	}

	if string(res.Crossover) == want {
		return true, fmt.Sprintf("MACD %s crossover (histogram %.4f)", want, res.Histogram)
	}
	return false, fmt.Sprintf("no MACD %s crossover", want)
}

func evalSMAEntry(s *strategy.Spec, env *Env) (bool, string) {
	fast := int(s.Param("fast_period", defaultSMAFastPeriod))
	slow := int(s.Param("slow_period", defaultSMASlowPeriod))

	res, ok := env.Engine.SMACross(env.Symbol, fast, slow)
	if !ok {
		return false, fmt.Sprintf("SMA(%d/%d) warming up", fast, slow)
	}

	if res.CrossedAbove {
		return true, fmt.Sprintf("SMA(%d) %.2f crossed above SMA(%d) %.2f", fast, res.Fast, slow, res.Slow)
	}
	return false, fmt.Sprintf("no SMA(%d/%d) cross", fast, slow)
}

func evalSentimentEntry(s *strategy.Spec, env *Env) (bool, string) {
	v, ok := lookupSentiment(env)
	if !ok {
		return false, "no sentiment data"
	}

	threshold := s.Param("threshold", defaultSentimentThreshold)
	comparison := s.ParamString("comparison", "above")

	switch comparison {
	case "above":
		if v > threshold {
			return true, fmt.Sprintf("sentiment %.3f above %.3f", v, threshold)
		}
	case "below":
		if v < threshold {
			return true, fmt.Sprintf("sentiment %.3f below %.3f", v, threshold)
		}
	default:
		log.Warn().
			Str("comparison", comparison).
			Str("symbol", env.Symbol).
			Msg("Unknown sentiment comparison, emitting no signal")
		return false, fmt.Sprintf("unknown comparison %q", comparison)
	}
	return false, fmt.Sprintf("sentiment %.3f not %s %.3f", v, comparison, threshold)
}

func evalNewsEntry(s *strategy.Spec, env *Env) (bool, string) {
	v, ok := lookupSentiment(env)
	if !ok {
		return false, "no news data"
	}

	label := newsLabel(v)
	want := s.ParamString("label", "positive")
	if label == want {
		return true, fmt.Sprintf("%s news sentiment %.3f", label, v)
	}
	return false, fmt.Sprintf("news sentiment %.3f is %s, want %s", v, label, want)
}

func evalPriceEntry(s *strategy.Spec, env *Env) (bool, string) {
	trigger := s.ParamString("trigger", "any")

	switch trigger {
	case "any":
		return true, "price trigger"
	case "breakout":
		period := int(s.Param("breakout_period", defaultBreakoutPeriod))
		high, ok := env.Engine.PriorHigh(env.Symbol, period)
		if !ok {
			return false, fmt.Sprintf("breakout(%d) warming up", period)
		}
		if env.Close > high {
			return true, fmt.Sprintf("close %.2f broke %d-bar high %.2f", env.Close, period, high)
		}
		return false, fmt.Sprintf("close %.2f under %d-bar high %.2f", env.Close, period, high)
	default:
		log.Warn().
			Str("trigger", trigger).
			Str("symbol", env.Symbol).
			Msg("Unknown price trigger, emitting no signal")
		return false, fmt.Sprintf("unknown price trigger %q", trigger)
	}
}

// lookupSentiment resolves the env's sentiment scalar, treating a
// missing lookup the same as missing data.
func lookupSentiment(env *Env) (float64, bool) {
	if env.Sentiment == nil {
		return 0, false
	}
	return env.Sentiment(env.Symbol, env.Date)
}

// newsLabel folds a compound score into positive/negative/neutral.
func newsLabel(v float64) string {
	switch {
	case v > newsLabelThreshold:
		return "positive"
	case v < -newsLabelThreshold:
		return "negative"
	default:
		return "neutral"
	}
}
