// Package strategy defines the normalized trading-strategy spec consumed by
// the backtest core and the live engine. Raw specs arrive as untrusted maps
// (LLM output, API payloads, files on disk); Normalize is the single entry
// point that coerces, scales, and validates them. Every downstream component
// reads the normalized form only.
package strategy

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
)

// SchemaVersion is the current strategy schema version
const SchemaVersion = "1.0"

// SignalType identifies the entry-signal family a strategy trades on.
type SignalType string

const (
	SignalRSI       SignalType = "rsi"
	SignalMACD      SignalType = "macd"
	SignalSMA       SignalType = "sma"
	SignalSentiment SignalType = "sentiment"
	SignalNews      SignalType = "news"
	SignalPrice     SignalType = "price"
	SignalCustom    SignalType = "custom"
)

// ConvertSignalType coerces a raw signal string to a known SignalType.
// Unknown values fall through to custom so an exotic LLM label never
// silently matches a built-in evaluator.
func ConvertSignalType(s string) SignalType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rsi":
		return SignalRSI
	case "macd":
		return SignalMACD
	case "sma", "ma", "moving_average":
		return SignalSMA
	case "sentiment", "social", "social_sentiment":
		return SignalSentiment
	case "news":
		return SignalNews
	case "price", "price_action":
		return SignalPrice
	case "custom", "":
		return SignalCustom
	default:
		log.Warn().Str("signal", s).Msg("Unknown entry signal, treating as custom")
		return SignalCustom
	}
}

// AllocationMethod controls how capital is split across assets.
type AllocationMethod string

const (
	AllocationEqual             AllocationMethod = "equal"
	AllocationSignalWeighted    AllocationMethod = "signal_weighted"
	AllocationDynamicTrending   AllocationMethod = "dynamic_trending"
	AllocationMarketCapWeighted AllocationMethod = "market_cap_weighted"
)

// ConvertAllocationMethod coerces a raw allocation string, falling
// through to equal-weight.
func ConvertAllocationMethod(s string) AllocationMethod {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equal", "equal_weight", "equal_weighted", "":
		return AllocationEqual
	case "signal_weighted", "signal":
		return AllocationSignalWeighted
	case "dynamic_trending", "dynamic", "trending":
		return AllocationDynamicTrending
	case "market_cap_weighted", "market_cap", "cap_weighted":
		return AllocationMarketCapWeighted
	default:
		log.Warn().Str("allocation", s).Msg("Unknown allocation method, using equal weight")
		return AllocationEqual
	}
}

// KnownDataSources lists the sentiment/news providers a strategy may
// request. Source names are strict: data for one source is never
// substituted from another.
var KnownDataSources = []string{"reddit", "twitter", "news"}

// Spec is a validated trading strategy. All percentage-like fields are
// stored as decimal fractions (0.05 = 5%); Normalize guarantees this.
type Spec struct {
	// Schema version for compatibility
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`

	// User-facing name
	Name string `yaml:"name" json:"name"`

	// Optional free-text description
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Symbols the strategy trades, upper-case
	Assets []string `yaml:"assets" json:"assets"`

	// Entry signal family
	EntrySignal SignalType `yaml:"entry_signal" json:"entry_signal"`

	// Entry condition with its parameter bag
	EntryConditions EntryConditions `yaml:"entry_conditions" json:"entry_conditions"`

	// Exit rules
	Exit ExitRules `yaml:"exit" json:"exit"`

	// Position sizing and allocation
	Risk RiskRules `yaml:"risk" json:"risk"`

	// Sentiment/news providers the strategy consumes
	DataSources []string `yaml:"data_sources,omitempty" json:"data_sources,omitempty"`
}

// EntryConditions holds the signal kind plus its semantic parameter bag.
// Parameter keys depend on the signal: rsi uses threshold/comparison/period,
// macd uses crossover, sma uses fast_period/slow_period, sentiment uses
// threshold/source, price uses trigger.
type EntryConditions struct {
	Signal     SignalType             `yaml:"signal" json:"signal"`
	Parameters map[string]interface{} `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// ExitRules configures take-profit and stop-loss behavior. TakeProfit and
// StopLoss are decimal P&L fractions; the pct-shares fields control what
// fraction of the position each exit sells.
type ExitRules struct {
	TakeProfit          float64 `yaml:"take_profit,omitempty" json:"take_profit,omitempty"`
	StopLoss            float64 `yaml:"stop_loss,omitempty" json:"stop_loss,omitempty"`
	TakeProfitPctShares float64 `yaml:"take_profit_pct_shares" json:"take_profit_pct_shares"`
	StopLossPctShares   float64 `yaml:"stop_loss_pct_shares" json:"stop_loss_pct_shares"`
	CustomExit          string  `yaml:"custom_exit,omitempty" json:"custom_exit,omitempty"`
}

// RiskRules configures position sizing.
type RiskRules struct {
	PositionSize float64          `yaml:"position_size" json:"position_size"`
	MaxPositions int              `yaml:"max_positions" json:"max_positions"`
	Allocation   AllocationMethod `yaml:"allocation" json:"allocation"`
}

// NewDefaultSpec returns a strategy with sensible defaults: RSI(14)
// mean-reversion entry, 5% take-profit, 2% stop-loss, full-position
// exits, 10% position size.
func NewDefaultSpec(name string) *Spec {
	return &Spec{
		SchemaVersion: SchemaVersion,
		Name:          name,
		Assets:        []string{},
		EntrySignal:   SignalRSI,
		EntryConditions: EntryConditions{
			Signal: SignalRSI,
			Parameters: map[string]interface{}{
				"threshold":  30.0,
				"comparison": "below",
				"period":     14,
			},
		},
		Exit: ExitRules{
			TakeProfit:          0.05,
			StopLoss:            0.02,
			TakeProfitPctShares: 1.0,
			StopLossPctShares:   1.0,
		},
		Risk: RiskRules{
			PositionSize: 0.1,
			MaxPositions: 3,
			Allocation:   AllocationEqual,
		},
	}
}

// IsPartialExit reports whether take-profit sells only a fraction of the
// position (0 < take_profit_pct_shares < 1).
func (s *Spec) IsPartialExit() bool {
	return s.Exit.TakeProfitPctShares > 0 && s.Exit.TakeProfitPctShares < 1
}

// HasTrailingStop reports whether the strategy is a two-phase exit: after
// a partial take-profit the stop trails the remaining shares. Active only
// when a stop-loss is configured and the take-profit sells less than the
// full position.
func (s *Spec) HasTrailingStop() bool {
	return s.Exit.StopLoss > 0 && s.Exit.TakeProfitPctShares < 1
}

// UsesSentiment reports whether the entry signal consumes sentiment or
// news data.
func (s *Spec) UsesSentiment() bool {
	return s.EntrySignal == SignalSentiment || s.EntrySignal == SignalNews
}

// Sources returns the data sources the strategy consumes, defaulting to
// news for sentiment strategies that do not name one.
func (s *Spec) Sources() []string {
	if len(s.DataSources) > 0 {
		return s.DataSources
	}
	if src, ok := s.EntryConditions.Parameters["source"].(string); ok && src != "" {
		return []string{strings.ToLower(src)}
	}
	if s.UsesSentiment() {
		return []string{"news"}
	}
	return nil
}

// Param returns a named entry parameter as float64, with a default when
// absent or non-numeric.
func (s *Spec) Param(key string, def float64) float64 {
	if s.EntryConditions.Parameters == nil {
		return def
	}
	if v, ok := toFloat(s.EntryConditions.Parameters[key]); ok {
		return v
	}
	return def
}

// ParamString returns a named entry parameter as a lower-cased string.
func (s *Spec) ParamString(key string, def string) string {
	if s.EntryConditions.Parameters == nil {
		return def
	}
	if v, ok := s.EntryConditions.Parameters[key].(string); ok && v != "" {
		return strings.ToLower(v)
	}
	return def
}

// DeepCopy returns an independent copy of the spec via a JSON round-trip.
func (s *Spec) DeepCopy() (*Spec, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out Spec
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
