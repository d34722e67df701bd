// Package trading turns normalized strategy specs into trading signals
// and signals into broker orders. The Runtime interface is the strategy
// execution contract; SpecRuntime is the built-in implementation that
// evaluates declarative entry/exit conditions. Position sizing and
// signal execution are free functions over the broker abstraction, so
// execution policy composes with any Runtime.
package trading

import (
	"context"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// Action is the kind of trading instruction a signal carries.
type Action string

const (
	ActionBuy       Action = "buy"
	ActionSell      Action = "sell"
	ActionHold      Action = "hold"
	ActionRebalance Action = "rebalance"
)

// Signal is one trading instruction for one symbol. Quantity 0 defers
// to the default sizer. ExitReason is set on sell signals only and
// names which exit rule fired; Reason is the human-readable
// explanation either way.
type Signal struct {
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Quantity   float64 `json:"quantity,omitempty"`
	Reason     string  `json:"reason"`
	ExitReason string  `json:"exit_reason,omitempty"`
}

// Runtime is the strategy execution contract: configure once, then
// convert each step's bars into signals. Implementations own their
// data history and indicator state; GenerateSignals must be
// deterministic for a given bar sequence.
type Runtime interface {
	// Initialize prepares internal state. Called once before the first
	// GenerateSignals.
	Initialize(ctx context.Context) error

	// GenerateSignals consumes the current bar for each symbol and
	// returns the strategy's signals for this step.
	GenerateSignals(ctx context.Context, bars map[string]marketdata.Bar) ([]Signal, error)
}
