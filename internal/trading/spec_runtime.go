package trading

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/broker"
	"github.com/ajitpratap0/stockfunk/internal/conditions"
	"github.com/ajitpratap0/stockfunk/internal/indicators"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
)

// SpecRuntime evaluates a normalized strategy spec bar by bar. It owns
// the indicator engine and the per-symbol exit state; the broker is
// consulted read-only for positions. One runtime serves one backtest
// run or one deployment and is not safe for concurrent use.
type SpecRuntime struct {
	spec      *strategy.Spec
	broker    broker.Broker
	sentiment conditions.SentimentLookup

	engine *indicators.Engine
	exits  map[string]*conditions.ExitState
}

// NewSpecRuntime creates a runtime for a normalized spec. The sentiment
// lookup may be nil when the strategy consumes no sentiment data;
// evaluators then see every sentiment query as missing.
func NewSpecRuntime(spec *strategy.Spec, b broker.Broker, sentiment conditions.SentimentLookup) *SpecRuntime {
	return &SpecRuntime{
		spec:      spec,
		broker:    b,
		sentiment: sentiment,
	}
}

// Initialize resets the indicator engine and exit state. Called once
// before the first GenerateSignals; calling it again restarts the
// runtime from a clean slate.
func (r *SpecRuntime) Initialize(ctx context.Context) error {
	if r.spec == nil {
		return fmt.Errorf("trading: nil strategy spec")
	}
	if r.broker == nil {
		return fmt.Errorf("trading: nil broker")
	}

	r.engine = indicators.NewEngine()
	r.exits = make(map[string]*conditions.ExitState)

	log.Debug().
		Str("strategy", r.spec.Name).
		Str("signal", string(r.spec.EntrySignal)).
		Int("assets", len(r.spec.Assets)).
		Msg("Strategy runtime initialized")
	return nil
}

// GenerateSignals feeds the current bars into the indicator engine and
// evaluates the strategy per symbol: exits for held positions, entries
// for flat ones. Symbols are processed in lexical order so identical
// inputs always yield identical signal lists.
func (r *SpecRuntime) GenerateSignals(ctx context.Context, bars map[string]marketdata.Bar) ([]Signal, error) {
	if r.engine == nil {
		if err := r.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	symbols := make([]string, 0, len(bars))
	for symbol := range bars {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	// Feed every bar before evaluating so all evaluators see the same
	// snapshot of the step.
	for _, symbol := range symbols {
		bar := bars[symbol]
		r.engine.Update(symbol, bar.Close, bar.High)
	}

	var signals []Signal
	for _, symbol := range symbols {
		bar := bars[symbol]

		pos, err := r.broker.GetPosition(ctx, symbol)
		if err != nil && !errors.Is(err, broker.ErrNoPosition) {
			return nil, err
		}

		st := r.reconcileExitState(symbol, pos)

		env := &conditions.Env{
			Symbol:    symbol,
			Date:      bar.Timestamp,
			Close:     bar.Close,
			Engine:    r.engine,
			Sentiment: r.sentiment,
			Position:  pos,
		}

		if pos != nil && pos.Quantity > 0 {
			st.Observe(bar.Close)
			if sig, ok := r.exitSignal(symbol, bar, env, st, pos); ok {
				signals = append(signals, sig)
			}
			continue
		}

		if matched, reason := conditions.EvaluateEntry(r.spec, env); matched {
			signals = append(signals, Signal{
				Symbol: symbol,
				Action: ActionBuy,
				Reason: reason,
			})
		}
	}
	return signals, nil
}

// exitSignal evaluates the exit chain for a held position and converts
// the decision into a sell signal. A partial take-profit is marked in
// the exit state as soon as the signal is emitted; in the simulator a
// sell of held shares always fills, and re-arming on a failed live
// order would risk the cascading-exit pattern the state exists to
// prevent.
func (r *SpecRuntime) exitSignal(symbol string, bar marketdata.Bar, env *conditions.Env, st *conditions.ExitState, pos *broker.Position) (Signal, bool) {
	decision := conditions.EvaluateExit(r.spec, env, st)
	if !decision.Exit {
		return Signal{}, false
	}

	qty := decision.Quantity
	if qty <= 0 || qty > pos.Quantity {
		qty = pos.Quantity
	}
	if decision.PartialExit {
		st.MarkPartialExit(bar.Close)
	}

	return Signal{
		Symbol:     symbol,
		Action:     ActionSell,
		Quantity:   qty,
		Reason:     decision.Detail,
		ExitReason: decision.Reason,
	}, true
}

// reconcileExitState keeps the per-symbol exit state in step with the
// broker: a freshly opened position gets state seeded from its entry,
// and a closed position's state is dropped so the next entry starts
// clean.
func (r *SpecRuntime) reconcileExitState(symbol string, pos *broker.Position) *conditions.ExitState {
	if pos == nil || pos.Quantity <= 0 {
		delete(r.exits, symbol)
		return nil
	}

	st, ok := r.exits[symbol]
	if !ok {
		st = &conditions.ExitState{
			EntryPrice:  pos.AvgEntryPrice,
			EntryShares: pos.Quantity,
		}
		r.exits[symbol] = st
	}
	return st
}

// Indicators exposes the runtime's indicator engine for read-only
// diagnostics, such as the backtest's per-day indicator rows. The
// returned engine reflects all bars fed so far.
func (r *SpecRuntime) Indicators() *indicators.Engine {
	return r.engine
}

// ExitState returns a copy of the exit state for a symbol, if the
// runtime is tracking one.
func (r *SpecRuntime) ExitState(symbol string) (conditions.ExitState, bool) {
	st, ok := r.exits[symbol]
	if !ok {
		return conditions.ExitState{}, false
	}
	return *st, true
}

// StaticSentiment builds a sentiment lookup over pre-resolved scores,
// keyed symbol → date ("2006-01-02") → score. Dates absent from the
// map report no data, which evaluators treat as "no signal".
func StaticSentiment(scores map[string]map[string]float64) conditions.SentimentLookup {
	return func(symbol string, date time.Time) (float64, bool) {
		days, ok := scores[symbol]
		if !ok {
			return 0, false
		}
		v, ok := days[date.Format("2006-01-02")]
		return v, ok
	}
}
