package trading

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stockfunk/internal/broker"
	"github.com/ajitpratap0/stockfunk/internal/conditions"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

var testStart = time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

// dayBar builds a bar for the given trading day offset. High tracks the
// close unless a breakout fixture overrides it.
func dayBar(symbol string, day int, close float64) marketdata.Bar {
	return marketdata.Bar{
		Symbol:    symbol,
		Timestamp: testStart.AddDate(0, 0, day),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1000,
	}
}

// rsiSpec returns a normalized RSI mean-reversion strategy with a short
// period so fixtures stay small.
func rsiSpec(assets ...string) *strategy.Spec {
	s := strategy.NewDefaultSpec("rsi-test")
	s.Assets = assets
	s.EntryConditions.Parameters = map[string]interface{}{
		"threshold":  30.0,
		"comparison": "below",
		"period":     2,
	}
	return s
}

// feed runs one GenerateSignals step for a single-symbol bar.
func feed(t *testing.T, r *SpecRuntime, bar marketdata.Bar) []Signal {
	t.Helper()
	signals, err := r.GenerateSignals(context.Background(), map[string]marketdata.Bar{bar.Symbol: bar})
	require.NoError(t, err)
	return signals
}

// ============================================================================
// ENTRY SIGNALS
// ============================================================================

func TestSpecRuntime_EntryAfterWarmup(t *testing.T) {
	b := broker.NewPaperBroker(100_000)
	r := NewSpecRuntime(rsiSpec("AAPL"), b, nil)
	require.NoError(t, r.Initialize(context.Background()))

	// Declining closes push RSI(2) to 0 once the warm-up completes.
	signals := feed(t, r, dayBar("AAPL", 0, 100))
	assert.Empty(t, signals, "insufficient data must not produce a signal")

	signals = feed(t, r, dayBar("AAPL", 1, 99))
	assert.Empty(t, signals, "still inside warm-up")

	signals = feed(t, r, dayBar("AAPL", 2, 98))
	require.Len(t, signals, 1)
	assert.Equal(t, ActionBuy, signals[0].Action)
	assert.Equal(t, "AAPL", signals[0].Symbol)
	assert.NotEmpty(t, signals[0].Reason)
	assert.Zero(t, signals[0].Quantity, "buy quantity defers to the sizer")
}

func TestSpecRuntime_NoEntryWhileHoldingPosition(t *testing.T) {
	b := broker.NewPaperBroker(100_000)
	b.SetMarketPrice("AAPL", 98)
	_, err := b.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol: "AAPL", Side: broker.OrderSideBuy, Type: broker.OrderTypeMarket, Quantity: 10,
	})
	require.NoError(t, err)

	r := NewSpecRuntime(rsiSpec("AAPL"), b, nil)
	require.NoError(t, r.Initialize(context.Background()))

	feed(t, r, dayBar("AAPL", 0, 100))
	feed(t, r, dayBar("AAPL", 1, 99))

	// Entry condition matches, but the held position routes evaluation
	// to the exit chain instead.
	signals := feed(t, r, dayBar("AAPL", 2, 98))
	for _, sig := range signals {
		assert.NotEqual(t, ActionBuy, sig.Action)
	}
}

func TestSpecRuntime_SignalsSortedBySymbol(t *testing.T) {
	b := broker.NewPaperBroker(100_000)
	r := NewSpecRuntime(rsiSpec("MSFT", "AAPL"), b, nil)
	require.NoError(t, r.Initialize(context.Background()))

	step := func(day int, close float64) []Signal {
		bars := map[string]marketdata.Bar{
			"MSFT": dayBar("MSFT", day, close),
			"AAPL": dayBar("AAPL", day, close),
		}
		signals, err := r.GenerateSignals(context.Background(), bars)
		require.NoError(t, err)
		return signals
	}

	step(0, 100)
	step(1, 99)
	signals := step(2, 98)

	require.Len(t, signals, 2)
	assert.Equal(t, "AAPL", signals[0].Symbol)
	assert.Equal(t, "MSFT", signals[1].Symbol)
}

// ============================================================================
// EXIT SIGNALS AND STATE
// ============================================================================

func TestSpecRuntime_StopLossExitForHeldPosition(t *testing.T) {
	b := broker.NewPaperBroker(100_000)
	b.SetMarketPrice("AAPL", 100)
	_, err := b.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol: "AAPL", Side: broker.OrderSideBuy, Type: broker.OrderTypeMarket, Quantity: 100,
	})
	require.NoError(t, err)

	r := NewSpecRuntime(rsiSpec("AAPL"), b, nil)
	require.NoError(t, r.Initialize(context.Background()))

	// Default spec: stop_loss 0.02. A 3% drop breaches it.
	signals := feed(t, r, dayBar("AAPL", 0, 97))
	require.Len(t, signals, 1)
	assert.Equal(t, ActionSell, signals[0].Action)
	assert.Equal(t, conditions.ReasonStopLoss, signals[0].ExitReason)
	assert.Equal(t, 100.0, signals[0].Quantity)
}

func TestSpecRuntime_PartialExitThenTrailingStop(t *testing.T) {
	ctx := context.Background()
	b := broker.NewPaperBroker(100_000)
	b.SetMarketPrice("AAPL", 100)
	_, err := b.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: "AAPL", Side: broker.OrderSideBuy, Type: broker.OrderTypeMarket, Quantity: 100,
	})
	require.NoError(t, err)

	spec := rsiSpec("AAPL")
	spec.Exit.TakeProfit = 0.05
	spec.Exit.TakeProfitPctShares = 0.5
	spec.Exit.StopLoss = 0.02

	r := NewSpecRuntime(spec, b, nil)
	require.NoError(t, r.Initialize(ctx))

	step := func(day int, close float64) []Signal {
		b.SetMarketPrice("AAPL", close)
		signals := feed(t, r, dayBar("AAPL", day, close))
		_, err := ExecuteSignals(ctx, b, spec, signals)
		require.NoError(t, err)
		return signals
	}

	// +6% fires the partial take-profit on half the entry shares.
	signals := step(0, 106)
	require.Len(t, signals, 1)
	assert.Equal(t, conditions.ReasonPartialTakeProfit, signals[0].ExitReason)
	assert.Equal(t, 50.0, signals[0].Quantity)

	st, ok := r.ExitState("AAPL")
	require.True(t, ok)
	assert.True(t, st.PartialExitDone)
	assert.Equal(t, 106.0, st.HighSincePartial)

	// Higher high: no second take-profit, trailing high advances.
	signals = step(1, 107)
	assert.Empty(t, signals)
	st, _ = r.ExitState("AAPL")
	assert.Equal(t, 107.0, st.HighSincePartial)

	// 98 is below 107 * 0.98: the trailing stop closes the remainder.
	signals = step(2, 98)
	require.Len(t, signals, 1)
	assert.Equal(t, conditions.ReasonTrailingStop, signals[0].ExitReason)
	assert.Equal(t, 50.0, signals[0].Quantity)

	// Position gone, no third sell on the next bar.
	signals = step(3, 90)
	for _, sig := range signals {
		assert.NotEqual(t, ActionSell, sig.Action)
	}
}

func TestSpecRuntime_ExitStateResetsAfterClose(t *testing.T) {
	ctx := context.Background()
	b := broker.NewPaperBroker(100_000)
	b.SetMarketPrice("AAPL", 100)
	_, err := b.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: "AAPL", Side: broker.OrderSideBuy, Type: broker.OrderTypeMarket, Quantity: 10,
	})
	require.NoError(t, err)

	r := NewSpecRuntime(rsiSpec("AAPL"), b, nil)
	require.NoError(t, r.Initialize(ctx))

	feed(t, r, dayBar("AAPL", 0, 100))
	_, ok := r.ExitState("AAPL")
	assert.True(t, ok, "held position seeds exit state")

	// Close out of band; the next step drops the stale state.
	_, err = b.ClosePosition(ctx, "AAPL")
	require.NoError(t, err)

	feed(t, r, dayBar("AAPL", 1, 100))
	_, ok = r.ExitState("AAPL")
	assert.False(t, ok, "flat symbol keeps no exit state")
}

func TestSpecRuntime_InitializeRequiresSpecAndBroker(t *testing.T) {
	r := NewSpecRuntime(nil, broker.NewPaperBroker(1000), nil)
	assert.Error(t, r.Initialize(context.Background()))

	r = NewSpecRuntime(rsiSpec("AAPL"), nil, nil)
	assert.Error(t, r.Initialize(context.Background()))
}

// ============================================================================
// SENTIMENT LOOKUP
// ============================================================================

func TestStaticSentiment(t *testing.T) {
	lookup := StaticSentiment(map[string]map[string]float64{
		"AAPL": {"2024-08-01": 0.42},
	})

	v, ok := lookup("AAPL", testStart)
	require.True(t, ok)
	assert.Equal(t, 0.42, v)

	_, ok = lookup("AAPL", testStart.AddDate(0, 0, 1))
	assert.False(t, ok, "absent date reports no data")

	_, ok = lookup("MSFT", testStart)
	assert.False(t, ok, "absent symbol reports no data")
}
