package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// ============================================================================
// GRID GENERATION
// ============================================================================

func TestGenerateCombinations_CartesianProduct(t *testing.T) {
	opt := NewGridSearchOptimizer(priceSpec(0.05, 0.02, 1.0), []Parameter{
		{Name: "take_profit", Values: []float64{0.03, 0.05, 0.08}},
		{Name: "stop_loss", Values: []float64{0.01, 0.02}},
	}, nil, 10_000)

	combos := opt.generateCombinations()
	require.Len(t, combos, 6)

	// Declaration order expands outer-first: the grid is deterministic.
	assert.Equal(t, ParameterSet{"take_profit": 0.03, "stop_loss": 0.01}, combos[0])
	assert.Equal(t, ParameterSet{"take_profit": 0.08, "stop_loss": 0.02}, combos[5])
}

func TestGenerateCombinations_NoParams(t *testing.T) {
	opt := NewGridSearchOptimizer(priceSpec(0.05, 0.02, 1.0), nil, nil, 10_000)
	combos := opt.generateCombinations()
	require.Len(t, combos, 1, "empty grid still evaluates the base spec")
	assert.Empty(t, combos[0])
}

// ============================================================================
// PARAMETER APPLICATION
// ============================================================================

func TestParameterSet_ApplyMapsKnownNames(t *testing.T) {
	base := priceSpec(0.05, 0.02, 1.0)
	ps := ParameterSet{
		"take_profit":   0.08,
		"stop_loss":     0.03,
		"position_size": 0.5,
		"threshold":     25.0,
	}

	tuned, err := ps.apply(base)
	require.NoError(t, err)

	assert.InDelta(t, 0.08, tuned.Exit.TakeProfit, 1e-9)
	assert.InDelta(t, 0.03, tuned.Exit.StopLoss, 1e-9)
	assert.InDelta(t, 0.5, tuned.Risk.PositionSize, 1e-9)
	assert.InDelta(t, 25.0, tuned.Param("threshold", 0), 1e-9)

	// The base spec is untouched.
	assert.InDelta(t, 0.05, base.Exit.TakeProfit, 1e-9)
	assert.InDelta(t, 0.02, base.Exit.StopLoss, 1e-9)
}

// ============================================================================
// GRID SEARCH
// ============================================================================

func optimizationBars() map[string][]marketdata.Bar {
	// Rises to +6%, crashes to -4%, recovers. A tight take-profit banks
	// the rise; a loose one rides the crash down.
	return map[string][]marketdata.Bar{
		"AAPL": closeBars("AAPL", 100, 103, 106, 101, 96, 99, 102),
	}
}

func TestOptimize_RanksByObjective(t *testing.T) {
	opt := NewGridSearchOptimizer(priceSpec(0.05, 0, 1.0), []Parameter{
		{Name: "take_profit", Values: []float64{0.05, 0.50}},
	}, MaximizeTotalReturn, 10_000)

	summary, err := opt.Optimize(context.Background(), optimizationBars())
	require.NoError(t, err)

	assert.Equal(t, "grid_search", summary.Method)
	assert.Equal(t, 2, summary.TotalRuns)
	assert.Zero(t, summary.FailedRuns)
	require.Len(t, summary.TopResults, 2)

	best := summary.BestResult
	require.NotNil(t, best)
	assert.Equal(t, 1, best.Rank)
	assert.InDelta(t, 0.05, best.Params["take_profit"], 1e-9,
		"banking the +6% move beats holding through the crash")
	assert.GreaterOrEqual(t, best.Score, summary.TopResults[1].Score)
}

func TestOptimize_DeterministicAcrossRuns(t *testing.T) {
	params := []Parameter{
		{Name: "take_profit", Values: []float64{0.03, 0.05, 0.08}},
		{Name: "stop_loss", Values: []float64{0.02, 0.04}},
	}

	first, err := NewGridSearchOptimizer(priceSpec(0.05, 0.02, 1.0), params, BalancedObjective, 10_000).
		Optimize(context.Background(), optimizationBars())
	require.NoError(t, err)

	second, err := NewGridSearchOptimizer(priceSpec(0.05, 0.02, 1.0), params, BalancedObjective, 10_000).
		Optimize(context.Background(), optimizationBars())
	require.NoError(t, err)

	require.Equal(t, len(first.TopResults), len(second.TopResults))
	for i := range first.TopResults {
		assert.Equal(t, first.TopResults[i].Params, second.TopResults[i].Params, "rank %d", i+1)
		assert.Equal(t, first.TopResults[i].Score, second.TopResults[i].Score, "rank %d", i+1)
	}
}

func TestOptimize_NoData(t *testing.T) {
	opt := NewGridSearchOptimizer(priceSpec(0.05, 0.02, 1.0), nil, nil, 10_000)
	_, err := opt.Optimize(context.Background(), nil)
	assert.Error(t, err)
}

func TestOptimize_NilBase(t *testing.T) {
	opt := NewGridSearchOptimizer(nil, nil, nil, 10_000)
	_, err := opt.Optimize(context.Background(), optimizationBars())
	assert.Error(t, err)
}

func TestOptimize_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opt := NewGridSearchOptimizer(priceSpec(0.05, 0.02, 1.0), nil, nil, 10_000)
	_, err := opt.Optimize(ctx, optimizationBars())
	assert.Error(t, err)
}
