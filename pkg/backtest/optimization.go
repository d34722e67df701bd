// Parameter optimization for backtesting strategies
package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
)

// ============================================================================
// PARAMETER DEFINITION
// ============================================================================

// Parameter is one tunable dimension of the search space. Well-known
// names (take_profit, stop_loss, position_size) map onto the spec's
// exit and risk fields; everything else lands in the entry condition's
// parameter bag.
type Parameter struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// ParameterSet is one point of the search grid.
type ParameterSet map[string]float64

// Clone creates a copy of the parameter set.
func (ps ParameterSet) Clone() ParameterSet {
	clone := make(ParameterSet, len(ps))
	for k, v := range ps {
		clone[k] = v
	}
	return clone
}

// apply writes the parameter set into a fresh copy of the spec.
func (ps ParameterSet) apply(spec *strategy.Spec) (*strategy.Spec, error) {
	tuned, err := spec.DeepCopy()
	if err != nil {
		return nil, err
	}

	for name, value := range ps {
		switch name {
		case "take_profit":
			tuned.Exit.TakeProfit = value
		case "stop_loss":
			tuned.Exit.StopLoss = value
		case "take_profit_pct_shares":
			tuned.Exit.TakeProfitPctShares = value
		case "position_size":
			tuned.Risk.PositionSize = value
		default:
			if tuned.EntryConditions.Parameters == nil {
				tuned.EntryConditions.Parameters = make(map[string]interface{})
			}
			tuned.EntryConditions.Parameters[name] = value
		}
	}
	return tuned, nil
}

// ============================================================================
// OPTIMIZATION RESULT
// ============================================================================

// OptimizationResult is one evaluated grid point.
type OptimizationResult struct {
	Params  ParameterSet `json:"params"`
	Summary Summary      `json:"summary"`
	Score   float64      `json:"score"`
	Rank    int          `json:"rank"`
	Err     string       `json:"error,omitempty"`
}

// OptimizationSummary summarizes an optimization run.
type OptimizationSummary struct {
	Method     string               `json:"method"`
	TotalRuns  int                  `json:"total_runs"`
	FailedRuns int                  `json:"failed_runs"`
	Duration   time.Duration        `json:"duration"`
	Parameters []Parameter          `json:"parameters"`
	BestResult *OptimizationResult  `json:"best_result"`
	TopResults []*OptimizationResult `json:"top_results"`
}

// ============================================================================
// OBJECTIVE FUNCTIONS
// ============================================================================

// ObjectiveFunction scores a backtest summary; higher is better.
type ObjectiveFunction func(Summary) float64

var (
	// MaximizeSharpeRatio optimizes for risk-adjusted returns.
	MaximizeSharpeRatio ObjectiveFunction = func(s Summary) float64 {
		return s.SharpeRatio
	}

	// MaximizeTotalReturn optimizes for absolute returns.
	MaximizeTotalReturn ObjectiveFunction = func(s Summary) float64 {
		return s.TotalReturnPct
	}

	// MaximizeProfitFactor optimizes for gross profit over gross loss.
	MaximizeProfitFactor ObjectiveFunction = func(s Summary) float64 {
		return s.ProfitFactor
	}

	// MinimizeDrawdown optimizes for shallow drawdowns.
	MinimizeDrawdown ObjectiveFunction = func(s Summary) float64 {
		return -s.MaxDrawdownPct
	}

	// BalancedObjective blends risk-adjusted return, win rate, and
	// drawdown into one score.
	BalancedObjective ObjectiveFunction = func(s Summary) float64 {
		sharpe := math.Max(0, s.SharpeRatio)
		winRate := s.WinRate / 100.0
		drawdown := s.MaxDrawdownPct / 100.0
		return 0.5*sharpe + 0.3*winRate - 0.2*drawdown
	}
)

// ============================================================================
// GRID SEARCH OPTIMIZER
// ============================================================================

// GridSearchOptimizer exhaustively evaluates every combination of the
// declared parameter values against one base strategy and bar set.
// Evaluation runs in parallel but results are reported in a
// deterministic order: identical inputs always produce the same
// ranking.
type GridSearchOptimizer struct {
	base      *strategy.Spec
	params    []Parameter
	objective ObjectiveFunction
	capital   float64
	parallel  int
}

// NewGridSearchOptimizer creates a grid search over the given
// parameters. A nil objective defaults to Sharpe ratio.
func NewGridSearchOptimizer(base *strategy.Spec, params []Parameter, objective ObjectiveFunction, capital float64) *GridSearchOptimizer {
	if objective == nil {
		objective = MaximizeSharpeRatio
	}
	return &GridSearchOptimizer{
		base:      base,
		params:    params,
		objective: objective,
		capital:   capital,
		parallel:  4,
	}
}

// SetParallelism sets the number of concurrent backtests.
func (opt *GridSearchOptimizer) SetParallelism(n int) {
	if n > 0 {
		opt.parallel = n
	}
}

// Optimize evaluates the full grid against the pre-loaded bars and
// returns results ranked by objective score.
func (opt *GridSearchOptimizer) Optimize(ctx context.Context, data map[string][]marketdata.Bar) (*OptimizationSummary, error) {
	if opt.base == nil {
		return nil, fmt.Errorf("backtest: nil base strategy")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("backtest: no bars to optimize over")
	}

	startTime := time.Now()
	combinations := opt.generateCombinations()

	log.Info().
		Str("strategy", opt.base.Name).
		Int("parameters", len(opt.params)).
		Int("combinations", len(combinations)).
		Int("parallel", opt.parallel).
		Msg("Starting grid search optimization")

	results := make([]*OptimizationResult, len(combinations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.parallel)
	for i, paramSet := range combinations {
		g.Go(func() error {
			results[i] = opt.runBacktest(gctx, paramSet, data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stable ranking: score descending, grid order breaks ties.
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := results[order[a]], results[order[b]]
		if (ra.Err == "") != (rb.Err == "") {
			return ra.Err == ""
		}
		return ra.Score > rb.Score
	})

	ranked := make([]*OptimizationResult, len(results))
	failed := 0
	for rank, idx := range order {
		ranked[rank] = results[idx]
		ranked[rank].Rank = rank + 1
		if ranked[rank].Err != "" {
			failed++
		}
	}

	if failed == len(ranked) {
		return nil, fmt.Errorf("backtest: every grid point failed")
	}

	summary := &OptimizationSummary{
		Method:     "grid_search",
		TotalRuns:  len(ranked),
		FailedRuns: failed,
		Duration:   time.Since(startTime),
		Parameters: opt.params,
		BestResult: ranked[0],
	}
	topN := 10
	if len(ranked) < topN {
		topN = len(ranked)
	}
	summary.TopResults = ranked[:topN]

	log.Info().
		Int("total_runs", summary.TotalRuns).
		Int("failed_runs", failed).
		Float64("best_score", summary.BestResult.Score).
		Dur("duration", summary.Duration).
		Msg("Grid search optimization complete")
	return summary, nil
}

// generateCombinations expands the parameter ranges into every grid
// point, in declaration order.
func (opt *GridSearchOptimizer) generateCombinations() []ParameterSet {
	combinations := []ParameterSet{{}}
	for _, param := range opt.params {
		if len(param.Values) == 0 {
			continue
		}
		expanded := make([]ParameterSet, 0, len(combinations)*len(param.Values))
		for _, combo := range combinations {
			for _, value := range param.Values {
				next := combo.Clone()
				next[param.Name] = value
				expanded = append(expanded, next)
			}
		}
		combinations = expanded
	}
	return combinations
}

// runBacktest evaluates a single grid point. Failures are recorded on
// the result rather than aborting the whole search.
func (opt *GridSearchOptimizer) runBacktest(ctx context.Context, params ParameterSet, data map[string][]marketdata.Bar) *OptimizationResult {
	result := &OptimizationResult{Params: params}

	tuned, err := params.apply(opt.base)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	eng := NewEngine(Config{
		Spec:           tuned,
		InitialCapital: opt.capital,
	}, nil)
	for symbol, bars := range data {
		if err := eng.LoadBars(symbol, bars); err != nil {
			result.Err = err.Error()
			return result
		}
	}

	run, err := eng.Run(ctx)
	if err != nil {
		log.Debug().Err(err).Interface("params", params).Msg("Grid point failed")
		result.Err = err.Error()
		return result
	}

	result.Summary = run.Summary
	result.Score = opt.objective(run.Summary)
	return result
}
