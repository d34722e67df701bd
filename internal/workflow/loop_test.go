package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

// capturingGenerator records every request it sees and names each spec by
// its call number.
type capturingGenerator struct {
	mu       sync.Mutex
	requests []agents.GenerateRequest
	failFrom int // fail calls >= failFrom when > 0
}

func (g *capturingGenerator) Generate(_ context.Context, req agents.GenerateRequest) (*agents.GenerateResult, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	n := len(g.requests)
	g.mu.Unlock()

	if g.failFrom > 0 && n >= g.failFrom {
		return nil, fmt.Errorf("oracle unavailable on call %d", n)
	}
	return &agents.GenerateResult{Spec: createTestSpec(fmt.Sprintf("v%d", n))}, nil
}

func (g *capturingGenerator) request(i int) agents.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[i]
}

func (g *capturingGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// refineUntil builds an analyst that requests refinement below the given
// iteration and accepts from it on.
func refineUntil(accept int) analystFunc {
	return func(_ context.Context, _ string, _ *strategy.Spec, _ *backtest.Result, iteration, _ int) (*agents.Analysis, error) {
		if iteration < accept {
			return &agents.Analysis{
				Analysis:        "needs work",
				Issues:          []string{"too few trades in sample"},
				Suggestions:     []string{"loosen the entry threshold"},
				NeedsRefinement: true,
				ShouldContinue:  true,
			}, nil
		}
		return &agents.Analysis{Analysis: "acceptable", NeedsRefinement: false}, nil
	}
}

func alwaysRefine() analystFunc {
	return func(_ context.Context, _ string, _ *strategy.Spec, _ *backtest.Result, _, _ int) (*agents.Analysis, error) {
		return &agents.Analysis{NeedsRefinement: true, ShouldContinue: true, Issues: []string{"keep going"}}, nil
	}
}

func TestLoop_RefinesUntilAnalystSatisfied(t *testing.T) {
	gen := &capturingGenerator{}
	deps := happyDeps()
	deps.Generator = gen
	deps.Analyst = refineUntil(3)
	e := newTestEngine(t, testConfig(), deps)

	id, events := runToCompletion(t, e, StartRequest{Query: "buy dips"})

	assert.Equal(t, 3, gen.calls())

	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, "v3", res.Strategy.Name)

	refinements := 0
	for _, ev := range events {
		if ev.Type == EventRefinement {
			refinements++
		}
	}
	assert.Equal(t, 2, refinements)

	// Analyst feedback reaches the next generation call.
	second := gen.request(1)
	assert.Contains(t, second.Feedback, "too few trades in sample")
	assert.Contains(t, second.Feedback, "loosen the entry threshold")
	require.NotNil(t, second.Previous)
	assert.Equal(t, "v1", second.Previous.Name)
	assert.Equal(t, 2, second.Iteration)
}

func TestLoop_StopsAtMaxIterations(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 3
	gen := &capturingGenerator{}
	deps := happyDeps()
	deps.Generator = gen
	deps.Analyst = alwaysRefine()
	e := newTestEngine(t, cfg, deps)

	id, events := runToCompletion(t, e, StartRequest{Query: "q"})

	assert.Equal(t, 3, gen.calls())

	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 3, res.Iterations)

	// No refinement announcement after the final iteration.
	refinements := 0
	for _, ev := range events {
		if ev.Type == EventRefinement {
			refinements++
		}
	}
	assert.Equal(t, 2, refinements)
	assert.Equal(t, EventComplete, events[len(events)-1].Type)
}

func TestLoop_StopsWhenShouldContinueFalse(t *testing.T) {
	gen := &capturingGenerator{}
	deps := happyDeps()
	deps.Generator = gen
	deps.Analyst = analystFunc(func(_ context.Context, _ string, _ *strategy.Spec, _ *backtest.Result, _, _ int) (*agents.Analysis, error) {
		// Wants changes but sees no prospect of improvement.
		return &agents.Analysis{NeedsRefinement: true, ShouldContinue: false}, nil
	})
	e := newTestEngine(t, testConfig(), deps)

	id, _ := runToCompletion(t, e, StartRequest{Query: "q"})

	assert.Equal(t, 1, gen.calls())
	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
}

func TestLoop_FastModeSingleIteration(t *testing.T) {
	gen := &capturingGenerator{}
	deps := happyDeps()
	deps.Generator = gen
	deps.Analyst = alwaysRefine()
	e := newTestEngine(t, testConfig(), deps)

	id, events := runToCompletion(t, e, StartRequest{Query: "q", FastMode: true})

	assert.Equal(t, 1, gen.calls())
	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 1, res.Iterations)

	require.Equal(t, EventSupervisorStart, events[0].Type)
	assert.EqualValues(t, 1, events[0].Payload["max_iterations"])
}

func TestLoop_GeneratorFailureFirstIterationFails(t *testing.T) {
	deps := happyDeps()
	deps.Generator = &capturingGenerator{failFrom: 1}
	e := newTestEngine(t, testConfig(), deps)

	id, events := runToCompletion(t, e, StartRequest{Query: "q"})

	assert.Equal(t, EventError, events[len(events)-1].Type)
	assert.Contains(t, events[len(events)-1].Message, "strategy generation failed")

	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Nil(t, res.Strategy)
}

func TestLoop_RefinementGenerationFailureKeepsPrevious(t *testing.T) {
	gen := &capturingGenerator{failFrom: 2}
	deps := happyDeps()
	deps.Generator = gen
	deps.Analyst = alwaysRefine()
	e := newTestEngine(t, testConfig(), deps)

	id, events := runToCompletion(t, e, StartRequest{Query: "q"})

	assert.Equal(t, 2, gen.calls())
	assert.Equal(t, EventComplete, events[len(events)-1].Type)

	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "v1", res.Strategy.Name)
}

func TestLoop_BacktestFailureFails(t *testing.T) {
	deps := happyDeps()
	deps.Backtester = backtesterFunc(func(_ context.Context, _ agents.BacktestRequest) (*backtest.Result, error) {
		return nil, errors.New("no market data for any symbol")
	})
	e := newTestEngine(t, testConfig(), deps)

	id, events := runToCompletion(t, e, StartRequest{Query: "q"})

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Message, "backtest failed")

	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
}

func TestLoop_AnalystFailureAcceptsCurrentStrategy(t *testing.T) {
	deps := happyDeps()
	deps.Analyst = analystFunc(func(_ context.Context, _ string, _ *strategy.Spec, _ *backtest.Result, _, _ int) (*agents.Analysis, error) {
		return nil, errors.New("analysis response was not valid JSON")
	})
	e := newTestEngine(t, testConfig(), deps)

	id, events := runToCompletion(t, e, StartRequest{Query: "q"})

	assert.Equal(t, EventComplete, events[len(events)-1].Type)

	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 1, res.Iterations)
	require.NotNil(t, res.Strategy)
	require.NotNil(t, res.Backtest)
}

func TestLoop_ProtectedParamsReachGenerator(t *testing.T) {
	gen := &capturingGenerator{}
	deps := happyDeps()
	deps.Generator = gen
	e := newTestEngine(t, testConfig(), deps)

	_, _ = runToCompletion(t, e, StartRequest{
		Query: "Buy AAPL when RSI below 25, with a take-profit of 4%",
	})

	first := gen.request(0)
	require.NotNil(t, first.Protected.RSIThreshold)
	assert.Equal(t, 25.0, *first.Protected.RSIThreshold)
	assert.Equal(t, "below", first.Protected.RSIComparison)
	require.NotNil(t, first.Protected.TakeProfit)
	assert.InDelta(t, 0.04, *first.Protected.TakeProfit, 1e-9)
}

func TestLoop_RecommenderFeedsNextGeneration(t *testing.T) {
	const hint = "entry condition (rsi below 30) matched on 2 of 30 days"

	gen := &capturingGenerator{}
	deps := happyDeps()
	deps.Generator = gen
	deps.Backtester = backtesterFunc(func(_ context.Context, _ agents.BacktestRequest) (*backtest.Result, error) {
		return createTestResult(3), nil // too few trades to trust
	})
	deps.Recommender = recommenderFunc(func(_ *strategy.Spec, _ *backtest.Result) string {
		return hint
	})
	deps.Analyst = refineUntil(2)
	e := newTestEngine(t, testConfig(), deps)

	_, events := runToCompletion(t, e, StartRequest{Query: "q"})

	require.Equal(t, 2, gen.calls())
	assert.Empty(t, gen.request(0).DataInsights)
	assert.Equal(t, hint, gen.request(1).DataInsights)

	var refinement *Event
	for i := range events {
		if events[i].Type == EventRefinement {
			refinement = &events[i]
		}
	}
	require.NotNil(t, refinement)
	assert.Equal(t, hint, refinement.Payload["data_insights"])
}

func TestLoop_RecommenderSkippedWithEnoughTrades(t *testing.T) {
	var ran atomic.Bool
	gen := &capturingGenerator{}
	deps := happyDeps()
	deps.Generator = gen
	deps.Recommender = recommenderFunc(func(_ *strategy.Spec, _ *backtest.Result) string {
		ran.Store(true)
		return "should not appear"
	})
	deps.Analyst = refineUntil(2)
	e := newTestEngine(t, testConfig(), deps)

	_, _ = runToCompletion(t, e, StartRequest{Query: "q"})

	assert.False(t, ran.Load())
	assert.Empty(t, gen.request(1).DataInsights)
}

func TestLoop_InsightsTimeoutDegradesToEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.InsightsTimeout = 40 * time.Millisecond
	deps := happyDeps()
	deps.Insights = insightsFunc(func(ctx context.Context, _ string, _ []string, _ int) ([]string, error) {
		select {
		case <-time.After(2 * time.Second):
			return []string{"too late"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	e := newTestEngine(t, cfg, deps)

	id, events := runToCompletion(t, e, StartRequest{Query: "q"})

	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Empty(t, res.Insights)

	var insightsDone *Event
	for i := range events {
		if events[i].Type == EventInsightsComplete {
			insightsDone = &events[i]
		}
	}
	require.NotNil(t, insightsDone, "insights_complete must still be emitted")
	assert.EqualValues(t, 0, insightsDone.Payload["count"])
}

func TestLoop_InsightsOnlyFirstIteration(t *testing.T) {
	var calls atomic.Int32
	deps := happyDeps()
	deps.Insights = insightsFunc(func(_ context.Context, _ string, _ []string, _ int) ([]string, error) {
		calls.Add(1)
		return []string{"window was calm"}, nil
	})
	deps.Analyst = refineUntil(3)
	e := newTestEngine(t, testConfig(), deps)

	id, events := runToCompletion(t, e, StartRequest{Query: "q"})

	assert.EqualValues(t, 1, calls.Load())

	launches := 0
	for _, ev := range events {
		if ev.Type == EventInsightsGeneration {
			launches++
			assert.Equal(t, 1, ev.Iteration)
		}
	}
	assert.Equal(t, 1, launches)

	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"window was calm"}, res.Insights)
	assert.Equal(t, 3, res.Iterations)
}

func TestLoop_ResultAvailableWhenCompleteObserved(t *testing.T) {
	release := make(chan struct{})
	store := &fakeBotStore{release: release}
	linker := &fakeLinker{}

	deps := happyDeps()
	deps.Bots = store
	deps.Datasets = linker
	e := newTestEngine(t, testConfig(), deps)

	id := e.CreateSession()
	stream, err := e.Stream(context.Background(), id, 0)
	require.NoError(t, err)
	require.NoError(t, e.StartWorkflow(context.Background(), id, StartRequest{
		UserID: uuid.New(),
		Query:  "buy dips on AAPL",
	}))

	var sawComplete bool
	for ev := range stream {
		if ev.Type != EventComplete {
			continue
		}
		sawComplete = true

		// The save is still blocked, but the result must already be
		// retrievable the moment complete is observed.
		res, rerr := e.Result(id)
		require.NoError(t, rerr)
		assert.Equal(t, StatusComplete, res.Status)
		assert.Equal(t, res.BotID.String(), ev.Payload["bot_id"])
	}
	require.True(t, sawComplete)

	close(release)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.bots) == 1
	}, 3*time.Second, 10*time.Millisecond)

	res, err := e.Result(id)
	require.NoError(t, err)

	store.mu.Lock()
	bot := store.bots[0]
	store.mu.Unlock()
	assert.Equal(t, res.BotID, bot.ID)
	assert.Equal(t, "workflow", bot.Source)
	assert.Equal(t, "RSI Dip Buyer", bot.Name)
	assert.Equal(t, []string{"AAPL"}, bot.Symbols)
	require.NotNil(t, bot.SessionID)
	assert.Equal(t, id, *bot.SessionID)

	require.Eventually(t, func() bool {
		linker.mu.Lock()
		defer linker.mu.Unlock()
		return linker.links[id] == res.BotID
	}, 3*time.Second, 10*time.Millisecond)
}

func TestLoop_SaveFailureDoesNotRetractResult(t *testing.T) {
	store := &fakeBotStore{err: errors.New("database unavailable")}
	deps := happyDeps()
	deps.Bots = store
	e := newTestEngine(t, testConfig(), deps)

	id, events := runToCompletion(t, e, StartRequest{UserID: uuid.New(), Query: "q"})

	assert.Equal(t, EventComplete, events[len(events)-1].Type)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.bots) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// The failed save never revokes the session's outcome.
	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
}

func TestLoop_WallTimeExceededFails(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWallTime = 80 * time.Millisecond
	deps := happyDeps()
	deps.Backtester = backtesterFunc(func(ctx context.Context, _ agents.BacktestRequest) (*backtest.Result, error) {
		select {
		case <-time.After(5 * time.Second):
			return createTestResult(12), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	e := newTestEngine(t, cfg, deps)

	id, events := runToCompletion(t, e, StartRequest{Query: "q"})

	assert.Equal(t, EventError, events[len(events)-1].Type)

	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
}
