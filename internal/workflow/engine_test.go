package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

// Function adapters so tests can express agents as closures.

type generatorFunc func(ctx context.Context, req agents.GenerateRequest) (*agents.GenerateResult, error)

func (f generatorFunc) Generate(ctx context.Context, req agents.GenerateRequest) (*agents.GenerateResult, error) {
	return f(ctx, req)
}

type backtesterFunc func(ctx context.Context, req agents.BacktestRequest) (*backtest.Result, error)

func (f backtesterFunc) Run(ctx context.Context, req agents.BacktestRequest) (*backtest.Result, error) {
	return f(ctx, req)
}

type analystFunc func(ctx context.Context, query string, spec *strategy.Spec, result *backtest.Result, iteration, maxIterations int) (*agents.Analysis, error)

func (f analystFunc) Analyze(ctx context.Context, query string, spec *strategy.Spec, result *backtest.Result, iteration, maxIterations int) (*agents.Analysis, error) {
	return f(ctx, query, spec, result, iteration, maxIterations)
}

type insightsFunc func(ctx context.Context, query string, symbols []string, days int) ([]string, error)

func (f insightsFunc) Generate(ctx context.Context, query string, symbols []string, days int) ([]string, error) {
	return f(ctx, query, symbols, days)
}

type recommenderFunc func(spec *strategy.Spec, result *backtest.Result) string

func (f recommenderFunc) Recommend(spec *strategy.Spec, result *backtest.Result) string {
	return f(spec, result)
}

type fakeBotStore struct {
	mu       sync.Mutex
	bots     []*db.TradingBot
	err      error
	release  chan struct{}       // when set, InsertBot blocks until closed
	inserted chan *db.TradingBot // when set, receives each inserted bot
}

func (s *fakeBotStore) InsertBot(ctx context.Context, bot *db.TradingBot) error {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.bots = append(s.bots, bot)
	err := s.err
	s.mu.Unlock()
	if s.inserted != nil {
		s.inserted <- bot
	}
	return err
}

type fakeLinker struct {
	mu    sync.Mutex
	links map[string]uuid.UUID
	err   error
}

func (l *fakeLinker) LinkSessionToBot(_ context.Context, sessionID string, botID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.links == nil {
		l.links = make(map[string]uuid.UUID)
	}
	l.links[sessionID] = botID
	return l.err
}

func createTestSpec(name string) *strategy.Spec {
	return &strategy.Spec{
		Name:        name,
		Assets:      []string{"AAPL"},
		EntrySignal: strategy.SignalRSI,
		EntryConditions: strategy.EntryConditions{
			Signal:     strategy.SignalRSI,
			Parameters: map[string]interface{}{"threshold": 30.0, "comparison": "below"},
		},
		Exit: strategy.ExitRules{TakeProfit: 0.05, StopLoss: 0.03},
		Risk: strategy.RiskRules{PositionSize: 0.1, MaxPositions: 3},
	}
}

func createTestResult(totalTrades int) *backtest.Result {
	return &backtest.Result{
		Summary: backtest.Summary{
			InitialCapital: 100000,
			FinalEquity:    104200,
			TotalReturnPct: 4.2,
			TotalTrades:    totalTrades,
		},
	}
}

// happyDeps is a one-iteration pipeline: generate, backtest with plenty of
// trades, analyst satisfied.
func happyDeps() Deps {
	return Deps{
		Generator: generatorFunc(func(_ context.Context, _ agents.GenerateRequest) (*agents.GenerateResult, error) {
			return &agents.GenerateResult{Spec: createTestSpec("RSI Dip Buyer")}, nil
		}),
		Backtester: backtesterFunc(func(_ context.Context, _ agents.BacktestRequest) (*backtest.Result, error) {
			return createTestResult(12), nil
		}),
		Analyst: analystFunc(func(_ context.Context, _ string, _ *strategy.Spec, _ *backtest.Result, _, _ int) (*agents.Analysis, error) {
			return &agents.Analysis{Analysis: "solid results", NeedsRefinement: false, ShouldContinue: false}, nil
		}),
	}
}

func testConfig() Config {
	return Config{
		MaxIterations:   5,
		MaxWallTime:     10 * time.Second,
		InsightsTimeout: 500 * time.Millisecond,
		Heartbeat:       time.Second,
		StreamGrace:     20 * time.Millisecond,
		EventBuffer:     64,
		ResultTTL:       time.Hour,
		BacktestDays:    30,
		InitialCapital:  100000,
	}
}

func newTestEngine(t *testing.T, cfg Config, deps Deps) *Engine {
	t.Helper()
	e := New(cfg, deps, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

// runToCompletion starts a workflow and blocks until its stream has ended.
func runToCompletion(t *testing.T, e *Engine, req StartRequest) (string, []Event) {
	t.Helper()
	id := e.CreateSession()
	require.NoError(t, e.StartWorkflow(context.Background(), id, req))

	s := e.session(id)
	require.NotNil(t, s)
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("workflow did not finish in time")
	}

	events, _, err := e.Poll(id, 0)
	require.NoError(t, err)
	return id, events
}

// eventTypes lists event types in order, heartbeats excluded.
func eventTypes(events []Event) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Type == EventHeartbeat {
			continue
		}
		types = append(types, ev.Type)
	}
	return types
}

func TestEngine_StartWorkflowUnknownSession(t *testing.T) {
	e := newTestEngine(t, testConfig(), happyDeps())

	err := e.StartWorkflow(context.Background(), "no-such-session", StartRequest{Query: "q"})
	assert.True(t, IsSessionNotFound(err))
}

func TestEngine_StartWorkflowTwice(t *testing.T) {
	e := newTestEngine(t, testConfig(), happyDeps())
	id := e.CreateSession()

	require.NoError(t, e.StartWorkflow(context.Background(), id, StartRequest{Query: "q"}))
	err := e.StartWorkflow(context.Background(), id, StartRequest{Query: "q"})
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestEngine_EventOrderSingleIteration(t *testing.T) {
	deps := happyDeps()
	deps.Insights = insightsFunc(func(_ context.Context, _ string, _ []string, _ int) ([]string, error) {
		return []string{"AAPL trended up over the window"}, nil
	})
	e := newTestEngine(t, testConfig(), deps)

	id, events := runToCompletion(t, e, StartRequest{Query: "buy the dip"})

	want := []string{
		EventSupervisorStart,
		EventIterationStart,
		EventCodeGenerationStart,
		EventCodeGenerationComplete,
		EventInsightsGeneration,
		EventBacktestStart,
		EventBacktestComplete,
		EventInsightsComplete,
		EventAnalysisStart,
		EventAnalysisComplete,
		EventComplete,
	}
	assert.Equal(t, want, eventTypes(events))

	terminals := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.True(t, events[len(events)-1].Terminal())

	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, []string{"AAPL trended up over the window"}, res.Insights)
}

func TestEngine_NoInsightsEventsWithoutAgent(t *testing.T) {
	e := newTestEngine(t, testConfig(), happyDeps())

	_, events := runToCompletion(t, e, StartRequest{Query: "q"})

	for _, ev := range events {
		assert.NotEqual(t, EventInsightsGeneration, ev.Type)
		assert.NotEqual(t, EventInsightsComplete, ev.Type)
	}
}

func TestEngine_PollCursor(t *testing.T) {
	e := newTestEngine(t, testConfig(), happyDeps())
	id, events := runToCompletion(t, e, StartRequest{Query: "q"})

	got, next, err := e.Poll(id, 0)
	require.NoError(t, err)
	assert.Len(t, got, len(events))
	assert.Equal(t, len(events), next)

	more, next2, err := e.Poll(id, next)
	require.NoError(t, err)
	assert.Empty(t, more)
	assert.Equal(t, next, next2)

	_, _, err = e.Poll("missing", 0)
	assert.True(t, IsSessionNotFound(err))
}

func TestEngine_StreamReplaysThenFollowsLive(t *testing.T) {
	gate := make(chan struct{})
	deps := happyDeps()
	deps.Backtester = backtesterFunc(func(ctx context.Context, _ agents.BacktestRequest) (*backtest.Result, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return createTestResult(12), nil
	})
	e := newTestEngine(t, testConfig(), deps)

	id := e.CreateSession()
	require.NoError(t, e.StartWorkflow(context.Background(), id, StartRequest{Query: "q"}))

	// Let the loop reach the backtest so there is history to replay.
	require.Eventually(t, func() bool {
		events, _, err := e.Poll(id, 0)
		return err == nil && len(eventTypes(events)) >= 5
	}, 2*time.Second, 10*time.Millisecond)

	stream, err := e.Stream(context.Background(), id, 0)
	require.NoError(t, err)
	close(gate)

	var received []Event
	for ev := range stream {
		received = append(received, ev)
	}

	readyIdx := -1
	for i, ev := range received {
		if ev.Type == EventReady {
			require.Equal(t, -1, readyIdx, "ready sentinel emitted more than once")
			readyIdx = i
		}
	}
	require.GreaterOrEqual(t, readyIdx, 5, "ready must come after replayed history")

	// Stripping the sentinel must reproduce the full event log: no gaps,
	// no duplicates.
	history, _, err := e.Poll(id, 0)
	require.NoError(t, err)

	var streamed []string
	for _, ev := range received {
		if ev.Type == EventReady {
			continue
		}
		streamed = append(streamed, ev.Type)
	}
	var logged []string
	for _, ev := range history {
		logged = append(logged, ev.Type)
	}
	assert.Equal(t, logged, streamed)
	assert.Equal(t, EventComplete, streamed[len(streamed)-1])
}

func TestEngine_StreamAttachedBeforeStart(t *testing.T) {
	e := newTestEngine(t, testConfig(), happyDeps())
	id := e.CreateSession()

	stream, err := e.Stream(context.Background(), id, 0)
	require.NoError(t, err)

	require.NoError(t, e.StartWorkflow(context.Background(), id, StartRequest{Query: "q"}))

	var received []Event
	for ev := range stream {
		received = append(received, ev)
	}

	require.NotEmpty(t, received)
	assert.Equal(t, EventReady, received[0].Type)
	assert.Equal(t, EventComplete, received[len(received)-1].Type)
}

func TestEngine_StreamAfterCompletionReplaysAll(t *testing.T) {
	e := newTestEngine(t, testConfig(), happyDeps())
	id, events := runToCompletion(t, e, StartRequest{Query: "q"})

	stream, err := e.Stream(context.Background(), id, 0)
	require.NoError(t, err)

	var received []Event
	for ev := range stream {
		received = append(received, ev)
	}

	require.Len(t, received, len(events))
	for i := range received {
		assert.Equal(t, events[i].Type, received[i].Type)
		assert.NotEqual(t, EventReady, received[i].Type)
	}
}

func TestEngine_StreamFromEndCursorAfterCompletion(t *testing.T) {
	e := newTestEngine(t, testConfig(), happyDeps())
	id, events := runToCompletion(t, e, StartRequest{Query: "q"})

	stream, err := e.Stream(context.Background(), id, len(events))
	require.NoError(t, err)

	var received []Event
	for ev := range stream {
		received = append(received, ev)
	}
	require.Len(t, received, 1)
	assert.Equal(t, EventReady, received[0].Type)
}

func TestEngine_StreamUnknownSession(t *testing.T) {
	e := newTestEngine(t, testConfig(), happyDeps())

	_, err := e.Stream(context.Background(), "missing", 0)
	assert.True(t, IsSessionNotFound(err))
}

func TestEngine_StreamClientDisconnect(t *testing.T) {
	gate := make(chan struct{})
	deps := happyDeps()
	deps.Backtester = backtesterFunc(func(ctx context.Context, _ agents.BacktestRequest) (*backtest.Result, error) {
		select {
		case <-gate:
			return createTestResult(12), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	e := newTestEngine(t, testConfig(), deps)

	id := e.CreateSession()
	require.NoError(t, e.StartWorkflow(context.Background(), id, StartRequest{Query: "q"}))

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := e.Stream(ctx, id, 0)
	require.NoError(t, err)

	// Read a couple of events, then walk away. Buffered events may still
	// drain, but the channel must close promptly.
	<-stream
	<-stream
	cancel()

	deadline := time.After(2 * time.Second)
	for open := true; open; {
		select {
		case _, open = <-stream:
		case <-deadline:
			t.Fatal("stream did not close after client disconnect")
		}
	}
	close(gate)
}

func TestEngine_ResultNotFinished(t *testing.T) {
	gate := make(chan struct{})
	deps := happyDeps()
	deps.Backtester = backtesterFunc(func(ctx context.Context, _ agents.BacktestRequest) (*backtest.Result, error) {
		select {
		case <-gate:
			return createTestResult(12), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	e := newTestEngine(t, testConfig(), deps)

	id := e.CreateSession()
	require.NoError(t, e.StartWorkflow(context.Background(), id, StartRequest{Query: "q"}))

	_, err := e.Result(id)
	assert.ErrorIs(t, err, ErrNotFinished)

	close(gate)
	require.Eventually(t, func() bool {
		_, err := e.Result(id)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)
}

func TestEngine_ResultUnknownSession(t *testing.T) {
	e := newTestEngine(t, testConfig(), happyDeps())

	_, err := e.Result("missing")
	assert.True(t, IsSessionNotFound(err))
}

func TestEngine_ResultExpires(t *testing.T) {
	cfg := testConfig()
	cfg.ResultTTL = 60 * time.Millisecond
	e := newTestEngine(t, cfg, happyDeps())

	id, _ := runToCompletion(t, e, StartRequest{Query: "q"})

	_, err := e.Result(id)
	require.NoError(t, err)

	time.Sleep(90 * time.Millisecond)
	_, err = e.Result(id)
	assert.True(t, IsSessionNotFound(err))

	// The janitor sweep drops the session state itself.
	e.purgeExpired(time.Now())
	assert.Nil(t, e.session(id))
}

func TestEngine_PurgeKeepsLiveSessions(t *testing.T) {
	e := newTestEngine(t, testConfig(), happyDeps())
	id, _ := runToCompletion(t, e, StartRequest{Query: "q"})

	e.purgeExpired(time.Now())
	assert.NotNil(t, e.session(id))

	_, err := e.Result(id)
	assert.NoError(t, err)
}

func TestEngine_HeartbeatsWhileBusy(t *testing.T) {
	cfg := testConfig()
	cfg.Heartbeat = 25 * time.Millisecond
	deps := happyDeps()
	deps.Backtester = backtesterFunc(func(ctx context.Context, _ agents.BacktestRequest) (*backtest.Result, error) {
		select {
		case <-time.After(150 * time.Millisecond):
			return createTestResult(12), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	e := newTestEngine(t, cfg, deps)

	_, events := runToCompletion(t, e, StartRequest{Query: "q"})

	beats := 0
	for _, ev := range events {
		if ev.Type == EventHeartbeat {
			beats++
		}
	}
	assert.GreaterOrEqual(t, beats, 2)
}

func TestEngine_ShutdownCancelsRunningSessions(t *testing.T) {
	started := make(chan struct{})
	deps := happyDeps()
	deps.Backtester = backtesterFunc(func(ctx context.Context, _ agents.BacktestRequest) (*backtest.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := New(testConfig(), deps, zerolog.Nop())

	id := e.CreateSession()
	require.NoError(t, e.StartWorkflow(context.Background(), id, StartRequest{Query: "q"}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	events, _, err := e.Poll(id, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, EventError, events[len(events)-1].Type)
}
