// Package workflow runs the multi-agent strategy pipeline: a supervisor loop
// that alternates generation, backtesting, and analysis until the analyst is
// satisfied or the iteration budget runs out. Each run is a session with an
// append-only progress-event stream that clients can follow live or replay.
package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/bus"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

// Result statuses.
const (
	StatusComplete = "complete"
	StatusError    = "error"
)

// Result is the final outcome of a session, retrievable until its TTL
// expires.
type Result struct {
	SessionID  string           `json:"session_id"`
	Status     string           `json:"status"`
	Strategy   *strategy.Spec   `json:"strategy,omitempty"`
	Backtest   *backtest.Result `json:"backtest,omitempty"`
	Insights   []string         `json:"insights,omitempty"`
	Iterations int              `json:"iterations"`
	BotID      uuid.UUID        `json:"bot_id,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// StartRequest carries the user's ask into a workflow run.
type StartRequest struct {
	UserID   uuid.UUID
	Query    string
	FastMode bool // single iteration, for interactive use
}

// SpecGenerator produces strategy specs from natural-language queries.
type SpecGenerator interface {
	Generate(ctx context.Context, req agents.GenerateRequest) (*agents.GenerateResult, error)
}

// BacktestRunner evaluates a spec against historical data.
type BacktestRunner interface {
	Run(ctx context.Context, req agents.BacktestRequest) (*backtest.Result, error)
}

// ResultAnalyst critiques a backtest and decides whether to refine.
type ResultAnalyst interface {
	Analyze(ctx context.Context, query string, spec *strategy.Spec, result *backtest.Result, iteration, maxIterations int) (*agents.Analysis, error)
}

// InsightsGenerator produces market commentary for the user. Best effort.
type InsightsGenerator interface {
	Generate(ctx context.Context, query string, symbols []string, days int) ([]string, error)
}

// TradeRecommender derives parameter suggestions from indicator series when
// a backtest produced too few trades to trust.
type TradeRecommender interface {
	Recommend(spec *strategy.Spec, result *backtest.Result) string
}

// Deps are the engine's collaborators. Bots, Datasets, Insights,
// Recommender, and Bus may be nil; the corresponding step is skipped.
type Deps struct {
	Generator   SpecGenerator
	Backtester  BacktestRunner
	Analyst     ResultAnalyst
	Insights    InsightsGenerator
	Recommender TradeRecommender
	Bots        BotStore
	Datasets    DatasetLinker
	Bus         *bus.Publisher
}

// Config tunes the engine. Zero values take the defaults below.
type Config struct {
	MaxIterations   int           // refinement budget per session (default 5)
	MaxWallTime     time.Duration // hard cap per session (default 10m)
	InsightsTimeout time.Duration // budget for the parallel insights call (default 30s)
	Heartbeat       time.Duration // max stream idle before a heartbeat (default 15s)
	StreamGrace     time.Duration // flush window after the terminal event (default 500ms)
	EventBuffer     int           // producer channel depth (default 256)
	ResultTTL       time.Duration // result retention (default 24h)
	BacktestDays    int           // lookback window (default 90)
	InitialCapital  float64       // backtest starting cash (default 100000)
}

func (c *Config) applyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 5
	}
	if c.MaxWallTime <= 0 {
		c.MaxWallTime = 10 * time.Minute
	}
	if c.InsightsTimeout <= 0 {
		c.InsightsTimeout = 30 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 15 * time.Second
	}
	if c.StreamGrace <= 0 {
		c.StreamGrace = 500 * time.Millisecond
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = 24 * time.Hour
	}
	if c.BacktestDays <= 0 {
		c.BacktestDays = 90
	}
	if c.InitialCapital <= 0 {
		c.InitialCapital = 100000
	}
}

// Engine owns all workflow sessions and their results.
type Engine struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	results  map[string]*Result

	active atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an engine and starts its result janitor.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Engine {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:      cfg,
		deps:     deps,
		log:      logger.With().Str("component", "workflow").Logger(),
		sessions: make(map[string]*Session),
		results:  make(map[string]*Result),
		ctx:      ctx,
		cancel:   cancel,
	}

	e.wg.Add(1)
	go e.janitor()

	return e
}

// CreateSession registers a new session and returns its ID. The session is
// inert until StartWorkflow; clients typically attach a stream in between
// so no events are missed.
func (e *Engine) CreateSession() string {
	id := uuid.NewString()
	s := newSession(id, e.cfg.EventBuffer)

	e.mu.Lock()
	e.sessions[id] = s
	e.mu.Unlock()

	e.log.Debug().Str("session_id", id).Msg("Session created")
	return id
}

// StartWorkflow launches the supervisor loop for sessionID. It returns
// immediately; progress is reported through the session's event stream.
// Starting the same session twice returns ErrAlreadyStarted.
func (e *Engine) StartWorkflow(ctx context.Context, sessionID string, req StartRequest) error {
	s := e.session(sessionID)
	if s == nil {
		return &SessionNotFoundError{SessionID: sessionID}
	}
	if !s.tryStart() {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithTimeout(e.ctx, e.cfg.MaxWallTime)
	s.cancel = cancel

	n := e.active.Add(1)
	metrics.UpdateActiveSessions(int(n))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		s.dispatch(e.cfg.Heartbeat, e.cfg.StreamGrace)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		defer func() {
			metrics.UpdateActiveSessions(int(e.active.Add(-1)))
		}()
		e.run(runCtx, s, req)
	}()

	e.log.Info().
		Str("session_id", sessionID).
		Bool("fast_mode", req.FastMode).
		Msg("Workflow started")
	return nil
}

// Stream returns a channel of session events starting at cursor from.
// Buffered history is replayed first, then a ready sentinel, then live
// events. The channel closes after the terminal event, or when ctx ends.
func (e *Engine) Stream(ctx context.Context, sessionID string, from int) (<-chan Event, error) {
	s := e.session(sessionID)
	if s == nil {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}

	out := make(chan Event, 32)
	metrics.StreamClients.Inc()

	go func() {
		defer close(out)
		defer metrics.StreamClients.Dec()

		cursor := from
		readySent := false
		for {
			events, wait, ended := s.eventsSince(cursor)
			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				cursor++
				if ev.Terminal() {
					return
				}
			}
			if !readySent {
				select {
				case out <- Event{Type: EventReady, Timestamp: time.Now()}:
				case <-ctx.Done():
					return
				}
				readySent = true
			}
			if ended {
				return
			}
			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Poll returns events from cursor from plus the new cursor position.
func (e *Engine) Poll(sessionID string, from int) ([]Event, int, error) {
	s := e.session(sessionID)
	if s == nil {
		return nil, 0, &SessionNotFoundError{SessionID: sessionID}
	}
	events, total := s.snapshot(from)
	return events, total, nil
}

// Result returns the session's final outcome. Expired or unknown sessions
// return SessionNotFoundError; sessions still running return ErrNotFinished.
func (e *Engine) Result(sessionID string) (*Result, error) {
	e.mu.RLock()
	r, ok := e.results[sessionID]
	_, known := e.sessions[sessionID]
	e.mu.RUnlock()

	if !ok {
		if known {
			return nil, ErrNotFinished
		}
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}
	if time.Since(r.CreatedAt) > e.cfg.ResultTTL {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}
	return r, nil
}

// Shutdown cancels running sessions and waits for loops, saves, and the
// janitor to drain.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.log.Info().Msg("Workflow engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) session(id string) *Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[id]
}

func (e *Engine) storeResult(r *Result) {
	e.mu.Lock()
	e.results[r.SessionID] = r
	e.mu.Unlock()
}

// janitor purges sessions and results past the TTL once a minute.
func (e *Engine) janitor() {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-ticker.C:
			e.purgeExpired(now)
		}
	}
}

func (e *Engine) purgeExpired(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, r := range e.results {
		if now.Sub(r.CreatedAt) > e.cfg.ResultTTL {
			delete(e.results, id)
			delete(e.sessions, id)
			e.log.Debug().Str("session_id", id).Msg("Expired session purged")
		}
	}
	// Sessions that were created but never started age out on the same
	// clock so abandoned handles cannot accumulate.
	for id, s := range e.sessions {
		if _, hasResult := e.results[id]; hasResult {
			continue
		}
		if !s.isStarted() && now.Sub(s.CreatedAt) > e.cfg.ResultTTL {
			delete(e.sessions, id)
		}
	}
}
