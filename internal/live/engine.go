// Package live executes deployed trading bots on a schedule. The engine
// keeps one cron entry per running deployment plus a sync entry that
// reconciles the schedule against the deployments table; each entry
// drives a runner whose tick evaluates the bot's strategy against
// current market data and routes any resulting order through the
// broker. Every deployment trades a virtual portfolio reconstructed
// from its own fills, so deployments sharing one broker account stay
// isolated.
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stockfunk/internal/broker"
	"github.com/ajitpratap0/stockfunk/internal/bus"
	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/sentiment"
)

// syncTimeout bounds one reconciliation pass against the database.
const syncTimeout = 30 * time.Second

// Store is the repository surface the live engine uses. *db.DB
// satisfies it.
type Store interface {
	ListActiveDeployments(ctx context.Context) ([]*db.Deployment, error)
	GetDeployment(ctx context.Context, deploymentID uuid.UUID) (*db.Deployment, error)
	UpdateDeploymentStatus(ctx context.Context, deploymentID uuid.UUID, status db.DeploymentStatus, errorMsg *string) error
	MarkDeploymentExecuted(ctx context.Context, deploymentID uuid.UUID, executedAt time.Time) error
	UpdateDeploymentCapital(ctx context.Context, deploymentID uuid.UUID, currentCapital float64) error
	InsertDeploymentTrade(ctx context.Context, trade *db.DeploymentTrade) error
	GetFilledDeploymentTrades(ctx context.Context, deploymentID uuid.UUID) ([]*db.DeploymentTrade, error)
	UpsertDeploymentPositions(ctx context.Context, deploymentID uuid.UUID, positions []*db.DeploymentPosition) error
	InsertDeploymentMetrics(ctx context.Context, m *db.DeploymentMetrics) error
}

// SentimentScorer resolves one day's sentiment for a symbol. The
// sentiment service satisfies it; nil disables sentiment conditions in
// live evaluation, which then see every lookup as missing data.
type SentimentScorer interface {
	Score(ctx context.Context, symbol string, source sentiment.Source, date time.Time) (float64, bool, error)
}

// Config holds the live engine's settings.
type Config struct {
	// SyncInterval is how often the scheduler reconciles its entries
	// against the deployments table.
	SyncInterval time.Duration

	// TickTimeout bounds one deployment tick end to end.
	TickTimeout time.Duration

	// EnforceMarketHours suppresses ticks outside the NYSE session.
	EnforceMarketHours bool

	// WarmupDays is how many calendar days of daily bars each tick
	// loads to warm up indicators before evaluating.
	WarmupDays int
}

func (c *Config) applyDefaults() {
	if c.SyncInterval <= 0 {
		c.SyncInterval = time.Minute
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 30 * time.Second
	}
	if c.WarmupDays <= 0 {
		c.WarmupDays = 120
	}
}

// Deps carries the engine's collaborators. Bus and Sentiment are
// optional; a nil bus drops events and a nil sentiment scorer makes
// sentiment conditions evaluate as missing data.
type Deps struct {
	Store     Store
	Broker    broker.Broker
	Bus       *bus.Publisher
	Sentiment SentimentScorer
}

// Engine schedules and supervises deployment execution.
type Engine struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	runners map[uuid.UUID]*runner
	entries map[uuid.UUID]cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc

	// now is the clock for market-hours gating and row timestamps,
	// injectable in tests.
	now func() time.Time
}

// New creates a live trading engine. Call Start to begin scheduling.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Engine {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:     cfg,
		deps:    deps,
		log:     logger.With().Str("component", "live").Logger(),
		cron:    cron.New(cron.WithSeconds()),
		runners: make(map[uuid.UUID]*runner),
		entries: make(map[uuid.UUID]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// Start runs an initial sync, registers the periodic sync entry, and
// starts the scheduler.
func (e *Engine) Start() error {
	if e.deps.Store == nil {
		return fmt.Errorf("live: nil store")
	}
	if e.deps.Broker == nil {
		return fmt.Errorf("live: nil broker")
	}

	e.sync()

	if _, err := e.cron.AddFunc(everySpec(e.cfg.SyncInterval), e.sync); err != nil {
		return fmt.Errorf("live: register sync entry: %w", err)
	}

	e.cron.Start()
	e.log.Info().
		Dur("sync_interval", e.cfg.SyncInterval).
		Bool("enforce_market_hours", e.cfg.EnforceMarketHours).
		Msg("Live trading engine started")
	return nil
}

// Stop cancels in-flight ticks and waits for the scheduler to drain,
// bounded by ctx.
func (e *Engine) Stop(ctx context.Context) error {
	e.cancel()

	done := e.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	e.log.Info().Msg("Live trading engine stopped")
	return nil
}

// Active returns the IDs of deployments currently scheduled.
func (e *Engine) Active() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(e.entries))
	for id := range e.entries {
		ids = append(ids, id)
	}
	return ids
}

// IsScheduled reports whether a deployment has a scheduler entry.
func (e *Engine) IsScheduled(deploymentID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.entries[deploymentID]
	return ok
}

// TickNow runs one tick for a scheduled deployment immediately,
// outside its cron cadence. Returns false when the deployment is not
// scheduled.
func (e *Engine) TickNow(deploymentID uuid.UUID) bool {
	e.mu.Lock()
	r, ok := e.runners[deploymentID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	r.tick()
	return true
}

// Sync reconciles scheduler entries against the deployments table on
// demand, without waiting for the periodic entry. The API calls this
// after creating or stopping a deployment so the schedule reacts within
// the request, not a minute later.
func (e *Engine) Sync() {
	e.sync()
}

// sync loads running deployments and reconciles the schedule: missing
// deployments get entries, entries whose deployments stopped are
// removed.
func (e *Engine) sync() {
	ctx, cancel := context.WithTimeout(e.ctx, syncTimeout)
	defer cancel()

	deployments, err := e.deps.Store.ListActiveDeployments(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to list active deployments")
		metrics.RecordError("deployment_sync_failed", "live")
		return
	}

	running := make(map[uuid.UUID]bool, len(deployments))
	for _, dep := range deployments {
		running[dep.ID] = true
		e.activate(dep)
	}

	e.mu.Lock()
	for id := range e.entries {
		if !running[id] {
			e.removeLocked(id)
			e.log.Info().Str("deployment_id", id.String()).Msg("Deployment unscheduled")
		}
	}
	count := len(e.entries)
	e.mu.Unlock()

	metrics.UpdateActiveDeployments(count)
}

// activate schedules a deployment's tick entry if it has none.
func (e *Engine) activate(dep *db.Deployment) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.entries[dep.ID]; ok {
		return
	}

	r := newRunner(e, dep)
	entryID, err := e.cron.AddFunc(everySpec(dep.ExecutionFrequency.Interval()), r.tick)
	if err != nil {
		e.log.Error().
			Err(err).
			Str("deployment_id", dep.ID.String()).
			Str("frequency", string(dep.ExecutionFrequency)).
			Msg("Failed to schedule deployment")
		return
	}

	e.runners[dep.ID] = r
	e.entries[dep.ID] = entryID

	e.log.Info().
		Str("deployment_id", dep.ID.String()).
		Str("name", dep.Name).
		Str("frequency", string(dep.ExecutionFrequency)).
		Msg("Deployment scheduled")

	if e.deps.Bus != nil {
		e.deps.Bus.Publish(bus.SubjectDeploymentStarted, map[string]interface{}{
			"deployment_id": dep.ID.String(),
			"name":          dep.Name,
			"frequency":     string(dep.ExecutionFrequency),
		})
	}
}

// deactivate removes a deployment's scheduler entry. Used by runners
// after a failed tick; sync handles ordinary stops.
func (e *Engine) deactivate(deploymentID uuid.UUID) {
	e.mu.Lock()
	e.removeLocked(deploymentID)
	count := len(e.entries)
	e.mu.Unlock()

	metrics.UpdateActiveDeployments(count)
}

func (e *Engine) removeLocked(deploymentID uuid.UUID) {
	entryID, ok := e.entries[deploymentID]
	if !ok {
		return
	}
	e.cron.Remove(entryID)
	delete(e.entries, deploymentID)
	delete(e.runners, deploymentID)
}

// everySpec renders a duration as a cron @every descriptor.
func everySpec(d time.Duration) string {
	return "@every " + d.String()
}
