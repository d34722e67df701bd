package live

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stockfunk/internal/alerts"
	"github.com/ajitpratap0/stockfunk/internal/broker"
	"github.com/ajitpratap0/stockfunk/internal/bus"
	"github.com/ajitpratap0/stockfunk/internal/conditions"
	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/indicators"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/risk"
	"github.com/ajitpratap0/stockfunk/internal/sentiment"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
)

// defaultPositionFraction sizes entries when the deployment sets no
// MaxPositionSize: 10% of virtual cash per position.
const defaultPositionFraction = 0.10

// failTimeout bounds the error-path writes after a failed tick. The
// tick context may already be expired by then, so fail uses its own.
const failTimeout = 10 * time.Second

// runner executes one deployment's ticks. Exit state survives between
// ticks so partial take-profits and trailing stops track across bars;
// everything else is rebuilt fresh each tick from the database and the
// broker.
type runner struct {
	engine       *Engine
	deploymentID uuid.UUID
	name         string
	log          zerolog.Logger

	// mu makes ticks non-overlapping: a tick that arrives while the
	// previous one still runs is skipped, never queued.
	mu    sync.Mutex
	exits map[string]*conditions.ExitState

	// day pins each trading day's opening portfolio value, the baseline
	// for the deployment's daily loss limit.
	day risk.DayTracker
}

func newRunner(e *Engine, dep *db.Deployment) *runner {
	return &runner{
		engine:       e,
		deploymentID: dep.ID,
		name:         dep.Name,
		log: e.log.With().
			Str("deployment_id", dep.ID.String()).
			Str("name", dep.Name).
			Logger(),
		exits: make(map[string]*conditions.ExitState),
	}
}

// tick runs one scheduled evaluation.
func (r *runner) tick() {
	if !r.mu.TryLock() {
		r.log.Warn().Msg("Previous tick still running, skipping")
		metrics.RecordTick(metrics.TickResultSkipped, 0)
		return
	}
	defer r.mu.Unlock()

	if r.engine.cfg.EnforceMarketHours && !IsMarketOpen(r.engine.now()) {
		metrics.RecordTick(metrics.TickResultClosed, 0)
		return
	}

	ctx, cancel := context.WithTimeout(r.engine.ctx, r.engine.cfg.TickTimeout)
	defer cancel()

	started := time.Now()
	if err := r.execute(ctx); err != nil {
		metrics.RecordTick(metrics.TickResultError, float64(time.Since(started).Milliseconds()))
		r.log.Error().Err(err).Msg("Tick failed, stopping deployment")
		r.fail(err)
		return
	}
	metrics.RecordTick(metrics.TickResultOK, float64(time.Since(started).Milliseconds()))
}

// execute evaluates the strategy once: rebuild the virtual portfolio
// from filled trades, warm indicators from daily bars plus the current
// price, evaluate exits for held symbols and entries for flat ones,
// then snapshot positions, metrics, and capital.
func (r *runner) execute(ctx context.Context) error {
	now := r.engine.now()

	dep, err := r.engine.deps.Store.GetDeployment(ctx, r.deploymentID)
	if err != nil {
		return fmt.Errorf("load deployment: %w", err)
	}
	if dep.Status != db.DeploymentStatusRunning {
		// Paused or stopped since scheduling; the next sync unschedules.
		return nil
	}

	spec, err := strategy.ParseSpec(dep.Strategy)
	if err != nil {
		return fmt.Errorf("parse strategy: %w", err)
	}

	trades, err := r.engine.deps.Store.GetFilledDeploymentTrades(ctx, r.deploymentID)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	pf := ReplayTrades(dep.InitialCapital, trades)

	symbols := spec.Assets
	if len(symbols) == 0 {
		symbols = dep.Symbols
	}
	if len(symbols) == 0 {
		return errors.New("deployment has no symbols")
	}

	ind := indicators.NewEngine()
	prices := make(map[string]float64, len(symbols))
	warmupStart := now.AddDate(0, 0, -r.engine.cfg.WarmupDays)
	for _, symbol := range symbols {
		bars, err := r.engine.deps.Broker.GetBars(ctx, symbol, marketdata.TimeframeDay, warmupStart, now)
		if err != nil {
			metrics.RecordBrokerAPIError(err)
			return fmt.Errorf("load bars for %s: %w", symbol, err)
		}
		for _, bar := range bars {
			ind.Update(symbol, bar.Close, bar.High)
		}

		price, err := r.engine.deps.Broker.GetCurrentPrice(ctx, symbol)
		if err != nil {
			metrics.RecordBrokerAPIError(err)
			return fmt.Errorf("current price for %s: %w", symbol, err)
		}
		ind.Update(symbol, price, price)
		prices[symbol] = price
	}

	lookup := r.sentimentLookup(ctx, spec, symbols, now)

	limits := risk.Limits{
		MaxPositions:   spec.Risk.MaxPositions,
		DailyLossLimit: dep.DailyLossLimit,
	}
	tickValue := pf.Value(prices)
	dayStart := r.day.DayStart(now, tickValue)

	// Symbols fully closed this tick; their position rows need explicit
	// zero-quantity markers so the upsert deletes them.
	closed := make(map[string]bool)

	for _, symbol := range symbols {
		price := prices[symbol]
		env := &conditions.Env{
			Symbol:    symbol,
			Date:      now,
			Close:     price,
			Engine:    ind,
			Sentiment: lookup,
		}

		if pos := pf.Position(symbol); pos != nil {
			env.Position = &broker.Position{
				Symbol:        symbol,
				Quantity:      pos.Quantity,
				AvgEntryPrice: pos.AvgEntryPrice,
				CostBasis:     pos.Quantity * pos.AvgEntryPrice,
				CurrentPrice:  price,
				MarketValue:   pos.Quantity * price,
				UnrealizedPL:  (price - pos.AvgEntryPrice) * pos.Quantity,
			}

			st := r.exitState(symbol, pos)
			st.Observe(price)

			dec := conditions.EvaluateExit(spec, env, st)
			if !dec.Exit {
				continue
			}
			qty := dec.Quantity
			if qty <= 0 || qty > pos.Quantity {
				qty = pos.Quantity
			}
			if err := r.submit(ctx, pf, broker.OrderSideSell, symbol, qty, price, dec.Reason, now, closed); err != nil {
				return err
			}
			if dec.PartialExit {
				st.MarkPartialExit(price)
			}
			continue
		}

		delete(r.exits, symbol)

		match, reason := conditions.EvaluateEntry(spec, env)
		if !match {
			continue
		}
		if dec := risk.CheckEntry(limits, risk.EntryState{
			OpenPositions:  len(pf.Symbols()),
			DayStartValue:  dayStart,
			PortfolioValue: tickValue,
		}); !dec.Allowed {
			r.log.Warn().
				Str("symbol", symbol).
				Str("reason", dec.Reason).
				Msg("Entry blocked by risk limits")
			metrics.RecordError("entry_blocked", "risk")
			continue
		}
		shares := sizeEntry(dep, pf, price)
		if shares <= 0 {
			r.log.Debug().
				Str("symbol", symbol).
				Float64("price", price).
				Float64("cash", pf.Cash).
				Msg("Entry signal but no affordable size, skipping")
			continue
		}
		if err := r.submit(ctx, pf, broker.OrderSideBuy, symbol, shares, price, reason, now, closed); err != nil {
			return err
		}
	}

	rows := pf.PositionRows(r.deploymentID, prices)
	for symbol := range closed {
		if pf.Position(symbol) == nil {
			rows = append(rows, &db.DeploymentPosition{
				DeploymentID: r.deploymentID,
				Symbol:       symbol,
			})
		}
	}
	if err := r.engine.deps.Store.UpsertDeploymentPositions(ctx, r.deploymentID, rows); err != nil {
		return fmt.Errorf("save positions: %w", err)
	}
	if err := r.engine.deps.Store.InsertDeploymentMetrics(ctx, pf.MetricsRow(r.deploymentID, prices, now)); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	if err := r.engine.deps.Store.UpdateDeploymentCapital(ctx, r.deploymentID, pf.Cash); err != nil {
		return fmt.Errorf("save capital: %w", err)
	}
	if err := r.engine.deps.Store.MarkDeploymentExecuted(ctx, r.deploymentID, now); err != nil {
		return fmt.Errorf("mark executed: %w", err)
	}
	return nil
}

// exitState returns the exit tracker for a held symbol, seeding it from
// the position when the runner has no memory of the entry (engine
// restart, or the position predates this process).
func (r *runner) exitState(symbol string, pos *VirtualPosition) *conditions.ExitState {
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

// sizeEntry converts an entry signal into whole shares. Allocation is
// the deployment's MaxPositionSize when set, otherwise a fraction of
// virtual cash, and never more than the cash on hand.
func sizeEntry(dep *db.Deployment, pf *Portfolio, price float64) float64 {
	if price <= 0 {
		return 0
	}
	alloc := pf.Cash * defaultPositionFraction
	if dep.MaxPositionSize != nil && *dep.MaxPositionSize > 0 {
		alloc = *dep.MaxPositionSize
	}
	if alloc > pf.Cash {
		alloc = pf.Cash
	}
	return math.Floor(alloc / price)
}

// submit routes one market order through the broker and records the
// outcome. A rejection comes back persisted and alerted but is not a
// tick error: the deployment keeps running. Only the filled status
// mutates the virtual portfolio, matching the replay filter.
func (r *runner) submit(ctx context.Context, pf *Portfolio, side broker.OrderSide, symbol string, shares, price float64, reason string, now time.Time, closed map[string]bool) error {
	started := time.Now()
	order, err := r.engine.deps.Broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     broker.OrderTypeMarket,
		Quantity: shares,
	})
	if err != nil {
		metrics.RecordBrokerAPIError(err)
		metrics.RecordOrder(string(side), "error")
		alerts.AlertOrderFailed(ctx, symbol, string(side), shares, err)
		return fmt.Errorf("submit %s %s: %w", side, symbol, err)
	}
	metrics.RecordOrderExecution(float64(time.Since(started).Milliseconds()))
	metrics.RecordOrder(string(side), string(order.Status))

	qty := order.FilledQty
	if qty <= 0 {
		qty = shares
	}
	fillPrice := order.FilledAvgPrice
	if fillPrice <= 0 {
		fillPrice = price
	}

	trade := &db.DeploymentTrade{
		DeploymentID: r.deploymentID,
		Symbol:       symbol,
		Side:         db.ConvertTradeSide(string(side)),
		Quantity:     qty,
		Price:        fillPrice,
		Notional:     qty * fillPrice,
		Status:       db.ConvertTradeStatus(string(order.Status)),
		ExecutedAt:   now,
	}
	if id := order.BrokerOrderID; id != "" {
		trade.BrokerOrderID = &id
	} else if order.ID != "" {
		id := order.ID
		trade.BrokerOrderID = &id
	}
	if reason != "" {
		trade.Reason = &reason
	}
	if err := r.engine.deps.Store.InsertDeploymentTrade(ctx, trade); err != nil {
		return fmt.Errorf("save trade: %w", err)
	}

	switch trade.Status {
	case db.TradeStatusFilled:
		pf.Apply(trade.Side, symbol, qty, fillPrice, now)
		if side == broker.OrderSideSell && pf.Position(symbol) == nil {
			closed[symbol] = true
			delete(r.exits, symbol)
		}
		r.log.Info().
			Str("symbol", symbol).
			Str("side", string(side)).
			Float64("shares", qty).
			Float64("price", fillPrice).
			Str("reason", reason).
			Msg("Order filled")
		if r.engine.deps.Bus != nil {
			r.engine.deps.Bus.Publish(bus.SubjectDeploymentTrade, map[string]interface{}{
				"deployment_id": r.deploymentID.String(),
				"symbol":        symbol,
				"side":          string(side),
				"shares":        qty,
				"price":         fillPrice,
				"reason":        reason,
			})
		}
		alerts.AlertTradeFill(ctx, r.deploymentID, r.name, symbol, string(side), qty, fillPrice)
	case db.TradeStatusRejected:
		r.log.Warn().
			Str("symbol", symbol).
			Str("side", string(side)).
			Float64("shares", shares).
			Str("reject_reason", order.RejectReason).
			Msg("Order rejected")
		alerts.AlertOrderFailed(ctx, symbol, string(side), shares, errors.New(order.RejectReason))
	}
	return nil
}

// sentimentLookup prefetches today's sentiment per symbol and returns a
// lookup closure for the evaluators. Fetch failures are logged and
// surface as missing data: no signal, never zero.
func (r *runner) sentimentLookup(ctx context.Context, spec *strategy.Spec, symbols []string, now time.Time) conditions.SentimentLookup {
	if !spec.UsesSentiment() || r.engine.deps.Sentiment == nil {
		return nil
	}

	source := sentiment.Source(spec.ParamString("source", ""))
	if source == "" {
		if srcs := spec.Sources(); len(srcs) > 0 {
			source = sentiment.Source(srcs[0])
		}
	}

	scores := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		v, ok, err := r.engine.deps.Sentiment.Score(ctx, symbol, source, now)
		if err != nil {
			r.log.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("source", string(source)).
				Msg("Sentiment fetch failed, treating as missing")
			continue
		}
		if ok {
			scores[symbol] = v
		}
	}

	return func(symbol string, _ time.Time) (float64, bool) {
		v, ok := scores[symbol]
		return v, ok
	}
}

// fail marks the deployment errored, removes it from the schedule, and
// alerts. Runs on a fresh context: the tick context may be expired.
func (r *runner) fail(tickErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), failTimeout)
	defer cancel()

	msg := tickErr.Error()
	if err := r.engine.deps.Store.UpdateDeploymentStatus(ctx, r.deploymentID, db.DeploymentStatusError, &msg); err != nil {
		r.log.Error().Err(err).Msg("Failed to mark deployment errored")
	}

	r.engine.deactivate(r.deploymentID)

	alerts.AlertDeploymentError(ctx, r.deploymentID, r.name, tickErr)
	if r.engine.deps.Bus != nil {
		r.engine.deps.Bus.Publish(bus.SubjectDeploymentError, map[string]interface{}{
			"deployment_id": r.deploymentID.String(),
			"name":          r.name,
			"error":         msg,
		})
	}
	metrics.RecordError("tick_failed", "live")
}
