// Package backtest simulates trading strategies over daily bars. The
// engine drives a simulated broker through the union of trading dates,
// feeds each day's bars to the strategy runtime, executes the signals,
// and assembles metrics, trade records, and per-day diagnostics. Runs
// are deterministic: identical bars and strategy produce identical
// results.
package backtest

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
	"github.com/ajitpratap0/stockfunk/internal/trading"
)

// lotEpsilon absorbs float64 dust when a lot is sold down to zero.
const lotEpsilon = 1e-9

// ============================================================================
// CONFIGURATION
// ============================================================================

// Config configures one backtest run.
type Config struct {
	// Spec is the normalized strategy to simulate.
	Spec *strategy.Spec

	// InitialCapital is the starting cash.
	InitialCapital float64

	// Start and End bound the simulation inclusively.
	Start time.Time
	End   time.Time

	// Benchmark is the symbol for the buy-and-hold comparison.
	// Defaults to the strategy's first asset.
	Benchmark string

	// Sentiment resolves per-day sentiment scores. Nil when the
	// strategy consumes none; evaluators then see every query as
	// missing data.
	Sentiment conditions.SentimentLookup
}

// Engine executes one backtest. Construct with NewEngine, optionally
// pre-load bars with LoadBars, then call Run once.
type Engine struct {
	cfg      Config
	provider marketdata.Provider

	broker  *broker.PaperBroker
	runtime *trading.SpecRuntime

	data map[string][]marketdata.Bar

	openLots map[string]*openLot
	trades   []TradeRecord
	history  []PortfolioPoint
	dayInfo  []DayInfo
}

// openLot tracks the entry side of a round-trip until it is fully sold.
type openLot struct {
	entryDate   time.Time
	entryPrice  float64
	shares      float64
	entryReason string
}

// NewEngine creates a backtest engine. The provider supplies bars for
// any asset not pre-loaded via LoadBars and may be nil when all data
// is pre-loaded.
func NewEngine(cfg Config, provider marketdata.Provider) *Engine {
	return &Engine{
		cfg:      cfg,
		provider: provider,
		data:     make(map[string][]marketdata.Bar),
		openLots: make(map[string]*openLot),
	}
}

// ============================================================================
// DATA LOADING
// ============================================================================

// LoadBars supplies historical bars for a symbol, replacing any prior
// load. Bars are sorted by timestamp; empty input is an error.
func (e *Engine) LoadBars(symbol string, bars []marketdata.Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("backtest: no bars provided for %s", symbol)
	}

	sorted := append([]marketdata.Bar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	e.data[symbol] = sorted

	log.Debug().
		Str("symbol", symbol).
		Int("bars", len(sorted)).
		Time("start", sorted[0].Timestamp).
		Time("end", sorted[len(sorted)-1].Timestamp).
		Msg("Loaded bars for backtest")
	return nil
}

// loadMissingData fetches daily bars for every asset that was not
// pre-loaded. A symbol whose fetch fails upstream is skipped with a
// warning; the simulation proceeds on the remaining symbols.
func (e *Engine) loadMissingData(ctx context.Context) error {
	for _, symbol := range e.cfg.Spec.Assets {
		if _, ok := e.data[symbol]; ok {
			continue
		}
		if e.provider == nil {
			return fmt.Errorf("backtest: no bars loaded for %s and no market data provider", symbol)
		}

		bars, err := e.provider.GetBars(ctx, symbol, marketdata.TimeframeDay, e.cfg.Start, e.cfg.End)
		if err != nil {
			var upstream *marketdata.UpstreamDataError
			if errors.As(err, &upstream) {
				log.Warn().Err(err).Str("symbol", symbol).Msg("Market data unavailable, skipping symbol")
				continue
			}
			return err
		}
		if len(bars) == 0 {
			log.Warn().Str("symbol", symbol).Msg("No bars in range, skipping symbol")
			continue
		}
		if err := e.LoadBars(symbol, bars); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// SIMULATION LOOP
// ============================================================================

// Run executes the backtest and returns the assembled result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	spec := e.cfg.Spec
	switch {
	case spec == nil:
		return nil, fmt.Errorf("backtest: nil strategy spec")
	case len(spec.Assets) == 0:
		return nil, fmt.Errorf("backtest: strategy has no assets")
	case e.cfg.InitialCapital <= 0:
		return nil, fmt.Errorf("backtest: initial capital must be positive")
	}

	if err := e.loadMissingData(ctx); err != nil {
		return nil, err
	}

	days, barsByDay := e.tradingDays()
	if len(days) == 0 {
		return nil, fmt.Errorf("backtest: no bars for any asset in range")
	}

	e.broker = broker.NewPaperBroker(e.cfg.InitialCapital)
	e.runtime = trading.NewSpecRuntime(spec, e.broker, e.cfg.Sentiment)
	if err := e.runtime.Initialize(ctx); err != nil {
		return nil, err
	}

	log.Info().
		Str("strategy", spec.Name).
		Float64("initial_capital", e.cfg.InitialCapital).
		Int("trading_days", len(days)).
		Int("assets", len(e.data)).
		Msg("Starting backtest")

	benchmark := e.benchmarkSymbol()
	benchShares := 0.0
	benchClose := 0.0

	for _, day := range days {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		bars := barsByDay[day.Format(dayFormat)]
		for _, symbol := range sortedSymbols(bars) {
			e.broker.SetMarketPrice(symbol, bars[symbol].Close)
		}

		signals, err := e.runtime.GenerateSignals(ctx, bars)
		if err != nil {
			return nil, fmt.Errorf("backtest: signal generation on %s: %w", day.Format(dayFormat), err)
		}

		execs, err := trading.ExecuteSignals(ctx, e.broker, spec, signals)
		if err != nil {
			log.Warn().Err(err).Str("date", day.Format(dayFormat)).Msg("Signal execution failed")
		}
		e.recordExecutions(day, execs)

		if bar, ok := bars[benchmark]; ok {
			if benchShares == 0 {
				benchShares = e.cfg.InitialCapital / bar.Close
			}
			benchClose = bar.Close
		}
		e.recordPortfolioPoint(ctx, day, benchClose, benchShares)
		e.recordDayInfo(ctx, day, bars)
	}

	e.forceCloseOpenPositions(ctx, days[len(days)-1])

	summary := computeSummary(e.cfg.InitialCapital, e.history, e.trades)

	log.Info().
		Str("strategy", spec.Name).
		Float64("final_equity", summary.FinalEquity).
		Float64("total_return_pct", summary.TotalReturnPct).
		Int("total_trades", summary.TotalTrades).
		Msg("Backtest complete")

	return &Result{
		Summary:          summary,
		PortfolioHistory: e.history,
		Trades:           e.trades,
		AdditionalInfo:   e.dayInfo,
		ExitAnalysis:     analyzeExits(e.trades),
	}, nil
}

// tradingDays builds the ordered union of trading dates across all
// loaded symbols, plus a per-day index of bars.
func (e *Engine) tradingDays() ([]time.Time, map[string]map[string]marketdata.Bar) {
	byDay := make(map[string]map[string]marketdata.Bar)
	for symbol, bars := range e.data {
		for _, bar := range bars {
			key := bar.Timestamp.Format(dayFormat)
			if byDay[key] == nil {
				byDay[key] = make(map[string]marketdata.Bar)
			}
			byDay[key][symbol] = bar
		}
	}

	keys := make([]string, 0, len(byDay))
	for key := range byDay {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	days := make([]time.Time, 0, len(keys))
	for _, key := range keys {
		day, err := time.Parse(dayFormat, key)
		if err != nil {
			continue
		}
		days = append(days, day)
	}
	return days, byDay
}

// benchmarkSymbol resolves the buy-and-hold benchmark, preferring the
// configured symbol and falling back to the first asset with data.
func (e *Engine) benchmarkSymbol() string {
	if e.cfg.Benchmark != "" {
		return e.cfg.Benchmark
	}
	for _, symbol := range e.cfg.Spec.Assets {
		if _, ok := e.data[symbol]; ok {
			return symbol
		}
	}
	return ""
}

// forceCloseOpenPositions liquidates whatever remains at the final
// close and records the synthetic end-of-period trades.
func (e *Engine) forceCloseOpenPositions(ctx context.Context, lastDay time.Time) {
	positions, err := e.broker.GetAllPositions(ctx)
	if err != nil || len(positions) == 0 {
		return
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})

	for _, pos := range positions {
		order, err := e.broker.ClosePosition(ctx, pos.Symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Failed to close position at end of period")
			continue
		}
		e.recordSale(lastDay, trading.Signal{
			Symbol:     pos.Symbol,
			Action:     trading.ActionSell,
			Reason:     "open at end of period",
			ExitReason: conditions.ReasonEndOfPeriod,
		}, order)
	}
}

// ============================================================================
// TRADE RECORDING
// ============================================================================

// recordExecutions folds the day's filled orders into the open-lot
// ledger and the trade list. Rejected and pending orders change
// nothing.
func (e *Engine) recordExecutions(day time.Time, execs []trading.Execution) {
	for _, exec := range execs {
		order := exec.Order
		if order == nil || order.Status != broker.OrderStatusFilled {
			continue
		}
		switch order.Side {
		case broker.OrderSideBuy:
			e.recordPurchase(day, exec.Signal, order)
		case broker.OrderSideSell:
			e.recordSale(day, exec.Signal, order)
		}
	}
}

// recordPurchase opens or extends the symbol's lot at a
// weighted-average entry. The first buy's date and reason identify the
// round-trip.
func (e *Engine) recordPurchase(day time.Time, sig trading.Signal, order *broker.Order) {
	lot, ok := e.openLots[order.Symbol]
	if !ok {
		e.openLots[order.Symbol] = &openLot{
			entryDate:   day,
			entryPrice:  order.FilledAvgPrice,
			shares:      order.FilledQty,
			entryReason: sig.Reason,
		}
		return
	}

	total := lot.shares + order.FilledQty
	lot.entryPrice = (lot.entryPrice*lot.shares + order.FilledAvgPrice*order.FilledQty) / total
	lot.shares = total
}

// recordSale closes all or part of the symbol's lot as one round-trip
// record.
func (e *Engine) recordSale(day time.Time, sig trading.Signal, order *broker.Order) {
	lot, ok := e.openLots[order.Symbol]
	if !ok {
		log.Warn().Str("symbol", order.Symbol).Msg("Sell fill without a tracked entry, not recorded")
		return
	}

	exitReason := sig.ExitReason
	if exitReason == "" {
		exitReason = conditions.ReasonSignalExit
	}

	qty := order.FilledQty
	pnl := (order.FilledAvgPrice - lot.entryPrice) * qty
	pnlPct := 0.0
	if lot.entryPrice > 0 {
		pnlPct = (order.FilledAvgPrice - lot.entryPrice) / lot.entryPrice * 100
	}

	e.trades = append(e.trades, TradeRecord{
		Symbol:      order.Symbol,
		EntryDate:   lot.entryDate.Format(dayFormat),
		ExitDate:    day.Format(dayFormat),
		EntryPrice:  lot.entryPrice,
		ExitPrice:   order.FilledAvgPrice,
		Shares:      qty,
		PnL:         pnl,
		PnLPct:      pnlPct,
		EntryReason: lot.entryReason,
		ExitReason:  exitReason,
		DaysHeld:    int(day.Sub(lot.entryDate).Hours() / 24),
	})

	lot.shares -= qty
	if lot.shares <= lotEpsilon {
		delete(e.openLots, order.Symbol)
	}
}

// ============================================================================
// PER-DAY RECORDS
// ============================================================================

// recordPortfolioPoint appends the day's equity snapshot.
func (e *Engine) recordPortfolioPoint(ctx context.Context, day time.Time, benchClose, benchShares float64) {
	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to snapshot account")
		return
	}

	e.history = append(e.history, PortfolioPoint{
		Date:           day.Format(dayFormat),
		PortfolioValue: account.PortfolioValue,
		Cash:           account.Cash,
		PositionsValue: account.PortfolioValue - account.Cash,
		Price:          benchClose,
		BuyHoldValue:   benchShares * benchClose,
	})
}

// recordDayInfo appends one diagnostic row per symbol traded today,
// reflecting the position state after the day's executions.
func (e *Engine) recordDayInfo(ctx context.Context, day time.Time, bars map[string]marketdata.Bar) {
	spec := e.cfg.Spec
	for _, symbol := range sortedSymbols(bars) {
		bar := bars[symbol]
		info := DayInfo{
			Date:       day.Format(dayFormat),
			Symbol:     symbol,
			Close:      bar.Close,
			Indicators: e.indicatorRow(symbol),
		}

		if spec.UsesSentiment() && e.cfg.Sentiment != nil {
			if v, ok := e.cfg.Sentiment(symbol, day); ok {
				info.Sentiment = &v
			}
		}

		if pos, err := e.broker.GetPosition(ctx, symbol); err == nil {
			info.HasPosition = true
			info.EntryPrice = pos.AvgEntryPrice
			info.UnrealizedPL = pos.UnrealizedPL

			st, partial := e.runtime.ExitState(symbol)
			partial = partial && st.PartialExitDone
			if spec.Exit.StopLoss > 0 {
				if partial {
					info.StopLossLevel = st.HighSincePartial * (1 - spec.Exit.StopLoss)
				} else {
					info.StopLossLevel = pos.AvgEntryPrice * (1 - spec.Exit.StopLoss)
				}
			}
			if spec.Exit.TakeProfit > 0 && !partial {
				info.TakeProfitLevel = pos.AvgEntryPrice * (1 + spec.Exit.TakeProfit)
			}
		}

		e.dayInfo = append(e.dayInfo, info)
	}
}

// indicatorRow captures the indicator values behind the strategy's
// entry condition, when available on the current bar.
func (e *Engine) indicatorRow(symbol string) map[string]float64 {
	spec := e.cfg.Spec
	eng := e.runtime.Indicators()

	switch spec.EntrySignal {
	case strategy.SignalRSI:
		period := int(spec.Param("period", indicators.DefaultRSIPeriod))
		if v, ok := eng.RSI(symbol, period); ok {
			return map[string]float64{"rsi": v}
		}

	case strategy.SignalMACD:
		fast := int(spec.Param("fast_period", indicators.DefaultMACDFast))
		slow := int(spec.Param("slow_period", indicators.DefaultMACDSlow))
		signal := int(spec.Param("signal_period", indicators.DefaultMACDSignal))
		if res, ok := eng.MACD(symbol, fast, slow, signal); ok {
			return map[string]float64{
				"macd":        res.MACD,
				"macd_signal": res.Signal,
				"macd_hist":   res.Histogram,
			}
		}

	case strategy.SignalSMA:
		fast := int(spec.Param("fast_period", 10))
		slow := int(spec.Param("slow_period", 20))
		if res, ok := eng.SMACross(symbol, fast, slow); ok {
			return map[string]float64{
				"sma_fast": res.Fast,
				"sma_slow": res.Slow,
			}
		}

	case strategy.SignalPrice:
		if spec.ParamString("trigger", "any") == "breakout" {
			period := int(spec.Param("breakout_period", 20))
			if v, ok := eng.PriorHigh(symbol, period); ok {
				return map[string]float64{"breakout_high": v}
			}
		}
	}
	return nil
}

func sortedSymbols(bars map[string]marketdata.Bar) []string {
	symbols := make([]string, 0, len(bars))
	for symbol := range bars {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
