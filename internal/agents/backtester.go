package agents

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/stockfunk/internal/conditions"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/sentiment"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

const dayFormat = "2006-01-02"

// Backtester prepares data and runs the simulation core for one strategy:
// bars fetched per symbol in parallel, sentiment prefetched for the whole
// window, then a single deterministic engine run.
type Backtester struct {
	provider  marketdata.Provider
	sentiment *sentiment.Service
	log       zerolog.Logger
}

// NewBacktester creates a backtest runner. The sentiment service may be nil;
// sentiment conditions then see every lookup as missing data.
func NewBacktester(provider marketdata.Provider, sentimentSvc *sentiment.Service, log zerolog.Logger) *Backtester {
	return &Backtester{
		provider:  provider,
		sentiment: sentimentSvc,
		log:       log.With().Str("component", "backtester").Logger(),
	}
}

// BacktestRequest configures one run. Start/End, when zero, derive from Days
// counted back from the current time. SessionID stamps any sentiment cache
// rows the run touches so a later bot save can link them.
type BacktestRequest struct {
	Spec           *strategy.Spec
	Days           int
	InitialCapital float64
	Start          time.Time
	End            time.Time
	SessionID      string
}

// Run executes the backtest. Symbols whose market data is unavailable are
// skipped with a warning; the run fails only when no symbol yields data.
func (b *Backtester) Run(ctx context.Context, req BacktestRequest) (*backtest.Result, error) {
	start, end := req.Start, req.End
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		days := req.Days
		if days <= 0 {
			days = 90
		}
		start = end.AddDate(0, 0, -days)
	}

	bars := b.fetchBars(ctx, req.Spec.Assets, start, end)

	var lookup conditions.SentimentLookup
	if req.Spec.UsesSentiment() {
		lookup = b.sentimentLookup(ctx, req.Spec, start, end, req.SessionID)
	}

	engine := backtest.NewEngine(backtest.Config{
		Spec:           req.Spec,
		InitialCapital: req.InitialCapital,
		Start:          start,
		End:            end,
		Sentiment:      lookup,
	}, b.provider)

	for symbol, symbolBars := range bars {
		if err := engine.LoadBars(symbol, symbolBars); err != nil {
			return nil, err
		}
	}

	runStart := time.Now()
	result, err := engine.Run(ctx)
	metrics.RecordBacktest(err == nil, float64(time.Since(runStart).Milliseconds()))
	if err != nil {
		return nil, err
	}

	b.log.Info().
		Str("strategy", req.Spec.Name).
		Time("start", start).
		Time("end", end).
		Int("total_trades", result.Summary.TotalTrades).
		Float64("total_return_pct", result.Summary.TotalReturnPct).
		Msg("Backtest finished")

	return result, nil
}

// fetchBars loads daily bars for every asset in parallel. Upstream failures
// skip the symbol; the engine re-attempts anything missing and decides
// whether enough data remains.
func (b *Backtester) fetchBars(ctx context.Context, symbols []string, start, end time.Time) map[string][]marketdata.Bar {
	out := make(map[string][]marketdata.Bar, len(symbols))
	if b.provider == nil {
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			bars, err := b.provider.GetBars(gctx, symbol, marketdata.TimeframeDay, start, end)
			if err != nil {
				var upstream *marketdata.UpstreamDataError
				if errors.As(err, &upstream) {
					b.log.Warn().Err(err).Str("symbol", symbol).Msg("Market data unavailable, skipping symbol")
					return nil
				}
				return err
			}
			if len(bars) == 0 {
				b.log.Warn().Str("symbol", symbol).Msg("No bars in range, skipping symbol")
				return nil
			}
			mu.Lock()
			out[symbol] = bars
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		b.log.Warn().Err(err).Msg("Parallel bar loading aborted")
	}
	return out
}

// sentimentLookup prefetches per-day sentiment for the whole window and
// returns a pure lookup over the prefetched scores. The source is resolved
// once: an explicit "source" entry parameter wins, else the strategy's first
// data source. Strictness holds: only that source's data is consulted, and a
// missing day stays missing.
func (b *Backtester) sentimentLookup(ctx context.Context, spec *strategy.Spec, start, end time.Time, sessionID string) conditions.SentimentLookup {
	if b.sentiment == nil {
		return nil
	}

	source := sentiment.Source(spec.ParamString("source", ""))
	if !source.Valid() {
		sources := spec.Sources()
		if len(sources) == 0 {
			return nil
		}
		source = sentiment.Source(sources[0])
		if !source.Valid() {
			b.log.Warn().Str("source", sources[0]).Msg("Unknown sentiment source, lookups will miss")
			return nil
		}
	}

	scores := make(map[string]map[string]float64, len(spec.Assets))
	for _, symbol := range spec.Assets {
		got, err := b.sentiment.Scores(ctx, sentiment.ScoreRequest{
			Symbol:    symbol,
			Source:    source,
			Start:     start,
			End:       end,
			SessionID: sessionID,
		})
		if err != nil {
			b.log.Warn().Err(err).Str("symbol", symbol).Str("source", string(source)).
				Msg("Sentiment unavailable for symbol")
			continue
		}
		scores[symbol] = got
	}

	return func(symbol string, date time.Time) (float64, bool) {
		days, ok := scores[symbol]
		if !ok {
			return 0, false
		}
		v, ok := days[date.Format(dayFormat)]
		return v, ok
	}
}
