// The backtest binary runs one strategy spec against historical bars
// from the command line. It prints the result summary as JSON, can
// save the full HTML report, and supports grid-search parameter
// optimization over the same spec.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

var (
	configPath   = flag.String("config", "", "path to config file")
	strategyPath = flag.String("strategy", "", "path to strategy spec (YAML or JSON, required)")

	days      = flag.Int("days", 0, "lookback window in calendar days (default from config)")
	startDate = flag.String("start", "", "start date YYYY-MM-DD (overrides -days)")
	endDate   = flag.String("end", "", "end date YYYY-MM-DD (default today)")
	capital   = flag.Float64("capital", 0, "initial capital (default from config)")

	reportFile = flag.String("report", "", "write the HTML report to this file")
	outputFile = flag.String("output", "", "write the full result JSON to this file")

	optimize  = flag.String("optimize", "", `grid search spec, e.g. "take_profit=3,5,8;stop_loss=2,4"`)
	objective = flag.String("objective", "sharpe", "optimization objective (sharpe, return, profit_factor, drawdown, balanced)")

	verbose = flag.Bool("verbose", false, "enable debug logging")
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *strategyPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -strategy flag is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	spec, err := strategy.ImportFromFile(*strategyPath, strategy.DefaultImportOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load strategy spec")
	}

	start, end, err := resolveWindow(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid date range")
	}

	initialCapital := *capital
	if initialCapital <= 0 {
		initialCapital = cfg.Workflow.InitialCapital
	}

	provider := buildMarketData(cfg)
	if provider == nil {
		log.Fatal().Msg("No market data provider configured (set ALPACA_API_KEY and ALPACA_API_SECRET)")
	}

	log.Info().
		Str("strategy", spec.Name).
		Strs("symbols", spec.Assets).
		Str("start", start.Format("2006-01-02")).
		Str("end", end.Format("2006-01-02")).
		Float64("capital", initialCapital).
		Msg("Starting backtest")

	ctx := context.Background()
	if *optimize != "" {
		err = runOptimization(ctx, spec, provider, start, end, initialCapital)
	} else {
		err = runBacktest(ctx, spec, provider, start, end, initialCapital)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}
}

// resolveWindow turns the date flags into an inclusive [start, end]
// range. -start/-end win over -days; -days falls back to the config
// default.
func resolveWindow(cfg *config.Config) (time.Time, time.Time, error) {
	end := time.Now()
	if *endDate != "" {
		parsed, err := time.Parse("2006-01-02", *endDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q (use YYYY-MM-DD)", *endDate)
		}
		end = parsed
	}

	if *startDate != "" {
		start, err := time.Parse("2006-01-02", *startDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q (use YYYY-MM-DD)", *startDate)
		}
		if !start.Before(end) {
			return time.Time{}, time.Time{}, fmt.Errorf("start date must precede end date")
		}
		return start, end, nil
	}

	window := *days
	if window <= 0 {
		window = cfg.Workflow.BacktestDays
	}
	return end.AddDate(0, 0, -window), end, nil
}

func runBacktest(ctx context.Context, spec *strategy.Spec, provider marketdata.Provider, start, end time.Time, initialCapital float64) error {
	engine := backtest.NewEngine(backtest.Config{
		Spec:           spec,
		InitialCapital: initialCapital,
		Start:          start,
		End:            end,
	}, provider)

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	summary, err := json.MarshalIndent(result.Summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(summary))

	if *outputFile != "" {
		full, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(*outputFile, full, 0644); err != nil {
			return fmt.Errorf("failed to write result file: %w", err)
		}
		log.Info().Str("file", *outputFile).Msg("Result written")
	}

	if *reportFile != "" {
		gen, err := backtest.NewReportGenerator(spec.Name, result)
		if err != nil {
			return err
		}
		if err := gen.SaveToFile(*reportFile); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		log.Info().Str("file", *reportFile).Msg("Report written")
	}

	return nil
}

func runOptimization(ctx context.Context, spec *strategy.Spec, provider marketdata.Provider, start, end time.Time, initialCapital float64) error {
	params, err := parseParameters(*optimize)
	if err != nil {
		return err
	}

	obj, err := resolveObjective(*objective)
	if err != nil {
		return err
	}

	// Fetch bars once; every grid point replays the same data.
	data := make(map[string][]marketdata.Bar, len(spec.Assets))
	for _, symbol := range spec.Assets {
		bars, err := provider.GetBars(ctx, symbol, marketdata.TimeframeDay, start, end)
		if err != nil {
			return fmt.Errorf("failed to load bars for %s: %w", symbol, err)
		}
		data[symbol] = bars
	}

	opt := backtest.NewGridSearchOptimizer(spec, params, obj, initialCapital)
	summary, err := opt.Optimize(ctx, data)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, out, 0644); err != nil {
			return fmt.Errorf("failed to write result file: %w", err)
		}
		log.Info().Str("file", *outputFile).Msg("Result written")
	}
	return nil
}

// parseParameters parses "name=v1,v2;name2=v3,v4" into the search grid.
func parseParameters(s string) ([]backtest.Parameter, error) {
	var params []backtest.Parameter
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, list, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q (expected name=v1,v2)", part)
		}

		var values []float64
		for _, raw := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q for parameter %s", raw, name)
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("parameter %s has no values", name)
		}
		params = append(params, backtest.Parameter{Name: strings.TrimSpace(name), Values: values})
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("no optimization parameters given")
	}
	return params, nil
}

func resolveObjective(name string) (backtest.ObjectiveFunction, error) {
	switch strings.ToLower(name) {
	case "sharpe":
		return backtest.MaximizeSharpeRatio, nil
	case "return":
		return backtest.MaximizeTotalReturn, nil
	case "profit_factor":
		return backtest.MaximizeProfitFactor, nil
	case "drawdown":
		return backtest.MinimizeDrawdown, nil
	case "balanced":
		return backtest.BalancedObjective, nil
	default:
		return nil, fmt.Errorf("unknown objective %q (available: sharpe, return, profit_factor, drawdown, balanced)", name)
	}
}

func buildMarketData(cfg *config.Config) marketdata.Provider {
	if cfg.Broker.APIKey == "" || cfg.Broker.APISecret == "" {
		return nil
	}

	alpaca, err := marketdata.NewAlpacaProvider(marketdata.AlpacaConfig{
		APIKey:    cfg.Broker.APIKey,
		APISecret: cfg.Broker.APISecret,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize market data provider")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Debug().Err(err).Msg("Redis unavailable, market data cache disabled")
		return alpaca
	}

	return marketdata.NewCachedProvider(alpaca, client, 15*time.Minute, 10*time.Second)
}
