// The api binary serves the full trading system over HTTP: workflow
// sessions, synchronous backtests, the bot library, and deployment
// control, with the live trading engine running in-process so status
// changes take effect within a request.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/alerts"
	"github.com/ajitpratap0/stockfunk/internal/api"
	"github.com/ajitpratap0/stockfunk/internal/audit"
	"github.com/ajitpratap0/stockfunk/internal/broker"
	"github.com/ajitpratap0/stockfunk/internal/bus"
	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/live"
	"github.com/ajitpratap0/stockfunk/internal/llm"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/resilience"
	"github.com/ajitpratap0/stockfunk/internal/sentiment"
	"github.com/ajitpratap0/stockfunk/internal/workflow"
)

// paperInitialCash seeds the simulated broker account when no real
// broker is configured.
const paperInitialCash = 1_000_000

func main() {
	configPath := flag.String("config", "", "path to config file")
	verify := flag.Bool("verify", false, "verify dependency connectivity and API keys at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().Str("version", cfg.App.Version).Msg("Starting StockFunk API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.LoadSecretsFromVault(ctx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
	}

	validatorOpts := config.DefaultValidatorOptions()
	validatorOpts.VerifyConnectivity = *verify
	validatorOpts.VerifyAPIKeys = *verify
	if err := config.NewValidator(cfg, validatorOpts).ValidateStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	setupAlerts(cfg)

	if cfg.Monitoring.EnableMetrics {
		metricsServer := metrics.NewServer(cfg.Monitoring.MetricsPort, log.Logger)
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start metrics server")
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Failed to stop metrics server")
				}
			}()
		}
	}

	// Database is optional: without it the workflow and backtest
	// endpoints still work, persistence-backed ones report unavailable.
	database, err := db.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database, continuing without persistence")
		database = nil
	}
	defer func() {
		if database != nil {
			database.Close()
		}
	}()

	var publisher *bus.Publisher
	if cfg.NATS.Enabled {
		publisher, err = bus.Connect(cfg.NATS.URL, log.Logger)
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to NATS, continuing without event bus")
		} else {
			defer publisher.Close()
		}
	}

	// The workflow loop and backtest endpoint cannot run without bars.
	provider := buildMarketData(cfg)
	if provider == nil {
		log.Fatal().Msg("No market data provider configured (set ALPACA_API_KEY and ALPACA_API_SECRET)")
	}
	brk := buildBroker(cfg, provider)
	sentimentSvc := buildSentiment(cfg, database)

	breakers := resilience.NewBreakerManager()
	oracle := llm.NewClient(llm.ClientConfig{
		Endpoint:    cfg.LLM.Endpoint,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.GetTimeout(),
		Breaker:     breakers.Oracle(),
	})

	backtester := agents.NewBacktester(provider, sentimentSvc, log.Logger)

	workflowDeps := workflow.Deps{
		Generator:   agents.NewGenerator(oracle, log.Logger),
		Backtester:  backtester,
		Analyst:     agents.NewAnalyst(oracle, log.Logger),
		Insights:    agents.NewInsightsAgent(oracle, log.Logger),
		Recommender: agents.NewRecommender(log.Logger),
		Bus:         publisher,
	}
	if database != nil {
		workflowDeps.Bots = database
		workflowDeps.Datasets = db.NewDatasetStoreFromDB(database)
	}

	workflowEngine := workflow.New(workflow.Config{
		MaxIterations:   cfg.Workflow.MaxIterations,
		MaxWallTime:     cfg.Workflow.GetMaxWallTime(),
		InsightsTimeout: cfg.Workflow.GetInsightsTimeout(),
		Heartbeat:       cfg.Workflow.GetHeartbeatInterval(),
		EventBuffer:     cfg.Workflow.EventBuffer,
		ResultTTL:       cfg.Workflow.GetResultTTL(),
		BacktestDays:    cfg.Workflow.BacktestDays,
		InitialCapital:  cfg.Workflow.InitialCapital,
	}, workflowDeps, log.Logger)
	defer workflowEngine.Shutdown(context.Background())

	deps := api.Deps{
		Workflow:   workflowEngine,
		Backtester: backtester,
		Broker:     brk,
	}
	if database != nil {
		deps.Store = database
		deps.Audit = audit.NewLogger(database.Pool(), true)

		liveEngine := live.New(live.Config{
			SyncInterval:       cfg.Live.GetSyncInterval(),
			TickTimeout:        cfg.Live.GetTickTimeout(),
			EnforceMarketHours: cfg.Live.EnforceMarketHours,
		}, live.Deps{
			Store:     database,
			Broker:    brk,
			Bus:       publisher,
			Sentiment: sentimentSvc,
		}, log.Logger)
		if err := liveEngine.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start live engine, deployments will not tick")
		} else {
			deps.Live = liveEngine
			defer liveEngine.Stop(context.Background())
		}
	}

	server := api.NewServer(api.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
	}, deps)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("Server error")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop server gracefully")
		os.Exit(1)
	}
	log.Info().Msg("Server stopped")
}

// setupAlerts wires the operator alert channels. Logging is always on;
// Telegram joins when configured.
func setupAlerts(cfg *config.Config) {
	alerters := []alerts.Alerter{alerts.NewLogAlerter()}
	if cfg.Alerts.Telegram.Enabled && cfg.Alerts.Telegram.BotToken != "" {
		tg, err := alerts.NewTelegramAlerter(cfg.Alerts.Telegram.BotToken, []int64{cfg.Alerts.Telegram.ChatID})
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Telegram alerter")
		} else {
			alerters = append(alerters, tg)
		}
	}
	alerts.SetDefaultManager(alerts.NewManager(alerters...))
}

// buildMarketData constructs the bar/price provider: Alpaca when
// credentials are present, wrapped in the Redis read-through cache when
// Redis is reachable. Nil when no credentials are configured.
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
		log.Warn().Err(err).Msg("Redis unavailable, market data cache disabled")
		return alpaca
	}

	return marketdata.NewCachedProvider(alpaca, client, 15*time.Minute, 10*time.Second)
}

// buildBroker selects the order router: the Alpaca trading API when
// configured, otherwise the in-process paper broker.
func buildBroker(cfg *config.Config, data marketdata.Provider) broker.Broker {
	if cfg.Broker.Provider == "alpaca" {
		baseURL := cfg.Broker.BaseURL
		if baseURL == "" && cfg.Broker.Paper {
			baseURL = "https://paper-api.alpaca.markets"
		}
		b, err := broker.NewAlpacaBroker(broker.AlpacaConfig{
			APIKey:    cfg.Broker.APIKey,
			APISecret: cfg.Broker.APISecret,
			BaseURL:   baseURL,
		}, data)
		if err == nil {
			return b
		}
		log.Error().Err(err).Msg("Failed to initialize Alpaca broker, falling back to paper")
	}
	return broker.NewPaperBrokerWithData(paperInitialCash, data)
}

// buildSentiment wires the sentiment service: the dataset cache in
// front of the configured retrievers. Disabled sources stay nil and
// evaluate as missing data.
func buildSentiment(cfg *config.Config, database *db.DB) *sentiment.Service {
	var cache sentiment.DatasetCache
	if database != nil {
		cache = db.NewDatasetStoreFromDB(database)
	}

	var reddit sentiment.Retriever
	if cfg.Sentiment.Reddit.Enabled {
		reddit = sentiment.NewRedditClient(sentiment.RedditConfig{
			BaseURL: cfg.Sentiment.Reddit.BaseURL,
		}, nil, sentiment.NewPacer(
			cfg.Sentiment.Reddit.RateLimit.Calls,
			cfg.Sentiment.Reddit.RateLimit.GetWindow(),
		))
	}

	var news sentiment.Retriever
	if cfg.Sentiment.News.Enabled && cfg.Broker.APIKey != "" {
		client := alpacamd.NewClient(alpacamd.ClientOpts{
			APIKey:    cfg.Broker.APIKey,
			APISecret: cfg.Broker.APISecret,
		})
		news = sentiment.NewNewsClient(client, nil, nil)
	}

	return sentiment.NewService(cache, reddit, news)
}
