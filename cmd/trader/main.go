// The trader binary runs the live trading engine on its own, without
// the REST API. It is meant for deployments where the API server and
// the execution loop scale separately; both read the same deployments
// table, so control actions issued through the API are picked up here
// on the next sync.
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

	"github.com/ajitpratap0/stockfunk/internal/alerts"
	"github.com/ajitpratap0/stockfunk/internal/broker"
	"github.com/ajitpratap0/stockfunk/internal/bus"
	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/live"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/sentiment"
)

const paperInitialCash = 1_000_000

func main() {
	configPath := flag.String("config", "", "path to config file")
	opsPort := flag.Int("ops-port", config.TraderPort, "port for health and metrics endpoints")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().Str("version", cfg.App.Version).Msg("Starting StockFunk trader")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.LoadSecretsFromVault(ctx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
	}

	validatorOpts := config.DefaultValidatorOptions()
	validatorOpts.VerifyConnectivity = false
	if err := config.NewValidator(cfg, validatorOpts).ValidateStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	setupAlerts(cfg)

	// The engine cannot run without the deployments table.
	database, err := db.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	var publisher *bus.Publisher
	if cfg.NATS.Enabled {
		publisher, err = bus.Connect(cfg.NATS.URL, log.Logger)
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to NATS, continuing without event bus")
		} else {
			defer publisher.Close()
		}
	}

	provider := buildMarketData(cfg)
	if provider == nil {
		log.Fatal().Msg("No market data provider configured")
	}

	engine := live.New(live.Config{
		SyncInterval:       cfg.Live.GetSyncInterval(),
		TickTimeout:        cfg.Live.GetTickTimeout(),
		EnforceMarketHours: cfg.Live.EnforceMarketHours,
	}, live.Deps{
		Store:     database,
		Broker:    buildBroker(cfg, provider),
		Bus:       publisher,
		Sentiment: buildSentiment(cfg, database),
	}, log.Logger)

	if err := engine.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start live engine")
	}
	defer engine.Stop(context.Background())

	ops := newOpsServer(*opsPort, database)
	ops.Start()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := ops.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop ops server gracefully")
	}
	log.Info().Msg("Trader stopped")
}

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
