package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Sentiment  SentimentConfig  `mapstructure:"sentiment"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Live       LiveConfig       `mapstructure:"live"`
	API        APIConfig        `mapstructure:"api"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // console, json
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// LLMConfig contains settings for the structured-output LLM gateway
type LLMConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`     // "https://api.openai.com/v1/chat/completions"
	Model       string  `mapstructure:"model"`        // "gpt-4o"
	APIKey      string  `mapstructure:"api_key"`      // LLM_API_KEY
	Temperature float64 `mapstructure:"temperature"`  // 0.7
	MaxTokens   int     `mapstructure:"max_tokens"`   // 2000
	Timeout     int     `mapstructure:"timeout"`      // 30000 (ms)
	MaxRetries  int     `mapstructure:"max_retries"`  // 3
}

// BrokerConfig contains broker settings. Provider "paper" uses the
// in-process simulated broker; "alpaca" talks to the Alpaca trading API.
type BrokerConfig struct {
	Provider  string `mapstructure:"provider"` // "paper" or "alpaca"
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Paper     bool   `mapstructure:"paper"`    // paper-trading endpoint when true
	BaseURL   string `mapstructure:"base_url"` // optional override
}

// SentimentConfig contains per-provider credentials and rate limits.
// Each source is consulted strictly by name; there is no cross-provider
// fallback, so each provider carries its own window settings.
type SentimentConfig struct {
	Reddit  ProviderConfig `mapstructure:"reddit"`
	Twitter ProviderConfig `mapstructure:"twitter"`
	News    ProviderConfig `mapstructure:"news"`
}

// ProviderConfig contains one sentiment/news provider's settings
type ProviderConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BearerToken  string `mapstructure:"bearer_token"`
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig describes a rolling-window call budget
type RateLimitConfig struct {
	Calls  int `mapstructure:"calls"`  // max calls per window
	Window int `mapstructure:"window"` // window length in seconds
}

// WorkflowConfig contains multi-agent workflow engine settings
type WorkflowConfig struct {
	MaxIterations     int `mapstructure:"max_iterations"`     // 5
	MaxWallTime       int `mapstructure:"max_wall_time"`      // seconds, 600
	ResultTTL         int `mapstructure:"result_ttl"`         // seconds, 86400
	HeartbeatInterval int `mapstructure:"heartbeat_interval"` // seconds, 30
	EventBuffer       int `mapstructure:"event_buffer"`       // per-session channel capacity
	InsightsTimeout   int `mapstructure:"insights_timeout"`   // seconds, 30
	BacktestDays      int `mapstructure:"backtest_days"`      // default window, 90
	InitialCapital    float64 `mapstructure:"initial_capital"`
}

// LiveConfig contains live trading engine settings
type LiveConfig struct {
	SyncInterval       int  `mapstructure:"sync_interval"`        // seconds, 60
	EnforceMarketHours bool `mapstructure:"enforce_market_hours"` // suppress ticks off-hours
	TickTimeout        int  `mapstructure:"tick_timeout"`         // seconds, per-tick budget
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AlertsConfig contains operator alert settings
type AlertsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig contains Telegram bot alert settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	EnableMetrics bool `mapstructure:"enable_metrics"`
	MetricsPort   int  `mapstructure:"metrics_port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("STOCKFUNK")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Well-known environment variables win over file values so that the
	// operator surface stays a plain env contract.
	applyEnvOverrides(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides maps the documented operator env vars onto the config.
// All are consumed once at startup.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Broker.APISecret = v
	}
	if v := os.Getenv("ALPACA_PAPER"); v != "" {
		cfg.Broker.Paper = v != "false" && v != "0"
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Sentiment.Reddit.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Sentiment.Reddit.ClientSecret = v
	}
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		cfg.Sentiment.Twitter.BearerToken = v
	}
	if v := os.Getenv("NEWS_API_KEY"); v != "" {
		cfg.Sentiment.News.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Alerts.Telegram.BotToken = v
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "StockFunk")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", PostgresPort)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "stockfunk")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", RedisPort)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.url", fmt.Sprintf("nats://localhost:%d", NATSPort))
	v.SetDefault("nats.enabled", false)

	// LLM defaults
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout", 30000)
	v.SetDefault("llm.max_retries", 3)

	// Broker defaults
	v.SetDefault("broker.provider", "paper")
	v.SetDefault("broker.paper", true)

	// Sentiment provider defaults. Reddit's public API allows 60
	// requests/minute; NewsAPI free tier allows 100/day. Twitter recent
	// search is capped at 450/15min app-auth.
	v.SetDefault("sentiment.reddit.enabled", true)
	v.SetDefault("sentiment.reddit.base_url", "https://oauth.reddit.com")
	v.SetDefault("sentiment.reddit.rate_limit.calls", 60)
	v.SetDefault("sentiment.reddit.rate_limit.window", 60)
	v.SetDefault("sentiment.twitter.enabled", false)
	v.SetDefault("sentiment.twitter.base_url", "https://api.twitter.com/2")
	v.SetDefault("sentiment.twitter.rate_limit.calls", 450)
	v.SetDefault("sentiment.twitter.rate_limit.window", 900)
	v.SetDefault("sentiment.news.enabled", true)
	v.SetDefault("sentiment.news.base_url", "https://newsapi.org/v2")
	v.SetDefault("sentiment.news.rate_limit.calls", 100)
	v.SetDefault("sentiment.news.rate_limit.window", 86400)

	// Workflow defaults
	v.SetDefault("workflow.max_iterations", 5)
	v.SetDefault("workflow.max_wall_time", 600)
	v.SetDefault("workflow.result_ttl", 86400)
	v.SetDefault("workflow.heartbeat_interval", 30)
	v.SetDefault("workflow.event_buffer", 256)
	v.SetDefault("workflow.insights_timeout", 30)
	v.SetDefault("workflow.backtest_days", 90)
	v.SetDefault("workflow.initial_capital", 100000.0)

	// Live engine defaults
	v.SetDefault("live.sync_interval", 60)
	v.SetDefault("live.enforce_market_hours", true)
	v.SetDefault("live.tick_timeout", 30)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", APIServerPort)

	// Alerts defaults
	v.SetDefault("alerts.telegram.enabled", false)

	// Monitoring defaults
	v.SetDefault("monitoring.enable_metrics", true)
	v.SetDefault("monitoring.metrics_port", MetricsPort)
}

// GetDSN returns the PostgreSQL connection string. DATABASE_URL, when set,
// wins over the discrete fields.
func (c *DatabaseConfig) GetDSN() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetTimeout returns the LLM timeout as time.Duration
func (c *LLMConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// GetMaxWallTime returns the workflow wall-clock bound
func (c *WorkflowConfig) GetMaxWallTime() time.Duration {
	return time.Duration(c.MaxWallTime) * time.Second
}

// GetResultTTL returns the result retention window
func (c *WorkflowConfig) GetResultTTL() time.Duration {
	return time.Duration(c.ResultTTL) * time.Second
}

// GetHeartbeatInterval returns the idle heartbeat cadence
func (c *WorkflowConfig) GetHeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

// GetInsightsTimeout returns the insights agent call budget
func (c *WorkflowConfig) GetInsightsTimeout() time.Duration {
	return time.Duration(c.InsightsTimeout) * time.Second
}

// GetSyncInterval returns the deployment sync cadence
func (c *LiveConfig) GetSyncInterval() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

// GetTickTimeout returns the per-tick execution budget
func (c *LiveConfig) GetTickTimeout() time.Duration {
	return time.Duration(c.TickTimeout) * time.Second
}

// GetWindow returns the provider rate-limit window as a duration
func (c *RateLimitConfig) GetWindow() time.Duration {
	return time.Duration(c.Window) * time.Second
}
