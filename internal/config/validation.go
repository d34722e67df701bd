package config

import (
	"fmt"
	"strings"
)

// ValidationError is one configuration finding, keyed by the config field
// that caused it.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors collects findings across all sections.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Configuration validation failed with %d error(s):\n\n", len(ve))
	for i, err := range ve {
		fmt.Fprintf(&sb, "  %d. %s: %s\n", i+1, err.Field, err.Message)
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// add appends a finding; the message may be a format string.
func (ve *ValidationErrors) add(field, format string, args ...interface{}) {
	*ve = append(*ve, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (ve *ValidationErrors) requirePort(field string, port int) {
	if port == 0 {
		ve.add(field, "Port is required")
	} else if port < 1 || port > 65535 {
		ve.add(field, "Invalid port %d. Must be between 1-65535", port)
	}
}

// Validate checks every section of the loaded configuration and returns all
// findings at once rather than stopping at the first.
func (c *Config) Validate() error {
	var errs ValidationErrors

	c.validateApp(&errs)
	c.validateDatabase(&errs)
	c.validateRedis(&errs)
	c.validateNATS(&errs)
	c.validateLLM(&errs)
	c.validateBroker(&errs)
	c.validateWorkflow(&errs)
	c.validateLive(&errs)
	c.validateAPI(&errs)
	c.validateEnvironmentRequirements(&errs)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateApp(errs *ValidationErrors) {
	if c.App.Name == "" {
		errs.add("app.name", "Application name is required")
	}

	switch c.App.Environment {
	case "":
		errs.add("app.environment", "Environment is required (development, staging, or production)")
	case "development", "staging", "production":
	default:
		errs.add("app.environment", "Invalid environment '%s'. Must be one of: [development staging production]", c.App.Environment)
	}

	if c.App.LogLevel == "" {
		errs.add("app.log_level", "Log level is required (debug, info, warn, error)")
	}
}

func (c *Config) validateDatabase(errs *ValidationErrors) {
	if c.Database.Host == "" {
		errs.add("database.host", "Database host is required")
	}
	errs.requirePort("database.port", c.Database.Port)
	if c.Database.User == "" {
		errs.add("database.user", "Database user is required")
	}
	if c.Database.Database == "" {
		errs.add("database.database", "Database name is required")
	}
	if c.Database.Password == "" && c.App.Environment != "development" {
		errs.add("database.password", "Database password is required in non-development environments")
	}
	if c.Database.PoolSize < 1 {
		errs.add("database.pool_size", "Database pool size must be at least 1")
	}
}

func (c *Config) validateRedis(errs *ValidationErrors) {
	if c.Redis.Host == "" {
		errs.add("redis.host", "Redis host is required")
	}
	errs.requirePort("redis.port", c.Redis.Port)
}

func (c *Config) validateNATS(errs *ValidationErrors) {
	// NATS is optional; only validate when enabled.
	if !c.NATS.Enabled {
		return
	}
	if c.NATS.URL == "" {
		errs.add("nats.url", "NATS URL is required when NATS is enabled")
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errs.add("nats.url", "NATS URL must start with 'nats://'")
	}
}

func (c *Config) validateLLM(errs *ValidationErrors) {
	if c.LLM.Endpoint == "" {
		errs.add("llm.endpoint", "LLM endpoint is required")
	}
	if c.LLM.Model == "" {
		errs.add("llm.model", "LLM model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs.add("llm.temperature", "Invalid temperature %.2f. Must be between 0-2", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 1 {
		errs.add("llm.max_tokens", "LLM max_tokens must be at least 1")
	}
	if c.LLM.Timeout < 1000 {
		errs.add("llm.timeout", "LLM timeout must be at least 1000ms")
	}
}

func (c *Config) validateBroker(errs *ValidationErrors) {
	switch c.Broker.Provider {
	case "paper":
		// The simulated broker needs no credentials.
	case "alpaca":
		if c.Broker.APIKey == "" {
			errs.add("broker.api_key", "Broker API key is required for the alpaca provider")
		}
		if c.Broker.APISecret == "" {
			errs.add("broker.api_secret", "Broker API secret is required for the alpaca provider")
		}
	case "":
		errs.add("broker.provider", "Broker provider is required (paper or alpaca)")
	default:
		errs.add("broker.provider", "Invalid broker provider '%s'. Must be 'paper' or 'alpaca'", c.Broker.Provider)
	}
}

func (c *Config) validateWorkflow(errs *ValidationErrors) {
	if c.Workflow.MaxIterations < 1 {
		errs.add("workflow.max_iterations", "Max iterations must be at least 1")
	}
	if c.Workflow.MaxWallTime < 1 {
		errs.add("workflow.max_wall_time", "Max wall time must be at least 1 second")
	}
	if c.Workflow.EventBuffer < 1 {
		errs.add("workflow.event_buffer", "Event buffer capacity must be at least 1")
	}
	if c.Workflow.InitialCapital <= 0 {
		errs.add("workflow.initial_capital", "Initial capital must be greater than 0")
	}
}

func (c *Config) validateLive(errs *ValidationErrors) {
	if c.Live.SyncInterval < 1 {
		errs.add("live.sync_interval", "Sync interval must be at least 1 second")
	}
	if c.Live.TickTimeout < 1 {
		errs.add("live.tick_timeout", "Tick timeout must be at least 1 second")
	}
}

func (c *Config) validateAPI(errs *ValidationErrors) {
	errs.requirePort("api.port", c.API.Port)
}

func (c *Config) validateEnvironmentRequirements(errs *ValidationErrors) {
	if c.App.Environment != "production" {
		return
	}

	*errs = append(*errs, ValidateProductionSecrets(c)...)

	if c.Database.SSLMode == "disable" {
		errs.add("database.ssl_mode", "SSL must be enabled for database in production")
	}
	if c.Alerts.Telegram.Enabled && c.Alerts.Telegram.BotToken == "" {
		errs.add("alerts.telegram.bot_token", "Telegram bot token is required when alerts are enabled")
	}
}

// ValidateAndLoad loads and validates configuration.
// configPath can be empty to use default config locations.
func ValidateAndLoad(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
