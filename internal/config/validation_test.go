//nolint:goconst // Test files use repeated strings for clarity
package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "StockFunk",
			Version:     "0.1.0",
			Environment: "development",
			LogLevel:    "info",
			LogFormat:   "console",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "secure_password",
			Database: "stockfunk",
			SSLMode:  "disable",
			PoolSize: 10,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Enabled: false,
		},
		LLM: LLMConfig{
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   2000,
			Timeout:     30000,
			MaxRetries:  3,
		},
		Broker: BrokerConfig{
			Provider: "paper",
			Paper:    true,
		},
		Workflow: WorkflowConfig{
			MaxIterations:     5,
			MaxWallTime:       600,
			ResultTTL:         86400,
			HeartbeatInterval: 30,
			EventBuffer:       256,
			InsightsTimeout:   30,
			BacktestDays:      90,
			InitialCapital:    100000,
		},
		Live: LiveConfig{
			SyncInterval:       60,
			EnforceMarketHours: true,
			TickTimeout:        30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8081,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := getValidConfig()
	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestValidate_App(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing name",
			mutate:  func(c *Config) { c.App.Name = "" },
			wantErr: "app.name",
		},
		{
			name:    "missing environment",
			mutate:  func(c *Config) { c.App.Environment = "" },
			wantErr: "app.environment",
		},
		{
			name:    "invalid environment",
			mutate:  func(c *Config) { c.App.Environment = "testing" },
			wantErr: "Invalid environment",
		},
		{
			name:    "missing log level",
			mutate:  func(c *Config) { c.App.LogLevel = "" },
			wantErr: "app.log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Database(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "database.host",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Database.Port = 70000 },
			wantErr: "Invalid port",
		},
		{
			name:    "missing user",
			mutate:  func(c *Config) { c.Database.User = "" },
			wantErr: "database.user",
		},
		{
			name:    "missing database name",
			mutate:  func(c *Config) { c.Database.Database = "" },
			wantErr: "database.database",
		},
		{
			name:    "zero pool size",
			mutate:  func(c *Config) { c.Database.PoolSize = 0 },
			wantErr: "pool size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_PasswordRequiredOutsideDevelopment(t *testing.T) {
	cfg := getValidConfig()
	cfg.App.Environment = "staging"
	cfg.Database.Password = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password")
}

func TestValidate_NATS(t *testing.T) {
	// Disabled NATS skips URL validation entirely
	cfg := getValidConfig()
	cfg.NATS.Enabled = false
	cfg.NATS.URL = "not-a-nats-url"
	assert.NoError(t, cfg.Validate())

	// Enabled NATS enforces the scheme
	cfg = getValidConfig()
	cfg.NATS.Enabled = true
	cfg.NATS.URL = "http://localhost:4222"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats://")
}

func TestValidate_LLM(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing endpoint",
			mutate:  func(c *Config) { c.LLM.Endpoint = "" },
			wantErr: "llm.endpoint",
		},
		{
			name:    "missing model",
			mutate:  func(c *Config) { c.LLM.Model = "" },
			wantErr: "llm.model",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.LLM.Temperature = 3.0 },
			wantErr: "temperature",
		},
		{
			name:    "timeout too small",
			mutate:  func(c *Config) { c.LLM.Timeout = 500 },
			wantErr: "at least 1000ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Broker(t *testing.T) {
	// Paper broker needs no credentials
	cfg := getValidConfig()
	cfg.Broker = BrokerConfig{Provider: "paper"}
	assert.NoError(t, cfg.Validate())

	// Alpaca without keys fails
	cfg = getValidConfig()
	cfg.Broker = BrokerConfig{Provider: "alpaca"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.api_key")
	assert.Contains(t, err.Error(), "broker.api_secret")

	// Unknown provider fails
	cfg = getValidConfig()
	cfg.Broker = BrokerConfig{Provider: "robinhood"}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid broker provider")
}

func TestValidate_Workflow(t *testing.T) {
	cfg := getValidConfig()
	cfg.Workflow.MaxIterations = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow.max_iterations")

	cfg = getValidConfig()
	cfg.Workflow.InitialCapital = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow.initial_capital")
}

func TestValidate_Live(t *testing.T) {
	cfg := getValidConfig()
	cfg.Live.SyncInterval = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live.sync_interval")
}

func TestValidate_ProductionRequiresSSL(t *testing.T) {
	cfg := getValidConfig()
	cfg.App.Environment = "production"
	cfg.Database.SSLMode = "disable"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSL must be enabled")
}

func TestValidationErrors_Message(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a.b", Message: "first problem"},
		{Field: "c.d", Message: "second problem"},
	}

	msg := errs.Error()
	assert.True(t, strings.Contains(msg, "2 error(s)"))
	assert.Contains(t, msg, "a.b: first problem")
	assert.Contains(t, msg, "c.d: second problem")
}

func TestLoad_DefaultsOnly(t *testing.T) {
	// No config file: defaults plus env should produce a loadable config
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "StockFunk", cfg.App.Name)
	assert.Equal(t, "paper", cfg.Broker.Provider)
	assert.Equal(t, 5, cfg.Workflow.MaxIterations)
	assert.Equal(t, 86400, cfg.Workflow.ResultTTL)
	assert.True(t, cfg.Live.EnforceMarketHours)
}
