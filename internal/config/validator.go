package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ValidatorOptions contains options for configuration validation
type ValidatorOptions struct {
	VerifyConnectivity bool // Check database/Redis connectivity
	VerifyAPIKeys      bool // Verify API keys with external services
	Timeout            time.Duration
}

// DefaultValidatorOptions returns default validator options for startup
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{
		VerifyConnectivity: true,
		VerifyAPIKeys:      false, // opt-in via the binaries' -verify flag
		Timeout:            5 * time.Second,
	}
}

// Validator handles configuration validation at startup
type Validator struct {
	config  *Config
	options ValidatorOptions
}

// NewValidator creates a new configuration validator
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	return &Validator{
		config:  config,
		options: options,
	}
}

// ValidateStartup performs comprehensive startup validation.
// This should be called before starting any services.
func (v *Validator) ValidateStartup(ctx context.Context) error {
	log.Info().Msg("Validating configuration...")

	if err := v.validateProductionRequirements(); err != nil {
		return fmt.Errorf("production requirements validation failed: %w", err)
	}

	if err := v.validateBrokerCredentials(); err != nil {
		return fmt.Errorf("broker credential validation failed: %w", err)
	}

	if v.options.VerifyConnectivity {
		if err := v.checkDatabaseConnectivity(ctx); err != nil {
			return fmt.Errorf("database connectivity check failed: %w", err)
		}
		if err := v.checkRedisConnectivity(ctx); err != nil {
			return fmt.Errorf("redis connectivity check failed: %w", err)
		}
	}

	if v.options.VerifyAPIKeys {
		if err := v.verifyAPIKeys(ctx); err != nil {
			return fmt.Errorf("API key verification failed: %w", err)
		}
	}

	log.Info().Msg("Configuration validation completed successfully")
	return nil
}

// validateProductionRequirements checks production-specific security requirements
func (v *Validator) validateProductionRequirements() error {
	appEnv := strings.ToLower(os.Getenv("STOCKFUNK_APP_ENVIRONMENT"))
	if appEnv == "" {
		appEnv = v.config.App.Environment
	}
	isProduction := appEnv == "production" || appEnv == "prod"

	if !isProduction {
		log.Info().Str("environment", appEnv).Msg("Non-production environment detected, skipping production requirements")
		return nil
	}

	log.Info().Msg("Production environment detected - enforcing production security requirements")

	var errors []string

	// TLS must be enforced for the database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL != "" {
		if strings.Contains(databaseURL, "sslmode=disable") {
			errors = append(errors, "Database SSL cannot be disabled in production (sslmode=disable found in DATABASE_URL)")
		}
		if !strings.Contains(databaseURL, "sslmode=") {
			errors = append(errors, "Database SSL mode must be explicitly set in production (add sslmode=require to DATABASE_URL)")
		}
	}

	// Live (non-paper) trading in production deserves a loud note
	if v.config.Broker.Provider == "alpaca" && !v.config.Broker.Paper {
		log.Warn().Msg("WARNING: Real-money trading endpoint is configured in production. Ensure this is intentional and all testing is complete.")
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword != "" && isPlaceholderValue(postgresPassword) {
		errors = append(errors, "POSTGRES_PASSWORD cannot be a placeholder value in production")
	}

	if len(errors) > 0 {
		return joinProblems("production security requirements not met", errors)
	}

	log.Info().Msg("Production security requirements validated successfully")
	return nil
}

// joinProblems renders a list of validation findings as one error.
func joinProblems(header string, problems []string) error {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString(":\n")
	for _, p := range problems {
		fmt.Fprintf(&b, "  - %s\n", p)
	}
	return fmt.Errorf("%s", b.String())
}

// validateBrokerCredentials checks broker API keys when the live provider is
// selected. The paper broker needs none.
func (v *Validator) validateBrokerCredentials() error {
	if v.config.Broker.Provider != "alpaca" {
		return nil
	}

	var errors []string

	if v.config.Broker.APIKey == "" {
		errors = append(errors, "broker API key is empty (set ALPACA_API_KEY)")
	} else if len(v.config.Broker.APIKey) < 16 {
		errors = append(errors, "broker API key is too short (minimum 16 characters)")
	}

	if v.config.Broker.APISecret == "" {
		errors = append(errors, "broker API secret is empty (set ALPACA_API_SECRET)")
	} else if len(v.config.Broker.APISecret) < 16 {
		errors = append(errors, "broker API secret is too short (minimum 16 characters)")
	}

	if isPlaceholderValue(v.config.Broker.APIKey) {
		errors = append(errors, "broker API key appears to be a placeholder value")
	}
	if isPlaceholderValue(v.config.Broker.APISecret) {
		errors = append(errors, "broker API secret appears to be a placeholder value")
	}

	if len(errors) > 0 {
		return joinProblems("broker credentials rejected", errors)
	}

	log.Info().Msg("Broker credential validation passed")
	return nil
}

// checkDatabaseConnectivity tests database connection with timeout
func (v *Validator) checkDatabaseConnectivity(ctx context.Context) error {
	log.Info().Msg("Checking database connectivity...")

	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	pool, err := pgxpool.New(connCtx, v.config.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(connCtx); err != nil {
		return fmt.Errorf("ping database at %s:%d: %w", v.config.Database.Host, v.config.Database.Port, err)
	}

	var dbName string
	if err := pool.QueryRow(connCtx, "SELECT current_database()").Scan(&dbName); err != nil {
		return fmt.Errorf("query current database: %w", err)
	}

	log.Info().
		Str("database", dbName).
		Str("host", v.config.Database.Host).
		Int("port", v.config.Database.Port).
		Msg("Database connectivity check passed")

	return nil
}

// checkRedisConnectivity tests Redis connection with timeout
func (v *Validator) checkRedisConnectivity(ctx context.Context) error {
	log.Info().Msg("Checking Redis connectivity...")

	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     v.config.Redis.GetRedisAddr(),
		Password: v.config.Redis.Password,
		DB:       v.config.Redis.DB,
	})
	defer client.Close()

	if err := client.Ping(connCtx).Err(); err != nil {
		return fmt.Errorf("ping redis at %s: %w", v.config.Redis.GetRedisAddr(), err)
	}

	log.Info().
		Str("addr", v.config.Redis.GetRedisAddr()).
		Int("db", v.config.Redis.DB).
		Msg("Redis connectivity check passed")

	return nil
}

// verifyAPIKeys tests external endpoints with lightweight calls (dry run)
func (v *Validator) verifyAPIKeys(ctx context.Context) error {
	log.Info().Msg("Verifying API keys (dry run)...")

	var errors []string

	if v.config.Broker.Provider == "alpaca" {
		if err := v.verifyAlpacaReachable(ctx); err != nil {
			errors = append(errors, fmt.Sprintf("Alpaca API verification failed: %v", err))
		} else {
			log.Info().Msg("Alpaca API connectivity verified")
		}
	}

	if err := v.verifyLLMEndpoint(ctx); err != nil {
		// Warn but don't fail - the LLM is not critical for startup
		log.Warn().Err(err).Msg("LLM endpoint verification failed")
		errors = append(errors, fmt.Sprintf("LLM endpoint verification failed: %v (non-critical)", err))
	}

	if len(errors) > 0 {
		return joinProblems("API key verification failed", errors)
	}

	log.Info().Msg("API key verification completed successfully")
	return nil
}

// verifyAlpacaReachable checks that the configured trading endpoint answers
func (v *Validator) verifyAlpacaReachable(ctx context.Context) error {
	baseURL := v.config.Broker.BaseURL
	if baseURL == "" {
		if v.config.Broker.Paper {
			baseURL = "https://paper-api.alpaca.markets"
		} else {
			baseURL = "https://api.alpaca.markets"
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", baseURL+"/v2/clock", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", v.config.Broker.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", v.config.Broker.APISecret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach Alpaca API: %w (check network connectivity)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("Alpaca rejected the configured credentials (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Alpaca clock endpoint returned status: %d", resp.StatusCode)
	}

	log.Info().
		Str("base_url", baseURL).
		Bool("paper", v.config.Broker.Paper).
		Msg("Alpaca API connectivity verified")

	return nil
}

// verifyLLMEndpoint checks that the LLM gateway answers
func (v *Validator) verifyLLMEndpoint(ctx context.Context) error {
	healthURL := v.config.LLM.Endpoint
	if strings.Contains(healthURL, "/v1/chat/completions") {
		healthURL = strings.Replace(healthURL, "/v1/chat/completions", "/v1/models", 1)
	}

	reqCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", healthURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if v.config.LLM.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.config.LLM.APIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach LLM endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("LLM endpoint health check failed with status: %d", resp.StatusCode)
	}

	log.Info().
		Str("endpoint", healthURL).
		Msg("LLM endpoint connectivity verified")

	return nil
}

// isPlaceholderValue checks if a value is likely a placeholder
func isPlaceholderValue(value string) bool {
	lowerValue := strings.ToLower(value)
	placeholders := []string{
		"your_api_key",
		"your_secret",
		"changeme",
		"placeholder",
		"example",
		"sample",
		"demo",
	}

	for _, placeholder := range placeholders {
		if strings.Contains(lowerValue, placeholder) {
			return true
		}
	}

	return false
}
