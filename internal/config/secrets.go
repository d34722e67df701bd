package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// SecretStrength represents the strength level of a secret
type SecretStrength int

const (
	SecretStrengthWeak SecretStrength = iota
	SecretStrengthMedium
	SecretStrengthStrong
)

// Common placeholder values that should never be used
var commonPlaceholders = []string{
	"changeme",
	"changeme_in_production",
	"your_api_key",
	"your_secret",
	"test123",
	"password",
	"password123",
	"admin123",
	"secret123",
	"stockfunk",
	"example",
	"sample",
	"demo",
	"default",
}

// SecretValidationResult contains the result of secret validation
type SecretValidationResult struct {
	IsValid  bool
	Strength SecretStrength
	Errors   []string
	Warnings []string
}

// ValidateSecret validates a secret/password for strength and security.
// minLength is the minimum acceptable length; requireStrong is typically
// true for production credentials.
func ValidateSecret(secret string, name string, minLength int, requireStrong bool) SecretValidationResult {
	result := SecretValidationResult{
		IsValid:  true,
		Strength: SecretStrengthStrong,
		Errors:   []string{},
		Warnings: []string{},
	}

	if secret == "" {
		result.IsValid = false
		result.Strength = SecretStrengthWeak
		result.Errors = append(result.Errors, fmt.Sprintf("%s cannot be empty", name))
		return result
	}

	lowerSecret := strings.ToLower(secret)
	for _, placeholder := range commonPlaceholders {
		if lowerSecret == placeholder || strings.Contains(lowerSecret, placeholder) {
			result.IsValid = false
			result.Strength = SecretStrengthWeak
			result.Errors = append(result.Errors, fmt.Sprintf("%s appears to be a placeholder value (%s)", name, placeholder))
			return result
		}
	}

	if len(secret) < minLength {
		result.IsValid = false
		result.Strength = SecretStrengthWeak
		result.Errors = append(result.Errors, fmt.Sprintf("%s must be at least %d characters (got %d)", name, minLength, len(secret)))
		return result
	}

	// Character composition drives the strength grade
	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range secret {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	typesCount := 0
	for _, present := range []bool{hasUpper, hasLower, hasNumber, hasSpecial} {
		if present {
			typesCount++
		}
	}

	if len(secret) >= 16 && typesCount >= 3 {
		result.Strength = SecretStrengthStrong
	} else if len(secret) >= 12 && typesCount >= 2 {
		result.Strength = SecretStrengthMedium
	} else {
		result.Strength = SecretStrengthWeak
	}

	if requireStrong {
		switch result.Strength {
		case SecretStrengthWeak:
			result.IsValid = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s is too weak for production use", name))
		case SecretStrengthMedium:
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s has medium strength - consider using a stronger secret", name))
		}
	}

	return result
}

// ValidateProductionSecrets validates all secrets for production use
func ValidateProductionSecrets(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	const minProductionLength = 12

	if cfg.Database.Password != "" {
		result := ValidateSecret(cfg.Database.Password, "Database password", minProductionLength, true)
		for _, err := range result.Errors {
			errors = append(errors, ValidationError{Field: "database.password", Message: err})
		}
	}

	if cfg.Redis.Password != "" {
		result := ValidateSecret(cfg.Redis.Password, "Redis password", minProductionLength, true)
		for _, err := range result.Errors {
			errors = append(errors, ValidationError{Field: "redis.password", Message: err})
		}
	}

	// Broker keys are provider-generated; check for placeholders only
	if cfg.Broker.APIKey != "" {
		result := ValidateSecret(cfg.Broker.APIKey, "Broker API key", 10, false)
		for _, err := range result.Errors {
			errors = append(errors, ValidationError{Field: "broker.api_key", Message: err})
		}
	}
	if cfg.Broker.APISecret != "" {
		result := ValidateSecret(cfg.Broker.APISecret, "Broker API secret", 10, false)
		for _, err := range result.Errors {
			errors = append(errors, ValidationError{Field: "broker.api_secret", Message: err})
		}
	}

	return errors
}

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled    bool   // Enable Vault integration
	Address    string // Vault server address
	Token      string // Vault authentication token (VAULT_TOKEN)
	MountPath  string // Secrets mount path (default: "secret")
	SecretPath string // Base path for stockfunk secrets (e.g., "stockfunk/production")
	Namespace  string // Vault namespace (Vault Enterprise)
}

// VaultClient wraps the HashiCorp Vault client for secrets management
type VaultClient struct {
	client *vault.Client
	config VaultConfig
}

// NewVaultClient creates a new Vault client from configuration
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("vault is not enabled in configuration")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if cfg.Token == "" {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
	}
	client.SetToken(cfg.Token)

	log.Info().
		Str("address", cfg.Address).
		Str("mount_path", cfg.MountPath).
		Str("secret_path", cfg.SecretPath).
		Msg("Vault client initialized successfully")

	return &VaultClient{client: client, config: cfg}, nil
}

// GetSecret retrieves a secret from Vault. path is relative to the
// configured SecretPath.
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", vc.config.MountPath, vc.config.SecretPath, path)

	log.Debug().Str("path", fullPath).Msg("Reading secret from Vault")

	secret, err := vc.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	// KV v2 nests the payload under "data"
	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}

// GetSecretString retrieves a single string value from Vault
func (vc *VaultClient) GetSecretString(ctx context.Context, path string, key string) (string, error) {
	data, err := vc.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}

	value, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("secret key '%s' not found or not a string at path: %s", key, path)
	}
	return value, nil
}

// LoadSecretsFromVault loads secrets from Vault into configuration.
// Environment variables remain the default path; Vault is an opt-in
// backend for operators that run one.
func LoadSecretsFromVault(ctx context.Context, cfg *Config, vaultCfg VaultConfig) error {
	if !vaultCfg.Enabled {
		log.Info().Msg("Vault integration disabled - using environment variables for secrets")
		return nil
	}

	log.Info().Msg("Loading secrets from HashiCorp Vault...")

	vc, err := NewVaultClient(vaultCfg)
	if err != nil {
		return fmt.Errorf("failed to create Vault client: %w", err)
	}

	// A missing secret group is not fatal; env vars may cover it.
	overlay := func(path string, apply func(map[string]interface{})) {
		secrets, err := vc.GetSecret(ctx, path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Vault secret group unavailable")
			return
		}
		apply(secrets)
	}
	setString := func(secrets map[string]interface{}, key string, dst *string) {
		if v, ok := secrets[key].(string); ok && v != "" {
			*dst = v
		}
	}

	overlay("database", func(s map[string]interface{}) {
		setString(s, "password", &cfg.Database.Password)
		setString(s, "user", &cfg.Database.User)
	})
	overlay("redis", func(s map[string]interface{}) {
		setString(s, "password", &cfg.Redis.Password)
	})
	overlay("broker", func(s map[string]interface{}) {
		setString(s, "api_key", &cfg.Broker.APIKey)
		setString(s, "api_secret", &cfg.Broker.APISecret)
	})
	overlay("llm", func(s map[string]interface{}) {
		setString(s, "api_key", &cfg.LLM.APIKey)
	})
	overlay("sentiment", func(s map[string]interface{}) {
		setString(s, "reddit_client_id", &cfg.Sentiment.Reddit.ClientID)
		setString(s, "reddit_client_secret", &cfg.Sentiment.Reddit.ClientSecret)
		setString(s, "twitter_bearer_token", &cfg.Sentiment.Twitter.BearerToken)
		setString(s, "news_api_key", &cfg.Sentiment.News.APIKey)
	})

	log.Info().Msg("Secrets loaded from Vault successfully")
	return nil
}

// GetVaultConfigFromEnv creates VaultConfig from environment variables
func GetVaultConfigFromEnv() VaultConfig {
	enabled := os.Getenv("VAULT_ENABLED") == "true"
	if !enabled {
		return VaultConfig{Enabled: false}
	}

	return VaultConfig{
		Enabled:    true,
		Address:    getEnvOrDefault("VAULT_ADDR", fmt.Sprintf("http://localhost:%d", VaultPort)),
		Token:      os.Getenv("VAULT_TOKEN"),
		MountPath:  getEnvOrDefault("VAULT_MOUNT_PATH", "secret"),
		SecretPath: getEnvOrDefault("VAULT_SECRET_PATH", "stockfunk/production"),
		Namespace:  os.Getenv("VAULT_NAMESPACE"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
