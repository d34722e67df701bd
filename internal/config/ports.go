// Package config provides configuration management for StockFunk.
// This file centralizes all port constants to avoid duplication and ensure consistency.
package config

// API and Web Service Ports
const (
	// APIServerPort is the port for the main REST API server.
	APIServerPort = 8081

	// TraderPort is the port for the live trading engine's control endpoint.
	TraderPort = 8082

	// WebSocketPort is the port for WebSocket connections (uses same as API).
	WebSocketPort = APIServerPort
)

// Infrastructure Service Ports
const (
	// VaultPort is the default port for HashiCorp Vault.
	VaultPort = 8200

	// PostgresPort is the default port for PostgreSQL.
	PostgresPort = 5432

	// RedisPort is the default port for Redis.
	RedisPort = 6379

	// NATSPort is the default port for NATS messaging.
	NATSPort = 4222
)

// Monitoring Service Ports
const (
	// MetricsPort is the default port for the Prometheus scrape endpoint
	// served by the API binary.
	MetricsPort = 9091

	// PrometheusPort is the default port for Prometheus.
	PrometheusPort = 9090

	// GrafanaPort is the default port for Grafana.
	GrafanaPort = 3000
)
