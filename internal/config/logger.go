package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process-wide zerolog logger. Format
// "console" renders human-readable output for development; anything
// else emits JSON lines.
func InitLogger(level, format string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	log.Info().
		Str("level", parsed.String()).
		Str("format", format).
		Msg("Logger initialized")
}

// NewLogger creates a logger tagged with a component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// NewAgentLogger creates a logger for one workflow agent invocation.
func NewAgentLogger(agentName string, sessionID string) zerolog.Logger {
	return log.With().
		Str("component", "agent").
		Str("agent", agentName).
		Str("session_id", sessionID).
		Logger()
}

// NewDeploymentLogger creates a logger scoped to one live deployment.
func NewDeploymentLogger(deploymentID string) zerolog.Logger {
	return log.With().
		Str("component", "live").
		Str("deployment_id", deploymentID).
		Logger()
}
