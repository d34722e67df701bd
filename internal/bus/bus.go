// Package bus publishes pipeline events to NATS so external consumers
// (dashboards, notification fanout, downstream jobs) can follow workflow
// sessions and live deployments without polling the API.
//
// The publisher is strictly fire-and-forget: a nil *Publisher is valid and
// drops every message, so callers never gate on messaging being configured.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stockfunk/internal/metrics"
)

// Subjects published by the engine. Consumers subscribe with wildcards
// (workflow.>, deployments.>).
const (
	SubjectWorkflowCompleted = "workflow.session.completed"
	SubjectWorkflowFailed    = "workflow.session.failed"

	SubjectDeploymentStarted = "deployments.started"
	SubjectDeploymentStopped = "deployments.stopped"
	SubjectDeploymentError   = "deployments.error"
	SubjectDeploymentTrade   = "deployments.trade"
)

// Publisher wraps a NATS connection for one-way event publishing.
type Publisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// Connect dials NATS and returns a publisher. Reconnects are handled by the
// client; publishes during a disconnect are buffered by nats.go and flushed
// on reconnect.
func Connect(url string, logger zerolog.Logger) (*Publisher, error) {
	log := logger.With().Str("component", "bus").Logger()

	nc, err := nats.Connect(
		url,
		nats.Name("stockfunk"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", url).Msg("Connected to NATS")
	return &Publisher{nc: nc, log: log}, nil
}

// Publish serializes payload as JSON and publishes it on subject. Errors are
// logged, never returned: event publishing must not fail the pipeline that
// produced the event. Safe to call on a nil publisher.
func (p *Publisher) Publish(subject string, payload interface{}) {
	if p == nil || p.nc == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Str("subject", subject).Msg("Failed to marshal bus payload")
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish bus message")
		return
	}
	metrics.RecordNATSPublished()
}

// Close flushes pending messages and drops the connection. Safe on nil.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Flush(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to flush NATS connection")
	}
	p.nc.Close()
}
