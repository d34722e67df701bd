// Package alerts notifies operators about live-trading events that need
// eyes: deployment failures, order rejections, workflow errors, open
// circuit breakers, and (optionally) trade fills. Delivery is fan-out over
// the configured channels; the trading path treats every send as
// best-effort.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Severity orders alerts by urgency.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one notification bound for the configured channels.
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Alerter delivers alerts over one channel.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager manages multiple alert channels. A nil *Manager drops every
// alert, so components can hold one unconditionally.
type Manager struct {
	alerters []Alerter
}

// NewManager fans alerts out over the given channels.
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{
		alerters: alerters,
	}
}

// Send delivers the alert to every channel. One failing channel does not
// stop the others; the last error is returned.
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if m == nil {
		return nil
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}

	return lastErr
}

// SendCritical sends a critical alert.
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityCritical,
		Metadata: metadata,
	})
}

// SendWarning sends a warning alert.
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityWarning,
		Metadata: metadata,
	})
}

// SendInfo sends an informational alert.
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityInfo,
		Metadata: metadata,
	})
}

// LogAlerter writes alerts to the zerolog global logger. It is always
// registered so alerts surface even with no external channel configured.
type LogAlerter struct{}

// NewLogAlerter returns a log-backed channel.
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := log.Log()

	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	case SeverityInfo:
		event = log.Info()
	}

	if alert.Metadata != nil {
		for key, value := range alert.Metadata {
			event = event.Interface(key, value)
		}
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(fmt.Sprintf("🚨 ALERT: %s", alert.Message))

	return nil
}

// The process-wide manager used by the Alert* helpers below.
var defaultManager *Manager

func init() {
	defaultManager = NewManager(NewLogAlerter())
}

// GetDefaultManager returns the process-wide manager.
func GetDefaultManager() *Manager {
	return defaultManager
}

// SetDefaultManager replaces the process-wide manager. Binaries call this
// once at startup after reading the alerting config.
func SetDefaultManager(manager *Manager) {
	defaultManager = manager
}

// AlertTradeFill sends an info alert for an executed live trade
func AlertTradeFill(ctx context.Context, deploymentID uuid.UUID, botName, symbol, side string, shares, price float64) {
	defaultManager.SendInfo(ctx, "Trade Filled", fmt.Sprintf(
		"%s %.0f %s @ $%.2f (bot %q)", side, shares, symbol, price, botName,
	), map[string]interface{}{
		"deployment_id": deploymentID.String(),
		"symbol":        symbol,
		"side":          side,
		"shares":        shares,
		"price":         price,
	})
}

// AlertDeploymentError sends an alert when a deployment enters the error
// state and stops trading
func AlertDeploymentError(ctx context.Context, deploymentID uuid.UUID, botName string, err error) {
	defaultManager.SendCritical(ctx, "Deployment Stopped", fmt.Sprintf(
		"Deployment of %q entered error state and stopped trading: %v", botName, err,
	), map[string]interface{}{
		"deployment_id": deploymentID.String(),
		"bot_name":      botName,
		"error":         err.Error(),
	})
}

// AlertOrderFailed sends an alert for order placement failure
func AlertOrderFailed(ctx context.Context, symbol, side string, shares float64, err error) {
	defaultManager.SendCritical(ctx, "Order Placement Failed", fmt.Sprintf(
		"Failed to place %s order for %s: %v", side, symbol, err,
	), map[string]interface{}{
		"symbol": symbol,
		"side":   side,
		"shares": shares,
		"error":  err.Error(),
	})
}

// AlertWorkflowFailed sends an alert for a failed workflow session
func AlertWorkflowFailed(ctx context.Context, sessionID string, err error) {
	defaultManager.SendWarning(ctx, "Workflow Session Failed", fmt.Sprintf(
		"Session %s failed: %v", sessionID, err,
	), map[string]interface{}{
		"session_id": sessionID,
		"error":      err.Error(),
	})
}

// AlertBreakerOpen sends an alert when a circuit breaker opens
func AlertBreakerOpen(ctx context.Context, service string) {
	defaultManager.SendCritical(ctx, "Circuit Breaker Open", fmt.Sprintf(
		"The %s circuit breaker opened; calls are rejected until it recovers", service,
	), map[string]interface{}{
		"service": service,
	})
}

// AlertSystemError sends an alert for critical system errors
func AlertSystemError(ctx context.Context, component string, err error) {
	defaultManager.SendCritical(ctx, "System Error", fmt.Sprintf(
		"Critical error in %s: %v", component, err,
	), map[string]interface{}{
		"component": component,
		"error":     err.Error(),
	})
}
