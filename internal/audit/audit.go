// Package audit persists a trail of the actions that change trading
// state: deployment lifecycle transitions, strategy saves and deletes,
// and manual backtest runs arriving through the API. Every event is
// written to the structured log immediately; with a database pool
// configured it is also persisted to the audit_logs table.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
)

// EventType names the category of an audit event.
type EventType string

const (
	// Deployment lifecycle events
	EventTypeDeploymentCreated EventType = "DEPLOYMENT_CREATED"
	EventTypeDeploymentPaused  EventType = "DEPLOYMENT_PAUSED"
	EventTypeDeploymentResumed EventType = "DEPLOYMENT_RESUMED"
	EventTypeDeploymentStopped EventType = "DEPLOYMENT_STOPPED"

	// Strategy library events
	EventTypeBotSaved   EventType = "BOT_SAVED"
	EventTypeBotDeleted EventType = "BOT_DELETED"

	// Analysis events
	EventTypeBacktestRun     EventType = "BACKTEST_RUN"
	EventTypeWorkflowStarted EventType = "WORKFLOW_STARTED"

	// Request hygiene events
	EventTypeInvalidInput EventType = "INVALID_INPUT"
)

// Severity grades audit events for the operator.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Event is one entry in the audit trail.
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	Severity  Severity               `json:"severity"`
	UserID    string                 `json:"user_id,omitempty"`
	IPAddress string                 `json:"ip_address"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Resource  string                 `json:"resource,omitempty"` // deployment ID, bot ID, strategy name
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error_message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
}

// Logger records audit events. A nil *Logger is a no-op so callers can
// hold one unconditionally.
type Logger struct {
	db      db.PoolInterface
	enabled bool
}

// NewLogger creates a new audit logger. A nil pool keeps the structured
// log trail but skips persistence.
func NewLogger(pool db.PoolInterface, enabled bool) *Logger {
	return &Logger{
		db:      pool,
		enabled: enabled,
	}
}

// Log writes the event to the structured log and, when a pool is
// configured, the audit_logs table.
func (l *Logger) Log(ctx context.Context, event *Event) error {
	if l == nil || !l.enabled {
		return nil
	}

	start := time.Now()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	logEvent := log.With().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.EventType)).
		Str("severity", string(event.Severity)).
		Str("user_id", event.UserID).
		Str("ip_address", event.IPAddress).
		Str("resource", event.Resource).
		Str("action", event.Action).
		Bool("success", event.Success).
		Logger()

	if event.ErrorMsg != "" {
		logEvent = logEvent.With().Str("error", event.ErrorMsg).Logger()
	}

	switch event.Severity {
	case SeverityCritical, SeverityError:
		logEvent.Error().Msg("Audit event")
	case SeverityWarning:
		logEvent.Warn().Msg("Audit event")
	default:
		logEvent.Info().Msg("Audit event")
	}

	if l.db != nil {
		if err := l.persistEvent(ctx, event); err != nil {
			metrics.RecordAuditLog(string(event.EventType), false, float64(time.Since(start).Milliseconds()))
			return err
		}
	}

	metrics.RecordAuditLog(string(event.EventType), true, float64(time.Since(start).Milliseconds()))
	return nil
}

func (l *Logger) persistEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO audit_logs (
			id, timestamp, event_type, severity, user_id, ip_address,
			user_agent, resource, action, success, error_message,
			metadata, request_id, duration_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit event metadata")
			metadataJSON = []byte("{}")
		}
	}

	_, err := l.db.Exec(ctx, query,
		event.ID,
		event.Timestamp,
		event.EventType,
		event.Severity,
		event.UserID,
		event.IPAddress,
		event.UserAgent,
		event.Resource,
		event.Action,
		event.Success,
		event.ErrorMsg,
		metadataJSON,
		event.RequestID,
		event.Duration,
	)
	if err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.EventType)).
			Msg("Failed to persist audit event to database")
		return err
	}

	return nil
}

// QueryFilters narrows a Query. Zero values mean no filter.
type QueryFilters struct {
	EventType EventType
	UserID    string
	Resource  string
	StartTime time.Time
	EndTime   time.Time
	Success   *bool
	Limit     int
}

// Query retrieves audit events matching the filters, newest first.
func (l *Logger) Query(ctx context.Context, filters *QueryFilters) ([]Event, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}

	query := `
		SELECT
			id, timestamp, event_type, severity, user_id, ip_address,
			user_agent, resource, action, success, error_message,
			metadata, request_id, duration_ms
		FROM audit_logs
		WHERE 1=1
	`

	args := []interface{}{}
	addArg := func(clause string, value interface{}) {
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}

	if filters.EventType != "" {
		addArg(" AND event_type = $%d", filters.EventType)
	}
	if filters.UserID != "" {
		addArg(" AND user_id = $%d", filters.UserID)
	}
	if filters.Resource != "" {
		addArg(" AND resource = $%d", filters.Resource)
	}
	if !filters.StartTime.IsZero() {
		addArg(" AND timestamp >= $%d", filters.StartTime)
	}
	if !filters.EndTime.IsZero() {
		addArg(" AND timestamp <= $%d", filters.EndTime)
	}
	if filters.Success != nil {
		addArg(" AND success = $%d", *filters.Success)
	}

	query += " ORDER BY timestamp DESC"

	if filters.Limit > 0 {
		addArg(" LIMIT $%d", filters.Limit)
	}

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var event Event
		var metadataJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.EventType,
			&event.Severity,
			&event.UserID,
			&event.IPAddress,
			&event.UserAgent,
			&event.Resource,
			&event.Action,
			&event.Success,
			&event.ErrorMsg,
			&metadataJSON,
			&event.RequestID,
			&event.Duration,
		)
		if err != nil {
			return nil, err
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				log.Warn().Err(err).Msg("Failed to unmarshal audit event metadata")
			}
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

// severityFor grades an event by whether the action succeeded.
func severityFor(success bool) Severity {
	if success {
		return SeverityInfo
	}
	return SeverityWarning
}

// LogDeploymentAction logs a deployment lifecycle transition.
func (l *Logger) LogDeploymentAction(ctx context.Context, eventType EventType, userID, ipAddress, deploymentID string, metadata map[string]interface{}, success bool, errorMsg string) error {
	return l.Log(ctx, &Event{
		EventType: eventType,
		Severity:  severityFor(success),
		UserID:    userID,
		IPAddress: ipAddress,
		Resource:  deploymentID,
		Action:    string(eventType),
		Success:   success,
		ErrorMsg:  errorMsg,
		Metadata:  metadata,
	})
}

// LogBotAction logs a strategy library change (save, delete).
func (l *Logger) LogBotAction(ctx context.Context, eventType EventType, userID, ipAddress, botID, botName string, success bool, errorMsg string) error {
	return l.Log(ctx, &Event{
		EventType: eventType,
		Severity:  severityFor(success),
		UserID:    userID,
		IPAddress: ipAddress,
		Resource:  botID,
		Action:    string(eventType),
		Success:   success,
		ErrorMsg:  errorMsg,
		Metadata:  map[string]interface{}{"bot_name": botName},
	})
}

// LogBacktestRun logs a manual backtest with its headline outcome.
func (l *Logger) LogBacktestRun(ctx context.Context, userID, ipAddress, strategyName string, metadata map[string]interface{}, success bool, errorMsg string) error {
	return l.Log(ctx, &Event{
		EventType: EventTypeBacktestRun,
		Severity:  severityFor(success),
		UserID:    userID,
		IPAddress: ipAddress,
		Resource:  strategyName,
		Action:    "Backtest run",
		Success:   success,
		ErrorMsg:  errorMsg,
		Metadata:  metadata,
	})
}

// LogInvalidInput logs a request that failed validation.
func (l *Logger) LogInvalidInput(ctx context.Context, ipAddress, resource, detail string) error {
	return l.Log(ctx, &Event{
		EventType: EventTypeInvalidInput,
		Severity:  SeverityWarning,
		IPAddress: ipAddress,
		Resource:  resource,
		Action:    "Request rejected by validation",
		Success:   false,
		ErrorMsg:  detail,
	})
}
