package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// These ensure metrics don't have unbounded label values which can cause memory issues.
const (
	// Workflow session outcomes (bounded set)
	OutcomeComplete = "complete"
	OutcomeError    = "error"

	// Live tick results (bounded set)
	TickResultOK      = "ok"
	TickResultSkipped = "skipped"
	TickResultClosed  = "market_closed"
	TickResultError   = "error"

	// Broker API error categories (bounded set)
	BrokerErrorTimeout     = "timeout"
	BrokerErrorRateLimit   = "rate_limit"
	BrokerErrorAuth        = "authentication"
	BrokerErrorNetwork     = "network"
	BrokerErrorInvalidReq  = "invalid_request"
	BrokerErrorServerError = "server_error"
	BrokerErrorOther       = "other"
)

// NormalizeBrokerError maps arbitrary error messages to a bounded set
func NormalizeBrokerError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return BrokerErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return BrokerErrorRateLimit
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return BrokerErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return BrokerErrorNetwork
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid"):
		return BrokerErrorInvalidReq
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return BrokerErrorServerError
	default:
		return BrokerErrorOther
	}
}

// Workflow Metrics
var (
	// Active workflow sessions
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockfunk_workflow_active_sessions",
		Help: "Number of currently active workflow sessions",
	})

	// Finished workflow sessions by outcome
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_workflow_sessions_total",
		Help: "Total number of finished workflow sessions by outcome",
	}, []string{"outcome"})

	// Wall-clock duration of a full workflow session
	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockfunk_workflow_session_duration_seconds",
		Help:    "Workflow session duration in seconds",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
	})

	// Iterations consumed per session
	SessionIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockfunk_workflow_session_iterations",
		Help:    "Number of generate/backtest/critique iterations per session",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	// Per-iteration duration
	IterationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockfunk_workflow_iteration_duration_seconds",
		Help:    "Duration of a single workflow iteration in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120},
	})

	// Progress events emitted by type
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_workflow_events_emitted_total",
		Help: "Total progress events emitted by event type",
	}, []string{"type"})

	// Insights generations that exceeded their budget
	InsightsTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockfunk_workflow_insights_timeouts_total",
		Help: "Total insights generations abandoned after timeout",
	})
)

// Oracle (LLM) Metrics
var (
	// Oracle requests by agent and status
	OracleRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_oracle_requests_total",
		Help: "Total LLM oracle requests by agent and status",
	}, []string{"agent", "status"})

	// Oracle request duration
	OracleRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockfunk_oracle_request_duration_ms",
		Help:    "LLM oracle request duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})
)

// Backtest Metrics
var (
	// Backtest runs by status
	BacktestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_backtests_total",
		Help: "Total backtest runs by status",
	}, []string{"status"})

	// Backtest run duration
	BacktestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockfunk_backtest_duration_ms",
		Help:    "Backtest run duration in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
	})
)

// Live Trading Metrics
var (
	// Deployments currently scheduled
	ActiveDeployments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockfunk_live_active_deployments",
		Help: "Number of deployments currently scheduled for execution",
	})

	// Ticks by result
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_live_ticks_total",
		Help: "Total deployment ticks by result",
	}, []string{"result"})

	// Tick duration
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockfunk_live_tick_duration_ms",
		Help:    "Deployment tick duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	// Orders submitted by side and status
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_live_orders_total",
		Help: "Total orders submitted by side and status",
	}, []string{"side", "status"})

	// Broker API errors by category
	BrokerAPIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_broker_api_errors_total",
		Help: "Total broker API errors by category",
	}, []string{"error_type"})

	// Order execution latency
	OrderExecutionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockfunk_order_execution_latency_ms",
		Help:    "Order execution latency in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000},
	})
)

// System Health Metrics
var (
	// API request duration
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockfunk_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method", "path", "status_code"})

	// HTTP requests
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})

	// Errors
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_errors_total",
		Help: "Total number of errors by type",
	}, []string{"type", "component"})

	// Database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockfunk_database_query_duration_ms",
		Help:    "Database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"query_type"})

	// NATS messages
	NATSMessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockfunk_nats_messages_published_total",
		Help: "Total number of NATS messages published",
	})

	NATSMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockfunk_nats_messages_received_total",
		Help: "Total number of NATS messages received",
	})

	// Websocket stream clients
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockfunk_stream_clients",
		Help: "Number of connected progress stream clients",
	})

	// Audit events by type and persistence outcome
	AuditLogsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_audit_logs_total",
		Help: "Total audit events by event type and status",
	}, []string{"event_type", "status"})

	// Audit write duration including persistence
	AuditLogDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockfunk_audit_log_duration_ms",
		Help:    "Audit event write duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	})
)

// Helper functions to update metrics

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(queryType string, durationMs float64) {
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(durationMs)
}

// RecordOracleRequest records an LLM oracle request
func RecordOracleRequest(agent string, success bool, durationMs float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	OracleRequests.WithLabelValues(agent, status).Inc()
	OracleRequestDuration.Observe(durationMs)
}

// RecordEvent records an emitted progress event
func RecordEvent(eventType string) {
	EventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordSessionFinished records a finished workflow session
func RecordSessionFinished(outcome string, durationSeconds float64, iterations int) {
	SessionsTotal.WithLabelValues(outcome).Inc()
	SessionDuration.Observe(durationSeconds)
	SessionIterations.Observe(float64(iterations))
}

// RecordBacktest records a backtest run
func RecordBacktest(success bool, durationMs float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	BacktestsTotal.WithLabelValues(status).Inc()
	BacktestDuration.Observe(durationMs)
}

// RecordTick records a deployment tick
func RecordTick(result string, durationMs float64) {
	TicksTotal.WithLabelValues(result).Inc()
	if result == TickResultOK || result == TickResultError {
		TickDuration.Observe(durationMs)
	}
}

// RecordOrder records a submitted order
func RecordOrder(side, status string) {
	OrdersTotal.WithLabelValues(side, status).Inc()
}

// RecordBrokerAPIError records a broker API error with normalized category
func RecordBrokerAPIError(err error) {
	if err == nil {
		return
	}
	BrokerAPIErrors.WithLabelValues(NormalizeBrokerError(err)).Inc()
}

// RecordOrderExecution records order execution latency
func RecordOrderExecution(durationMs float64) {
	OrderExecutionLatency.Observe(durationMs)
}

// UpdateActiveSessions updates the number of active workflow sessions
func UpdateActiveSessions(count int) {
	ActiveSessions.Set(float64(count))
}

// UpdateActiveDeployments updates the number of scheduled deployments
func UpdateActiveDeployments(count int) {
	ActiveDeployments.Set(float64(count))
}

// RecordAuditLog records an audit event write
func RecordAuditLog(eventType string, success bool, durationMs float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	AuditLogsTotal.WithLabelValues(eventType, status).Inc()
	AuditLogDuration.Observe(durationMs)
}

// RecordNATSPublished records a published NATS message
func RecordNATSPublished() {
	NATSMessagesPublished.Inc()
}

// RecordNATSReceived records a received NATS message
func RecordNATSReceived() {
	NATSMessagesReceived.Inc()
}
