// Package resilience provides circuit breakers for the external services
// the pipeline depends on: the broker API, the LLM oracle, and Postgres.
package resilience

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Circuit breaker states for Prometheus metrics
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"

	// Metric result labels
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Circuit breaker thresholds - tuned per service type
const (
	// Broker circuit breaker settings
	BrokerMinRequests     = 5                // Minimum requests before tripping
	BrokerFailureRatio    = 0.6              // Failure ratio threshold (60%)
	BrokerOpenTimeout     = 30 * time.Second // How long circuit stays open
	BrokerHalfOpenMaxReqs = 3                // Max requests in half-open state
	BrokerCountInterval   = 10 * time.Second // Window for counting failures

	// Oracle circuit breaker settings (longer timeouts for LLM calls)
	OracleMinRequests     = 3                // Minimum requests before tripping
	OracleFailureRatio    = 0.6              // Failure ratio threshold (60%)
	OracleOpenTimeout     = 60 * time.Second // How long circuit stays open (LLM recovery is slow)
	OracleHalfOpenMaxReqs = 2                // Max requests in half-open state
	OracleCountInterval   = 10 * time.Second // Window for counting failures

	// Database circuit breaker settings (faster recovery)
	DBMinRequests     = 10               // Minimum requests before tripping
	DBFailureRatio    = 0.6              // Failure ratio threshold (60%)
	DBOpenTimeout     = 15 * time.Second // How long circuit stays open (quick recovery)
	DBHalfOpenMaxReqs = 5                // Max requests in half-open state
	DBCountInterval   = 10 * time.Second // Window for counting failures
)

// BreakerManager manages circuit breakers for the broker, oracle, and database.
type BreakerManager struct {
	broker   *gobreaker.CircuitBreaker
	oracle   *gobreaker.CircuitBreaker
	database *gobreaker.CircuitBreaker
	metrics  *BreakerMetrics
}

// BreakerMetrics holds Prometheus metrics for circuit breakers
type BreakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	// Global metrics instance (singleton)
	globalMetrics *BreakerMetrics
	metricsOnce   sync.Once
)

// initMetrics initializes the global metrics instance exactly once in a thread-safe manner
func initMetrics() {
	metricsOnce.Do(func() {
		globalMetrics = &BreakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"service"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "circuit_breaker_requests_total",
					Help: "Total number of requests through circuit breaker",
				},
				[]string{"service", "result"},
			),
			failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "circuit_breaker_failures_total",
					Help: "Total number of failures tracked by circuit breaker",
				},
				[]string{"service"},
			),
		}
	})
}

// ServiceSettings holds circuit breaker configuration for a single service
type ServiceSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// NewBreakerManager creates a circuit breaker manager with default settings.
func NewBreakerManager() *BreakerManager {
	return NewBreakerManagerWithSettings(nil, nil, nil)
}

// NewBreakerManagerWithSettings creates a circuit breaker manager with Prometheus metrics.
// Nil settings fall back to the constants defined above.
func NewBreakerManagerWithSettings(brokerSettings, oracleSettings, dbSettings *ServiceSettings) *BreakerManager {
	// Register metrics only once using sync.Once for thread safety
	initMetrics()

	manager := &BreakerManager{
		metrics: globalMetrics,
	}

	// Use defaults if settings not provided
	if brokerSettings == nil {
		brokerSettings = &ServiceSettings{
			MinRequests:     BrokerMinRequests,
			FailureRatio:    BrokerFailureRatio,
			OpenTimeout:     BrokerOpenTimeout,
			HalfOpenMaxReqs: BrokerHalfOpenMaxReqs,
			CountInterval:   BrokerCountInterval,
		}
	}
	if oracleSettings == nil {
		oracleSettings = &ServiceSettings{
			MinRequests:     OracleMinRequests,
			FailureRatio:    OracleFailureRatio,
			OpenTimeout:     OracleOpenTimeout,
			HalfOpenMaxReqs: OracleHalfOpenMaxReqs,
			CountInterval:   OracleCountInterval,
		}
	}
	if dbSettings == nil {
		dbSettings = &ServiceSettings{
			MinRequests:     DBMinRequests,
			FailureRatio:    DBFailureRatio,
			OpenTimeout:     DBOpenTimeout,
			HalfOpenMaxReqs: DBHalfOpenMaxReqs,
			CountInterval:   DBCountInterval,
		}
	}

	manager.broker = gobreaker.NewCircuitBreaker(breakerSettings("broker", brokerSettings, manager))
	manager.oracle = gobreaker.NewCircuitBreaker(breakerSettings("oracle", oracleSettings, manager))
	manager.database = gobreaker.NewCircuitBreaker(breakerSettings("database", dbSettings, manager))

	// Initialize metrics
	manager.updateMetrics("broker", manager.broker.State())
	manager.updateMetrics("oracle", manager.oracle.State())
	manager.updateMetrics("database", manager.database.State())

	return manager
}

func breakerSettings(service string, s *ServiceSettings, manager *BreakerManager) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        service,
		MaxRequests: s.HalfOpenMaxReqs,
		Interval:    s.CountInterval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			manager.updateMetrics(service, to)
		},
	}
}

// NewPassthroughBreakerManager creates a circuit breaker manager that never trips.
// Useful for tests that exercise other components without the breaker interfering.
func NewPassthroughBreakerManager() *BreakerManager {
	initMetrics()

	manager := &BreakerManager{
		metrics: globalMetrics,
	}

	neverTrip := func(counts gobreaker.Counts) bool {
		return false
	}

	manager.broker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker_passthrough",
		MaxRequests: 1000,
		Interval:    0,
		Timeout:     1 * time.Millisecond,
		ReadyToTrip: neverTrip,
	})

	manager.oracle = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "oracle_passthrough",
		MaxRequests: 1000,
		Interval:    0,
		Timeout:     1 * time.Millisecond,
		ReadyToTrip: neverTrip,
	})

	manager.database = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "database_passthrough",
		MaxRequests: 1000,
		Interval:    0,
		Timeout:     1 * time.Millisecond,
		ReadyToTrip: neverTrip,
	})

	return manager
}

// Broker returns the broker circuit breaker
func (m *BreakerManager) Broker() *gobreaker.CircuitBreaker {
	return m.broker
}

// Oracle returns the oracle circuit breaker
func (m *BreakerManager) Oracle() *gobreaker.CircuitBreaker {
	return m.oracle
}

// Database returns the database circuit breaker
func (m *BreakerManager) Database() *gobreaker.CircuitBreaker {
	return m.database
}

// updateMetrics updates Prometheus metrics for a circuit breaker state change
func (m *BreakerManager) updateMetrics(service string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateOpen:
		stateValue = 1
	case gobreaker.StateHalfOpen:
		stateValue = 2
	}
	m.metrics.state.WithLabelValues(service).Set(stateValue)
}

// RecordRequest records a request result for metrics
func (m *BreakerMetrics) RecordRequest(service string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
		m.failures.WithLabelValues(service).Inc()
	}
	m.requests.WithLabelValues(service, result).Inc()
}

// Metrics returns the metrics instance for manual recording
func (m *BreakerManager) Metrics() *BreakerMetrics {
	return m.metrics
}
