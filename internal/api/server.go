// Package api exposes the trading system over HTTP: workflow sessions
// with streaming progress, synchronous backtests, saved bots, and
// deployment lifecycle control. The server is a thin adapter over the
// engines it fronts; domain rules live behind the Deps seams.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/audit"
	"github.com/ajitpratap0/stockfunk/internal/broker"
	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/workflow"
	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

// Store is the slice of the repository layer the handlers touch.
// *db.DB satisfies it.
type Store interface {
	Ping(ctx context.Context) error

	InsertBot(ctx context.Context, bot *db.TradingBot) error
	GetBot(ctx context.Context, botID uuid.UUID) (*db.TradingBot, error)
	ListBotsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*db.TradingBot, error)
	DeleteBot(ctx context.Context, botID uuid.UUID) error

	InsertDeployment(ctx context.Context, dep *db.Deployment) error
	GetDeployment(ctx context.Context, deploymentID uuid.UUID) (*db.Deployment, error)
	ListDeploymentsByUser(ctx context.Context, userID uuid.UUID) ([]*db.Deployment, error)
	UpdateDeploymentStatus(ctx context.Context, deploymentID uuid.UUID, status db.DeploymentStatus, errorMsg *string) error
	UpdateDeploymentCapital(ctx context.Context, deploymentID uuid.UUID, currentCapital float64) error
	InsertDeploymentTrade(ctx context.Context, trade *db.DeploymentTrade) error
	GetDeploymentTrades(ctx context.Context, deploymentID uuid.UUID, limit int) ([]*db.DeploymentTrade, error)
	GetFilledDeploymentTrades(ctx context.Context, deploymentID uuid.UUID) ([]*db.DeploymentTrade, error)
	GetDeploymentPositions(ctx context.Context, deploymentID uuid.UUID) ([]*db.DeploymentPosition, error)
	UpsertDeploymentPositions(ctx context.Context, deploymentID uuid.UUID, positions []*db.DeploymentPosition) error
	GetDeploymentMetrics(ctx context.Context, deploymentID uuid.UUID, limit int) ([]*db.DeploymentMetrics, error)
}

// BacktestRunner evaluates a strategy spec against historical data.
// *agents.Backtester satisfies it.
type BacktestRunner interface {
	Run(ctx context.Context, req agents.BacktestRequest) (*backtest.Result, error)
}

// LiveController lets deployment handlers nudge the live engine right
// after a status change instead of waiting for its next sync cycle.
// *live.Engine satisfies it. A nil controller means the engine runs in
// another process and converges on its own.
type LiveController interface {
	Sync()
	IsScheduled(deploymentID uuid.UUID) bool
	TickNow(deploymentID uuid.UUID) bool
}

// Server represents the REST API server
type Server struct {
	router *gin.Engine
	deps   Deps
	addr   string
	server *http.Server
}

// Config contains server configuration
type Config struct {
	Host string
	Port int
}

// Deps are the collaborators the server fronts. Store and Workflow back
// most endpoints; Backtester, Live, and Broker are optional and their
// endpoints report service-unavailable when absent. A nil Audit logger
// disables the audit trail.
type Deps struct {
	Store      Store
	Workflow   *workflow.Engine
	Backtester BacktestRunner
	Live       LiveController
	Broker     broker.Broker
	Audit      *audit.Logger
}

// NewServer creates a new API server
func NewServer(config Config, deps Deps) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	server := &Server{
		router: router,
		deps:   deps,
		addr:   addr,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}

// MetricsMiddleware records request counts and latency per route. The
// route template keeps label cardinality bounded; unmatched paths
// collapse into a single bucket.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPIRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			float64(time.Since(start).Milliseconds()),
		)
	}
}
