package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/stockfunk/internal/metrics"
)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Root and operational endpoints
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleGetHealth)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API v1 group
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleGetStatus)
		v1.GET("/health", s.handleGetHealth)

		// Workflow sessions
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", s.handleCreateSession)
			sessions.POST("/:sessionId/start", s.handleStartWorkflow)
			sessions.GET("/:sessionId/stream", s.handleStreamEvents)
		}
		v1.GET("/events/:sessionId", s.handlePollEvents)
		v1.GET("/result/:sessionId", s.handleGetResult)

		// Synchronous backtest
		v1.POST("/backtest", s.handleRunBacktest)

		// Saved strategies
		bots := v1.Group("/bots")
		{
			bots.GET("", s.handleListBots)
			bots.GET("/:id", s.handleGetBot)
			bots.DELETE("/:id", s.handleDeleteBot)
		}

		// Live deployments
		deployments := v1.Group("/deployments")
		{
			deployments.POST("", s.handleCreateDeployment)
			deployments.GET("", s.handleListDeployments)
			deployments.GET("/:id", s.handleGetDeployment)
			deployments.POST("/:id/pause", s.handlePauseDeployment)
			deployments.POST("/:id/resume", s.handleResumeDeployment)
			deployments.POST("/:id/stop", s.handleStopDeployment)
			deployments.POST("/:id/activate", s.handleActivateDeployment)
			deployments.GET("/:id/trades", s.handleGetDeploymentTrades)
			deployments.GET("/:id/metrics", s.handleGetDeploymentMetrics)
			deployments.GET("/:id/positions", s.handleGetDeploymentPositions)
		}
	}
}
