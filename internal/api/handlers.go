package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var startTime = time.Now()

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "StockFunk API",
		"version": "1.0.0",
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// handleGetStatus returns comprehensive system status
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Check database connection
	dbStatus := "healthy"
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
			dbStatus = "unhealthy"
			log.Warn().Err(err).Msg("Database health check failed")
		}
	} else {
		dbStatus = "not_configured"
	}

	// Determine overall system status
	systemStatus := "healthy"
	if dbStatus != "healthy" {
		systemStatus = "degraded"
	}

	status := gin.H{
		"status":    systemStatus,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).Seconds(),
		"version":   "1.0.0",
		"components": gin.H{
			"database": gin.H{
				"status": dbStatus,
			},
			"workflow": gin.H{
				"status": configuredStatus(s.deps.Workflow != nil),
			},
			"backtester": gin.H{
				"status": configuredStatus(s.deps.Backtester != nil),
			},
			"live_engine": gin.H{
				"status": configuredStatus(s.deps.Live != nil),
			},
			"broker": gin.H{
				"status": configuredStatus(s.deps.Broker != nil),
			},
		},
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb":       toMB(memStats.Alloc),
				"total_alloc_mb": toMB(memStats.TotalAlloc),
				"sys_mb":         toMB(memStats.Sys),
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		},
	}

	c.JSON(http.StatusOK, status)
}

// handleGetHealth is the load balancer probe. Only database reachability
// gates the verdict.
func (s *Server) handleGetHealth(c *gin.Context) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// Utility functions

func configuredStatus(ok bool) string {
	if ok {
		return "configured"
	}
	return "not_configured"
}

func toMB(bytes uint64) uint64 {
	return bytes / 1024 / 1024
}
