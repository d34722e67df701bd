package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/audit"
	"github.com/ajitpratap0/stockfunk/internal/workflow"
)

// StartWorkflowRequest is the body for starting a strategy-building
// workflow on an existing session.
type StartWorkflowRequest struct {
	StrategyDescription string `json:"strategy_description" binding:"required"`
	FastMode            bool   `json:"fast_mode"`
	UserID              string `json:"user_id"`
}

// handleCreateSession allocates a fresh workflow session with an empty
// event history and returns its ID.
func (s *Server) handleCreateSession(c *gin.Context) {
	if s.deps.Workflow == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "workflow engine not configured",
		})
		return
	}

	sessionID := s.deps.Workflow.CreateSession()
	c.JSON(http.StatusCreated, gin.H{
		"sessionId": sessionID,
	})
}

// handleStartWorkflow kicks off strategy generation for a session. The
// session must exist and must not have been started before.
func (s *Server) handleStartWorkflow(c *gin.Context) {
	if s.deps.Workflow == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "workflow engine not configured",
		})
		return
	}

	sessionID := c.Param("sessionId")

	var req StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	var userID uuid.UUID
	if req.UserID != "" {
		parsed, err := uuid.Parse(req.UserID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid user_id format",
			})
			return
		}
		userID = parsed
	}

	err := s.deps.Workflow.StartWorkflow(c.Request.Context(), sessionID, workflow.StartRequest{
		UserID:   userID,
		Query:    req.StrategyDescription,
		FastMode: req.FastMode,
	})
	if err != nil {
		if workflow.IsSessionNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": err.Error(),
			})
			return
		}
		if errors.Is(err, workflow.ErrAlreadyStarted) {
			c.JSON(http.StatusConflict, gin.H{
				"error": err.Error(),
			})
			return
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to start workflow")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to start workflow",
		})
		return
	}

	s.deps.Audit.Log(c.Request.Context(), &audit.Event{
		EventType: audit.EventTypeWorkflowStarted,
		UserID:    req.UserID,
		IPAddress: c.ClientIP(),
		Resource:  sessionID,
		Action:    "Workflow started",
		Success:   true,
		Metadata: map[string]interface{}{
			"fast_mode": req.FastMode,
		},
	})

	c.JSON(http.StatusAccepted, gin.H{
		"sessionId": sessionID,
		"status":    "started",
	})
}

// handlePollEvents returns buffered progress events from index `from`
// onward plus the running total, for clients that cannot hold a stream.
func (s *Server) handlePollEvents(c *gin.Context) {
	if s.deps.Workflow == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "workflow engine not configured",
		})
		return
	}

	sessionID := c.Param("sessionId")

	from := 0
	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := strconv.Atoi(fromStr)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "from must be a non-negative integer",
			})
			return
		}
		from = parsed
	}

	events, total, err := s.deps.Workflow.Poll(sessionID, from)
	if err != nil {
		if workflow.IsSessionNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": err.Error(),
			})
			return
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to poll events")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to poll events",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
		"from":   from,
	})
}

// handleGetResult returns the stored result for a completed session.
// Unknown sessions, expired results, and still-running sessions all
// surface as not-found per the result contract.
func (s *Server) handleGetResult(c *gin.Context) {
	if s.deps.Workflow == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "workflow engine not configured",
		})
		return
	}

	sessionID := c.Param("sessionId")

	result, err := s.deps.Workflow.Result(sessionID)
	if err != nil {
		if workflow.IsSessionNotFound(err) || errors.Is(err, workflow.ErrNotFinished) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": err.Error(),
			})
			return
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to fetch result")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch result",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
