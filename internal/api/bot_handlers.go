package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/audit"
	"github.com/ajitpratap0/stockfunk/internal/db"
)

// BotResponse is the wire form of a saved trading bot.
type BotResponse struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	SessionID      *string         `json:"session_id,omitempty"`
	Name           string          `json:"name"`
	Description    *string         `json:"description,omitempty"`
	Symbols        []string        `json:"symbols"`
	Strategy       json.RawMessage `json:"strategy,omitempty"`
	BacktestResult json.RawMessage `json:"backtest_result,omitempty"`
	Insights       []string        `json:"insights,omitempty"`
	Iterations     int             `json:"iterations"`
	Source         string          `json:"source"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toBotResponse(bot *db.TradingBot) BotResponse {
	return BotResponse{
		ID:             bot.ID.String(),
		UserID:         bot.UserID.String(),
		SessionID:      bot.SessionID,
		Name:           bot.Name,
		Description:    bot.Description,
		Symbols:        bot.Symbols,
		Strategy:       json.RawMessage(bot.Strategy),
		BacktestResult: json.RawMessage(bot.BacktestResult),
		Insights:       bot.Insights,
		Iterations:     bot.Iterations,
		Source:         bot.Source,
		CreatedAt:      bot.CreatedAt,
	}
}

// handleListBots returns a page of the user's saved bots, newest first.
func (s *Server) handleListBots(c *gin.Context) {
	if s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user_id query parameter required",
		})
		return
	}

	limit, ok := parseLimit(c, 20)
	if !ok {
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid offset parameter",
			"details": "Offset must be >= 0",
		})
		return
	}

	bots, err := s.deps.Store.ListBotsByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list bots")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list bots",
		})
		return
	}

	out := make([]BotResponse, 0, len(bots))
	for _, bot := range bots {
		out = append(out, toBotResponse(bot))
	}

	c.JSON(http.StatusOK, gin.H{
		"bots":   out,
		"total":  len(out),
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetBot fetches one saved bot.
func (s *Server) handleGetBot(c *gin.Context) {
	bot, ok := s.loadBot(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, toBotResponse(bot))
}

// handleDeleteBot removes a saved bot. When the caller identifies
// itself with user_id, ownership is checked first.
func (s *Server) handleDeleteBot(c *gin.Context) {
	bot, ok := s.loadBot(c)
	if !ok {
		return
	}

	if userIDStr := c.Query("user_id"); userIDStr != "" {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid user_id format",
			})
			return
		}
		if bot.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "bot belongs to another user",
			})
			return
		}
	}

	if err := s.deps.Store.DeleteBot(c.Request.Context(), bot.ID); err != nil {
		respondRepoError(c, err, "bot")
		return
	}

	s.deps.Audit.LogBotAction(c.Request.Context(), audit.EventTypeBotDeleted, bot.UserID.String(), c.ClientIP(), bot.ID.String(), bot.Name, true, "")

	c.JSON(http.StatusOK, gin.H{
		"message": "bot deleted",
		"id":      bot.ID.String(),
	})
}

// loadBot parses the :id param and fetches the row, writing the error
// response itself when either step fails.
func (s *Server) loadBot(c *gin.Context) (*db.TradingBot, bool) {
	if s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid bot ID format",
			"details": "Expected UUID format",
		})
		return nil, false
	}

	bot, err := s.deps.Store.GetBot(c.Request.Context(), id)
	if err != nil {
		respondRepoError(c, err, "bot")
		return nil, false
	}
	return bot, true
}
