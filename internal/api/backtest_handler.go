package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/audit"
	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
	"github.com/ajitpratap0/stockfunk/internal/validation"
	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

// defaultInitialCapital is the starting cash when the request omits it.
const defaultInitialCapital = 100000

// RunBacktestRequest defines the request body for a synchronous backtest.
// TakeProfit and StopLoss override the strategy's own exits and pass
// through the same percentage normalization as any other spec field.
type RunBacktestRequest struct {
	Strategy       map[string]interface{} `json:"strategy" binding:"required"`
	Days           int                    `json:"days"`
	InitialCapital float64                `json:"initial_capital"`
	TakeProfit     *float64               `json:"take_profit,omitempty"`
	StopLoss       *float64               `json:"stop_loss,omitempty"`
	UserID         string                 `json:"user_id"`
}

// handleRunBacktest validates the strategy, runs the simulation, and
// returns the full result. When a user is identified the outcome is
// also saved to their bot history; that save is best effort and never
// fails the request.
func (s *Server) handleRunBacktest(c *gin.Context) {
	if s.deps.Backtester == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "backtester not configured",
		})
		return
	}

	var req RunBacktestRequest
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

	val := validation.NewBacktestValidator()
	val.ValidateDays(req.Days)
	val.ValidateInitialCapital(req.InitialCapital)
	if val.HasErrors() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": val.Errors(),
		})
		return
	}

	// Overrides ride through the normalizer so raw percentages get the
	// same scaling as spec-native exits.
	if req.TakeProfit != nil {
		req.Strategy["take_profit"] = *req.TakeProfit
	}
	if req.StopLoss != nil {
		req.Strategy["stop_loss"] = *req.StopLoss
	}

	spec, err := strategy.Normalize(req.Strategy)
	if err != nil {
		var verrs strategy.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid strategy",
				"details": verrs,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid strategy",
			"details": err.Error(),
		})
		return
	}

	initialCapital := req.InitialCapital
	if initialCapital <= 0 {
		initialCapital = defaultInitialCapital
	}

	result, err := s.deps.Backtester.Run(c.Request.Context(), agents.BacktestRequest{
		Spec:           spec,
		Days:           req.Days,
		InitialCapital: initialCapital,
	})
	if err != nil {
		log.Error().Err(err).Str("strategy", spec.Name).Msg("Backtest failed")
		s.deps.Audit.LogBacktestRun(c.Request.Context(), req.UserID, c.ClientIP(), spec.Name, nil, false, err.Error())
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Backtest failed",
			"details": err.Error(),
		})
		return
	}

	s.deps.Audit.LogBacktestRun(c.Request.Context(), req.UserID, c.ClientIP(), spec.Name, map[string]interface{}{
		"days":             req.Days,
		"total_return_pct": result.Summary.TotalReturnPct,
		"total_trades":     result.Summary.TotalTrades,
	}, true, "")

	resp := gin.H{
		"strategy": spec,
		"result":   result,
	}

	if userID != uuid.Nil && s.deps.Store != nil {
		if botID, err := s.saveBacktestBot(c, userID, spec, result); err != nil {
			// Best effort: the caller already has the result.
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to save backtest to bot history")
		} else {
			s.deps.Audit.LogBotAction(c.Request.Context(), audit.EventTypeBotSaved, req.UserID, c.ClientIP(), botID.String(), spec.Name, true, "")
			resp["bot_id"] = botID.String()
		}
	}

	c.JSON(http.StatusOK, resp)
}

// saveBacktestBot stores a manual backtest run in the user's bot history.
func (s *Server) saveBacktestBot(c *gin.Context, userID uuid.UUID, spec *strategy.Spec, result *backtest.Result) (uuid.UUID, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return uuid.Nil, err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return uuid.Nil, err
	}

	description := spec.Description
	bot := &db.TradingBot{
		ID:             uuid.New(),
		UserID:         userID,
		Name:           spec.Name,
		Description:    &description,
		Symbols:        spec.Assets,
		Strategy:       specJSON,
		BacktestResult: resultJSON,
		Source:         "manual",
	}

	if err := s.deps.Store.InsertBot(c.Request.Context(), bot); err != nil {
		return uuid.Nil, err
	}
	return bot.ID, nil
}
