package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/audit"
	"github.com/ajitpratap0/stockfunk/internal/broker"
	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/live"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
	"github.com/ajitpratap0/stockfunk/internal/validation"
)

// stopCloseReason tags trades created by stop-with-close-positions.
const stopCloseReason = "deployment_stopped"

// CreateDeploymentRequest defines the body for creating a deployment.
// The strategy comes either from a saved bot (bot_id) or inline; exactly
// one of the two must be present.
type CreateDeploymentRequest struct {
	UserID             string                 `json:"user_id" binding:"required"`
	BotID              string                 `json:"bot_id"`
	Strategy           map[string]interface{} `json:"strategy"`
	Name               string                 `json:"name"`
	Symbols            []string               `json:"symbols"`
	ExecutionFrequency string                 `json:"execution_frequency"`
	InitialCapital     float64                `json:"initial_capital" binding:"required,gt=0"`
	MaxPositionSize    *float64               `json:"max_position_size"`
	DailyLossLimit     *float64               `json:"daily_loss_limit"`
	StartPaused        bool                   `json:"start_paused"`
}

// StopDeploymentRequest defines the optional body for stopping a
// deployment.
type StopDeploymentRequest struct {
	ClosePositions bool `json:"close_positions"`
}

// DeploymentResponse is the wire form of a deployment row.
type DeploymentResponse struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	BotID              string          `json:"bot_id,omitempty"`
	Name               string          `json:"name"`
	Status             string          `json:"status"`
	Strategy           json.RawMessage `json:"strategy,omitempty"`
	Symbols            []string        `json:"symbols"`
	ExecutionFrequency string          `json:"execution_frequency"`
	InitialCapital     float64         `json:"initial_capital"`
	CurrentCapital     float64         `json:"current_capital"`
	MaxPositionSize    *float64        `json:"max_position_size,omitempty"`
	DailyLossLimit     *float64        `json:"daily_loss_limit,omitempty"`
	LastExecutionAt    *time.Time      `json:"last_execution_at,omitempty"`
	LastError          *string         `json:"last_error,omitempty"`
	DeployedAt         time.Time       `json:"deployed_at"`
	StoppedAt          *time.Time      `json:"stopped_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// TradeResponse is the wire form of a deployment trade row.
type TradeResponse struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	Notional      float64   `json:"notional"`
	Status        string    `json:"status"`
	Reason        *string   `json:"reason,omitempty"`
	BrokerOrderID *string   `json:"broker_order_id,omitempty"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// MetricsResponse is the wire form of a deployment metrics snapshot.
type MetricsResponse struct {
	Time           time.Time `json:"time"`
	Equity         float64   `json:"equity"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	RealizedPnL    float64   `json:"realized_pnl"`
	TotalReturnPct float64   `json:"total_return_pct"`
	TotalTrades    int       `json:"total_trades"`
	WinningTrades  int       `json:"winning_trades"`
	LosingTrades   int       `json:"losing_trades"`
}

// PositionResponse is the wire form of a deployment position row.
type PositionResponse struct {
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	MarketValue   float64   `json:"market_value"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	OpenedAt      time.Time `json:"opened_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toDeploymentResponse(dep *db.Deployment) DeploymentResponse {
	resp := DeploymentResponse{
		ID:                 dep.ID.String(),
		UserID:             dep.UserID.String(),
		Name:               dep.Name,
		Status:             string(dep.Status),
		Strategy:           json.RawMessage(dep.Strategy),
		Symbols:            dep.Symbols,
		ExecutionFrequency: string(dep.ExecutionFrequency),
		InitialCapital:     dep.InitialCapital,
		CurrentCapital:     dep.CurrentCapital,
		MaxPositionSize:    dep.MaxPositionSize,
		DailyLossLimit:     dep.DailyLossLimit,
		LastExecutionAt:    dep.LastExecutionAt,
		LastError:          dep.LastError,
		DeployedAt:         dep.DeployedAt,
		StoppedAt:          dep.StoppedAt,
		CreatedAt:          dep.CreatedAt,
	}
	if dep.BotID != uuid.Nil {
		resp.BotID = dep.BotID.String()
	}
	return resp
}

func toTradeResponse(t *db.DeploymentTrade) TradeResponse {
	return TradeResponse{
		ID:            t.ID.String(),
		Symbol:        t.Symbol,
		Side:          string(t.Side),
		Quantity:      t.Quantity,
		Price:         t.Price,
		Notional:      t.Notional,
		Status:        string(t.Status),
		Reason:        t.Reason,
		BrokerOrderID: t.BrokerOrderID,
		ExecutedAt:    t.ExecutedAt,
	}
}

func toMetricsResponse(m *db.DeploymentMetrics) MetricsResponse {
	return MetricsResponse{
		Time:           m.Time,
		Equity:         m.Equity,
		Cash:           m.Cash,
		PositionsValue: m.PositionsValue,
		UnrealizedPnL:  m.UnrealizedPnL,
		RealizedPnL:    m.RealizedPnL,
		TotalReturnPct: m.TotalReturnPct,
		TotalTrades:    m.TotalTrades,
		WinningTrades:  m.WinningTrades,
		LosingTrades:   m.LosingTrades,
	}
}

func toPositionResponse(p *db.DeploymentPosition) PositionResponse {
	return PositionResponse{
		Symbol:        p.Symbol,
		Quantity:      p.Quantity,
		AvgEntryPrice: p.AvgEntryPrice,
		CurrentPrice:  p.CurrentPrice,
		MarketValue:   p.MarketValue,
		UnrealizedPnL: p.UnrealizedPnL,
		RealizedPnL:   p.RealizedPnL,
		OpenedAt:      p.OpenedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// handleCreateDeployment persists a new deployment. The strategy is
// normalized before the row is written so every execution tick parses a
// spec that already passed validation.
func (s *Server) handleCreateDeployment(c *gin.Context) {
	if s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	var req CreateDeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid user_id format",
		})
		return
	}

	if (req.BotID == "") == (req.Strategy == nil) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "exactly one of bot_id or strategy is required",
		})
		return
	}

	for i, symbol := range req.Symbols {
		req.Symbols[i] = validation.SanitizeSymbol(symbol)
	}
	val := validation.NewDeploymentValidator()
	val.ValidateName(req.Name)
	val.ValidateInitialCapital(req.InitialCapital)
	val.ValidateMaxPositionSize(req.MaxPositionSize, req.InitialCapital)
	val.ValidateDailyLossLimit(req.DailyLossLimit, req.InitialCapital)
	val.Frequency("execution_frequency", req.ExecutionFrequency)
	if len(req.Symbols) > 0 {
		// Absent symbols fall back to the strategy's assets below.
		val.Symbols("symbols", req.Symbols)
	}
	if val.HasErrors() {
		s.deps.Audit.LogInvalidInput(c.Request.Context(), c.ClientIP(), "deployment", val.Errors().Error())
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": val.Errors(),
		})
		return
	}

	ctx := c.Request.Context()

	var (
		spec  *strategy.Spec
		botID uuid.UUID
		name  = req.Name
	)
	if req.BotID != "" {
		botID, err = uuid.Parse(req.BotID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid bot_id format",
			})
			return
		}

		bot, err := s.deps.Store.GetBot(ctx, botID)
		if err != nil {
			respondRepoError(c, err, "bot")
			return
		}
		if bot.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "bot belongs to another user",
			})
			return
		}

		spec, err = strategy.ParseSpec(bot.Strategy)
		if err != nil {
			log.Error().Err(err).Str("bot_id", botID.String()).Msg("Saved bot strategy failed validation")
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "saved bot strategy is invalid",
				"details": err.Error(),
			})
			return
		}
		if name == "" {
			name = bot.Name
		}
	} else {
		spec, err = strategy.Normalize(req.Strategy)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid strategy",
				"details": err.Error(),
			})
			return
		}
	}

	if name == "" {
		name = spec.Name
	}
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = spec.Assets
	}

	specJSON, err := json.Marshal(spec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to encode strategy",
		})
		return
	}

	status := db.DeploymentStatusRunning
	if req.StartPaused {
		status = db.DeploymentStatusPaused
	}

	dep := &db.Deployment{
		ID:                 uuid.New(),
		UserID:             userID,
		BotID:              botID,
		Name:               name,
		Status:             status,
		Strategy:           specJSON,
		Symbols:            symbols,
		ExecutionFrequency: db.ConvertExecutionFrequency(req.ExecutionFrequency),
		InitialCapital:     req.InitialCapital,
		CurrentCapital:     req.InitialCapital,
		MaxPositionSize:    req.MaxPositionSize,
		DailyLossLimit:     req.DailyLossLimit,
	}

	if err := s.deps.Store.InsertDeployment(ctx, dep); err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to insert deployment")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to create deployment",
		})
		return
	}

	// Pick the new deployment up now rather than on the next sync cycle.
	if s.deps.Live != nil && status == db.DeploymentStatusRunning {
		s.deps.Live.Sync()
	}

	s.deps.Audit.LogDeploymentAction(ctx, audit.EventTypeDeploymentCreated, req.UserID, c.ClientIP(), dep.ID.String(), map[string]interface{}{
		"name":            name,
		"initial_capital": req.InitialCapital,
		"start_paused":    req.StartPaused,
	}, true, "")

	c.JSON(http.StatusCreated, toDeploymentResponse(dep))
}

// handleListDeployments lists a user's deployments.
func (s *Server) handleListDeployments(c *gin.Context) {
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

	deployments, err := s.deps.Store.ListDeploymentsByUser(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list deployments")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list deployments",
		})
		return
	}

	out := make([]DeploymentResponse, 0, len(deployments))
	for _, dep := range deployments {
		out = append(out, toDeploymentResponse(dep))
	}

	c.JSON(http.StatusOK, gin.H{
		"deployments": out,
		"total":       len(out),
	})
}

// handleGetDeployment fetches one deployment. When the live engine runs
// in-process the response also reports whether a tick is scheduled.
func (s *Server) handleGetDeployment(c *gin.Context) {
	dep, ok := s.loadDeployment(c)
	if !ok {
		return
	}

	resp := gin.H{
		"deployment": toDeploymentResponse(dep),
	}
	if s.deps.Live != nil {
		resp["scheduled"] = s.deps.Live.IsScheduled(dep.ID)
	}

	c.JSON(http.StatusOK, resp)
}

// handlePauseDeployment suspends ticking without losing state.
func (s *Server) handlePauseDeployment(c *gin.Context) {
	dep, ok := s.transitionDeployment(c, db.DeploymentStatusPaused)
	if !ok {
		return
	}

	s.deps.Audit.LogDeploymentAction(c.Request.Context(), audit.EventTypeDeploymentPaused, dep.UserID.String(), c.ClientIP(), dep.ID.String(), nil, true, "")

	c.JSON(http.StatusOK, gin.H{
		"id":     dep.ID.String(),
		"status": string(db.DeploymentStatusPaused),
	})
}

// handleResumeDeployment returns a paused deployment to running.
func (s *Server) handleResumeDeployment(c *gin.Context) {
	dep, ok := s.transitionDeployment(c, db.DeploymentStatusRunning)
	if !ok {
		return
	}

	s.deps.Audit.LogDeploymentAction(c.Request.Context(), audit.EventTypeDeploymentResumed, dep.UserID.String(), c.ClientIP(), dep.ID.String(), nil, true, "")

	c.JSON(http.StatusOK, gin.H{
		"id":     dep.ID.String(),
		"status": string(db.DeploymentStatusRunning),
	})
}

// handleStopDeployment terminally stops a deployment, optionally
// liquidating its virtual positions at market first.
func (s *Server) handleStopDeployment(c *gin.Context) {
	var req StopDeploymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	if req.ClosePositions && s.deps.Broker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "broker not configured, cannot close positions",
		})
		return
	}

	dep, ok := s.transitionDeployment(c, db.DeploymentStatusStopped)
	if !ok {
		return
	}

	resp := gin.H{
		"id":     dep.ID.String(),
		"status": string(db.DeploymentStatusStopped),
	}

	closedPositions := 0
	if req.ClosePositions {
		closed, closeErrs := s.closeDeploymentPositions(c, dep)
		closedPositions = closed
		resp["positions_closed"] = closed
		if len(closeErrs) > 0 {
			msgs := make([]string, 0, len(closeErrs))
			for _, err := range closeErrs {
				msgs = append(msgs, err.Error())
			}
			resp["close_errors"] = msgs
		}
	}

	s.deps.Audit.LogDeploymentAction(c.Request.Context(), audit.EventTypeDeploymentStopped, dep.UserID.String(), c.ClientIP(), dep.ID.String(), map[string]interface{}{
		"close_positions":  req.ClosePositions,
		"positions_closed": closedPositions,
	}, true, "")

	c.JSON(http.StatusOK, resp)
}

// handleActivateDeployment forces the live engine to schedule a running
// deployment immediately and fires its first tick, instead of waiting
// for the next sync cycle.
func (s *Server) handleActivateDeployment(c *gin.Context) {
	if s.deps.Live == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "live engine not configured",
		})
		return
	}

	dep, ok := s.loadDeployment(c)
	if !ok {
		return
	}

	if dep.Status != db.DeploymentStatusRunning {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "deployment is not running",
			"status": string(dep.Status),
		})
		return
	}

	s.deps.Live.Sync()
	ticked := s.deps.Live.TickNow(dep.ID)

	c.JSON(http.StatusOK, gin.H{
		"id":        dep.ID.String(),
		"status":    string(dep.Status),
		"scheduled": s.deps.Live.IsScheduled(dep.ID),
		"ticked":    ticked,
	})
}

// handleGetDeploymentTrades returns the deployment's trade history,
// newest first.
func (s *Server) handleGetDeploymentTrades(c *gin.Context) {
	dep, ok := s.loadDeployment(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, 100)
	if !ok {
		return
	}

	trades, err := s.deps.Store.GetDeploymentTrades(c.Request.Context(), dep.ID, limit)
	if err != nil {
		log.Error().Err(err).Str("deployment_id", dep.ID.String()).Msg("Failed to load trades")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to load trades",
		})
		return
	}

	out := make([]TradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeResponse(t))
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": out,
		"total":  len(out),
	})
}

// handleGetDeploymentMetrics returns recent equity snapshots, newest
// first.
func (s *Server) handleGetDeploymentMetrics(c *gin.Context) {
	dep, ok := s.loadDeployment(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, 100)
	if !ok {
		return
	}

	rows, err := s.deps.Store.GetDeploymentMetrics(c.Request.Context(), dep.ID, limit)
	if err != nil {
		log.Error().Err(err).Str("deployment_id", dep.ID.String()).Msg("Failed to load metrics")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to load metrics",
		})
		return
	}

	out := make([]MetricsResponse, 0, len(rows))
	for _, m := range rows {
		out = append(out, toMetricsResponse(m))
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics": out,
		"total":   len(out),
	})
}

// handleGetDeploymentPositions returns the deployment's open virtual
// positions.
func (s *Server) handleGetDeploymentPositions(c *gin.Context) {
	dep, ok := s.loadDeployment(c)
	if !ok {
		return
	}

	rows, err := s.deps.Store.GetDeploymentPositions(c.Request.Context(), dep.ID)
	if err != nil {
		log.Error().Err(err).Str("deployment_id", dep.ID.String()).Msg("Failed to load positions")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to load positions",
		})
		return
	}

	out := make([]PositionResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, toPositionResponse(p))
	}

	c.JSON(http.StatusOK, gin.H{
		"positions": out,
		"total":     len(out),
	})
}

// loadDeployment parses the :id param and fetches the row, writing the
// error response itself when either step fails.
func (s *Server) loadDeployment(c *gin.Context) (*db.Deployment, bool) {
	if s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid deployment ID format",
			"details": "Expected UUID format",
		})
		return nil, false
	}

	dep, err := s.deps.Store.GetDeployment(c.Request.Context(), id)
	if err != nil {
		respondRepoError(c, err, "deployment")
		return nil, false
	}
	return dep, true
}

// transitionDeployment enforces the status state machine and applies
// the change. The returned row still carries the pre-transition status.
func (s *Server) transitionDeployment(c *gin.Context, target db.DeploymentStatus) (*db.Deployment, bool) {
	dep, ok := s.loadDeployment(c)
	if !ok {
		return nil, false
	}

	if !db.ValidDeploymentTransition(dep.Status, target) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "invalid status transition",
			"from":  string(dep.Status),
			"to":    string(target),
		})
		return nil, false
	}

	if err := s.deps.Store.UpdateDeploymentStatus(c.Request.Context(), dep.ID, target, nil); err != nil {
		respondRepoError(c, err, "deployment")
		return nil, false
	}

	// Converge the schedule now rather than on the next sync cycle.
	if s.deps.Live != nil {
		s.deps.Live.Sync()
	}

	return dep, true
}

// closeDeploymentPositions liquidates the stopped deployment's virtual
// positions at market. The virtual ledger is rebuilt from filled trades
// only, so rejected closes leave their position rows intact. Per-symbol
// failures are collected, not fatal.
func (s *Server) closeDeploymentPositions(c *gin.Context, dep *db.Deployment) (int, []error) {
	ctx := c.Request.Context()

	trades, err := s.deps.Store.GetFilledDeploymentTrades(ctx, dep.ID)
	if err != nil {
		return 0, []error{err}
	}
	pf := live.ReplayTrades(dep.InitialCapital, trades)

	var (
		errs   []error
		closed []string
		prices = make(map[string]float64)
	)
	now := time.Now()

	for _, symbol := range pf.Symbols() {
		pos := pf.Position(symbol)
		if pos == nil || pos.Quantity <= 0 {
			continue
		}

		order, err := s.deps.Broker.SubmitOrder(ctx, broker.OrderRequest{
			Symbol:   symbol,
			Side:     broker.OrderSideSell,
			Type:     broker.OrderTypeMarket,
			Quantity: pos.Quantity,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		qty := order.FilledQty
		if qty <= 0 {
			qty = pos.Quantity
		}
		fillPrice := order.FilledAvgPrice
		if fillPrice <= 0 {
			fillPrice = pos.AvgEntryPrice
		}

		reason := stopCloseReason
		trade := &db.DeploymentTrade{
			DeploymentID: dep.ID,
			Symbol:       symbol,
			Side:         db.TradeSideSell,
			Quantity:     qty,
			Price:        fillPrice,
			Notional:     qty * fillPrice,
			Status:       db.ConvertTradeStatus(string(order.Status)),
			Reason:       &reason,
			ExecutedAt:   now,
		}
		if id := order.BrokerOrderID; id != "" {
			trade.BrokerOrderID = &id
		} else if order.ID != "" {
			id := order.ID
			trade.BrokerOrderID = &id
		}

		if err := s.deps.Store.InsertDeploymentTrade(ctx, trade); err != nil {
			errs = append(errs, err)
			continue
		}

		if trade.Status == db.TradeStatusFilled {
			pf.Apply(db.TradeSideSell, symbol, qty, fillPrice, now)
			prices[symbol] = fillPrice
			closed = append(closed, symbol)
		} else {
			errs = append(errs, errors.New("close order for "+symbol+" not filled: "+string(order.Status)))
		}
	}

	rows := pf.PositionRows(dep.ID, prices)
	for _, symbol := range closed {
		// Zero-quantity marker deletes the stored row.
		rows = append(rows, &db.DeploymentPosition{
			DeploymentID: dep.ID,
			Symbol:       symbol,
		})
	}
	if err := s.deps.Store.UpsertDeploymentPositions(ctx, dep.ID, rows); err != nil {
		errs = append(errs, err)
	}
	if err := s.deps.Store.UpdateDeploymentCapital(ctx, dep.ID, pf.Cash); err != nil {
		errs = append(errs, err)
	}

	if len(closed) > 0 {
		log.Info().
			Str("deployment_id", dep.ID.String()).
			Strs("symbols", closed).
			Msg("Closed positions on stop")
	}

	return len(closed), errs
}

// respondRepoError maps repository errors onto HTTP statuses.
func respondRepoError(c *gin.Context, err error, entity string) {
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": entity + " not found",
		})
		return
	}
	log.Error().Err(err).Str("entity", entity).Msg("Repository error")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "failed to load " + entity,
	})
}

// parseLimit reads the limit query parameter with an upper bound of 1000.
func parseLimit(c *gin.Context, def int) (int, bool) {
	limitStr := c.DefaultQuery("limit", strconv.Itoa(def))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid limit parameter",
			"details": "Limit must be between 1 and 1000",
		})
		return 0, false
	}
	return limit, true
}
