package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
)

// saveTimeout bounds the background persistence of a finished session.
const saveTimeout = 30 * time.Second

// BotStore persists finished strategies.
type BotStore interface {
	InsertBot(ctx context.Context, bot *db.TradingBot) error
}

// DatasetLinker associates a session's cached datasets with the saved bot.
type DatasetLinker interface {
	LinkSessionToBot(ctx context.Context, sessionID string, botID uuid.UUID) error
}

// saveBot persists a completed session's strategy as a trading bot. It runs
// after the terminal complete event: the client already has its result, so
// failures here are logged and counted but never surfaced to the session.
func (e *Engine) saveBot(res *Result, req StartRequest) {
	defer e.wg.Done()
	if e.deps.Bots == nil {
		return
	}
	log := e.log.With().Str("session_id", res.SessionID).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	specJSON, err := json.Marshal(res.Strategy)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal strategy for save")
		metrics.RecordError("bot_save_failed", "workflow")
		return
	}
	backtestJSON, err := json.Marshal(res.Backtest)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal backtest result for save")
		metrics.RecordError("bot_save_failed", "workflow")
		return
	}

	sessionID := res.SessionID
	description := res.Strategy.Description
	if description == "" {
		description = req.Query
	}

	bot := &db.TradingBot{
		ID:             res.BotID,
		UserID:         req.UserID,
		SessionID:      &sessionID,
		Name:           res.Strategy.Name,
		Description:    &description,
		Symbols:        res.Strategy.Assets,
		Strategy:       specJSON,
		BacktestResult: backtestJSON,
		Insights:       res.Insights,
		Iterations:     res.Iterations,
		Source:         "workflow",
	}

	if err := e.deps.Bots.InsertBot(ctx, bot); err != nil {
		log.Error().Err(err).Str("bot_id", res.BotID.String()).Msg("Failed to save bot")
		metrics.RecordError("bot_save_failed", "workflow")
		return
	}

	if e.deps.Datasets != nil {
		if err := e.deps.Datasets.LinkSessionToBot(ctx, res.SessionID, res.BotID); err != nil {
			log.Warn().Err(err).Msg("Failed to link session datasets to bot")
		}
	}

	log.Info().Str("bot_id", res.BotID.String()).Msg("Strategy saved as bot")
}
