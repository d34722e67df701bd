package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TradingBot is the stored artifact of a finished workflow run: the
// final strategy spec, the backtest that validated it, and the insights
// gathered along the way. session_id links the bot back to the workflow
// session that produced it.
type TradingBot struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	SessionID      *string
	Name           string
	Description    *string
	Symbols        []string
	Strategy       []byte // JSONB strategy spec
	BacktestResult []byte // JSONB result summary
	Insights       []string
	Iterations     int
	Source         string // "workflow", "manual", "import"
	Metadata       map[string]interface{}
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InsertBot inserts a new trading bot record
func (db *DB) InsertBot(ctx context.Context, bot *TradingBot) error {
	if bot.ID == uuid.Nil {
		bot.ID = uuid.New()
	}
	now := time.Now()
	bot.CreatedAt = now
	bot.UpdatedAt = now

	query := `
		INSERT INTO trading_bots (
			id, user_id, session_id, name, description, symbols,
			strategy, backtest_result, insights, iterations, source,
			metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err := db.pool.Exec(ctx, query,
		bot.ID,
		bot.UserID,
		bot.SessionID,
		bot.Name,
		bot.Description,
		bot.Symbols,
		bot.Strategy,
		bot.BacktestResult,
		bot.Insights,
		bot.Iterations,
		bot.Source,
		bot.Metadata,
		bot.CreatedAt,
		bot.UpdatedAt,
	)

	if err != nil {
		log.Error().
			Err(err).
			Str("bot_id", bot.ID.String()).
			Str("name", bot.Name).
			Msg("Failed to insert trading bot")
		return repoError("InsertBot", "trading_bot", err)
	}

	log.Info().
		Str("bot_id", bot.ID.String()).
		Str("name", bot.Name).
		Int("iterations", bot.Iterations).
		Msg("Trading bot saved")

	return nil
}

// GetBot retrieves a trading bot by ID
func (db *DB) GetBot(ctx context.Context, botID uuid.UUID) (*TradingBot, error) {
	query := `
		SELECT id, user_id, session_id, name, description, symbols,
		       strategy, backtest_result, insights, iterations, source,
		       metadata, created_at, updated_at
		FROM trading_bots
		WHERE id = $1
	`

	var bot TradingBot
	err := db.pool.QueryRow(ctx, query, botID).Scan(
		&bot.ID,
		&bot.UserID,
		&bot.SessionID,
		&bot.Name,
		&bot.Description,
		&bot.Symbols,
		&bot.Strategy,
		&bot.BacktestResult,
		&bot.Insights,
		&bot.Iterations,
		&bot.Source,
		&bot.Metadata,
		&bot.CreatedAt,
		&bot.UpdatedAt,
	)

	if err != nil {
		return nil, repoError("GetBot", "trading_bot", err)
	}

	return &bot, nil
}

// GetBotBySession retrieves the bot created by a workflow session
func (db *DB) GetBotBySession(ctx context.Context, sessionID string) (*TradingBot, error) {
	query := `
		SELECT id, user_id, session_id, name, description, symbols,
		       strategy, backtest_result, insights, iterations, source,
		       metadata, created_at, updated_at
		FROM trading_bots
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var bot TradingBot
	err := db.pool.QueryRow(ctx, query, sessionID).Scan(
		&bot.ID,
		&bot.UserID,
		&bot.SessionID,
		&bot.Name,
		&bot.Description,
		&bot.Symbols,
		&bot.Strategy,
		&bot.BacktestResult,
		&bot.Insights,
		&bot.Iterations,
		&bot.Source,
		&bot.Metadata,
		&bot.CreatedAt,
		&bot.UpdatedAt,
	)

	if err != nil {
		return nil, repoError("GetBotBySession", "trading_bot", err)
	}

	return &bot, nil
}

// ListBotsByUser retrieves bots owned by a user, newest first
func (db *DB) ListBotsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*TradingBot, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, session_id, name, description, symbols,
		       strategy, backtest_result, insights, iterations, source,
		       metadata, created_at, updated_at
		FROM trading_bots
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := db.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, repoError("ListBotsByUser", "trading_bot", err)
	}
	defer rows.Close()

	var bots []*TradingBot
	for rows.Next() {
		var bot TradingBot
		err := rows.Scan(
			&bot.ID,
			&bot.UserID,
			&bot.SessionID,
			&bot.Name,
			&bot.Description,
			&bot.Symbols,
			&bot.Strategy,
			&bot.BacktestResult,
			&bot.Insights,
			&bot.Iterations,
			&bot.Source,
			&bot.Metadata,
			&bot.CreatedAt,
			&bot.UpdatedAt,
		)
		if err != nil {
			return nil, repoError("ListBotsByUser", "trading_bot", err)
		}
		bots = append(bots, &bot)
	}

	if err := rows.Err(); err != nil {
		return nil, repoError("ListBotsByUser", "trading_bot", err)
	}

	return bots, nil
}

// DeleteBot removes a trading bot
func (db *DB) DeleteBot(ctx context.Context, botID uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM trading_bots WHERE id = $1`, botID)
	if err != nil {
		return repoError("DeleteBot", "trading_bot", err)
	}

	if result.RowsAffected() == 0 {
		return notFoundError("DeleteBot", "trading_bot", botID.String())
	}

	log.Info().
		Str("bot_id", botID.String()).
		Msg("Trading bot deleted")

	return nil
}
