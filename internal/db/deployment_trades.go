package db

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TradeSide represents buy or sell (database enum)
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// TradeStatus represents order lifecycle state (database enum)
type TradeStatus string

const (
	TradeStatusPending         TradeStatus = "pending"
	TradeStatusPartiallyFilled TradeStatus = "partially_filled"
	TradeStatusFilled          TradeStatus = "filled"
	TradeStatusCancelled       TradeStatus = "cancelled"
	TradeStatusRejected        TradeStatus = "rejected"
)

// IsTerminal reports whether the status can no longer change
func (s TradeStatus) IsTerminal() bool {
	return s == TradeStatusFilled || s == TradeStatusCancelled || s == TradeStatusRejected
}

// ConvertTradeSide converts an application side string to the database
// enum, defaulting to buy for unknown values
func ConvertTradeSide(side string) TradeSide {
	switch strings.ToLower(side) {
	case "sell":
		return TradeSideSell
	default:
		return TradeSideBuy
	}
}

// ConvertTradeStatus converts an application order status to the
// database enum, defaulting to pending for unknown values
func ConvertTradeStatus(status string) TradeStatus {
	switch strings.ToLower(status) {
	case "new", "pending", "accepted", "pending_new":
		return TradeStatusPending
	case "partially_filled", "partial_fill":
		return TradeStatusPartiallyFilled
	case "filled", "fill":
		return TradeStatusFilled
	case "cancelled", "canceled", "expired":
		return TradeStatusCancelled
	case "rejected":
		return TradeStatusRejected
	default:
		return TradeStatusPending
	}
}

// DeploymentTrade is one order submitted on behalf of a deployment.
// deployment_id is the ownership key for the virtual portfolio: a
// deployment's cash and positions are reconstructed from its own filled
// trades only.
type DeploymentTrade struct {
	ID            uuid.UUID
	DeploymentID  uuid.UUID
	BrokerOrderID *string
	Symbol        string
	Side          TradeSide
	Quantity      float64
	Price         float64
	Notional      float64
	Status        TradeStatus
	Reason        *string
	ExecutedAt    time.Time
	Metadata      map[string]interface{}
	CreatedAt     time.Time
}

// InsertDeploymentTrade inserts a new trade record
func (db *DB) InsertDeploymentTrade(ctx context.Context, trade *DeploymentTrade) error {
	if trade.ID == uuid.Nil {
		trade.ID = uuid.New()
	}
	trade.CreatedAt = time.Now()

	query := `
		INSERT INTO deployment_trades (
			id, deployment_id, broker_order_id, symbol, side, quantity,
			price, notional, status, reason, executed_at, metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := db.pool.Exec(ctx, query,
		trade.ID,
		trade.DeploymentID,
		trade.BrokerOrderID,
		trade.Symbol,
		trade.Side,
		trade.Quantity,
		trade.Price,
		trade.Notional,
		trade.Status,
		trade.Reason,
		trade.ExecutedAt,
		trade.Metadata,
		trade.CreatedAt,
	)

	if err != nil {
		log.Error().
			Err(err).
			Str("trade_id", trade.ID.String()).
			Str("deployment_id", trade.DeploymentID.String()).
			Str("symbol", trade.Symbol).
			Msg("Failed to insert deployment trade")
		return repoError("InsertDeploymentTrade", "deployment_trade", err)
	}

	log.Debug().
		Str("trade_id", trade.ID.String()).
		Str("deployment_id", trade.DeploymentID.String()).
		Str("symbol", trade.Symbol).
		Str("side", string(trade.Side)).
		Float64("quantity", trade.Quantity).
		Float64("price", trade.Price).
		Msg("Deployment trade recorded")

	return nil
}

// UpdateDeploymentTradeStatus updates a trade's status and fill price
func (db *DB) UpdateDeploymentTradeStatus(ctx context.Context, tradeID uuid.UUID, status TradeStatus, fillPrice float64) error {
	query := `
		UPDATE deployment_trades
		SET status = $1,
		    price = CASE WHEN $2 > 0 THEN $2 ELSE price END,
		    notional = CASE WHEN $2 > 0 THEN $2 * quantity ELSE notional END
		WHERE id = $3
	`

	result, err := db.pool.Exec(ctx, query, status, fillPrice, tradeID)
	if err != nil {
		log.Error().
			Err(err).
			Str("trade_id", tradeID.String()).
			Msg("Failed to update deployment trade status")
		return repoError("UpdateDeploymentTradeStatus", "deployment_trade", err)
	}

	if result.RowsAffected() == 0 {
		return notFoundError("UpdateDeploymentTradeStatus", "deployment_trade", tradeID.String())
	}

	return nil
}

// GetDeploymentTrades retrieves trades for a deployment, newest first
func (db *DB) GetDeploymentTrades(ctx context.Context, deploymentID uuid.UUID, limit int) ([]*DeploymentTrade, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, deployment_id, broker_order_id, symbol, side, quantity,
		       price, notional, status, reason, executed_at, metadata, created_at
		FROM deployment_trades
		WHERE deployment_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`

	rows, err := db.pool.Query(ctx, query, deploymentID, limit)
	if err != nil {
		return nil, repoError("GetDeploymentTrades", "deployment_trade", err)
	}
	defer rows.Close()

	return scanDeploymentTrades(rows)
}

// GetFilledDeploymentTrades retrieves a deployment's filled trades in
// execution order. The virtual portfolio replays these to rebuild cash
// and positions.
func (db *DB) GetFilledDeploymentTrades(ctx context.Context, deploymentID uuid.UUID) ([]*DeploymentTrade, error) {
	query := `
		SELECT id, deployment_id, broker_order_id, symbol, side, quantity,
		       price, notional, status, reason, executed_at, metadata, created_at
		FROM deployment_trades
		WHERE deployment_id = $1 AND status = $2
		ORDER BY executed_at ASC
	`

	rows, err := db.pool.Query(ctx, query, deploymentID, TradeStatusFilled)
	if err != nil {
		return nil, repoError("GetFilledDeploymentTrades", "deployment_trade", err)
	}
	defer rows.Close()

	return scanDeploymentTrades(rows)
}

// scanDeploymentTrades is a helper to scan multiple trade rows
func scanDeploymentTrades(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]*DeploymentTrade, error) {
	var trades []*DeploymentTrade
	for rows.Next() {
		var trade DeploymentTrade
		err := rows.Scan(
			&trade.ID,
			&trade.DeploymentID,
			&trade.BrokerOrderID,
			&trade.Symbol,
			&trade.Side,
			&trade.Quantity,
			&trade.Price,
			&trade.Notional,
			&trade.Status,
			&trade.Reason,
			&trade.ExecutedAt,
			&trade.Metadata,
			&trade.CreatedAt,
		)
		if err != nil {
			return nil, repoError("scanDeploymentTrades", "deployment_trade", err)
		}
		trades = append(trades, &trade)
	}

	if err := rows.Err(); err != nil {
		return nil, repoError("scanDeploymentTrades", "deployment_trade", err)
	}

	return trades, nil
}
