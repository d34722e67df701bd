package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// DeploymentPosition is one symbol's holding inside a deployment's
// virtual portfolio. (deployment_id, symbol) is the natural key; the
// row is upserted on every fill and deleted when quantity reaches zero.
type DeploymentPosition struct {
	ID            uuid.UUID
	DeploymentID  uuid.UUID
	Symbol        string
	Quantity      float64
	AvgEntryPrice float64
	CurrentPrice  float64
	MarketValue   float64
	UnrealizedPnL float64
	RealizedPnL   float64
	OpenedAt      time.Time
	UpdatedAt     time.Time
}

const upsertPositionSQL = `
	INSERT INTO deployment_positions (
		id, deployment_id, symbol, quantity, avg_entry_price,
		current_price, market_value, unrealized_pnl, realized_pnl,
		opened_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW()
	)
	ON CONFLICT (deployment_id, symbol) DO UPDATE SET
		quantity = EXCLUDED.quantity,
		avg_entry_price = EXCLUDED.avg_entry_price,
		current_price = EXCLUDED.current_price,
		market_value = EXCLUDED.market_value,
		unrealized_pnl = EXCLUDED.unrealized_pnl,
		realized_pnl = EXCLUDED.realized_pnl,
		updated_at = NOW()
`

// UpsertDeploymentPosition inserts or updates one position row
func (db *DB) UpsertDeploymentPosition(ctx context.Context, pos *DeploymentPosition) error {
	if pos.ID == uuid.Nil {
		pos.ID = uuid.New()
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = time.Now()
	}

	_, err := db.pool.Exec(ctx, upsertPositionSQL,
		pos.ID,
		pos.DeploymentID,
		pos.Symbol,
		pos.Quantity,
		pos.AvgEntryPrice,
		pos.CurrentPrice,
		pos.MarketValue,
		pos.UnrealizedPnL,
		pos.RealizedPnL,
		pos.OpenedAt,
	)

	if err != nil {
		log.Error().
			Err(err).
			Str("deployment_id", pos.DeploymentID.String()).
			Str("symbol", pos.Symbol).
			Msg("Failed to upsert deployment position")
		return repoError("UpsertDeploymentPosition", "deployment_position", err)
	}

	return nil
}

// UpsertDeploymentPositions writes a whole position snapshot in one
// round trip using a pgx batch. Rows with zero quantity are deleted
// instead of written, so closed positions disappear from the snapshot.
func (db *DB) UpsertDeploymentPositions(ctx context.Context, deploymentID uuid.UUID, positions []*DeploymentPosition) error {
	batch := &pgx.Batch{}

	for _, pos := range positions {
		if pos.Quantity <= 0 {
			batch.Queue(
				`DELETE FROM deployment_positions WHERE deployment_id = $1 AND symbol = $2`,
				deploymentID, pos.Symbol,
			)
			continue
		}
		if pos.ID == uuid.Nil {
			pos.ID = uuid.New()
		}
		if pos.OpenedAt.IsZero() {
			pos.OpenedAt = time.Now()
		}
		batch.Queue(upsertPositionSQL,
			pos.ID,
			deploymentID,
			pos.Symbol,
			pos.Quantity,
			pos.AvgEntryPrice,
			pos.CurrentPrice,
			pos.MarketValue,
			pos.UnrealizedPnL,
			pos.RealizedPnL,
			pos.OpenedAt,
		)
	}

	if batch.Len() == 0 {
		return nil
	}

	results := db.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			log.Error().
				Err(err).
				Str("deployment_id", deploymentID.String()).
				Int("statement", i).
				Msg("Failed to write position snapshot")
			return repoError("UpsertDeploymentPositions", "deployment_position", err)
		}
	}

	log.Debug().
		Str("deployment_id", deploymentID.String()).
		Int("positions", len(positions)).
		Msg("Position snapshot written")

	return nil
}

// GetDeploymentPosition retrieves one position by deployment and symbol
func (db *DB) GetDeploymentPosition(ctx context.Context, deploymentID uuid.UUID, symbol string) (*DeploymentPosition, error) {
	query := `
		SELECT id, deployment_id, symbol, quantity, avg_entry_price,
		       current_price, market_value, unrealized_pnl, realized_pnl,
		       opened_at, updated_at
		FROM deployment_positions
		WHERE deployment_id = $1 AND symbol = $2
	`

	var pos DeploymentPosition
	err := db.pool.QueryRow(ctx, query, deploymentID, symbol).Scan(
		&pos.ID,
		&pos.DeploymentID,
		&pos.Symbol,
		&pos.Quantity,
		&pos.AvgEntryPrice,
		&pos.CurrentPrice,
		&pos.MarketValue,
		&pos.UnrealizedPnL,
		&pos.RealizedPnL,
		&pos.OpenedAt,
		&pos.UpdatedAt,
	)

	if err != nil {
		return nil, repoError("GetDeploymentPosition", "deployment_position", err)
	}

	return &pos, nil
}

// GetDeploymentPositions retrieves all open positions for a deployment
func (db *DB) GetDeploymentPositions(ctx context.Context, deploymentID uuid.UUID) ([]*DeploymentPosition, error) {
	query := `
		SELECT id, deployment_id, symbol, quantity, avg_entry_price,
		       current_price, market_value, unrealized_pnl, realized_pnl,
		       opened_at, updated_at
		FROM deployment_positions
		WHERE deployment_id = $1
		ORDER BY symbol ASC
	`

	rows, err := db.pool.Query(ctx, query, deploymentID)
	if err != nil {
		return nil, repoError("GetDeploymentPositions", "deployment_position", err)
	}
	defer rows.Close()

	var positions []*DeploymentPosition
	for rows.Next() {
		var pos DeploymentPosition
		err := rows.Scan(
			&pos.ID,
			&pos.DeploymentID,
			&pos.Symbol,
			&pos.Quantity,
			&pos.AvgEntryPrice,
			&pos.CurrentPrice,
			&pos.MarketValue,
			&pos.UnrealizedPnL,
			&pos.RealizedPnL,
			&pos.OpenedAt,
			&pos.UpdatedAt,
		)
		if err != nil {
			return nil, repoError("GetDeploymentPositions", "deployment_position", err)
		}
		positions = append(positions, &pos)
	}

	if err := rows.Err(); err != nil {
		return nil, repoError("GetDeploymentPositions", "deployment_position", err)
	}

	return positions, nil
}

// DeleteDeploymentPosition removes a position row once its quantity
// reaches zero
func (db *DB) DeleteDeploymentPosition(ctx context.Context, deploymentID uuid.UUID, symbol string) error {
	query := `DELETE FROM deployment_positions WHERE deployment_id = $1 AND symbol = $2`

	_, err := db.pool.Exec(ctx, query, deploymentID, symbol)
	if err != nil {
		return repoError("DeleteDeploymentPosition", "deployment_position", err)
	}

	return nil
}
