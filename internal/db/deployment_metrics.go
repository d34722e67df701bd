package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DeploymentMetrics is a point-in-time snapshot of a deployment's
// virtual portfolio, written after each execution tick. Equity is
// virtual cash plus the market value of open positions.
type DeploymentMetrics struct {
	ID             int64
	DeploymentID   uuid.UUID
	Time           time.Time
	Equity         float64
	Cash           float64
	PositionsValue float64
	UnrealizedPnL  float64
	RealizedPnL    float64
	TotalReturnPct float64
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	Metadata       map[string]interface{}
}

// InsertDeploymentMetrics inserts a metrics snapshot
func (db *DB) InsertDeploymentMetrics(ctx context.Context, m *DeploymentMetrics) error {
	if m.Time.IsZero() {
		m.Time = time.Now()
	}

	query := `
		INSERT INTO deployment_metrics (
			deployment_id, time, equity, cash, positions_value,
			unrealized_pnl, realized_pnl, total_return_pct,
			total_trades, winning_trades, losing_trades, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := db.pool.Exec(ctx, query,
		m.DeploymentID,
		m.Time,
		m.Equity,
		m.Cash,
		m.PositionsValue,
		m.UnrealizedPnL,
		m.RealizedPnL,
		m.TotalReturnPct,
		m.TotalTrades,
		m.WinningTrades,
		m.LosingTrades,
		m.Metadata,
	)

	if err != nil {
		log.Error().
			Err(err).
			Str("deployment_id", m.DeploymentID.String()).
			Msg("Failed to insert deployment metrics")
		return repoError("InsertDeploymentMetrics", "deployment_metrics", err)
	}

	return nil
}

// GetDeploymentMetrics retrieves metrics snapshots for a deployment,
// newest first
func (db *DB) GetDeploymentMetrics(ctx context.Context, deploymentID uuid.UUID, limit int) ([]*DeploymentMetrics, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT id, deployment_id, time, equity, cash, positions_value,
		       unrealized_pnl, realized_pnl, total_return_pct,
		       total_trades, winning_trades, losing_trades, metadata
		FROM deployment_metrics
		WHERE deployment_id = $1
		ORDER BY time DESC
		LIMIT $2
	`

	rows, err := db.pool.Query(ctx, query, deploymentID, limit)
	if err != nil {
		return nil, repoError("GetDeploymentMetrics", "deployment_metrics", err)
	}
	defer rows.Close()

	var snapshots []*DeploymentMetrics
	for rows.Next() {
		var m DeploymentMetrics
		err := rows.Scan(
			&m.ID,
			&m.DeploymentID,
			&m.Time,
			&m.Equity,
			&m.Cash,
			&m.PositionsValue,
			&m.UnrealizedPnL,
			&m.RealizedPnL,
			&m.TotalReturnPct,
			&m.TotalTrades,
			&m.WinningTrades,
			&m.LosingTrades,
			&m.Metadata,
		)
		if err != nil {
			return nil, repoError("GetDeploymentMetrics", "deployment_metrics", err)
		}
		snapshots = append(snapshots, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, repoError("GetDeploymentMetrics", "deployment_metrics", err)
	}

	return snapshots, nil
}

// GetLatestDeploymentMetrics retrieves the most recent snapshot
func (db *DB) GetLatestDeploymentMetrics(ctx context.Context, deploymentID uuid.UUID) (*DeploymentMetrics, error) {
	query := `
		SELECT id, deployment_id, time, equity, cash, positions_value,
		       unrealized_pnl, realized_pnl, total_return_pct,
		       total_trades, winning_trades, losing_trades, metadata
		FROM deployment_metrics
		WHERE deployment_id = $1
		ORDER BY time DESC
		LIMIT 1
	`

	var m DeploymentMetrics
	err := db.pool.QueryRow(ctx, query, deploymentID).Scan(
		&m.ID,
		&m.DeploymentID,
		&m.Time,
		&m.Equity,
		&m.Cash,
		&m.PositionsValue,
		&m.UnrealizedPnL,
		&m.RealizedPnL,
		&m.TotalReturnPct,
		&m.TotalTrades,
		&m.WinningTrades,
		&m.LosingTrades,
		&m.Metadata,
	)

	if err != nil {
		return nil, repoError("GetLatestDeploymentMetrics", "deployment_metrics", err)
	}

	return &m, nil
}
