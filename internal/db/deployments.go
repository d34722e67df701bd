package db

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DeploymentStatus represents deployment lifecycle state (database enum)
type DeploymentStatus string

const (
	DeploymentStatusRunning DeploymentStatus = "running"
	DeploymentStatusPaused  DeploymentStatus = "paused"
	DeploymentStatusStopped DeploymentStatus = "stopped"
	DeploymentStatusError   DeploymentStatus = "error"
)

// IsTerminal reports whether no further execution ticks may occur.
// stopped and error are terminal; paused deployments can resume.
func (s DeploymentStatus) IsTerminal() bool {
	return s == DeploymentStatusStopped || s == DeploymentStatusError
}

// ValidDeploymentTransition reports whether a status change is allowed.
// running and paused are interchangeable and either may stop or fail;
// terminal states never change.
func ValidDeploymentTransition(from, to DeploymentStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case DeploymentStatusRunning:
		return to == DeploymentStatusPaused || to == DeploymentStatusStopped || to == DeploymentStatusError
	case DeploymentStatusPaused:
		return to == DeploymentStatusRunning || to == DeploymentStatusStopped || to == DeploymentStatusError
	default:
		return false
	}
}

// ConvertDeploymentStatus converts an application status string to the
// database enum, defaulting to stopped for unknown values
func ConvertDeploymentStatus(status string) DeploymentStatus {
	switch strings.ToLower(status) {
	case "running", "active":
		return DeploymentStatusRunning
	case "paused":
		return DeploymentStatusPaused
	case "stopped":
		return DeploymentStatusStopped
	case "error", "failed":
		return DeploymentStatusError
	default:
		return DeploymentStatusStopped
	}
}

// ExecutionFrequency represents how often a deployment ticks (database enum)
type ExecutionFrequency string

const (
	FrequencyOneMinute      ExecutionFrequency = "1m"
	FrequencyFiveMinutes    ExecutionFrequency = "5m"
	FrequencyFifteenMinutes ExecutionFrequency = "15m"
	FrequencyThirtyMinutes  ExecutionFrequency = "30m"
	FrequencyOneHour        ExecutionFrequency = "1h"
)

// Interval returns the tick interval for a frequency
func (f ExecutionFrequency) Interval() time.Duration {
	switch f {
	case FrequencyOneMinute:
		return time.Minute
	case FrequencyFiveMinutes:
		return 5 * time.Minute
	case FrequencyFifteenMinutes:
		return 15 * time.Minute
	case FrequencyThirtyMinutes:
		return 30 * time.Minute
	case FrequencyOneHour:
		return time.Hour
	default:
		return 5 * time.Minute
	}
}

// ConvertExecutionFrequency converts an application frequency string to
// the database enum, defaulting to 5m for unknown values
func ConvertExecutionFrequency(freq string) ExecutionFrequency {
	switch strings.ToLower(freq) {
	case "1m", "1min":
		return FrequencyOneMinute
	case "5m", "5min":
		return FrequencyFiveMinutes
	case "15m", "15min":
		return FrequencyFifteenMinutes
	case "30m", "30min":
		return FrequencyThirtyMinutes
	case "1h", "60m", "1hour":
		return FrequencyOneHour
	default:
		return FrequencyFiveMinutes
	}
}

// Deployment represents a bot running against a broker account. The
// strategy spec is denormalized onto the row so each execution tick is
// self-contained. current_capital is the deployment's virtual cash,
// maintained from its own fills, never read back from the broker.
type Deployment struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	BotID              uuid.UUID
	Name               string
	Status             DeploymentStatus
	Strategy           []byte // JSONB strategy spec
	Symbols            []string
	ExecutionFrequency ExecutionFrequency
	InitialCapital     float64
	CurrentCapital     float64
	MaxPositionSize    *float64
	DailyLossLimit     *float64
	AlpacaAccountID    *string
	LastExecutionAt    *time.Time
	LastError          *string
	DeployedAt         time.Time
	StoppedAt          *time.Time
	Metadata           map[string]interface{}
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// InsertDeployment inserts a new deployment record
func (db *DB) InsertDeployment(ctx context.Context, dep *Deployment) error {
	if dep.ID == uuid.Nil {
		dep.ID = uuid.New()
	}
	now := time.Now()
	if dep.DeployedAt.IsZero() {
		dep.DeployedAt = now
	}
	dep.CreatedAt = now
	dep.UpdatedAt = now

	query := `
		INSERT INTO deployments (
			id, user_id, bot_id, name, status, strategy, symbols,
			execution_frequency, initial_capital, current_capital,
			max_position_size, daily_loss_limit, alpaca_account_id,
			last_execution_at, last_error, deployed_at, stopped_at,
			metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20
		)
	`

	_, err := db.pool.Exec(ctx, query,
		dep.ID,
		dep.UserID,
		dep.BotID,
		dep.Name,
		dep.Status,
		dep.Strategy,
		dep.Symbols,
		dep.ExecutionFrequency,
		dep.InitialCapital,
		dep.CurrentCapital,
		dep.MaxPositionSize,
		dep.DailyLossLimit,
		dep.AlpacaAccountID,
		dep.LastExecutionAt,
		dep.LastError,
		dep.DeployedAt,
		dep.StoppedAt,
		dep.Metadata,
		dep.CreatedAt,
		dep.UpdatedAt,
	)

	if err != nil {
		log.Error().
			Err(err).
			Str("deployment_id", dep.ID.String()).
			Str("name", dep.Name).
			Msg("Failed to insert deployment")
		return repoError("InsertDeployment", "deployment", err)
	}

	log.Info().
		Str("deployment_id", dep.ID.String()).
		Str("bot_id", dep.BotID.String()).
		Str("frequency", string(dep.ExecutionFrequency)).
		Float64("initial_capital", dep.InitialCapital).
		Msg("Deployment created")

	return nil
}

const deploymentColumns = `
	id, user_id, bot_id, name, status, strategy, symbols,
	execution_frequency, initial_capital, current_capital,
	max_position_size, daily_loss_limit, alpaca_account_id,
	last_execution_at, last_error, deployed_at, stopped_at,
	metadata, created_at, updated_at
`

// GetDeployment retrieves a deployment by ID
func (db *DB) GetDeployment(ctx context.Context, deploymentID uuid.UUID) (*Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`

	var dep Deployment
	err := db.pool.QueryRow(ctx, query, deploymentID).Scan(
		&dep.ID,
		&dep.UserID,
		&dep.BotID,
		&dep.Name,
		&dep.Status,
		&dep.Strategy,
		&dep.Symbols,
		&dep.ExecutionFrequency,
		&dep.InitialCapital,
		&dep.CurrentCapital,
		&dep.MaxPositionSize,
		&dep.DailyLossLimit,
		&dep.AlpacaAccountID,
		&dep.LastExecutionAt,
		&dep.LastError,
		&dep.DeployedAt,
		&dep.StoppedAt,
		&dep.Metadata,
		&dep.CreatedAt,
		&dep.UpdatedAt,
	)

	if err != nil {
		return nil, repoError("GetDeployment", "deployment", err)
	}

	return &dep, nil
}

// ListDeploymentsByUser retrieves deployments owned by a user, newest first
func (db *DB) ListDeploymentsByUser(ctx context.Context, userID uuid.UUID) ([]*Deployment, error) {
	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, repoError("ListDeploymentsByUser", "deployment", err)
	}
	defer rows.Close()

	return scanDeployments(rows)
}

// ListActiveDeployments retrieves all running deployments. The live
// engine polls this to reconcile its scheduler entries.
func (db *DB) ListActiveDeployments(ctx context.Context) ([]*Deployment, error) {
	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE status = $1
		ORDER BY created_at ASC
	`

	rows, err := db.pool.Query(ctx, query, DeploymentStatusRunning)
	if err != nil {
		return nil, repoError("ListActiveDeployments", "deployment", err)
	}
	defer rows.Close()

	return scanDeployments(rows)
}

// UpdateDeploymentStatus updates a deployment's status. Terminal states
// record stopped_at; the error status also records the failure message.
func (db *DB) UpdateDeploymentStatus(ctx context.Context, deploymentID uuid.UUID, status DeploymentStatus, errorMsg *string) error {
	var stoppedAt *time.Time
	if status.IsTerminal() {
		now := time.Now()
		stoppedAt = &now
	}

	query := `
		UPDATE deployments
		SET status = $1,
		    last_error = $2,
		    stopped_at = COALESCE($3, stopped_at),
		    updated_at = NOW()
		WHERE id = $4
	`

	result, err := db.pool.Exec(ctx, query, status, errorMsg, stoppedAt, deploymentID)
	if err != nil {
		log.Error().
			Err(err).
			Str("deployment_id", deploymentID.String()).
			Str("status", string(status)).
			Msg("Failed to update deployment status")
		return repoError("UpdateDeploymentStatus", "deployment", err)
	}

	if result.RowsAffected() == 0 {
		return notFoundError("UpdateDeploymentStatus", "deployment", deploymentID.String())
	}

	log.Info().
		Str("deployment_id", deploymentID.String()).
		Str("status", string(status)).
		Msg("Deployment status updated")

	return nil
}

// MarkDeploymentExecuted records the completion time of an execution tick
func (db *DB) MarkDeploymentExecuted(ctx context.Context, deploymentID uuid.UUID, executedAt time.Time) error {
	query := `
		UPDATE deployments
		SET last_execution_at = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := db.pool.Exec(ctx, query, executedAt, deploymentID)
	if err != nil {
		return repoError("MarkDeploymentExecuted", "deployment", err)
	}

	if result.RowsAffected() == 0 {
		return notFoundError("MarkDeploymentExecuted", "deployment", deploymentID.String())
	}

	return nil
}

// UpdateDeploymentCapital updates the deployment's virtual cash balance
func (db *DB) UpdateDeploymentCapital(ctx context.Context, deploymentID uuid.UUID, currentCapital float64) error {
	query := `
		UPDATE deployments
		SET current_capital = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := db.pool.Exec(ctx, query, currentCapital, deploymentID)
	if err != nil {
		return repoError("UpdateDeploymentCapital", "deployment", err)
	}

	if result.RowsAffected() == 0 {
		return notFoundError("UpdateDeploymentCapital", "deployment", deploymentID.String())
	}

	return nil
}

// scanDeployments is a helper to scan multiple deployment rows
func scanDeployments(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]*Deployment, error) {
	var deployments []*Deployment
	for rows.Next() {
		var dep Deployment
		err := rows.Scan(
			&dep.ID,
			&dep.UserID,
			&dep.BotID,
			&dep.Name,
			&dep.Status,
			&dep.Strategy,
			&dep.Symbols,
			&dep.ExecutionFrequency,
			&dep.InitialCapital,
			&dep.CurrentCapital,
			&dep.MaxPositionSize,
			&dep.DailyLossLimit,
			&dep.AlpacaAccountID,
			&dep.LastExecutionAt,
			&dep.LastError,
			&dep.DeployedAt,
			&dep.StoppedAt,
			&dep.Metadata,
			&dep.CreatedAt,
			&dep.UpdatedAt,
		)
		if err != nil {
			return nil, repoError("scanDeployments", "deployment", err)
		}
		deployments = append(deployments, &dep)
	}

	if err := rows.Err(); err != nil {
		return nil, repoError("scanDeployments", "deployment", err)
	}

	return deployments, nil
}
