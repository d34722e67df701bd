package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TradingDataset is a cached block of per-date sentiment/news data for
// one ticker and source. Data maps "YYYY-MM-DD" keys to the entry for
// that date. (ticker, data_source, start_date, end_date) is the logical
// key; re-saving an overlapping range merges per-date entries instead
// of duplicating rows.
type TradingDataset struct {
	ID         uuid.UUID
	Ticker     string
	DataSource string
	StartDate  time.Time
	EndDate    time.Time
	Data       map[string]interface{}
	Metadata   map[string]interface{}
	SessionID  *string
	BotID      *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DatasetStore handles database operations for the dataset cache
type DatasetStore struct {
	pool PoolInterface
}

// NewDatasetStore creates a dataset store over a pool interface
func NewDatasetStore(pool PoolInterface) *DatasetStore {
	return &DatasetStore{pool: pool}
}

// NewDatasetStoreFromDB creates a dataset store backed by the shared pool
func NewDatasetStoreFromDB(db *DB) *DatasetStore {
	return &DatasetStore{pool: db.pool}
}

// Upsert inserts a dataset row or merges per-date entries into the
// existing row with the same logical key. The JSONB concatenation makes
// re-saving the same range idempotent.
func (s *DatasetStore) Upsert(ctx context.Context, ds *TradingDataset) error {
	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}

	query := `
		INSERT INTO trading_datasets (
			id, ticker, data_source, start_date, end_date, data,
			metadata, session_id, bot_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()
		)
		ON CONFLICT (ticker, data_source, start_date, end_date) DO UPDATE SET
			data = trading_datasets.data || EXCLUDED.data,
			metadata = COALESCE(EXCLUDED.metadata, trading_datasets.metadata),
			session_id = COALESCE(EXCLUDED.session_id, trading_datasets.session_id),
			updated_at = NOW()
	`

	_, err := s.pool.Exec(ctx, query,
		ds.ID,
		ds.Ticker,
		ds.DataSource,
		ds.StartDate,
		ds.EndDate,
		ds.Data,
		ds.Metadata,
		ds.SessionID,
		ds.BotID,
	)

	if err != nil {
		log.Error().
			Err(err).
			Str("ticker", ds.Ticker).
			Str("source", ds.DataSource).
			Msg("Failed to upsert dataset")
		return repoError("Upsert", "trading_dataset", err)
	}

	log.Debug().
		Str("ticker", ds.Ticker).
		Str("source", ds.DataSource).
		Time("start", ds.StartDate).
		Time("end", ds.EndDate).
		Int("entries", len(ds.Data)).
		Msg("Dataset cached")

	return nil
}

const datasetColumns = `
	id, ticker, data_source, start_date, end_date, data,
	metadata, session_id, bot_id, created_at, updated_at
`

// FindCovering returns a cached row whose [start_date, end_date] covers
// the requested range, preferring the narrowest covering row. Returns
// ErrNotFound when no row covers the range.
func (s *DatasetStore) FindCovering(ctx context.Context, ticker, source string, start, end time.Time) (*TradingDataset, error) {
	query := `
		SELECT ` + datasetColumns + `
		FROM trading_datasets
		WHERE ticker = $1 AND data_source = $2
		  AND start_date <= $3 AND end_date >= $4
		ORDER BY (end_date - start_date) ASC
		LIMIT 1
	`

	var ds TradingDataset
	err := s.pool.QueryRow(ctx, query, ticker, source, start, end).Scan(
		&ds.ID,
		&ds.Ticker,
		&ds.DataSource,
		&ds.StartDate,
		&ds.EndDate,
		&ds.Data,
		&ds.Metadata,
		&ds.SessionID,
		&ds.BotID,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)

	if err != nil {
		return nil, repoError("FindCovering", "trading_dataset", err)
	}

	return &ds, nil
}

// FindCoveringDate returns a cached row covering a single date
func (s *DatasetStore) FindCoveringDate(ctx context.Context, ticker, source string, date time.Time) (*TradingDataset, error) {
	return s.FindCovering(ctx, ticker, source, date, date)
}

// ListBySession retrieves all dataset rows stamped with a workflow session
func (s *DatasetStore) ListBySession(ctx context.Context, sessionID string) ([]*TradingDataset, error) {
	query := `
		SELECT ` + datasetColumns + `
		FROM trading_datasets
		WHERE session_id = $1
		ORDER BY ticker, data_source
	`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, repoError("ListBySession", "trading_dataset", err)
	}
	defer rows.Close()

	var datasets []*TradingDataset
	for rows.Next() {
		var ds TradingDataset
		err := rows.Scan(
			&ds.ID,
			&ds.Ticker,
			&ds.DataSource,
			&ds.StartDate,
			&ds.EndDate,
			&ds.Data,
			&ds.Metadata,
			&ds.SessionID,
			&ds.BotID,
			&ds.CreatedAt,
			&ds.UpdatedAt,
		)
		if err != nil {
			return nil, repoError("ListBySession", "trading_dataset", err)
		}
		datasets = append(datasets, &ds)
	}

	if err := rows.Err(); err != nil {
		return nil, repoError("ListBySession", "trading_dataset", err)
	}

	return datasets, nil
}

// AssociateSession stamps cached rows with the workflow session that
// used them, so a later bot save can link datasets to the bot.
func (s *DatasetStore) AssociateSession(ctx context.Context, sessionID string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE trading_datasets
		SET session_id = $1, updated_at = NOW()
		WHERE id = ANY($2)
	`

	_, err := s.pool.Exec(ctx, query, sessionID, ids)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Int("rows", len(ids)).
			Msg("Failed to associate datasets with session")
		return repoError("AssociateSession", "trading_dataset", err)
	}

	return nil
}

// LinkSessionToBot points all rows of a workflow session at the bot the
// session produced. Called from the background save after a workflow
// completes.
func (s *DatasetStore) LinkSessionToBot(ctx context.Context, sessionID string, botID uuid.UUID) error {
	query := `
		UPDATE trading_datasets
		SET bot_id = $1, updated_at = NOW()
		WHERE session_id = $2
	`

	result, err := s.pool.Exec(ctx, query, botID, sessionID)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("bot_id", botID.String()).
			Msg("Failed to link datasets to bot")
		return repoError("LinkSessionToBot", "trading_dataset", err)
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("bot_id", botID.String()).
		Int64("rows", result.RowsAffected()).
		Msg("Datasets linked to bot")

	return nil
}
