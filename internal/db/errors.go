package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors callers can match with errors.Is.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("duplicate record")
)

// RepositoryError wraps a database failure with the operation and entity
// it occurred on. It unwraps to the underlying error, so errors.Is works
// against ErrNotFound, ErrDuplicate, and driver errors.
type RepositoryError struct {
	Op     string // e.g. "InsertDeployment"
	Entity string // e.g. "deployment"
	Err    error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// repoError classifies a raw pgx error and wraps it. pgx.ErrNoRows maps
// to ErrNotFound and unique violations (23505) map to ErrDuplicate.
func repoError(op, entity string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		err = ErrNotFound
	} else {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			err = fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		}
	}

	return &RepositoryError{Op: op, Entity: entity, Err: err}
}

// notFoundError builds a RepositoryError for updates that matched no rows.
func notFoundError(op, entity, id string) error {
	return &RepositoryError{Op: op, Entity: entity, Err: fmt.Errorf("%w: %s", ErrNotFound, id)}
}
