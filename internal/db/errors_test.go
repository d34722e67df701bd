package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoError_Nil(t *testing.T) {
	assert.Nil(t, repoError("GetUser", "user", nil))
}

func TestRepoError_NoRowsMapsToNotFound(t *testing.T) {
	err := repoError("GetUser", "user", pgx.ErrNoRows)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "GetUser")
	assert.Contains(t, err.Error(), "user")
}

func TestRepoError_UniqueViolationMapsToDuplicate(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "users_email_key",
	}

	err := repoError("CreateUser", "user", pgErr)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.Contains(t, err.Error(), "users_email_key")
}

func TestRepoError_OtherPgErrorPassesThrough(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503"} // foreign key violation

	err := repoError("InsertDeployment", "deployment", pgErr)

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrDuplicate))

	var unwrapped *pgconn.PgError
	assert.True(t, errors.As(err, &unwrapped))
}

func TestRepoError_WrapsPlainErrors(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := repoError("ListBotsByUser", "trading_bot", cause)

	var repoErr *RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.Equal(t, "ListBotsByUser", repoErr.Op)
	assert.Equal(t, "trading_bot", repoErr.Entity)
	assert.ErrorIs(t, err, cause)
}

func TestNotFoundError(t *testing.T) {
	err := notFoundError("UpdateDeploymentStatus", "deployment", "abc-123")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "abc-123")
}
