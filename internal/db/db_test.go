package db

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to the database named by DATABASE_URL, skipping the
// test when the variable is unset or the server is unreachable.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := New(context.Background(), url)
	if err != nil {
		t.Skipf("cannot connect: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestNew_BadURL(t *testing.T) {
	ctx := context.Background()

	for name, url := range map[string]string{
		"empty":   "",
		"garbage": "not a postgres url \x00",
	} {
		t.Run(name, func(t *testing.T) {
			db, err := New(ctx, url)
			assert.Error(t, err)
			assert.Nil(t, db)
		})
	}
}

func TestNew(t *testing.T) {
	db := setupTestDB(t)
	require.NotNil(t, db.Pool())
}

func TestPing(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}

func TestHealth(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Health(context.Background()))
}
