package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

// Migration is a single schema migration loaded from disk.
type Migration struct {
	Version     int
	Description string
	SQL         string
	Filename    string
}

// Migrator applies SQL migrations from a directory. Files are named
// NNN_description.sql and applied in version order, each inside its own
// transaction; applied versions are recorded in schema_version.
type Migrator struct {
	db  *sql.DB
	dir string
}

// NewMigrator creates a migration runner over an open connection.
func NewMigrator(db *sql.DB, dir string) *Migrator {
	return &Migrator{db: db, dir: dir}
}

// OpenMigrator connects to the database and returns a migration runner.
// The caller owns the returned *sql.DB and must close it.
func OpenMigrator(databaseURL, dir string) (*Migrator, *sql.DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	return NewMigrator(conn, dir), conn, nil
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW(),
			description TEXT
		);
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	return nil
}

func (m *Migrator) currentVersion(ctx context.Context) (int, error) {
	var version int
	row := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("read current version: %w", err)
	}
	return version, nil
}

// parseMigrationName splits "001_initial_schema.sql" into version 1 and
// description "initial schema".
func parseMigrationName(filename string) (int, string, error) {
	var version int
	var rest string
	if _, err := fmt.Sscanf(filename, "%d_%s", &version, &rest); err != nil {
		return 0, "", fmt.Errorf("invalid migration filename %q (expected NNN_description.sql)", filename)
	}
	desc := strings.ReplaceAll(strings.TrimSuffix(rest, ".sql"), "_", " ")
	return version, desc, nil
}

// load reads every up migration under the configured directory, sorted by
// version. Down migrations (*_down.sql) and non-SQL files are ignored.
func (m *Migrator) load() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, "_down.sql") {
			continue
		}

		// Reject names that would escape the migrations directory.
		path := filepath.Clean(filepath.Join(m.dir, name))
		if !strings.HasPrefix(path, filepath.Clean(m.dir)) {
			return nil, fmt.Errorf("invalid migration file path: %s", name)
		}

		version, desc, err := parseMigrationName(name)
		if err != nil {
			return nil, err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		migrations = append(migrations, Migration{
			Version:     version,
			Description: desc,
			SQL:         string(content),
			Filename:    name,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate applies every migration with a version above the recorded schema
// version, in order. The first failure stops the run; already committed
// migrations stay applied.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return err
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}

	migrations, err := m.load()
	if err != nil {
		return err
	}

	var pending []Migration
	for _, mig := range migrations {
		if mig.Version > current {
			pending = append(pending, mig)
		}
	}
	if len(pending) == 0 {
		fmt.Printf("Schema is up to date at version %d\n", current)
		return nil
	}

	fmt.Printf("Schema version %d, %d migration(s) pending\n", current, len(pending))
	for _, mig := range pending {
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Filename, err)
		}
	}

	final, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Done. Schema is now at version %d\n", final)
	return nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	fmt.Printf("Applying %d: %s\n", mig.Version, mig.Description)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		mig.Version, mig.Description,
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// Status prints each known migration with its applied/pending state.
func (m *Migrator) Status(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return err
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}

	migrations, err := m.load()
	if err != nil {
		return err
	}

	fmt.Printf("Schema version: %d\n\n", current)
	fmt.Println("VERSION | STATUS  | DESCRIPTION")
	fmt.Println("--------|---------|-----------------------------------")
	for _, mig := range migrations {
		status := "pending"
		if mig.Version <= current {
			status = "applied"
		}
		fmt.Printf("%-7d | %-7s | %s\n", mig.Version, status, mig.Description)
	}
	return nil
}
