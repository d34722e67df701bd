// The migrate binary applies or reports the versioned schema
// migrations from the migrations directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/db"
)

func main() {
	command := flag.String("command", "migrate", "command to run: migrate or status")
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "database connection URL")
	migrationsDir := flag.String("migrations", "migrations", "path to migrations directory")
	configPath := flag.String("config", "", "path to config file (used when -db is empty)")
	flag.Parse()

	// Fall back to the configured DSN so the same config file drives
	// every binary.
	if *dbURL == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		*dbURL = cfg.Database.GetDSN()
	}

	migrator, database, err := db.OpenMigrator(*dbURL, *migrationsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close database connection: %v\n", err)
		}
	}()

	ctx := context.Background()
	if err := database.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to ping database: %v\n", err)
		os.Exit(1)
	}

	switch *command {
	case "migrate":
		if err := migrator.Migrate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
	case "status":
		if err := migrator.Status(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Status check failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		fmt.Fprintf(os.Stderr, "Usage: migrate -command=[migrate|status]\n")
		os.Exit(1)
	}
}
