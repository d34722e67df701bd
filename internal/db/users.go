package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// User represents an account that owns bots and deployments
type User struct {
	ID        uuid.UUID
	Email     string
	Name      *string
	Settings  map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateUser inserts a new user record
func (db *DB) CreateUser(ctx context.Context, user *User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, name, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := db.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Settings,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		log.Error().
			Err(err).
			Str("email", user.Email).
			Msg("Failed to create user")
		return repoError("CreateUser", "user", err)
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Str("email", user.Email).
		Msg("User created")

	return nil
}

// GetUser retrieves a user by ID
func (db *DB) GetUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, name, settings, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user User
	err := db.pool.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Settings,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		return nil, repoError("GetUser", "user", err)
	}

	return &user, nil
}

// GetUserByEmail retrieves a user by email address
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, name, settings, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	var user User
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Settings,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		return nil, repoError("GetUserByEmail", "user", err)
	}

	return &user, nil
}

// EnsureUser returns the user with the given email, creating it when
// missing. Used by the API layer for single-user installs.
func (db *DB) EnsureUser(ctx context.Context, email string) (*User, error) {
	query := `
		INSERT INTO users (id, email, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		RETURNING id, email, name, settings, created_at, updated_at
	`

	var user User
	err := db.pool.QueryRow(ctx, query, uuid.New(), email).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Settings,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		return nil, repoError("EnsureUser", "user", err)
	}

	return &user, nil
}
