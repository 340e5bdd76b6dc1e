package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/guildops/challenge-engine/internal/config"
)

// DB holds database connections
type DB struct {
	Postgres *sqlx.DB
}

// NewDB creates new database connections using config
func NewDB(ctx context.Context, cfg *config.Config) (*DB, error) {
	// Connect to PostgreSQL
	postgres, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Configure connection pool
	postgres.SetMaxOpenConns(cfg.Database.MaxConns)
	postgres.SetMaxIdleConns(cfg.Database.MinConns)
	postgres.SetConnMaxLifetime(time.Hour)

	// Test PostgreSQL connection
	if err := postgres.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	log.Println("Successfully connected to PostgreSQL")

	return &DB{
		Postgres: postgres,
	}, nil
}

// Close closes all database connections
func (db *DB) Close() error {
	if err := db.Postgres.Close(); err != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", err)
	}

	return nil
}

// InitSchema creates the engine tables if they do not exist yet.
func (db *DB) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id BIGSERIAL PRIMARY KEY,
			guild_id TEXT NOT NULL,
			campaign_type TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'draft',
			start_time TIMESTAMPTZ NOT NULL,
			release_delay_seconds BIGINT NOT NULL,
			scoring_type TEXT NOT NULL,
			starting_points INTEGER NOT NULL DEFAULT 100,
			decrease_step INTEGER NOT NULL DEFAULT 10,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS challenges (
			id BIGSERIAL PRIMARY KEY,
			campaign_id BIGINT NOT NULL REFERENCES campaigns(id),
			order_position INTEGER NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			generation_routine TEXT NOT NULL,
			script_updated_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (campaign_id, order_position)
		)`,
		`CREATE TABLE IF NOT EXISTS generated_inputs (
			id BIGSERIAL PRIMARY KEY,
			challenge_id BIGINT NOT NULL REFERENCES challenges(id),
			participant_id BIGINT NOT NULL,
			participant_type TEXT NOT NULL,
			input_payload TEXT NOT NULL,
			expected_result TEXT NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL,
			first_request_at TIMESTAMPTZ,
			is_valid BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		// At most one valid cache row per (challenge, participant); this
		// is the create-if-absent primitive the generator relies on.
		`CREATE UNIQUE INDEX IF NOT EXISTS generated_inputs_valid_key
			ON generated_inputs (challenge_id, participant_type, participant_id)
			WHERE is_valid`,
		`CREATE TABLE IF NOT EXISTS challenge_submissions (
			id BIGSERIAL PRIMARY KEY,
			challenge_id BIGINT NOT NULL REFERENCES challenges(id),
			participant_id BIGINT NOT NULL,
			participant_type TEXT NOT NULL,
			submitted_text TEXT NOT NULL,
			is_correct BOOLEAN NOT NULL,
			points_awarded INTEGER NOT NULL DEFAULT 0,
			submitted_at TIMESTAMPTZ NOT NULL
		)`,
		// One accepted submission per (challenge, participant).
		`CREATE UNIQUE INDEX IF NOT EXISTS challenge_submissions_solved_key
			ON challenge_submissions (challenge_id, participant_type, participant_id)
			WHERE is_correct`,
		`CREATE INDEX IF NOT EXISTS challenge_submissions_challenge_idx
			ON challenge_submissions (challenge_id, submitted_at)`,
		`CREATE TABLE IF NOT EXISTS rate_limit_entries (
			id BIGSERIAL PRIMARY KEY,
			challenge_id BIGINT NOT NULL,
			participant_id BIGINT NOT NULL,
			participant_type TEXT NOT NULL,
			attempted_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS rate_limit_entries_key_idx
			ON rate_limit_entries (challenge_id, participant_type, participant_id, attempted_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.Postgres.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return nil
}
