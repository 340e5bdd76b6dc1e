package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/guildops/challenge-engine/internal/model"
)

// RateLimitRepository persists submission-attempt markers shared by all
// service instances
type RateLimitRepository struct {
	db DBExecutor
}

// NewRateLimitRepository creates a new rate limit repository
func NewRateLimitRepository(db DBExecutor) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// CountInWindow counts attempts for a key in [since, now].
func (r *RateLimitRepository) CountInWindow(challengeID int64, key model.ParticipantKey, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM rate_limit_entries
		WHERE challenge_id = $1 AND participant_type = $2 AND participant_id = $3
			AND attempted_at >= $4
	`

	var count int
	if err := r.db.Get(&count, query, challengeID, key.Type, key.ID, since); err != nil {
		return 0, fmt.Errorf("failed to count rate limit entries: %w", err)
	}

	return count, nil
}

// OldestInWindow returns the oldest attempt timestamp in the window, with
// ok=false when the window is empty.
func (r *RateLimitRepository) OldestInWindow(challengeID int64, key model.ParticipantKey, since time.Time) (time.Time, bool, error) {
	query := `
		SELECT attempted_at
		FROM rate_limit_entries
		WHERE challenge_id = $1 AND participant_type = $2 AND participant_id = $3
			AND attempted_at >= $4
		ORDER BY attempted_at ASC
		LIMIT 1
	`

	var oldest time.Time
	err := r.db.Get(&oldest, query, challengeID, key.Type, key.ID, since)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get oldest rate limit entry: %w", err)
	}

	return oldest, true, nil
}

// TryRecord appends one attempt marker only while the key holds fewer than
// limit markers inside the window, as a single conditional insert. Returns
// whether the marker was written.
func (r *RateLimitRepository) TryRecord(challengeID int64, key model.ParticipantKey, at, since time.Time, limit int) (bool, error) {
	query := `
		INSERT INTO rate_limit_entries (challenge_id, participant_id,
			participant_type, attempted_at)
		SELECT $1, $2, $3, $4
		WHERE (
			SELECT COUNT(*)
			FROM rate_limit_entries
			WHERE challenge_id = $1 AND participant_type = $3 AND participant_id = $2
				AND attempted_at >= $5
		) < $6
	`

	result, err := r.db.Exec(query, challengeID, key.ID, key.Type, at, since, limit)
	if err != nil {
		return false, fmt.Errorf("failed to record rate limit entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// Record appends one attempt marker.
func (r *RateLimitRepository) Record(challengeID int64, key model.ParticipantKey, at time.Time) error {
	query := `
		INSERT INTO rate_limit_entries (challenge_id, participant_id,
			participant_type, attempted_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.Exec(query, challengeID, key.ID, key.Type, at); err != nil {
		return fmt.Errorf("failed to record rate limit entry: %w", err)
	}

	return nil
}

// Prune deletes a key's markers that have aged out of the window. Concurrent
// pruning of the same key is harmless.
func (r *RateLimitRepository) Prune(challengeID int64, key model.ParticipantKey, before time.Time) error {
	query := `
		DELETE FROM rate_limit_entries
		WHERE challenge_id = $1 AND participant_type = $2 AND participant_id = $3
			AND attempted_at < $4
	`

	if _, err := r.db.Exec(query, challengeID, key.Type, key.ID, before); err != nil {
		return fmt.Errorf("failed to prune rate limit entries: %w", err)
	}

	return nil
}
