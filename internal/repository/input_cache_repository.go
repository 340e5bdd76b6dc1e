package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/guildops/challenge-engine/internal/model"
)

// InputCacheRepository handles generated-input cache rows
type InputCacheRepository struct {
	db DBExecutor
}

// NewInputCacheRepository creates a new input cache repository
func NewInputCacheRepository(db DBExecutor) *InputCacheRepository {
	return &InputCacheRepository{db: db}
}

// GetValidInput returns the valid cache row for a key, or nil when no valid
// row exists. Reads are side-effect-free.
func (r *InputCacheRepository) GetValidInput(challengeID int64, key model.ParticipantKey) (*model.GeneratedInput, error) {
	query := `
		SELECT id, challenge_id, participant_id, participant_type,
			input_payload, expected_result, generated_at, first_request_at, is_valid
		FROM generated_inputs
		WHERE challenge_id = $1 AND participant_type = $2 AND participant_id = $3
			AND is_valid
	`

	var input model.GeneratedInput
	err := r.db.Get(&input, query, challengeID, key.Type, key.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get generated input: %w", err)
	}

	return &input, nil
}

// CreateInput inserts a cache row if no valid row exists for the key yet.
// The partial unique index on (challenge_id, participant_type,
// participant_id) WHERE is_valid makes the insert the atomic
// create-if-absent primitive: exactly one of any number of racing callers
// succeeds. Returns false when another caller won the race.
func (r *InputCacheRepository) CreateInput(input *model.GeneratedInput) (bool, error) {
	query := `
		INSERT INTO generated_inputs (challenge_id, participant_id,
			participant_type, input_payload, expected_result, generated_at,
			first_request_at, is_valid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (challenge_id, participant_type, participant_id) WHERE is_valid
			DO NOTHING
		RETURNING id
	`

	err := r.db.Get(&input.ID, query,
		input.ChallengeID, input.ParticipantID, input.ParticipantType,
		input.InputPayload, input.ExpectedResult, input.GeneratedAt,
		input.FirstRequestAt)
	if err != nil {
		if err == sql.ErrNoRows {
			// Conflict: a concurrent caller created the row first.
			return false, nil
		}
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("failed to create generated input: %w", err)
	}

	input.IsValid = true
	return true, nil
}

// InvalidateRow flips a single cache row invalid, e.g. when its generation
// predates a script update.
func (r *InputCacheRepository) InvalidateRow(id int64) error {
	query := `UPDATE generated_inputs SET is_valid = FALSE WHERE id = $1`

	if _, err := r.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to invalidate generated input: %w", err)
	}

	return nil
}

// InvalidateChallenge marks every valid cache row of a challenge stale,
// forcing regeneration on next request. Returns the number of rows flipped.
func (r *InputCacheRepository) InvalidateChallenge(challengeID int64) (int64, error) {
	query := `
		UPDATE generated_inputs
		SET is_valid = FALSE
		WHERE challenge_id = $1 AND is_valid
	`

	result, err := r.db.Exec(query, challengeID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate challenge inputs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// MarkFirstRequest stamps first_request_at once; later reads leave it alone.
func (r *InputCacheRepository) MarkFirstRequest(id int64, at time.Time) error {
	query := `
		UPDATE generated_inputs
		SET first_request_at = $1
		WHERE id = $2 AND first_request_at IS NULL
	`

	if _, err := r.db.Exec(query, at, id); err != nil {
		return fmt.Errorf("failed to mark first request: %w", err)
	}

	return nil
}
