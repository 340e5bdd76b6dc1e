package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/guildops/challenge-engine/internal/model"
)

// ChallengeRepository handles challenge data operations
type ChallengeRepository struct{}

// NewChallengeRepository creates a new challenge repository
func NewChallengeRepository() *ChallengeRepository {
	return &ChallengeRepository{}
}

// CreateChallenge creates a new challenge within a campaign
func (r *ChallengeRepository) CreateChallenge(db DBExecutor, challenge *model.Challenge) error {
	query := `
		INSERT INTO challenges (campaign_id, order_position, title, body,
			generation_routine, script_updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	challenge.CreatedAt = now
	if challenge.ScriptUpdatedAt.IsZero() {
		challenge.ScriptUpdatedAt = now
	}

	err := db.Get(&challenge.ID, query,
		challenge.CampaignID, challenge.OrderPosition, challenge.Title,
		challenge.Body, challenge.GenerationRoutine, challenge.ScriptUpdatedAt,
		challenge.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}

	return nil
}

// GetChallenge retrieves a challenge by ID, scoped to its campaign. A
// challenge queried under the wrong campaign is a NotFoundError, never a
// silent miss.
func (r *ChallengeRepository) GetChallenge(db DBExecutor, campaignID, id int64) (*model.Challenge, error) {
	query := `
		SELECT id, campaign_id, order_position, title, body,
			generation_routine, script_updated_at, created_at
		FROM challenges
		WHERE id = $1 AND campaign_id = $2
	`

	var challenge model.Challenge
	err := db.Get(&challenge, query, id, campaignID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &model.NotFoundError{Kind: "challenge", ID: id}
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	return &challenge, nil
}

// LockChallenge takes a row lock on the challenge for the duration of the
// caller's transaction. Acceptance-rank counting runs under this lock so
// concurrent correct submissions rank in commit order instead of both
// reading the same committed count.
func (r *ChallengeRepository) LockChallenge(tx DBExecutor, id int64) error {
	query := `
		SELECT id FROM challenges WHERE id = $1 FOR UPDATE
	`

	var locked int64
	if err := tx.Get(&locked, query, id); err != nil {
		if err == sql.ErrNoRows {
			return &model.NotFoundError{Kind: "challenge", ID: id}
		}
		return fmt.Errorf("failed to lock challenge: %w", err)
	}

	return nil
}

// ListChallenges returns a campaign's challenges in release order
func (r *ChallengeRepository) ListChallenges(db DBExecutor, campaignID int64) ([]model.Challenge, error) {
	query := `
		SELECT id, campaign_id, order_position, title, body,
			generation_routine, script_updated_at, created_at
		FROM challenges
		WHERE campaign_id = $1
		ORDER BY order_position ASC
	`

	var challenges []model.Challenge
	if err := db.Select(&challenges, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}

	return challenges, nil
}

// TouchScript updates a challenge's routine and bumps script_updated_at,
// which lazily invalidates existing cache rows on next read.
func (r *ChallengeRepository) TouchScript(db DBExecutor, id int64, routine string) error {
	query := `
		UPDATE challenges
		SET generation_routine = $1, script_updated_at = $2
		WHERE id = $3
	`

	result, err := db.Exec(query, routine, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update challenge script: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &model.NotFoundError{Kind: "challenge", ID: id}
	}

	return nil
}
