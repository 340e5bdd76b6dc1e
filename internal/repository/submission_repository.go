package repository

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/guildops/challenge-engine/internal/model"
)

// SubmissionRepository handles the append-only submission log
type SubmissionRepository struct{}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository() *SubmissionRepository {
	return &SubmissionRepository{}
}

// InsertSubmission appends one attempt to the log. For a correct attempt the
// partial unique index on (challenge, participant) WHERE is_correct makes a
// second acceptance impossible; that conflict surfaces as AlreadySolvedError.
func (r *SubmissionRepository) InsertSubmission(db DBExecutor, sub *model.Submission) error {
	query := `
		INSERT INTO challenge_submissions (challenge_id, participant_id,
			participant_type, submitted_text, is_correct, points_awarded,
			submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := db.Get(&sub.ID, query,
		sub.ChallengeID, sub.ParticipantID, sub.ParticipantType,
		sub.SubmittedText, sub.IsCorrect, sub.PointsAwarded, sub.SubmittedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return &model.AlreadySolvedError{ChallengeID: sub.ChallengeID}
		}
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	return nil
}

// GetAccepted returns the participant's accepted submission for a challenge,
// or nil when the challenge is still unsolved.
func (r *SubmissionRepository) GetAccepted(db DBExecutor, challengeID int64, key model.ParticipantKey) (*model.Submission, error) {
	query := `
		SELECT id, challenge_id, participant_id, participant_type,
			submitted_text, is_correct, points_awarded, submitted_at
		FROM challenge_submissions
		WHERE challenge_id = $1 AND participant_type = $2 AND participant_id = $3
			AND is_correct
	`

	var sub model.Submission
	err := db.Get(&sub, query, challengeID, key.Type, key.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get accepted submission: %w", err)
	}

	return &sub, nil
}

// CountCorrect returns how many correct submissions a challenge has. Called
// inside the acceptance transaction, so rank = count + 1 follows the store's
// authoritative write order.
func (r *SubmissionRepository) CountCorrect(db DBExecutor, challengeID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM challenge_submissions
		WHERE challenge_id = $1 AND is_correct
	`

	var count int
	if err := db.Get(&count, query, challengeID); err != nil {
		return 0, fmt.Errorf("failed to count correct submissions: %w", err)
	}

	return count, nil
}

// Leaderboard folds the campaign's submission log into ordered rankings:
// descending total points, ties broken by the earliest timestamp of the
// participant's highest-value submission.
func (r *SubmissionRepository) Leaderboard(db DBExecutor, campaignID int64) ([]model.LeaderboardRow, error) {
	query := `
		WITH campaign_subs AS (
			SELECT s.participant_id, s.participant_type, s.points_awarded, s.submitted_at
			FROM challenge_submissions s
			JOIN challenges c ON c.id = s.challenge_id
			WHERE c.campaign_id = $1
		), totals AS (
			SELECT participant_id, participant_type,
				SUM(points_awarded) AS total_points
			FROM campaign_subs
			GROUP BY participant_id, participant_type
		), best AS (
			SELECT participant_id, participant_type,
				MIN(submitted_at) AS best_at
			FROM (
				SELECT participant_id, participant_type, submitted_at,
					RANK() OVER (
						PARTITION BY participant_id, participant_type
						ORDER BY points_awarded DESC
					) AS value_rank
				FROM campaign_subs
			) ranked
			WHERE value_rank = 1
			GROUP BY participant_id, participant_type
		)
		SELECT t.participant_id, t.participant_type, t.total_points
		FROM totals t
		JOIN best b ON b.participant_id = t.participant_id
			AND b.participant_type = t.participant_type
		ORDER BY t.total_points DESC, b.best_at ASC
	`

	var rows []model.LeaderboardRow
	if err := db.Select(&rows, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to compute leaderboard: %w", err)
	}

	return rows, nil
}
