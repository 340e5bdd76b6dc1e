package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/guildops/challenge-engine/internal/model"
)

// EngineStore binds the campaign, challenge and submission repositories to
// one database handle and exposes the engine's store contract, including the
// transactional acceptance path.
type EngineStore struct {
	postgres    *sqlx.DB
	campaigns   *CampaignRepository
	challenges  *ChallengeRepository
	submissions *SubmissionRepository
}

// NewEngineStore creates a new engine store
func NewEngineStore(postgres *sqlx.DB) *EngineStore {
	return &EngineStore{
		postgres:    postgres,
		campaigns:   NewCampaignRepository(),
		challenges:  NewChallengeRepository(),
		submissions: NewSubmissionRepository(),
	}
}

// GetCampaign retrieves a campaign by ID.
func (s *EngineStore) GetCampaign(id int64) (*model.Campaign, error) {
	return s.campaigns.GetCampaign(s.postgres, id)
}

// UpdateCampaignState persists a campaign state transition.
func (s *EngineStore) UpdateCampaignState(campaign *model.Campaign, prev model.CampaignState) error {
	return s.campaigns.UpdateState(s.postgres, campaign, prev)
}

// GetChallenge retrieves a campaign's challenge by ID.
func (s *EngineStore) GetChallenge(campaignID, id int64) (*model.Challenge, error) {
	return s.challenges.GetChallenge(s.postgres, campaignID, id)
}

// GetAccepted returns the participant's accepted submission, if any.
func (s *EngineStore) GetAccepted(challengeID int64, key model.ParticipantKey) (*model.Submission, error) {
	return s.submissions.GetAccepted(s.postgres, challengeID, key)
}

// RecordIncorrect appends one failed attempt to the submission log.
func (s *EngineStore) RecordIncorrect(ctx context.Context, sub *model.Submission) error {
	return s.submissions.InsertSubmission(s.postgres, sub)
}

// RecordCorrect appends one accepted attempt. Rank is counted and the row
// inserted in a single transaction, so the store's write order decides
// acceptance order; a concurrent second acceptance for the same key hits the
// partial unique index and comes back as AlreadySolvedError.
func (s *EngineStore) RecordCorrect(ctx context.Context, sub *model.Submission, points func(rank int) int) error {
	tx, err := s.postgres.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Serialize concurrent acceptances on the challenge row so the rank
	// count and the insert are one atomic step. Without the lock two
	// racing transactions read the same committed count and claim the
	// same rank.
	if err := s.challenges.LockChallenge(tx, sub.ChallengeID); err != nil {
		return err
	}

	count, err := s.submissions.CountCorrect(tx, sub.ChallengeID)
	if err != nil {
		return err
	}
	sub.PointsAwarded = points(count + 1)

	if err := s.submissions.InsertSubmission(tx, sub); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Leaderboard recomputes a campaign's rankings from the submission log.
func (s *EngineStore) Leaderboard(campaignID int64) ([]model.LeaderboardRow, error) {
	return s.submissions.Leaderboard(s.postgres, campaignID)
}
