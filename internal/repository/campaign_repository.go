package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/guildops/challenge-engine/internal/model"
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
}

// CampaignRepository handles campaign data operations
type CampaignRepository struct{}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{}
}

// CreateCampaign creates a new campaign in draft state
func (r *CampaignRepository) CreateCampaign(db DBExecutor, campaign *model.Campaign) error {
	query := `
		INSERT INTO campaigns (guild_id, campaign_type, state, start_time,
			release_delay_seconds, scoring_type, starting_points, decrease_step,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	now := time.Now()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	if campaign.State == "" {
		campaign.State = model.CampaignStateDraft
	}

	err := db.Get(&campaign.ID, query,
		campaign.GuildID, campaign.Type, campaign.State, campaign.StartTime,
		campaign.ReleaseDelay, campaign.ScoringType, campaign.StartingPoints,
		campaign.DecreaseStep, campaign.CreatedAt, campaign.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetCampaign retrieves a campaign by ID
func (r *CampaignRepository) GetCampaign(db DBExecutor, id int64) (*model.Campaign, error) {
	query := `
		SELECT id, guild_id, campaign_type, state, start_time,
			release_delay_seconds, scoring_type, starting_points, decrease_step,
			created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`

	var campaign model.Campaign
	err := db.Get(&campaign, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &model.NotFoundError{Kind: "campaign", ID: id}
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

// UpdateState persists a campaign state transition. The previous state is
// guarded in the WHERE clause so a concurrent transition cannot skip a step.
func (r *CampaignRepository) UpdateState(db DBExecutor, campaign *model.Campaign, prev model.CampaignState) error {
	query := `
		UPDATE campaigns
		SET state = $1, updated_at = $2
		WHERE id = $3 AND state = $4
	`

	result, err := db.Exec(query, campaign.State, time.Now(), campaign.ID, prev)
	if err != nil {
		return fmt.Errorf("failed to update campaign state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &model.StateError{CampaignID: campaign.ID, From: prev, To: campaign.State}
	}

	return nil
}
