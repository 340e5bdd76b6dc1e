package model

import (
	"time"
)

// CampaignType determines how requesters are mapped to participants.
type CampaignType string

const (
	CampaignTypePlayer CampaignType = "player"
	CampaignTypeSquad  CampaignType = "squad"
)

// CampaignState is the lifecycle state of a campaign.
type CampaignState string

const (
	CampaignStateDraft     CampaignState = "draft"
	CampaignStateActive    CampaignState = "active"
	CampaignStateCompleted CampaignState = "completed"
)

// ScoringType selects the scoring strategy for a campaign.
type ScoringType string

const (
	ScoringTimeBased  ScoringType = "time_based"
	ScoringPointBased ScoringType = "point_based"
)

// Campaign represents a scheduled challenge campaign in the database
type Campaign struct {
	ID             int64         `db:"id" json:"id"`
	GuildID        string        `db:"guild_id" json:"guild_id"`
	Type           CampaignType  `db:"campaign_type" json:"campaign_type"`
	State          CampaignState `db:"state" json:"state"`
	StartTime      time.Time     `db:"start_time" json:"start_time"`
	ReleaseDelay   int64         `db:"release_delay_seconds" json:"release_delay_seconds"`
	ScoringType    ScoringType   `db:"scoring_type" json:"scoring_type"`
	StartingPoints int           `db:"starting_points" json:"starting_points"`
	DecreaseStep   int           `db:"decrease_step" json:"decrease_step"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// ReleaseDelayDuration returns the per-position release delay as a duration.
func (c *Campaign) ReleaseDelayDuration() time.Duration {
	return time.Duration(c.ReleaseDelay) * time.Second
}

// TransitionTo validates a state change. Transitions are monotonic
// draft -> active -> completed; anything else is a StateError.
func (c *Campaign) TransitionTo(next CampaignState) error {
	valid := (c.State == CampaignStateDraft && next == CampaignStateActive) ||
		(c.State == CampaignStateActive && next == CampaignStateCompleted)
	if !valid {
		return &StateError{CampaignID: c.ID, From: c.State, To: next}
	}
	c.State = next
	return nil
}

// Challenge represents a single timed problem within a campaign
type Challenge struct {
	ID                int64     `db:"id" json:"id"`
	CampaignID        int64     `db:"campaign_id" json:"campaign_id"`
	OrderPosition     int       `db:"order_position" json:"order_position"`
	Title             string    `db:"title" json:"title"`
	Body              string    `db:"body" json:"body"`
	GenerationRoutine string    `db:"generation_routine" json:"-"`
	ScriptUpdatedAt   time.Time `db:"script_updated_at" json:"script_updated_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// ParticipantType distinguishes player keys from squad keys.
type ParticipantType string

const (
	ParticipantPlayer ParticipantType = "player"
	ParticipantSquad  ParticipantType = "squad"
)

// ParticipantKey is the canonical identity all cache, rate-limit and
// submission state is keyed by. For squad campaigns every member of a
// squad resolves to the same key.
type ParticipantKey struct {
	ID   int64           `db:"participant_id" json:"participant_id"`
	Type ParticipantType `db:"participant_type" json:"participant_type"`
}

// GeneratedInput is the durable, exactly-once record of a participant's
// problem input and expected answer for one challenge
type GeneratedInput struct {
	ID              int64           `db:"id" json:"id"`
	ChallengeID     int64           `db:"challenge_id" json:"challenge_id"`
	ParticipantID   int64           `db:"participant_id" json:"participant_id"`
	ParticipantType ParticipantType `db:"participant_type" json:"participant_type"`
	InputPayload    string          `db:"input_payload" json:"input_payload"`
	ExpectedResult  string          `db:"expected_result" json:"-"`
	GeneratedAt     time.Time       `db:"generated_at" json:"generated_at"`
	FirstRequestAt  *time.Time      `db:"first_request_at" json:"first_request_at"`
	IsValid         bool            `db:"is_valid" json:"is_valid"`
}

// Key returns the participant key the row is cached under.
func (g *GeneratedInput) Key() ParticipantKey {
	return ParticipantKey{ID: g.ParticipantID, Type: g.ParticipantType}
}

// Submission is one append-only submission attempt
type Submission struct {
	ID              int64           `db:"id" json:"id"`
	ChallengeID     int64           `db:"challenge_id" json:"challenge_id"`
	ParticipantID   int64           `db:"participant_id" json:"participant_id"`
	ParticipantType ParticipantType `db:"participant_type" json:"participant_type"`
	SubmittedText   string          `db:"submitted_text" json:"submitted_text"`
	IsCorrect       bool            `db:"is_correct" json:"is_correct"`
	PointsAwarded   int             `db:"points_awarded" json:"points_awarded"`
	SubmittedAt     time.Time       `db:"submitted_at" json:"submitted_at"`
}

// RateLimitEntry is a timestamped submission-attempt marker
type RateLimitEntry struct {
	ID              int64           `db:"id" json:"id"`
	ChallengeID     int64           `db:"challenge_id" json:"challenge_id"`
	ParticipantID   int64           `db:"participant_id" json:"participant_id"`
	ParticipantType ParticipantType `db:"participant_type" json:"participant_type"`
	AttemptedAt     time.Time       `db:"attempted_at" json:"attempted_at"`
}

// LeaderboardRow is one ranked entry of a campaign leaderboard
type LeaderboardRow struct {
	ParticipantID   int64           `db:"participant_id" json:"participant_id"`
	ParticipantType ParticipantType `db:"participant_type" json:"participant_type"`
	TotalPoints     int             `db:"total_points" json:"total_points"`
}
