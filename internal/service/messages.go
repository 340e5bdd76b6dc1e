package service

import "github.com/guildops/challenge-engine/internal/model"

// Procedure paths served by the engine.
const (
	GetInputProcedure            = "/engine.v1.EngineService/GetInput"
	SubmitProcedure              = "/engine.v1.EngineService/Submit"
	InvalidateChallengeProcedure = "/engine.v1.EngineService/InvalidateChallenge"
	LeaderboardProcedure         = "/engine.v1.EngineService/Leaderboard"
)

// GetInputRequest asks for a participant's input payload. The outer layer
// has already authenticated requester_id and checked guild membership.
type GetInputRequest struct {
	CampaignID  int64 `json:"campaign_id"`
	ChallengeID int64 `json:"challenge_id"`
	RequesterID int64 `json:"requester_id"`
}

// GetInputResponse carries the input payload only; the expected result
// never crosses this boundary.
type GetInputResponse struct {
	InputPayload string `json:"input_payload"`
}

// SubmitRequest submits an answer for validation and scoring.
type SubmitRequest struct {
	CampaignID  int64  `json:"campaign_id"`
	ChallengeID int64  `json:"challenge_id"`
	RequesterID int64  `json:"requester_id"`
	Answer      string `json:"answer"`
}

// SubmitResponse reports acceptance and awarded points.
type SubmitResponse struct {
	Accepted bool `json:"accepted"`
	Points   int  `json:"points"`
}

// InvalidateChallengeRequest marks a challenge's cached inputs stale.
// Admin-only; called by the authoring layer.
type InvalidateChallengeRequest struct {
	ChallengeID int64 `json:"challenge_id"`
}

// InvalidateChallengeResponse acknowledges the invalidation.
type InvalidateChallengeResponse struct {
	InvalidatedRows int64 `json:"invalidated_rows"`
}

// LeaderboardRequest asks for a campaign's rankings.
type LeaderboardRequest struct {
	CampaignID int64 `json:"campaign_id"`
}

// LeaderboardEntry is one ranked participant.
type LeaderboardEntry struct {
	ParticipantID   int64                 `json:"participant_id"`
	ParticipantType model.ParticipantType `json:"participant_type"`
	TotalPoints     int                   `json:"total_points"`
}

// LeaderboardResponse lists entries in rank order.
type LeaderboardResponse struct {
	Entries []LeaderboardEntry `json:"entries"`
}
