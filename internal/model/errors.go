package model

import (
	"fmt"
	"time"
)

// NotFoundError reports a missing campaign or challenge, including a
// challenge queried under the wrong campaign.
type NotFoundError struct {
	Kind string // "campaign" or "challenge"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// NotReleasedError reports a challenge that is not yet visible to the
// campaign's participants. Callers may retry after ReleaseAt.
type NotReleasedError struct {
	ChallengeID int64
	ReleaseAt   time.Time
}

func (e *NotReleasedError) Error() string {
	return fmt.Sprintf("challenge %d is not released", e.ChallengeID)
}

// NoSquadError reports a squad-campaign requester with no current squad.
type NoSquadError struct {
	UserID int64
}

func (e *NoSquadError) Error() string {
	return fmt.Sprintf("user %d has no squad", e.UserID)
}

// GenerationError reports a generation-routine fault or timeout. No cache
// row is written, so a retry re-runs the routine.
type GenerationError struct {
	ChallengeID int64
	Err         error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation routine for challenge %d failed: %v", e.ChallengeID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// RateLimitError reports a rejected submission attempt. RetryAfter is the
// time until the oldest attempt ages out of the sliding window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// AlreadySolvedError reports a submission for a challenge the participant
// has already solved. Points carries the previously awarded score.
type AlreadySolvedError struct {
	ChallengeID int64
	Points      int
}

func (e *AlreadySolvedError) Error() string {
	return fmt.Sprintf("challenge %d already solved", e.ChallengeID)
}

// StateError reports an invalid campaign state transition.
type StateError struct {
	CampaignID int64
	From, To   CampaignState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("campaign %d: invalid state transition %s -> %s", e.CampaignID, e.From, e.To)
}
