// Package engine orchestrates the challenge flow: release gating,
// participant resolution, input generation, rate limiting, validation,
// scoring and leaderboard reads.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/guildops/challenge-engine/internal/generation"
	"github.com/guildops/challenge-engine/internal/leaderboard"
	"github.com/guildops/challenge-engine/internal/metrics"
	"github.com/guildops/challenge-engine/internal/model"
	"github.com/guildops/challenge-engine/internal/participant"
	"github.com/guildops/challenge-engine/internal/ratelimit"
	"github.com/guildops/challenge-engine/internal/schedule"
	"github.com/guildops/challenge-engine/internal/scoring"
)

// Store is the persistent state the engine reads and appends to. The
// production implementation is repository.EngineStore; tests use fakes.
type Store interface {
	GetCampaign(id int64) (*model.Campaign, error)
	UpdateCampaignState(campaign *model.Campaign, prev model.CampaignState) error
	GetChallenge(campaignID, id int64) (*model.Challenge, error)
	GetAccepted(challengeID int64, key model.ParticipantKey) (*model.Submission, error)
	// RecordIncorrect appends a failed attempt.
	RecordIncorrect(ctx context.Context, sub *model.Submission) error
	// RecordCorrect appends an accepted attempt. It computes the 1-based
	// acceptance rank under the store's authoritative write order, calls
	// points with it, and persists the result atomically. A concurrent
	// second acceptance surfaces as AlreadySolvedError.
	RecordCorrect(ctx context.Context, sub *model.Submission, points func(rank int) int) error
}

// InputInvalidator flips a challenge's cache rows stale.
type InputInvalidator interface {
	InvalidateChallenge(challengeID int64) (int64, error)
}

// Options carries the engine's behavioural configuration.
type Options struct {
	TimeDecayInterval       time.Duration
	AllowResubmitAfterSolve bool
	CountAllAttempts        bool
}

// SubmitResult is the outcome of one submission attempt.
type SubmitResult struct {
	Accepted bool
	Points   int
}

// Engine is the stateless service layer; all mutable state lives in the
// injected stores.
type Engine struct {
	store     Store
	inputs    InputInvalidator
	generator *generation.Generator
	resolver  *participant.Resolver
	limiter   *ratelimit.Limiter
	board     *leaderboard.Aggregator
	opts      Options

	now func() time.Time
}

// New creates a new engine
func New(store Store, inputs InputInvalidator, generator *generation.Generator,
	resolver *participant.Resolver, limiter *ratelimit.Limiter,
	board *leaderboard.Aggregator, opts Options) *Engine {
	if opts.TimeDecayInterval <= 0 {
		opts.TimeDecayInterval = time.Hour
	}
	return &Engine{
		store:     store,
		inputs:    inputs,
		generator: generator,
		resolver:  resolver,
		limiter:   limiter,
		board:     board,
		opts:      opts,
		now:       time.Now,
	}
}

// GetInput returns the requester's input payload for a released challenge,
// generating it on first request. The expected result never leaves the
// engine.
func (e *Engine) GetInput(ctx context.Context, campaignID, challengeID, requesterID int64) (string, error) {
	now := e.now()

	campaign, challenge, err := e.lookup(campaignID, challengeID)
	if err != nil {
		return "", err
	}
	if err := schedule.CheckReleased(campaign, challenge, now); err != nil {
		return "", err
	}

	key, err := e.resolver.Resolve(ctx, campaign, requesterID)
	if err != nil {
		return "", err
	}

	row, err := e.generator.GetOrCreateInput(ctx, challenge, key, now)
	if err != nil {
		return "", err
	}

	return row.InputPayload, nil
}

// Submit validates an answer against the cached expected result and scores
// it. The rate limiter runs before any validation work.
func (e *Engine) Submit(ctx context.Context, campaignID, challengeID, requesterID int64, answer string) (res *SubmitResult, err error) {
	start := time.Now()
	result := "error"
	defer func() {
		metrics.RecordSubmitDuration(result, time.Since(start).Seconds())
	}()

	now := e.now()

	campaign, challenge, err := e.lookup(campaignID, challengeID)
	if err != nil {
		return nil, err
	}
	if err := schedule.CheckReleased(campaign, challenge, now); err != nil {
		return nil, err
	}

	key, err := e.resolver.Resolve(ctx, campaign, requesterID)
	if err != nil {
		return nil, err
	}

	allowed, retryAfter, err := e.checkRateLimit(challenge.ID, key, now)
	if err != nil {
		return nil, err
	}
	if !allowed {
		result = "rate_limited"
		metrics.RateLimitRejections.Inc()
		return nil, &model.RateLimitError{RetryAfter: retryAfter}
	}

	accepted, err := e.store.GetAccepted(challenge.ID, key)
	if err != nil {
		return nil, err
	}
	if accepted != nil && !e.opts.AllowResubmitAfterSolve {
		// Already solved; recorded points stay untouched.
		result = "already_solved"
		return nil, &model.AlreadySolvedError{ChallengeID: challenge.ID, Points: accepted.PointsAwarded}
	}

	row, err := e.generator.GetOrCreateInput(ctx, challenge, key, now)
	if err != nil {
		// Without the cached expected result nothing can be validated,
		// so the attempt fails loudly instead of landing as incorrect.
		return nil, err
	}

	correct := strings.TrimSpace(answer) == strings.TrimSpace(row.ExpectedResult)

	if accepted != nil && correct {
		// Resubmission is enabled, but a solved challenge is never
		// re-scored.
		result = "already_solved"
		return nil, &model.AlreadySolvedError{ChallengeID: challenge.ID, Points: accepted.PointsAwarded}
	}

	sub := &model.Submission{
		ChallengeID:     challenge.ID,
		ParticipantID:   key.ID,
		ParticipantType: key.Type,
		SubmittedText:   answer,
		IsCorrect:       correct,
		SubmittedAt:     now,
	}

	if !correct {
		if err := e.recordAttemptBudget(challenge.ID, key, now, false); err != nil {
			return nil, err
		}
		if err := e.store.RecordIncorrect(ctx, sub); err != nil {
			return nil, err
		}
		result = "rejected"
		return &SubmitResult{Accepted: false, Points: 0}, nil
	}

	strategy, err := scoring.ForCampaign(campaign, e.opts.TimeDecayInterval)
	if err != nil {
		return nil, err
	}
	elapsed := now.Sub(schedule.ReleaseAt(campaign, challenge))

	if err := e.recordAttemptBudget(challenge.ID, key, now, true); err != nil {
		return nil, err
	}
	err = e.store.RecordCorrect(ctx, sub, func(rank int) int {
		return strategy.Points(campaign, scoring.Acceptance{Rank: rank, Elapsed: elapsed})
	})
	if err != nil {
		if solved, ok := err.(*model.AlreadySolvedError); ok {
			// Lost an acceptance race against another squad member.
			result = "already_solved"
			return nil, solved
		}
		return nil, err
	}

	result = "accepted"
	return &SubmitResult{Accepted: true, Points: sub.PointsAwarded}, nil
}

// InvalidateChallenge marks a challenge's cached inputs stale so the next
// request of each participant regenerates. Admin-only at the outer layer.
func (e *Engine) InvalidateChallenge(ctx context.Context, challengeID int64) (int64, error) {
	return e.inputs.InvalidateChallenge(challengeID)
}

// Leaderboard returns the campaign's current rankings.
func (e *Engine) Leaderboard(ctx context.Context, campaignID int64) ([]model.LeaderboardRow, error) {
	if _, err := e.store.GetCampaign(campaignID); err != nil {
		return nil, err
	}
	return e.board.Rankings(campaignID, e.now())
}

// TransitionCampaign advances a campaign's lifecycle state. Transitions are
// monotonic; anything else fails with StateError.
func (e *Engine) TransitionCampaign(ctx context.Context, campaignID int64, next model.CampaignState) error {
	campaign, err := e.store.GetCampaign(campaignID)
	if err != nil {
		return err
	}
	prev := campaign.State
	if err := campaign.TransitionTo(next); err != nil {
		return err
	}
	return e.store.UpdateCampaignState(campaign, prev)
}

func (e *Engine) lookup(campaignID, challengeID int64) (*model.Campaign, *model.Challenge, error) {
	campaign, err := e.store.GetCampaign(campaignID)
	if err != nil {
		return nil, nil, err
	}
	challenge, err := e.store.GetChallenge(campaignID, challengeID)
	if err != nil {
		return nil, nil, err
	}
	return campaign, challenge, nil
}

// checkRateLimit gates an attempt. With CountAllAttempts the budget is
// consumed up front; otherwise only recordAttemptBudget(correct=true)
// consumes it.
func (e *Engine) checkRateLimit(challengeID int64, key model.ParticipantKey, now time.Time) (bool, time.Duration, error) {
	if e.opts.CountAllAttempts {
		return e.limiter.Allow(challengeID, key, now)
	}
	return e.limiter.Check(challengeID, key, now)
}

func (e *Engine) recordAttemptBudget(challengeID int64, key model.ParticipantKey, now time.Time, correct bool) error {
	if e.opts.CountAllAttempts {
		return nil // already consumed by Allow
	}
	if !correct {
		return nil
	}
	return e.limiter.Record(challengeID, key, now)
}
