// Package ratelimit gates submission attempts with a sliding window shared
// across service instances through an injected entry store.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/guildops/challenge-engine/internal/model"
)

// Store is the keyed, pruned timestamp set backing the limiter. The
// production implementation lives in the rate-limit repository; tests use an
// in-memory fake.
type Store interface {
	CountInWindow(challengeID int64, key model.ParticipantKey, since time.Time) (int, error)
	OldestInWindow(challengeID int64, key model.ParticipantKey, since time.Time) (time.Time, bool, error)
	// TryRecord inserts an attempt marker only while the key holds fewer
	// than limit markers in [since, now], as one atomic statement.
	// Admission decisions race through this, never through a separate
	// count-then-insert.
	TryRecord(challengeID int64, key model.ParticipantKey, at, since time.Time, limit int) (bool, error)
	Record(challengeID int64, key model.ParticipantKey, at time.Time) error
	Prune(challengeID int64, key model.ParticipantKey, before time.Time) error
}

// Limiter admits at most Attempts submission attempts per trailing Window
// per (challenge, participant).
type Limiter struct {
	store    Store
	attempts int
	window   time.Duration
}

// NewLimiter creates a new sliding-window limiter
func NewLimiter(store Store, attempts int, window time.Duration) *Limiter {
	return &Limiter{store: store, attempts: attempts, window: window}
}

// Allow admits the attempt and records it in one store-side step, so
// concurrent attempts at the last free slot cannot all slip in. On
// rejection retryAfter is the time until the oldest attempt in the window
// ages out.
func (l *Limiter) Allow(challengeID int64, key model.ParticipantKey, now time.Time) (bool, time.Duration, error) {
	since := now.Add(-l.window)

	// Old markers are dropped opportunistically on each attempt; concurrent
	// pruning of the same key is tolerated.
	if err := l.store.Prune(challengeID, key, since); err != nil {
		return false, 0, fmt.Errorf("failed to prune rate limit window: %w", err)
	}

	admitted, err := l.store.TryRecord(challengeID, key, now, since, l.attempts)
	if err != nil {
		return false, 0, fmt.Errorf("failed to record attempt: %w", err)
	}
	if admitted {
		return true, 0, nil
	}

	oldest, ok, err := l.store.OldestInWindow(challengeID, key, since)
	if err != nil {
		return false, 0, fmt.Errorf("failed to get oldest attempt: %w", err)
	}
	retryAfter := l.window
	if ok {
		retryAfter = oldest.Add(l.window).Sub(now)
	}
	return false, retryAfter, nil
}

// Check inspects the window without consuming budget. Used when only some
// attempt outcomes are configured to count.
func (l *Limiter) Check(challengeID int64, key model.ParticipantKey, now time.Time) (bool, time.Duration, error) {
	since := now.Add(-l.window)

	// Old markers are dropped opportunistically on each check; concurrent
	// pruning of the same key is tolerated.
	if err := l.store.Prune(challengeID, key, since); err != nil {
		return false, 0, fmt.Errorf("failed to prune rate limit window: %w", err)
	}

	count, err := l.store.CountInWindow(challengeID, key, since)
	if err != nil {
		return false, 0, fmt.Errorf("failed to count rate limit window: %w", err)
	}

	if count >= l.attempts {
		oldest, ok, err := l.store.OldestInWindow(challengeID, key, since)
		if err != nil {
			return false, 0, fmt.Errorf("failed to get oldest attempt: %w", err)
		}
		retryAfter := l.window
		if ok {
			retryAfter = oldest.Add(l.window).Sub(now)
		}
		return false, retryAfter, nil
	}

	return true, 0, nil
}

// Record consumes one unit of budget for the key.
func (l *Limiter) Record(challengeID int64, key model.ParticipantKey, now time.Time) error {
	if err := l.store.Record(challengeID, key, now); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}
