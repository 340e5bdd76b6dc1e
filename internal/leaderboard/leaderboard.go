// Package leaderboard computes campaign rankings from the submission log.
package leaderboard

import (
	"sync"
	"time"

	"github.com/guildops/challenge-engine/internal/model"
)

// Source recomputes rankings from the append-only submission log. There is
// no running-total state anywhere that could drift from the log.
type Source interface {
	Leaderboard(campaignID int64) ([]model.LeaderboardRow, error)
}

type cached struct {
	rows      []model.LeaderboardRow
	expiresAt time.Time
}

// Aggregator serves rankings on demand, absorbing read load with a
// short-lived per-campaign cache.
type Aggregator struct {
	source Source
	ttl    time.Duration

	mu    sync.Mutex
	cache map[int64]cached
}

// NewAggregator creates a new leaderboard aggregator
func NewAggregator(source Source, ttl time.Duration) *Aggregator {
	return &Aggregator{
		source: source,
		ttl:    ttl,
		cache:  make(map[int64]cached),
	}
}

// Rankings returns the campaign's ordered leaderboard, recomputing it when
// the cached copy is older than the TTL.
func (a *Aggregator) Rankings(campaignID int64, now time.Time) ([]model.LeaderboardRow, error) {
	a.mu.Lock()
	entry, ok := a.cache[campaignID]
	a.mu.Unlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.rows, nil
	}

	rows, err := a.source.Leaderboard(campaignID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[campaignID] = cached{rows: rows, expiresAt: now.Add(a.ttl)}
	a.mu.Unlock()

	return rows, nil
}

// Invalidate drops a campaign's cached rankings, forcing the next read to
// recompute.
func (a *Aggregator) Invalidate(campaignID int64) {
	a.mu.Lock()
	delete(a.cache, campaignID)
	a.mu.Unlock()
}
