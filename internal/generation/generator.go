// Package generation produces each participant's problem input exactly once
// per challenge and serves it from a durable cache afterwards.
package generation

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/guildops/challenge-engine/internal/metrics"
	"github.com/guildops/challenge-engine/internal/model"
	"github.com/guildops/challenge-engine/internal/sandbox"
)

// Store is the persistent cache behind the generator. CreateInput must be a
// create-if-absent primitive: of any number of racing callers exactly one
// gets created=true.
type Store interface {
	GetValidInput(challengeID int64, key model.ParticipantKey) (*model.GeneratedInput, error)
	CreateInput(input *model.GeneratedInput) (created bool, err error)
	InvalidateRow(id int64) error
	MarkFirstRequest(id int64, at time.Time) error
}

// Executor is the sandboxed-execution capability running generation
// routines outside the engine process state.
type Executor interface {
	Execute(ctx context.Context, routine string, seed int64, timeout time.Duration) (sandbox.Output, error)
}

// Generator implements GetOrCreateInput over a Store and an Executor.
type Generator struct {
	store   Store
	exec    Executor
	timeout time.Duration
}

// NewGenerator creates a new input generator
func NewGenerator(store Store, exec Executor, timeout time.Duration) *Generator {
	return &Generator{store: store, exec: exec, timeout: timeout}
}

// GetOrCreateInput returns the cached input for (challenge, key), generating
// and persisting it first when no valid row exists. Repeat calls are
// idempotent. A row generated before the challenge's last script update is
// treated as stale at read time and regenerated. The loser of a creation
// race discards its own output and serves the winner's row.
func (g *Generator) GetOrCreateInput(ctx context.Context, challenge *model.Challenge, key model.ParticipantKey, now time.Time) (*model.GeneratedInput, error) {
	for attempt := 0; attempt < 3; attempt++ {
		row, err := g.store.GetValidInput(challenge.ID, key)
		if err != nil {
			return nil, err
		}
		if row != nil {
			if !row.GeneratedAt.Before(challenge.ScriptUpdatedAt) {
				if row.FirstRequestAt == nil {
					if err := g.store.MarkFirstRequest(row.ID, now); err != nil {
						return nil, err
					}
					first := now
					row.FirstRequestAt = &first
				}
				metrics.InputCacheRequests.WithLabelValues("hit").Inc()
				return row, nil
			}
			// Script changed since this row was generated.
			if err := g.store.InvalidateRow(row.ID); err != nil {
				return nil, err
			}
		}

		metrics.InputCacheRequests.WithLabelValues("miss").Inc()

		start := time.Now()
		out, err := g.exec.Execute(ctx, challenge.GenerationRoutine, DeriveSeed(challenge.ID, key), g.timeout)
		if err != nil {
			metrics.RecordGenerationDuration("failure", time.Since(start).Seconds())
			// No cache row is written on failure, so the next request
			// retries generation. Logged because it usually means a
			// broken admin-authored routine.
			genErr := &model.GenerationError{ChallengeID: challenge.ID, Err: err}
			log.Printf("generation failed for challenge %d participant %s/%d: %v",
				challenge.ID, key.Type, key.ID, err)
			return nil, genErr
		}
		metrics.RecordGenerationDuration("success", time.Since(start).Seconds())

		first := now
		row = &model.GeneratedInput{
			ChallengeID:     challenge.ID,
			ParticipantID:   key.ID,
			ParticipantType: key.Type,
			InputPayload:    out.Input,
			ExpectedResult:  out.Expected,
			GeneratedAt:     now,
			FirstRequestAt:  &first,
			IsValid:         true,
		}
		created, err := g.store.CreateInput(row)
		if err != nil {
			return nil, err
		}
		if created {
			return row, nil
		}
		// Lost the race; re-read the winner's row.
	}

	return nil, fmt.Errorf("failed to settle generated input for challenge %d", challenge.ID)
}

// DeriveSeed computes the deterministic generation seed for a
// (challenge, participant) pair. The value is masked to 48 bits so it stays
// exactly representable as a Lua number.
func DeriveSeed(challengeID int64, key model.ParticipantKey) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%d", challengeID, key.Type, key.ID)
	return int64(h.Sum64() & ((1 << 48) - 1))
}
