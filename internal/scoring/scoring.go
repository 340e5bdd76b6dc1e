// Package scoring converts accepted submissions into points.
package scoring

import (
	"fmt"
	"time"

	"github.com/guildops/challenge-engine/internal/model"
)

// Acceptance describes one accepted submission for scoring purposes.
type Acceptance struct {
	// Rank is the 1-based order of acceptance among all correct
	// submissions for the challenge, earliest first.
	Rank int
	// Elapsed is the time between the challenge's release and the
	// submission.
	Elapsed time.Duration
}

// Strategy is one pluggable scoring rule. Implementations are pure
// functions of the acceptance and the campaign parameters.
type Strategy interface {
	Points(campaign *model.Campaign, acc Acceptance) int
}

// ForCampaign selects the strategy named by the campaign's scoring type.
func ForCampaign(campaign *model.Campaign, decayInterval time.Duration) (Strategy, error) {
	switch campaign.ScoringType {
	case model.ScoringTimeBased:
		return &TimeBased{DecayInterval: decayInterval}, nil
	case model.ScoringPointBased:
		return &PointBased{}, nil
	default:
		return nil, fmt.Errorf("unknown scoring type %q", campaign.ScoringType)
	}
}

// TimeBased awards points that decay with elapsed time since release: one
// decrease step is lost per full decay interval, floored at 1 point so any
// correct answer scores.
type TimeBased struct {
	DecayInterval time.Duration
}

func (s *TimeBased) Points(campaign *model.Campaign, acc Acceptance) int {
	interval := s.DecayInterval
	if interval <= 0 {
		interval = time.Hour
	}
	elapsed := acc.Elapsed
	if elapsed < 0 {
		elapsed = 0
	}
	steps := int(elapsed / interval)
	points := campaign.StartingPoints - steps*campaign.DecreaseStep
	if points < 1 {
		return 1
	}
	return points
}

// PointBased awards starting_points to the first accepted submission and one
// decrease step less per later rank, never going negative.
type PointBased struct{}

func (s *PointBased) Points(campaign *model.Campaign, acc Acceptance) int {
	points := campaign.StartingPoints - (acc.Rank-1)*campaign.DecreaseStep
	if points < 0 {
		return 0
	}
	return points
}
