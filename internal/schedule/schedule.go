// Package schedule decides when a campaign's challenges become visible.
package schedule

import (
	"time"

	"github.com/guildops/challenge-engine/internal/model"
)

// ReleaseAt returns the instant a challenge opens: the campaign start plus
// one release delay per preceding position.
func ReleaseAt(campaign *model.Campaign, challenge *model.Challenge) time.Time {
	offset := time.Duration(challenge.OrderPosition-1) * campaign.ReleaseDelayDuration()
	return campaign.StartTime.Add(offset)
}

// IsReleased reports whether a challenge is visible at now. Draft and
// completed campaigns release nothing regardless of timestamps; the release
// boundary itself is inclusive.
func IsReleased(campaign *model.Campaign, challenge *model.Challenge, now time.Time) bool {
	if campaign.State != model.CampaignStateActive {
		return false
	}
	return !now.Before(ReleaseAt(campaign, challenge))
}

// CheckReleased returns a NotReleasedError carrying the release time when the
// challenge is still gated.
func CheckReleased(campaign *model.Campaign, challenge *model.Challenge, now time.Time) error {
	if !IsReleased(campaign, challenge, now) {
		return &model.NotReleasedError{
			ChallengeID: challenge.ID,
			ReleaseAt:   ReleaseAt(campaign, challenge),
		}
	}
	return nil
}
