package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/guildops/challenge-engine/internal/model"
)

func activeCampaign(start time.Time, delay time.Duration) *model.Campaign {
	return &model.Campaign{
		ID:           1,
		State:        model.CampaignStateActive,
		StartTime:    start,
		ReleaseDelay: int64(delay.Seconds()),
	}
}

func TestIsReleased_Boundary(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	campaign := activeCampaign(start, 60*time.Minute)
	challenge := &model.Challenge{ID: 3, CampaignID: 1, OrderPosition: 3}

	// Third challenge opens two delays after the start.
	assert.False(t, IsReleased(campaign, challenge, start.Add(119*time.Minute)))
	assert.True(t, IsReleased(campaign, challenge, start.Add(120*time.Minute)), "boundary is inclusive")
	assert.True(t, IsReleased(campaign, challenge, start.Add(121*time.Minute)))
}

func TestIsReleased_FirstChallengeAtStart(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	campaign := activeCampaign(start, time.Hour)
	challenge := &model.Challenge{ID: 1, CampaignID: 1, OrderPosition: 1}

	assert.False(t, IsReleased(campaign, challenge, start.Add(-time.Second)))
	assert.True(t, IsReleased(campaign, challenge, start))
}

func TestIsReleased_InactiveStates(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	challenge := &model.Challenge{ID: 1, CampaignID: 1, OrderPosition: 1}
	longAfter := start.Add(24 * time.Hour)

	for _, state := range []model.CampaignState{model.CampaignStateDraft, model.CampaignStateCompleted} {
		campaign := activeCampaign(start, time.Hour)
		campaign.State = state
		assert.False(t, IsReleased(campaign, challenge, longAfter), "state %s releases nothing", state)
	}
}

func TestCheckReleased_CarriesReleaseTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	campaign := activeCampaign(start, 30*time.Minute)
	challenge := &model.Challenge{ID: 2, CampaignID: 1, OrderPosition: 2}

	err := CheckReleased(campaign, challenge, start)
	var notReleased *model.NotReleasedError
	assert.ErrorAs(t, err, &notReleased)
	assert.Equal(t, start.Add(30*time.Minute), notReleased.ReleaseAt)
	assert.Equal(t, int64(2), notReleased.ChallengeID)

	assert.NoError(t, CheckReleased(campaign, challenge, start.Add(30*time.Minute)))
}
