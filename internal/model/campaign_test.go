package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignTransitions(t *testing.T) {
	c := &Campaign{ID: 1, State: CampaignStateDraft}

	require.NoError(t, c.TransitionTo(CampaignStateActive))
	assert.Equal(t, CampaignStateActive, c.State)

	require.NoError(t, c.TransitionTo(CampaignStateCompleted))
	assert.Equal(t, CampaignStateCompleted, c.State)
}

func TestCampaignTransitions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		from CampaignState
		to   CampaignState
	}{
		{name: "skip activation", from: CampaignStateDraft, to: CampaignStateCompleted},
		{name: "reverse to draft", from: CampaignStateActive, to: CampaignStateDraft},
		{name: "reopen completed", from: CampaignStateCompleted, to: CampaignStateActive},
		{name: "self transition", from: CampaignStateActive, to: CampaignStateActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Campaign{ID: 1, State: tt.from}
			err := c.TransitionTo(tt.to)
			var stateErr *StateError
			require.ErrorAs(t, err, &stateErr)
			assert.Equal(t, tt.from, c.State, "state is unchanged on a rejected transition")
			assert.Equal(t, tt.from, stateErr.From)
			assert.Equal(t, tt.to, stateErr.To)
		})
	}
}
