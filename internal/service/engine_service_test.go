package service

import (
	"errors"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildops/challenge-engine/internal/model"
)

func TestAsConnectError_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code connect.Code
	}{
		{"not found", &model.NotFoundError{Kind: "challenge", ID: 7}, connect.CodeNotFound},
		{"not released", &model.NotReleasedError{ChallengeID: 7, ReleaseAt: time.Now()}, connect.CodeFailedPrecondition},
		{"no squad", &model.NoSquadError{UserID: 5}, connect.CodeFailedPrecondition},
		{"generation failure", &model.GenerationError{ChallengeID: 7, Err: errors.New("boom")}, connect.CodeUnavailable},
		{"rate limited", &model.RateLimitError{RetryAfter: 30 * time.Second}, connect.CodeResourceExhausted},
		{"already solved", &model.AlreadySolvedError{ChallengeID: 7, Points: 90}, connect.CodeAlreadyExists},
		{"bad transition", &model.StateError{CampaignID: 1, From: model.CampaignStateActive, To: model.CampaignStateDraft}, connect.CodeInvalidArgument},
		{"unknown", errors.New("boom"), connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, connect.CodeOf(asConnectError(tt.err)))
		})
	}
}

func TestAsConnectError_WrappedErrorsStillMap(t *testing.T) {
	wrapped := errors.Join(errors.New("submit failed"), &model.RateLimitError{RetryAfter: time.Second})
	assert.Equal(t, connect.CodeResourceExhausted, connect.CodeOf(asConnectError(wrapped)))
}

func TestAsConnectError_RetryAfterHeader(t *testing.T) {
	err := asConnectError(&model.RateLimitError{RetryAfter: 55*time.Second + 200*time.Millisecond})

	var cerr *connect.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "56", cerr.Meta().Get("Retry-After"), "retry hint rounds up to whole seconds")
}
