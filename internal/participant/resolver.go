// Package participant maps requesters to the canonical key all engine state
// is scoped by.
package participant

import (
	"context"
	"fmt"

	"github.com/guildops/challenge-engine/internal/model"
)

// SquadLookup is the external membership collaborator. ok is false when the
// user currently belongs to no squad.
type SquadLookup interface {
	CurrentSquad(ctx context.Context, guildID string, userID int64) (squadID int64, ok bool, err error)
}

// Resolver computes participant keys for campaign requests
type Resolver struct {
	squads SquadLookup
}

// NewResolver creates a new participant resolver
func NewResolver(squads SquadLookup) *Resolver {
	return &Resolver{squads: squads}
}

// Resolve returns the participant key for a requester. Player campaigns key
// by the requester's own id; squad campaigns key by the requester's current
// squad, so every member shares cache, rate-limit and submission state.
func (r *Resolver) Resolve(ctx context.Context, campaign *model.Campaign, userID int64) (model.ParticipantKey, error) {
	switch campaign.Type {
	case model.CampaignTypePlayer:
		return model.ParticipantKey{ID: userID, Type: model.ParticipantPlayer}, nil
	case model.CampaignTypeSquad:
		squadID, ok, err := r.squads.CurrentSquad(ctx, campaign.GuildID, userID)
		if err != nil {
			return model.ParticipantKey{}, fmt.Errorf("failed to look up squad: %w", err)
		}
		if !ok {
			return model.ParticipantKey{}, &model.NoSquadError{UserID: userID}
		}
		return model.ParticipantKey{ID: squadID, Type: model.ParticipantSquad}, nil
	default:
		return model.ParticipantKey{}, fmt.Errorf("unknown campaign type %q", campaign.Type)
	}
}
