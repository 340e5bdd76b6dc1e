package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SquadRepository is a read-only lookup over the platform's squad membership
// table. The engine never writes membership; authoring and joins live in the
// outer platform.
type SquadRepository struct {
	db DBExecutor
}

// NewSquadRepository creates a new squad membership lookup
func NewSquadRepository(db DBExecutor) *SquadRepository {
	return &SquadRepository{db: db}
}

// CurrentSquad returns the user's squad within a guild, with ok=false when
// the user has none.
func (r *SquadRepository) CurrentSquad(ctx context.Context, guildID string, userID int64) (int64, bool, error) {
	query := `
		SELECT squad_id
		FROM squad_members
		WHERE guild_id = $1 AND user_id = $2
	`

	var squadID int64
	err := r.db.Get(&squadID, query, guildID, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to look up squad membership: %w", err)
	}

	return squadID, true, nil
}
