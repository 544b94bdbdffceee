package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ParticipantRepository struct {
	db *pgxpool.Pool
}

func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Registered reports whether userID holds a registration for raceID.
func (r *ParticipantRepository) Registered(ctx context.Context, raceID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM race_participants WHERE race_id=$1 AND user_id=$2)`,
		raceID, userID).Scan(&exists)
	return exists, err
}
