package postgres

import (
	"context"

	"github.com/cwrk-planet/race-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TrackingRepository struct {
	db *pgxpool.Pool
}

func NewTrackingRepository(db *pgxpool.Pool) *TrackingRepository {
	return &TrackingRepository{db: db}
}

func (r *TrackingRepository) Insert(ctx context.Context, p domain.TrackingPoint) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO race_tracking (race_id, user_id, latitude, longitude, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.RaceID, p.UserID, p.Latitude, p.Longitude, p.RecordedAt)
	return err
}
