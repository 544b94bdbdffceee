package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ResultRepository upserts race_results rows keyed by (race_id, user_id).
type ResultRepository struct {
	db *pgxpool.Pool
}

func NewResultRepository(db *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) UpsertFinishTime(ctx context.Context, raceID, userID string, finishTimeMs int64, recordedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO race_results (race_id, user_id, finish_time, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (race_id, user_id)
		DO UPDATE SET finish_time = EXCLUDED.finish_time, recorded_at = EXCLUDED.recorded_at
	`, raceID, userID, finishTimeMs, recordedAt)
	return err
}

func (r *ResultRepository) UpsertPosition(ctx context.Context, raceID, userID string, position int, recordedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO race_results (race_id, user_id, position, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (race_id, user_id)
		DO UPDATE SET position = EXCLUDED.position, recorded_at = EXCLUDED.recorded_at
	`, raceID, userID, position, recordedAt)
	return err
}
