package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/race-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RaceRepository struct {
	db *pgxpool.Pool
}

func NewRaceRepository(db *pgxpool.Pool) *RaceRepository {
	return &RaceRepository{db: db}
}

const raceColumns = `id, created_by_user_id, route_id, status, actual_start_time, end_time`

func scanRace(row pgx.Row) (*domain.Race, error) {
	var r domain.Race
	var status string
	if err := row.Scan(&r.ID, &r.CreatedByUserID, &r.RouteID, &status, &r.ActualStartTime, &r.EndTime); err != nil {
		return nil, err
	}
	r.Status = domain.RaceStatus(status)
	return &r, nil
}

func (r *RaceRepository) Get(ctx context.Context, id string) (*domain.Race, error) {
	race, err := scanRace(r.db.QueryRow(ctx,
		`SELECT `+raceColumns+` FROM group_races WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRaceNotFound
		}
		return nil, err
	}
	return race, nil
}

// ListActive returns races whose rooms must exist after a restart.
func (r *RaceRepository) ListActive(ctx context.Context) ([]domain.Race, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+raceColumns+` FROM group_races WHERE status = ANY($1) ORDER BY id`,
		[]string{string(domain.RaceUpcoming), string(domain.RaceOngoing)})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Race
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *race)
	}
	return out, rows.Err()
}

// UpdateStatus sets status and stamps actual_start_time (ongoing) or
// end_time (finished) with at. A finished race is never moved back to
// ongoing; such a write leaves the row alone and returns nil.
func (r *RaceRepository) UpdateStatus(ctx context.Context, id string, status domain.RaceStatus, at time.Time) error {
	q, err := statusUpdateQuery(status)
	if err != nil {
		return err
	}

	cmd, err := r.db.Exec(ctx, q, id, string(status), at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_races WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrRaceNotFound
	}
	return nil
}

func statusUpdateQuery(status domain.RaceStatus) (string, error) {
	switch status {
	case domain.RaceOngoing:
		return `UPDATE group_races SET status=$2, actual_start_time=$3
			WHERE id=$1 AND status <> '` + string(domain.RaceFinished) + `'`, nil
	case domain.RaceFinished:
		return `UPDATE group_races SET status=$2, end_time=$3 WHERE id=$1`, nil
	default:
		return "", fmt.Errorf("update status %q: %w", status, domain.ErrInvalidEvent)
	}
}
