package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/race-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RouteRepository struct {
	db *pgxpool.Pool
}

func NewRouteRepository(db *pgxpool.Pool) *RouteRepository {
	return &RouteRepository{db: db}
}

// Geometry returns the raw GeoJSON stored for the route.
func (r *RouteRepository) Geometry(ctx context.Context, routeID string) ([]byte, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT geojson::text FROM routes WHERE id=$1`, routeID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRouteNotFound
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.ErrRouteNotFound
	}
	return raw, nil
}
