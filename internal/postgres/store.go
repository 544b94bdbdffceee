package postgres

import (
	"context"
	"time"

	"github.com/cwrk-planet/race-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Gateway is everything the live engine reads from and writes to the store.
type Gateway interface {
	Race(ctx context.Context, raceID string) (*domain.Race, error)
	ActiveRaces(ctx context.Context) ([]domain.Race, error)
	Registered(ctx context.Context, raceID, userID string) (bool, error)
	RouteGeometry(ctx context.Context, routeID string) ([]byte, error)
	InsertTrackingPoint(ctx context.Context, p domain.TrackingPoint) error
	UpsertFinishTime(ctx context.Context, raceID, userID string, finishTimeMs int64, recordedAt time.Time) error
	UpsertPosition(ctx context.Context, raceID, userID string, position int, recordedAt time.Time) error
	UpdateRaceStatus(ctx context.Context, raceID string, status domain.RaceStatus, at time.Time) error
}

// Store implements Gateway on top of the repositories.
type Store struct {
	races        *RaceRepository
	participants *ParticipantRepository
	routes       *RouteRepository
	tracking     *TrackingRepository
	results      *ResultRepository
}

var _ Gateway = (*Store)(nil)

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		races:        NewRaceRepository(db),
		participants: NewParticipantRepository(db),
		routes:       NewRouteRepository(db),
		tracking:     NewTrackingRepository(db),
		results:      NewResultRepository(db),
	}
}

func (s *Store) Race(ctx context.Context, raceID string) (*domain.Race, error) {
	return s.races.Get(ctx, raceID)
}

func (s *Store) ActiveRaces(ctx context.Context) ([]domain.Race, error) {
	return s.races.ListActive(ctx)
}

func (s *Store) Registered(ctx context.Context, raceID, userID string) (bool, error) {
	return s.participants.Registered(ctx, raceID, userID)
}

func (s *Store) RouteGeometry(ctx context.Context, routeID string) ([]byte, error) {
	return s.routes.Geometry(ctx, routeID)
}

func (s *Store) InsertTrackingPoint(ctx context.Context, p domain.TrackingPoint) error {
	return s.tracking.Insert(ctx, p)
}

func (s *Store) UpsertFinishTime(ctx context.Context, raceID, userID string, finishTimeMs int64, recordedAt time.Time) error {
	return s.results.UpsertFinishTime(ctx, raceID, userID, finishTimeMs, recordedAt)
}

func (s *Store) UpsertPosition(ctx context.Context, raceID, userID string, position int, recordedAt time.Time) error {
	return s.results.UpsertPosition(ctx, raceID, userID, position, recordedAt)
}

func (s *Store) UpdateRaceStatus(ctx context.Context, raceID string, status domain.RaceStatus, at time.Time) error {
	return s.races.UpdateStatus(ctx, raceID, status, at)
}
