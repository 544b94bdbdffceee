package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/race-service/internal/domain"
	"github.com/cwrk-planet/race-service/internal/metrics"

	gobreaker "github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	Name         string
	MaxRequests  uint32        // allowed in half-open
	Interval     time.Duration // closed-state count reset
	Timeout      time.Duration // open -> half-open
	MinRequests  uint32
	FailureRatio float64
}

// BreakerStore guards a Gateway with a circuit breaker so a failing store
// rejects fast instead of piling up writes behind the live path.
// Not-found results are domain answers and do not count as failures.
type BreakerStore struct {
	inner Gateway
	cb    *gobreaker.CircuitBreaker[any]
	name  string
}

var _ Gateway = (*BreakerStore)(nil)

func NewBreakerStore(inner Gateway, cfg BreakerConfig) *BreakerStore {
	if cfg.Name == "" {
		cfg.Name = "postgres"
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 10
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.6
	}
	name := cfg.Name

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrRaceNotFound) ||
				errors.Is(err, domain.ErrRouteNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &BreakerStore{inner: inner, cb: cb, name: name}
}

func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	var zero T
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
		return zero, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()

	if res == nil {
		return zero, nil
	}
	typed, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", res)
	}
	return typed, nil
}

func run(b *BreakerStore, fn func() error) error {
	_, err := execute(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *BreakerStore) Race(ctx context.Context, raceID string) (*domain.Race, error) {
	return execute(b, func() (*domain.Race, error) { return b.inner.Race(ctx, raceID) })
}

func (b *BreakerStore) ActiveRaces(ctx context.Context) ([]domain.Race, error) {
	return execute(b, func() ([]domain.Race, error) { return b.inner.ActiveRaces(ctx) })
}

func (b *BreakerStore) Registered(ctx context.Context, raceID, userID string) (bool, error) {
	return execute(b, func() (bool, error) { return b.inner.Registered(ctx, raceID, userID) })
}

func (b *BreakerStore) RouteGeometry(ctx context.Context, routeID string) ([]byte, error) {
	return execute(b, func() ([]byte, error) { return b.inner.RouteGeometry(ctx, routeID) })
}

func (b *BreakerStore) InsertTrackingPoint(ctx context.Context, p domain.TrackingPoint) error {
	return run(b, func() error { return b.inner.InsertTrackingPoint(ctx, p) })
}

func (b *BreakerStore) UpsertFinishTime(ctx context.Context, raceID, userID string, finishTimeMs int64, recordedAt time.Time) error {
	return run(b, func() error { return b.inner.UpsertFinishTime(ctx, raceID, userID, finishTimeMs, recordedAt) })
}

func (b *BreakerStore) UpsertPosition(ctx context.Context, raceID, userID string, position int, recordedAt time.Time) error {
	return run(b, func() error { return b.inner.UpsertPosition(ctx, raceID, userID, position, recordedAt) })
}

func (b *BreakerStore) UpdateRaceStatus(ctx context.Context, raceID string, status domain.RaceStatus, at time.Time) error {
	return run(b, func() error { return b.inner.UpdateRaceStatus(ctx, raceID, status, at) })
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
