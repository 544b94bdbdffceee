// Package tracking is the live race engine: race rooms, presence, distance
// tracking, throttled propagation, finish detection and the leaderboard.
//
// In-memory state is authoritative for the live experience. Writes to the
// store are dispatched asynchronously and never gate a broadcast.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cwrk-planet/race-service/internal/domain"
	"github.com/cwrk-planet/race-service/internal/geo"
	"github.com/cwrk-planet/race-service/internal/metrics"
	"github.com/cwrk-planet/race-service/pkg/logger"
)

// Store is the persistence gateway consumed by the engine.
type Store interface {
	Race(ctx context.Context, raceID string) (*domain.Race, error)
	ActiveRaces(ctx context.Context) ([]domain.Race, error)
	Registered(ctx context.Context, raceID, userID string) (bool, error)
	RouteGeometry(ctx context.Context, routeID string) ([]byte, error)
	InsertTrackingPoint(ctx context.Context, p domain.TrackingPoint) error
	UpsertFinishTime(ctx context.Context, raceID, userID string, finishTimeMs int64, recordedAt time.Time) error
	UpsertPosition(ctx context.Context, raceID, userID string, position int, recordedAt time.Time) error
	UpdateRaceStatus(ctx context.Context, raceID string, status domain.RaceStatus, at time.Time) error
}

// Fanout delivers events to sessions. Implementations must not block and
// must not call back into the engine.
type Fanout interface {
	Subscribe(raceID, connID string)
	Unsubscribe(raceID, connID string)
	Publish(raceID string, ev Event)
	Send(connID string, ev Event)
}

type Config struct {
	BroadcastInterval  time.Duration
	FinishRadiusMeters float64
}

func (c Config) withDefaults() Config {
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = time.Second
	}
	if c.FinishRadiusMeters <= 0 {
		c.FinishRadiusMeters = 100
	}
	return c
}

type Option func(*Engine)

// WithClock replaces time.Now for throttling decisions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	store  Store
	fanout Fanout
	tasks  *Dispatcher
	rooms  *Registry

	throttle throttle
	radius   float64
	now      func() time.Time

	sessMu   sync.Mutex
	sessions map[string]struct{}
}

func NewEngine(store Store, fanout Fanout, tasks *Dispatcher, cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		store:    store,
		fanout:   fanout,
		tasks:    tasks,
		rooms:    NewRegistry(),
		throttle: throttle{interval: cfg.BroadcastInterval},
		radius:   cfg.FinishRadiusMeters,
		now:      time.Now,
		sessions: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Restore pre-registers rooms for races persisted as upcoming or ongoing so
// reconnecting clients can rejoin without createRace.
func (e *Engine) Restore(ctx context.Context) error {
	races, err := e.store.ActiveRaces(ctx)
	if err != nil {
		return fmt.Errorf("list active races: %w", err)
	}

	for i := range races {
		if _, created := e.restoreRoom(ctx, &races[i]); created {
			logger.FromContext(ctx).Info("race room restored", "race_id", races[i].ID, "status", races[i].Status)
		}
	}
	return nil
}

// restoreRoom registers the room of a persisted race. An ongoing race also
// gets its start time and finish line back.
func (e *Engine) restoreRoom(ctx context.Context, race *domain.Race) (*room, bool) {
	r, created := e.rooms.ensure(race.ID, race.Status)
	if !created || race.Status != domain.RaceOngoing || race.ActualStartTime == nil {
		return r, created
	}

	startedAt := race.ActualStartTime.UnixMilli()
	line := e.finishLine(ctx, race)

	r.mu.Lock()
	// a raceStarted may have landed while the route was loading
	if r.status == domain.RaceOngoing && r.startedAt == 0 {
		r.startedAt = startedAt
		r.finish = line
	}
	r.mu.Unlock()
	return r, true
}

// Connect marks a session live. Joins from sessions that are not live are
// ignored.
func (e *Engine) Connect(connID string) {
	e.sessMu.Lock()
	e.sessions[connID] = struct{}{}
	e.sessMu.Unlock()
}

func (e *Engine) alive(connID string) bool {
	e.sessMu.Lock()
	defer e.sessMu.Unlock()

	_, ok := e.sessions[connID]
	return ok
}

// Disconnect removes every participant bound to connID and broadcasts the
// new presence list to each affected room.
func (e *Engine) Disconnect(connID string) {
	e.sessMu.Lock()
	delete(e.sessions, connID)
	e.sessMu.Unlock()

	for _, r := range e.rooms.all() {
		r.mu.Lock()
		if r.removeWhere(func(p *Participant) bool { return p.ConnID == connID }) > 0 {
			e.fanout.Publish(r.id, Event{Type: EventOnlineParticipants, Payload: r.presence()})
		}
		r.mu.Unlock()
	}
}

// CreateRace registers the room if needed and subscribes the caller.
func (e *Engine) CreateRace(ctx context.Context, connID string, cmd CreateRace) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	if _, created := e.rooms.ensure(cmd.RaceID, domain.RaceUpcoming); created {
		logger.FromContext(ctx).Info("race room created", "race_id", cmd.RaceID)
	}
	e.fanout.Subscribe(cmd.RaceID, connID)
	e.fanout.Send(connID, Event{Type: EventRaceCreated, Payload: RaceCreatedPayload{RaceID: cmd.RaceID}})
	return nil
}

// JoinRace resolves the caller's role and adds it to the room's presence.
// A store failure during role resolution fails the join; nothing is sent.
func (e *Engine) JoinRace(ctx context.Context, connID string, cmd JoinRace) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	log := logger.FromContext(ctx).With("race_id", cmd.RaceID, "user_id", cmd.UserID)

	if r := e.rooms.get(cmd.RaceID); r != nil {
		r.mu.Lock()
		dup := r.byConn(connID) != nil
		r.mu.Unlock()
		if dup {
			log.Debug("duplicate join ignored")
			return nil
		}
	}

	role, race, err := e.resolveRole(ctx, cmd.RaceID, cmd.UserID)
	if err != nil {
		return fmt.Errorf("resolve role: %w", err)
	}

	r := e.rooms.get(cmd.RaceID)
	if r == nil {
		if race == nil || !race.Status.Active() {
			log.Debug("join for unknown race ignored")
			return nil
		}
		r, _ = e.restoreRoom(ctx, race)
	}

	e.fanout.Subscribe(cmd.RaceID, connID)

	r.mu.Lock()
	defer r.mu.Unlock()

	// the lookups above may have interleaved with a disconnect or another join
	if !e.alive(connID) {
		e.fanout.Unsubscribe(cmd.RaceID, connID)
		log.Debug("join abandoned: session gone")
		return nil
	}
	if r.byConn(connID) != nil {
		return nil
	}

	if p := r.byUser(cmd.UserID); p != nil {
		log.Info("participant moved to new connection", "role", p.Role)
		p.ConnID = connID
	} else {
		r.add(&Participant{UserID: cmd.UserID, ConnID: connID, Role: role})
		log.Debug("participant joined", "role", role)
	}

	e.fanout.Publish(r.id, Event{Type: EventOnlineParticipants, Payload: r.presence()})
	return nil
}

func (e *Engine) resolveRole(ctx context.Context, raceID, userID string) (domain.Role, *domain.Race, error) {
	race, err := e.store.Race(ctx, raceID)
	switch {
	case errors.Is(err, domain.ErrRaceNotFound):
		race = nil
	case err != nil:
		return "", nil, err
	}

	if race != nil && race.CreatedByUserID == userID {
		return domain.RoleAdmin, race, nil
	}

	ok, err := e.store.Registered(ctx, raceID, userID)
	if err != nil {
		return "", nil, err
	}
	if ok {
		return domain.RoleRacer, race, nil
	}
	return domain.RoleGuest, race, nil
}

// LeaveRace removes the user from the room and unsubscribes the caller.
func (e *Engine) LeaveRace(ctx context.Context, connID string, cmd LeaveRace) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	r := e.rooms.get(cmd.RaceID)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeWhere(func(p *Participant) bool { return p.UserID == cmd.UserID })
	e.fanout.Unsubscribe(cmd.RaceID, connID)
	e.fanout.Publish(r.id, Event{Type: EventOnlineParticipants, Payload: r.presence()})

	logger.FromContext(ctx).Debug("participant left", "race_id", cmd.RaceID, "user_id", cmd.UserID)
	return nil
}

// StartRace moves the room to ongoing, caches the start time and the finish
// line taken from the route's last path coordinate.
func (e *Engine) StartRace(ctx context.Context, connID string, cmd RaceStarted) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	log := logger.FromContext(ctx).With("race_id", cmd.RaceID)

	r := e.rooms.get(cmd.RaceID)
	if r == nil {
		log.Debug("start for unknown race ignored")
		return nil
	}

	startedAt := int64(cmd.ActualStartTime)

	r.mu.Lock()
	if r.status == domain.RaceFinished {
		r.mu.Unlock()
		log.Debug("start for finished race ignored")
		return nil
	}
	r.setStatus(domain.RaceOngoing)
	r.startedAt = startedAt
	r.finish = nil
	r.mu.Unlock()

	line := e.finishLine(ctx, &domain.Race{ID: cmd.RaceID})

	r.mu.Lock()
	// a later start or an end may have run while the route was loading
	if r.status == domain.RaceOngoing && r.startedAt == startedAt {
		r.finish = line
	}
	e.fanout.Publish(r.id, Event{
		Type:    EventRaceStatusUpdate,
		Payload: RaceStatusPayload{Status: domain.RaceOngoing, ActualStartTime: &startedAt},
	})
	r.mu.Unlock()

	raceID := cmd.RaceID
	at := cmd.ActualStartTime.Time()
	e.tasks.GoKeyed(raceID, "update_race_status", func(ctx context.Context) error {
		return e.store.UpdateRaceStatus(ctx, raceID, domain.RaceOngoing, at)
	})

	log.Info("race started", "actual_start_ms", startedAt, "finish_line", line != nil)
	return nil
}

// finishLine loads the race's route and returns its finish geofence, or nil
// when the race has no usable route. race may carry only the id.
func (e *Engine) finishLine(ctx context.Context, race *domain.Race) *FinishLine {
	log := logger.FromContext(ctx).With("race_id", race.ID)

	if race.RouteID == nil {
		full, err := e.store.Race(ctx, race.ID)
		if err != nil {
			if !errors.Is(err, domain.ErrRaceNotFound) {
				log.Warn("finish line: load race failed", "err", err)
			}
			return nil
		}
		race = full
	}
	if race.RouteID == nil || *race.RouteID == "" {
		log.Info("race has no route, finish detection disabled")
		return nil
	}

	raw, err := e.store.RouteGeometry(ctx, *race.RouteID)
	if err != nil {
		log.Warn("finish line: load route failed", "route_id", *race.RouteID, "err", err)
		return nil
	}
	pt, err := geo.FinishPoint(raw)
	if err != nil {
		log.Warn("finish line: bad route geometry", "route_id", *race.RouteID, "err", err)
		return nil
	}
	return &FinishLine{Point: pt, Radius: e.radius}
}

// UpdateParticipant applies a position update. Distance always accumulates;
// the emit cycle (broadcast, tracking write, finish check, leaderboard) runs
// at most once per broadcast interval per participant.
func (e *Engine) UpdateParticipant(ctx context.Context, connID string, cmd ParticipantUpdate) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	r := e.rooms.get(cmd.RaceID)
	if r == nil {
		return nil
	}
	now := e.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.byUser(cmd.UserID)
	if p == nil {
		return nil
	}

	pos := cmd.Point()
	p.track(pos, cmd.Timestamp, cmd.Speed)

	if !e.throttle.allow(p, now) {
		metrics.ThrottledUpdates.Inc()
		return nil
	}
	metrics.BroadcastCycles.Inc()

	e.fanout.Publish(r.id, Event{
		Type: EventParticipantUpdate,
		Payload: PositionPayload{
			UserID:    p.UserID,
			Coords:    []float64{pos.Lon, pos.Lat},
			Timestamp: cmd.Timestamp,
			Speed:     cmd.Speed,
			Distance:  p.Distance,
		},
	})

	if p.Role == domain.RoleRacer && !p.Finished {
		point := domain.TrackingPoint{
			RaceID:     r.id,
			UserID:     p.UserID,
			Latitude:   pos.Lat,
			Longitude:  pos.Lon,
			RecordedAt: time.UnixMilli(cmd.Timestamp),
		}
		e.tasks.Go("insert_tracking_point", func(ctx context.Context) error {
			return e.store.InsertTrackingPoint(ctx, point)
		})
	}

	if finishMs, ok := detectFinish(r.finish, r.startedAt, p); ok {
		metrics.RacersFinished.Inc()

		raceID, userID := r.id, p.UserID
		recordedAt := time.UnixMilli(cmd.Timestamp)
		e.tasks.GoKeyed(raceID, "upsert_finish_time", func(ctx context.Context) error {
			return e.store.UpsertFinishTime(ctx, raceID, userID, finishMs, recordedAt)
		})

		e.fanout.Publish(r.id, Event{
			Type:    EventRacerFinished,
			Payload: RacerFinishedPayload{UserID: p.UserID, FinishTimeMs: finishMs},
		})
		logger.FromContext(ctx).Info("racer finished", "race_id", r.id, "user_id", p.UserID, "finish_ms", finishMs)
	}

	e.fanout.Publish(r.id, Event{Type: EventLeaderboardUpdate, Payload: Rank(r.participants)})
	return nil
}

// EndRace finishes the room once, persists final positions and broadcasts
// the status change. Ending a finished race is a no-op.
func (e *Engine) EndRace(ctx context.Context, connID string, cmd RaceEnded) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	log := logger.FromContext(ctx).With("race_id", cmd.RaceID)

	r := e.rooms.get(cmd.RaceID)
	if r == nil {
		log.Debug("end for unknown race ignored")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == domain.RaceFinished {
		log.Debug("race already finished")
		return nil
	}
	r.setStatus(domain.RaceFinished)

	board := Rank(r.participants)
	endedAt := e.now()
	raceID := r.id
	for _, entry := range board {
		userID, position := entry.UserID, entry.Position
		e.tasks.GoKeyed(raceID, "upsert_position", func(ctx context.Context) error {
			return e.store.UpsertPosition(ctx, raceID, userID, position, endedAt)
		})
	}
	e.tasks.GoKeyed(raceID, "update_race_status", func(ctx context.Context) error {
		return e.store.UpdateRaceStatus(ctx, raceID, domain.RaceFinished, endedAt)
	})

	e.fanout.Publish(r.id, Event{
		Type:    EventRaceStatusUpdate,
		Payload: RaceStatusPayload{Status: domain.RaceFinished},
	})

	log.Info("race ended", "ranked", len(board))
	return nil
}

// Leaderboard returns the current ranking of a room.
func (e *Engine) Leaderboard(raceID string) ([]LeaderboardEntry, bool) {
	r := e.rooms.get(raceID)
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return Rank(r.participants), true
}

// Presence returns the online participants of a room.
func (e *Engine) Presence(raceID string) ([]PresenceItem, bool) {
	r := e.rooms.get(raceID)
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.presence(), true
}

// Status returns a room's lifecycle status.
func (e *Engine) Status(raceID string) (domain.RaceStatus, bool) {
	r := e.rooms.get(raceID)
	if r == nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status, true
}
