package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/race-service/internal/domain"
)

type fakeStore struct {
	mu sync.Mutex

	races      map[string]domain.Race
	registered map[string]bool // raceID/userID
	routes     map[string][]byte

	raceErr     error
	registerErr error
	writeErr    error

	// onRegistered runs inside Registered, before it returns
	onRegistered func()
	// statusDelay holds UpdateRaceStatus back per status, outside the lock
	statusDelay map[domain.RaceStatus]time.Duration

	points    []domain.TrackingPoint
	finishes  map[string]int64 // userID -> finish ms
	finishN   int
	positions map[string]int // userID -> position
	statuses  []domain.RaceStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		races:      map[string]domain.Race{},
		registered: map[string]bool{},
		routes:     map[string][]byte{},
		finishes:   map[string]int64{},
		positions:  map[string]int{},
	}
}

func (s *fakeStore) addRace(r domain.Race) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.races[r.ID] = r
}

func (s *fakeStore) register(raceID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered[raceID+"/"+userID] = true
}

func (s *fakeStore) Race(ctx context.Context, raceID string) (*domain.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raceErr != nil {
		return nil, s.raceErr
	}
	r, ok := s.races[raceID]
	if !ok {
		return nil, domain.ErrRaceNotFound
	}
	return &r, nil
}

func (s *fakeStore) ActiveRaces(ctx context.Context) ([]domain.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Race
	for _, r := range s.races {
		if r.Status.Active() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) Registered(ctx context.Context, raceID, userID string) (bool, error) {
	s.mu.Lock()
	hook := s.onRegistered
	err := s.registerErr
	ok := s.registered[raceID+"/"+userID]
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return ok, err
}

func (s *fakeStore) RouteGeometry(ctx context.Context, routeID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.routes[routeID]
	if !ok {
		return nil, domain.ErrRouteNotFound
	}
	return raw, nil
}

func (s *fakeStore) InsertTrackingPoint(ctx context.Context, p domain.TrackingPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.points = append(s.points, p)
	return nil
}

func (s *fakeStore) UpsertFinishTime(ctx context.Context, raceID, userID string, finishTimeMs int64, recordedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.finishN++
	s.finishes[userID] = finishTimeMs
	return nil
}

func (s *fakeStore) UpsertPosition(ctx context.Context, raceID, userID string, position int, recordedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.positions[userID] = position
	return nil
}

func (s *fakeStore) UpdateRaceStatus(ctx context.Context, raceID string, status domain.RaceStatus, at time.Time) error {
	s.mu.Lock()
	delay := s.statusDelay[status]
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.statuses = append(s.statuses, status)
	return nil
}

type published struct {
	raceID string
	ev     Event
}

type fakeFanout struct {
	mu     sync.Mutex
	subs   map[string]map[string]bool // raceID -> connIDs
	events []published
	sent   map[string][]Event
}

func newFakeFanout() *fakeFanout {
	return &fakeFanout{subs: map[string]map[string]bool{}, sent: map[string][]Event{}}
}

func (f *fakeFanout) Subscribe(raceID, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[raceID] == nil {
		f.subs[raceID] = map[string]bool{}
	}
	f.subs[raceID][connID] = true
}

func (f *fakeFanout) Unsubscribe(raceID, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[raceID], connID)
}

func (f *fakeFanout) Publish(raceID string, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{raceID: raceID, ev: ev})
}

func (f *fakeFanout) Send(connID string, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[connID] = append(f.sent[connID], ev)
}

func (f *fakeFanout) subscribed(raceID, connID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[raceID][connID]
}

func (f *fakeFanout) ofType(raceID, typ string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, p := range f.events {
		if p.raceID == raceID && p.ev.Type == typ {
			out = append(out, p.ev)
		}
	}
	return out
}

func (f *fakeFanout) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine *Engine
	store  *fakeStore
	fanout *fakeFanout
	tasks  *Dispatcher
	clock  *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  newFakeStore(),
		fanout: newFakeFanout(),
		tasks:  NewDispatcher(2, 256, time.Second),
		clock:  &fakeClock{now: time.Unix(1_700_000_000, 0)},
	}
	h.engine = NewEngine(h.store, h.fanout, h.tasks, Config{
		BroadcastInterval:  time.Second,
		FinishRadiusMeters: 100,
	}, WithClock(h.clock.Now))
	t.Cleanup(func() { _ = h.tasks.Close(context.Background()) })
	return h
}

// flush waits for every queued persistence task.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.tasks.Close(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func (h *harness) join(t *testing.T, connID, raceID, userID string) {
	t.Helper()
	h.engine.Connect(connID)
	if err := h.engine.JoinRace(context.Background(), connID, JoinRace{RaceID: raceID, UserID: userID}); err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
}

func (h *harness) update(t *testing.T, connID, raceID, userID string, lon, lat float64, ts int64) {
	t.Helper()
	err := h.engine.UpdateParticipant(context.Background(), connID, ParticipantUpdate{
		RaceID:    raceID,
		UserID:    userID,
		Coords:    []float64{lon, lat},
		Timestamp: ts,
		Speed:     3.2,
	})
	if err != nil {
		t.Fatalf("update %s: %v", userID, err)
	}
}

func (h *harness) participant(raceID, userID string) *Participant {
	r := h.engine.rooms.get(raceID)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.byUser(userID)
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
