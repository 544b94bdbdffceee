package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/cwrk-planet/race-service/internal/domain"
	"github.com/cwrk-planet/race-service/internal/tracking"
	httpmw "github.com/cwrk-planet/race-service/internal/transport/http/middleware"
)

type fakeReader struct {
	boards   map[string][]tracking.LeaderboardEntry
	presence map[string][]tracking.PresenceItem
	status   map[string]domain.RaceStatus
}

func (f *fakeReader) Leaderboard(raceID string) ([]tracking.LeaderboardEntry, bool) {
	if _, ok := f.status[raceID]; !ok {
		return nil, false
	}
	return f.boards[raceID], true
}

func (f *fakeReader) Presence(raceID string) ([]tracking.PresenceItem, bool) {
	if _, ok := f.status[raceID]; !ok {
		return nil, false
	}
	return f.presence[raceID], true
}

func (f *fakeReader) Status(raceID string) (domain.RaceStatus, bool) {
	s, ok := f.status[raceID]
	return s, ok
}

func newTestRouter() http.Handler {
	reader := &fakeReader{
		boards: map[string][]tracking.LeaderboardEntry{
			"r1": {{UserID: "u2", Position: 1, Distance: 4}, {UserID: "u1", Position: 2, Distance: 1}},
		},
		presence: map[string][]tracking.PresenceItem{
			"r1": {{UserID: "u1", Role: domain.RoleRacer}, {UserID: "boss", Role: domain.RoleAdmin}},
		},
		status: map[string]domain.RaceStatus{"r1": domain.RaceOngoing, "empty": domain.RaceUpcoming},
	}
	return NewRouter(Deps{Handler: NewHandler(reader)})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLeaderboard(t *testing.T) {
	rec := get(t, newTestRouter(), "/races/r1/leaderboard")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp LeaderboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RaceID != "r1" || resp.Status != domain.RaceOngoing {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Leaderboard) != 2 || resp.Leaderboard[0].UserID != "u2" {
		t.Fatalf("leaderboard = %+v", resp.Leaderboard)
	}
}

func TestPresence(t *testing.T) {
	rec := get(t, newTestRouter(), "/races/r1/presence")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp PresenceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Participants) != 2 || resp.Participants[1].Role != domain.RoleAdmin {
		t.Fatalf("participants = %+v", resp.Participants)
	}
}

func TestEmptyRoomListsAreArrays(t *testing.T) {
	router := newTestRouter()
	for _, path := range []string{"/races/empty/leaderboard", "/races/empty/presence"} {
		rec := get(t, router, path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "null") {
			t.Fatalf("%s: body = %s", path, rec.Body.String())
		}
	}
}

func TestUnknownRace(t *testing.T) {
	router := newTestRouter()
	for _, path := range []string{"/races/nope/leaderboard", "/races/nope/presence"} {
		rec := get(t, router, path)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), domain.ErrRaceNotFound.Error()) {
			t.Fatalf("%s: body = %s", path, rec.Body.String())
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter()

	rec := get(t, router, "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = get(t, router, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatal("metrics body missing runtime collectors")
	}
}

func TestRequestID(t *testing.T) {
	router := newTestRouter()

	rec := get(t, router, "/healthz")
	if rec.Header().Get(httpmw.HeaderRequestID) == "" {
		t.Fatal("request id must be generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(httpmw.HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get(httpmw.HeaderRequestID); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
}
