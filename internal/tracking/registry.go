package tracking

import (
	"sort"
	"sync"

	"github.com/cwrk-planet/race-service/internal/domain"
	"github.com/cwrk-planet/race-service/internal/metrics"
)

// room is one race's live state. Every read and write of its fields and of
// its participants happens under mu, so events for the same race never
// interleave their in-memory mutations. Store calls are never made while
// mu is held.
type room struct {
	id string

	mu           sync.Mutex
	status       domain.RaceStatus
	startedAt    int64 // epoch ms, 0 until started
	finish       *FinishLine
	participants []*Participant // join order
}

func (r *room) setStatus(s domain.RaceStatus) {
	if r.status == s {
		return
	}
	metrics.RaceRooms.WithLabelValues(string(r.status)).Dec()
	metrics.RaceRooms.WithLabelValues(string(s)).Inc()
	r.status = s
}

func (r *room) byUser(userID string) *Participant {
	for _, p := range r.participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *room) byConn(connID string) *Participant {
	for _, p := range r.participants {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

func (r *room) add(p *Participant) {
	r.participants = append(r.participants, p)
	metrics.PresenceSize.Inc()
}

// removeWhere drops matching participants and reports how many were removed.
func (r *room) removeWhere(match func(*Participant) bool) int {
	kept := r.participants[:0]
	removed := 0
	for _, p := range r.participants {
		if match(p) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(r.participants); i++ {
		r.participants[i] = nil
	}
	r.participants = kept
	metrics.PresenceSize.Sub(float64(removed))
	return removed
}

func (r *room) presence() []PresenceItem {
	out := make([]PresenceItem, len(r.participants))
	for i, p := range r.participants {
		out[i] = p.presence()
	}
	return out
}

// Registry tracks the race rooms known to this process. Rooms are never
// removed while the process runs.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// ensure returns the room for id, registering it with status when unknown.
func (g *Registry) ensure(id string, status domain.RaceStatus) (*room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.rooms[id]; ok {
		return r, false
	}
	r := &room{id: id, status: status}
	g.rooms[id] = r
	metrics.RaceRooms.WithLabelValues(string(status)).Inc()
	return r, true
}

func (g *Registry) get(id string) *room {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.rooms[id]
}

// all returns a snapshot of rooms ordered by id.
func (g *Registry) all() []*room {
	g.mu.RLock()
	out := make([]*room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.rooms)
}
