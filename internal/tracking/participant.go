package tracking

import (
	"time"

	"github.com/cwrk-planet/race-service/internal/domain"
	"github.com/cwrk-planet/race-service/internal/geo"
)

// Participant is a connected user of one race room. All fields are guarded
// by the owning room's lock.
type Participant struct {
	UserID string
	ConnID string
	Role   domain.Role // fixed at join

	Pos        geo.Point
	HasPos     bool
	LastUpdate int64 // client timestamp, epoch ms
	Speed      float64
	Distance   float64 // km, never decreases

	Finished     bool
	FinishTimeMs int64

	lastBroadcast time.Time
	broadcasted   bool
}

// track folds a new position into the participant and returns the
// segment length in meters (zero for the first fix).
func (p *Participant) track(pos geo.Point, ts int64, speed float64) float64 {
	var seg float64
	if p.HasPos {
		seg = geo.Distance(p.Pos, pos)
		p.Distance += seg / 1000
	}

	p.Pos = pos
	p.HasPos = true
	p.LastUpdate = ts
	p.Speed = speed

	return seg
}

func (p *Participant) presence() PresenceItem {
	item := PresenceItem{
		UserID:   p.UserID,
		Role:     p.Role,
		Distance: p.Distance,
		Finished: p.Finished,
	}
	if p.HasPos {
		item.Coords = []float64{p.Pos.Lon, p.Pos.Lat}
	}
	return item
}
