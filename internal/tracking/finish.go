package tracking

import "github.com/cwrk-planet/race-service/internal/geo"

// FinishLine is the geofence cached for a started race.
type FinishLine struct {
	Point  geo.Point
	Radius float64 // meters
}

// detectFinish marks p finished when its current position lies within the
// finish radius. It fires at most once per participant: the finished flag
// never reverts. startedAt is the race's actual start in epoch ms.
func detectFinish(line *FinishLine, startedAt int64, p *Participant) (finishTimeMs int64, ok bool) {
	if line == nil || startedAt <= 0 || p.Finished || !p.HasPos {
		return 0, false
	}
	if !geo.Within(line.Point, p.Pos, line.Radius) {
		return 0, false
	}

	p.Finished = true
	p.FinishTimeMs = p.LastUpdate - startedAt
	return p.FinishTimeMs, true
}
