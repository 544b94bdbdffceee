package tracking

import (
	"math"
	"sort"

	"github.com/cwrk-planet/race-service/internal/domain"
)

// Rank orders the racer-role participants: finished before unfinished,
// finished by last update ascending, unfinished by distance descending.
// Ties keep join order.
//
// Finished racers are ranked by their last update, not by FinishTimeMs.
func Rank(participants []*Participant) []LeaderboardEntry {
	racers := make([]*Participant, 0, len(participants))
	for _, p := range participants {
		if p.Role == domain.RoleRacer {
			racers = append(racers, p)
		}
	}

	sort.SliceStable(racers, func(i, j int) bool {
		a, b := racers[i], racers[j]
		switch {
		case a.Finished && b.Finished:
			return a.LastUpdate < b.LastUpdate
		case a.Finished != b.Finished:
			return a.Finished
		default:
			return a.Distance > b.Distance
		}
	})

	out := make([]LeaderboardEntry, len(racers))
	for i, p := range racers {
		out[i] = LeaderboardEntry{
			UserID:   p.UserID,
			Position: i + 1,
			Distance: int64(math.Floor(p.Distance)),
			Finished: p.Finished,
		}
	}
	return out
}
