package domain

import "time"

type TrackingPoint struct {
	RaceID     string    `db:"race_id"`
	UserID     string    `db:"user_id"`
	Latitude   float64   `db:"latitude"`
	Longitude  float64   `db:"longitude"`
	RecordedAt time.Time `db:"recorded_at"`
}

// RaceResult is keyed by (race_id, user_id). FinishTimeMs is set when the
// racer crosses the finish, Position when the race ends.
type RaceResult struct {
	RaceID       string    `db:"race_id"`
	UserID       string    `db:"user_id"`
	FinishTimeMs *int64    `db:"finish_time"`
	Position     *int      `db:"position"`
	RecordedAt   time.Time `db:"recorded_at"`
}
