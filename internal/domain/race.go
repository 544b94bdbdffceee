package domain

import "time"

type RaceStatus string

const (
	RaceUpcoming RaceStatus = "upcoming"
	RaceOngoing  RaceStatus = "ongoing"
	RaceFinished RaceStatus = "finished"
)

// Active reports whether a race room should exist for this status.
func (s RaceStatus) Active() bool {
	return s == RaceUpcoming || s == RaceOngoing
}

type Race struct {
	ID              string     `db:"id"`
	CreatedByUserID string     `db:"created_by_user_id"`
	RouteID         *string    `db:"route_id"`
	Status          RaceStatus `db:"status"`
	ActualStartTime *time.Time `db:"actual_start_time"`
	EndTime         *time.Time `db:"end_time"`
}

type Role string

const (
	RoleAdmin Role = "admin"
	RoleRacer Role = "racer"
	RoleGuest Role = "guest"
)
