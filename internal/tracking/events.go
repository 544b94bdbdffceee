package tracking

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cwrk-planet/race-service/internal/domain"
	"github.com/cwrk-planet/race-service/internal/geo"
)

// Inbound event names.
const (
	EventCreateRace        = "createRace"
	EventJoinRace          = "joinRace"
	EventLeaveRace         = "leaveRace"
	EventRaceStarted       = "raceStarted"
	EventParticipantUpdate = "participantUpdate" // also outbound
	EventRaceEnded         = "raceEnded"
)

// Outbound event names.
const (
	EventRaceCreated        = "raceCreated"
	EventOnlineParticipants = "onlineParticipants"
	EventRaceStatusUpdate   = "raceStatusUpdate"
	EventRacerFinished      = "racerFinished"
	EventLeaderboardUpdate  = "leaderboardUpdate"
)

// Event is one outbound message addressed to a room or a connection.
type Event struct {
	Type    string
	Payload any
}

type CreateRace struct {
	RaceID string `json:"raceId"`
}

func (c *CreateRace) Validate() error {
	return requireIDs(&c.RaceID)
}

type JoinRace struct {
	RaceID string `json:"raceId"`
	UserID string `json:"userId"`
}

func (c *JoinRace) Validate() error {
	return requireIDs(&c.RaceID, &c.UserID)
}

type LeaveRace struct {
	RaceID string `json:"raceId"`
	UserID string `json:"userId"`
}

func (c *LeaveRace) Validate() error {
	return requireIDs(&c.RaceID, &c.UserID)
}

type RaceStarted struct {
	RaceID          string      `json:"raceId"`
	ActualStartTime EpochMillis `json:"actualStartTime"`
}

func (c *RaceStarted) Validate() error {
	if err := requireIDs(&c.RaceID); err != nil {
		return err
	}
	if c.ActualStartTime <= 0 {
		return fmt.Errorf("%w: actualStartTime is required", domain.ErrInvalidEvent)
	}
	return nil
}

type ParticipantUpdate struct {
	RaceID    string    `json:"raceId"`
	UserID    string    `json:"userId"`
	Coords    []float64 `json:"coords"` // [lon, lat]
	Timestamp int64     `json:"timestamp"`
	Speed     float64   `json:"speed"`
}

func (c *ParticipantUpdate) Validate() error {
	if err := requireIDs(&c.RaceID, &c.UserID); err != nil {
		return err
	}
	if len(c.Coords) < 2 || !c.Point().Valid() {
		return fmt.Errorf("%w: coords must be [lon, lat]", domain.ErrInvalidEvent)
	}
	if c.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp is required", domain.ErrInvalidEvent)
	}
	return nil
}

func (c *ParticipantUpdate) Point() geo.Point {
	if len(c.Coords) < 2 {
		return geo.Point{}
	}
	return geo.Point{Lon: c.Coords[0], Lat: c.Coords[1]}
}

type RaceEnded struct {
	RaceID string `json:"raceId"`
}

func (c *RaceEnded) Validate() error {
	return requireIDs(&c.RaceID)
}

func requireIDs(ids ...*string) error {
	for _, id := range ids {
		*id = strings.TrimSpace(*id)
		if *id == "" {
			return fmt.Errorf("%w: missing id", domain.ErrInvalidEvent)
		}
	}
	return nil
}

// EpochMillis accepts epoch milliseconds or an RFC 3339 string.
type EpochMillis int64

func (m *EpochMillis) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*m = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		uq, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("%w: actualStartTime: %v", domain.ErrInvalidEvent, err)
		}
		s = strings.TrimSpace(uq)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*m = EpochMillis(t.UnixMilli())
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: actualStartTime %q", domain.ErrInvalidEvent, s)
	}
	*m = EpochMillis(int64(f))
	return nil
}

func (m EpochMillis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

// PresenceItem is one entry of the onlineParticipants list.
type PresenceItem struct {
	UserID   string      `json:"userId"`
	Role     domain.Role `json:"role"`
	Coords   []float64   `json:"coords,omitempty"`
	Distance float64     `json:"distance"`
	Finished bool        `json:"finished"`
}

type RaceCreatedPayload struct {
	RaceID string `json:"raceId"`
}

type RaceStatusPayload struct {
	Status          domain.RaceStatus `json:"status"`
	ActualStartTime *int64            `json:"actualStartTime,omitempty"`
}

type PositionPayload struct {
	UserID    string    `json:"userId"`
	Coords    []float64 `json:"coords"`
	Timestamp int64     `json:"timestamp"`
	Speed     float64   `json:"speed"`
	Distance  float64   `json:"distance"`
}

type RacerFinishedPayload struct {
	UserID       string `json:"userId"`
	FinishTimeMs int64  `json:"finishTimeMs"`
}

// LeaderboardEntry is derived from presence; Distance is floored kilometers.
type LeaderboardEntry struct {
	UserID   string `json:"userId"`
	Position int    `json:"position"`
	Distance int64  `json:"distance"`
	Finished bool   `json:"finished"`
}
