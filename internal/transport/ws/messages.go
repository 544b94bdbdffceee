package ws

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/cwrk-planet/race-service/internal/domain"
	"github.com/cwrk-planet/race-service/internal/tracking"
)

// Legacy spellings still sent by older clients.
const (
	typeRaceStartedAlias = "race-started"
	typeRaceEndedAlias   = "race-ended"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Message is the frame exchanged over the socket in both directions:
// {"type": "...", "payload": {...}}.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// decodeEvent parses a frame into the typed command for its event name.
// The returned type is the canonical event name.
func decodeEvent(data []byte) (string, any, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}

	var cmd any
	switch in.Type {
	case tracking.EventCreateRace:
		cmd = &tracking.CreateRace{}
	case tracking.EventJoinRace:
		cmd = &tracking.JoinRace{}
	case tracking.EventLeaveRace:
		cmd = &tracking.LeaveRace{}
	case tracking.EventRaceStarted, typeRaceStartedAlias:
		in.Type = tracking.EventRaceStarted
		cmd = &tracking.RaceStarted{}
	case tracking.EventParticipantUpdate:
		cmd = &tracking.ParticipantUpdate{}
	case tracking.EventRaceEnded, typeRaceEndedAlias:
		in.Type = tracking.EventRaceEnded
		cmd = &tracking.RaceEnded{}
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Type)
	}

	if len(in.Payload) == 0 || string(in.Payload) == "null" {
		return "", nil, fmt.Errorf("%w: %s without payload", domain.ErrInvalidEvent, in.Type)
	}
	if err := json.Unmarshal(in.Payload, cmd); err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidEvent, in.Type, err)
	}
	return in.Type, cmd, nil
}

// claimedUser returns the userId an event acts on behalf of, if any.
func claimedUser(cmd any) (string, bool) {
	switch c := cmd.(type) {
	case *tracking.JoinRace:
		return c.UserID, true
	case *tracking.LeaveRace:
		return c.UserID, true
	case *tracking.ParticipantUpdate:
		return c.UserID, true
	}
	return "", false
}

func encode(ev tracking.Event) ([]byte, error) {
	return json.Marshal(Message{Type: ev.Type, Payload: ev.Payload})
}
