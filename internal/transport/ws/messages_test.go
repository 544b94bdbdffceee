package ws

import (
	"errors"
	"testing"

	"github.com/cwrk-planet/race-service/internal/domain"
	"github.com/cwrk-planet/race-service/internal/tracking"
)

func TestDecodeEvent(t *testing.T) {
	typ, cmd, err := decodeEvent([]byte(`{"type":"participantUpdate","payload":{"raceId":"r1","userId":"u1","coords":[13.4,52.5],"timestamp":1700000000000,"speed":3.5}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if typ != tracking.EventParticipantUpdate {
		t.Fatalf("type = %q", typ)
	}
	upd, ok := cmd.(*tracking.ParticipantUpdate)
	if !ok {
		t.Fatalf("cmd = %T", cmd)
	}
	if upd.RaceID != "r1" || upd.UserID != "u1" || upd.Coords[0] != 13.4 || upd.Coords[1] != 52.5 || upd.Timestamp != 1700000000000 || upd.Speed != 3.5 {
		t.Fatalf("decoded = %+v", upd)
	}
}

func TestDecodeEvent_Aliases(t *testing.T) {
	typ, cmd, err := decodeEvent([]byte(`{"type":"race-started","payload":{"raceId":"r1","actualStartTime":"2024-05-01T10:00:00Z"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if typ != tracking.EventRaceStarted {
		t.Fatalf("type = %q", typ)
	}
	if st := cmd.(*tracking.RaceStarted); st.ActualStartTime != 1714557600000 {
		t.Fatalf("start = %d", st.ActualStartTime)
	}

	typ, cmd, err = decodeEvent([]byte(`{"type":"race-ended","payload":{"raceId":"r1"}}`))
	if err != nil || typ != tracking.EventRaceEnded {
		t.Fatalf("decode alias: %q %v", typ, err)
	}
	if _, ok := cmd.(*tracking.RaceEnded); !ok {
		t.Fatalf("cmd = %T", cmd)
	}
}

func TestDecodeEvent_Rejects(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"not json", `hello`, domain.ErrInvalidEvent},
		{"unknown type", `{"type":"chat","payload":{}}`, ErrUnknownEvent},
		{"missing payload", `{"type":"joinRace"}`, domain.ErrInvalidEvent},
		{"null payload", `{"type":"joinRace","payload":null}`, domain.ErrInvalidEvent},
		{"wrong shape", `{"type":"participantUpdate","payload":{"coords":"north"}}`, domain.ErrInvalidEvent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := decodeEvent([]byte(tc.in))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestClaimedUser(t *testing.T) {
	if u, ok := claimedUser(&tracking.JoinRace{UserID: "u1"}); !ok || u != "u1" {
		t.Fatalf("join: %q %v", u, ok)
	}
	if _, ok := claimedUser(&tracking.CreateRace{RaceID: "r1"}); ok {
		t.Fatal("createRace carries no user")
	}
}
