package postgres

import (
	"errors"
	"strings"
	"testing"

	"github.com/cwrk-planet/race-service/internal/domain"
)

func TestStatusUpdateQuery(t *testing.T) {
	q, err := statusUpdateQuery(domain.RaceOngoing)
	if err != nil {
		t.Fatalf("ongoing: %v", err)
	}
	if !strings.Contains(q, "status <> 'finished'") {
		t.Fatalf("ongoing update may regress a finished race: %s", q)
	}

	q, err = statusUpdateQuery(domain.RaceFinished)
	if err != nil {
		t.Fatalf("finished: %v", err)
	}
	if !strings.Contains(q, "end_time=$3") {
		t.Fatalf("finished update must stamp end_time: %s", q)
	}

	if _, err := statusUpdateQuery(domain.RaceUpcoming); !errors.Is(err, domain.ErrInvalidEvent) {
		t.Fatalf("upcoming: err = %v", err)
	}
}
