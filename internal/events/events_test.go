package events

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRecorder_KeepsOrder(t *testing.T) {
	t.Parallel()

	r := &Recorder{}
	r.Emit(context.Background(), Event{Type: CircleCreated, EntityID: "c1"})
	r.Emit(context.Background(), Event{Type: MemberAdded, EntityID: "c1", SubjectID: "u2"})

	got := r.Types()
	if len(got) != 2 || got[0] != CircleCreated || got[1] != MemberAdded {
		t.Fatalf("Types() = %v", got)
	}

	events := r.Events()
	events[0].Type = "mutated"
	if r.Types()[0] != CircleCreated {
		t.Error("Events() must return a copy")
	}
}

func TestEvent_JSONHasNoLocationFields(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Event{
		Type:       CheckInApproved,
		EntityID:   "r1",
		CircleID:   "c1",
		ActorID:    "u2",
		OccurredAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	for _, field := range []string{"location", "lat", "photo"} {
		if strings.Contains(string(data), field) {
			t.Errorf("event payload contains %q: %s", field, data)
		}
	}
}
