package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSchedulingStateRoundTrip(t *testing.T) {
	lastReview := time.Date(2026, 2, 10, 8, 30, 15, 0, time.UTC)
	original := SchedulingState{
		Due:           time.Date(2026, 2, 14, 23, 59, 59, 0, time.UTC),
		Stability:     12.5,
		Difficulty:    4.2,
		ElapsedDays:   3,
		ScheduledDays: 4,
		Reps:          7,
		Lapses:        1,
		Phase:         PhaseReview,
		LastReview:    &lastReview,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded SchedulingState
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !decoded.Due.Equal(original.Due) {
		t.Errorf("due changed in round trip: got %v, want %v", decoded.Due, original.Due)
	}
	if decoded.LastReview == nil || !decoded.LastReview.Equal(*original.LastReview) {
		t.Errorf("last_review changed in round trip: got %v, want %v", decoded.LastReview, original.LastReview)
	}
	if decoded.Stability != original.Stability || decoded.Difficulty != original.Difficulty {
		t.Errorf("memory parameters changed: got %+v", decoded)
	}
	if decoded.Reps != original.Reps || decoded.Lapses != original.Lapses || decoded.Phase != original.Phase {
		t.Errorf("counters changed: got %+v", decoded)
	}
}

func TestSchedulingStateWireFields(t *testing.T) {
	st := SchedulingState{
		Due:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Phase: PhaseLearning,
		Reps:  1,
	}
	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal to map failed: %v", err)
	}

	if raw["due"] != "2026-03-01T12:00:00Z" {
		t.Errorf("due not ISO-8601: %v", raw["due"])
	}
	if raw["state"] != float64(1) {
		t.Errorf("phase enum wrong: %v", raw["state"])
	}
	if _, ok := raw["last_review"]; ok {
		t.Error("last_review should be omitted when never reviewed")
	}
	for _, field := range []string{"stability", "difficulty", "elapsed_days", "scheduled_days", "reps", "lapses"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing field %q", field)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	lr := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := &SchedulingState{Stability: 2, LastReview: &lr}
	clone := st.Clone()
	*clone.LastReview = clone.LastReview.Add(time.Hour)
	if !st.LastReview.Equal(lr) {
		t.Error("clone shares LastReview with original")
	}

	var none *SchedulingState
	if none.Clone() != nil {
		t.Error("clone of nil state should stay nil")
	}
}

func TestDirectionKey(t *testing.T) {
	if DirectionKey("hola", false) == DirectionKey("hola", true) {
		t.Error("forward and reverse keys must differ")
	}
}

func TestLogEntryIDOrdering(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	first := LogEntryID("spanish/hola", false, base)
	second := LogEntryID("spanish/hola", false, base.Add(time.Millisecond))
	if first == second {
		t.Error("ids for distinct timestamps must be unique")
	}
	if !(first < second) {
		t.Errorf("ids must sort in review order: %q !< %q", first, second)
	}
}
