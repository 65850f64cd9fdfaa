package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase is the FSRS learning phase of one card direction.
type Phase int

const (
	PhaseNew Phase = iota
	PhaseLearning
	PhaseReview
	PhaseRelearning
)

// Rating is the user's response to a review.
// 1: Again (forgot), 2: Hard, 3: Good, 4: Easy.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

func (r Rating) String() string {
	switch r {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	}
	return fmt.Sprintf("rating(%d)", int(r))
}

// SchedulingState holds the memory state of one card direction. A nil
// *SchedulingState means the direction has never been reviewed; that nil is
// semantically distinct from a zero state and must survive serialization.
type SchedulingState struct {
	Due           time.Time
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	Reps          int
	Lapses        int
	Phase         Phase
	LastReview    *time.Time
}

// Clone returns a deep copy, preserving nil.
func (s *SchedulingState) Clone() *SchedulingState {
	if s == nil {
		return nil
	}
	out := *s
	if s.LastReview != nil {
		lr := *s.LastReview
		out.LastReview = &lr
	}
	return &out
}

// stateJSON is the wire form of SchedulingState inside a deck document.
// Timestamps are RFC3339 in UTC; the round trip keeps second precision.
type stateJSON struct {
	Due           string  `json:"due"`
	Stability     float64 `json:"stability"`
	Difficulty    float64 `json:"difficulty"`
	ElapsedDays   int     `json:"elapsed_days"`
	ScheduledDays int     `json:"scheduled_days"`
	Reps          int     `json:"reps"`
	Lapses        int     `json:"lapses"`
	State         int     `json:"state"`
	LastReview    string  `json:"last_review,omitempty"`
}

// MarshalJSON serializes the state with ISO-8601 timestamps.
func (s SchedulingState) MarshalJSON() ([]byte, error) {
	w := stateJSON{
		Due:           s.Due.UTC().Format(time.RFC3339),
		Stability:     s.Stability,
		Difficulty:    s.Difficulty,
		ElapsedDays:   s.ElapsedDays,
		ScheduledDays: s.ScheduledDays,
		Reps:          s.Reps,
		Lapses:        s.Lapses,
		State:         int(s.Phase),
	}
	if s.LastReview != nil {
		w.LastReview = s.LastReview.UTC().Format(time.RFC3339)
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the wire form back into a SchedulingState.
func (s *SchedulingState) UnmarshalJSON(data []byte) error {
	var w stateJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	due, err := time.Parse(time.RFC3339, w.Due)
	if err != nil {
		return fmt.Errorf("invalid due timestamp %q: %w", w.Due, err)
	}
	out := SchedulingState{
		Due:           due,
		Stability:     w.Stability,
		Difficulty:    w.Difficulty,
		ElapsedDays:   w.ElapsedDays,
		ScheduledDays: w.ScheduledDays,
		Reps:          w.Reps,
		Lapses:        w.Lapses,
		Phase:         Phase(w.State),
	}
	if w.LastReview != "" {
		lr, err := time.Parse(time.RFC3339, w.LastReview)
		if err != nil {
			return fmt.Errorf("invalid last_review timestamp %q: %w", w.LastReview, err)
		}
		out.LastReview = &lr
	}
	*s = out
	return nil
}
