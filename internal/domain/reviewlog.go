package domain

import (
	"fmt"
	"time"
)

// ReviewLogEntry is an append-only record of one rating. It carries the full
// pre-review snapshot so a review can be rolled back without re-deriving
// FSRS state.
type ReviewLogEntry struct {
	ID         string // cardID + direction + timestamp, unique and orderable
	CardID     string
	Deck       string
	Term       string
	IsReverse  bool
	Rating     Rating
	Timestamp  time.Time
	PriorPhase Phase
	// Prior is the direction's state before this review; nil when
	// PriorPhase is PhaseNew.
	Prior *SchedulingState
}

// logIDLayout keeps a fixed fractional width so ids sort lexically in
// review order; RFC3339Nano trims trailing zeros and would break that.
const logIDLayout = "2006-01-02T15:04:05.000000000Z"

// LogEntryID builds the composite review-log identifier, unique per card
// direction and review instant and lexically ordered by review time.
func LogEntryID(cardID string, reverse bool, at time.Time) string {
	dir := "f"
	if reverse {
		dir = "r"
	}
	return fmt.Sprintf("%s|%s|%s", cardID, dir, at.UTC().Format(logIDLayout))
}
