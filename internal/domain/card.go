package domain

import "time"

// Card represents a single flashcard inside a deck. A card is identified by
// its (Deck, Term) pair; Term doubles as the key in the deck document.
type Card struct {
	Deck       string
	Term       string
	Front      string // markdown, defaults to Term
	Back       string // markdown
	Tags       []string
	Created    time.Time
	Reversible bool
	Order      int // position in the deck document, reassigned on every pull
	Suspended  bool

	// State is the forward direction's scheduling state; ReverseState the
	// reverse direction's. nil means the direction has never been reviewed
	// and is always due now.
	State        *SchedulingState
	ReverseState *SchedulingState
}

// ID returns the process-wide card identifier used by the dirty set and the
// review log.
func (c *Card) ID() string {
	return c.Deck + "/" + c.Term
}

// DirectionState returns the scheduling state for the given direction.
func (c *Card) DirectionState(reverse bool) *SchedulingState {
	if reverse {
		return c.ReverseState
	}
	return c.State
}

// SetDirectionState replaces the scheduling state for the given direction.
func (c *Card) SetDirectionState(reverse bool, st *SchedulingState) {
	if reverse {
		c.ReverseState = st
	} else {
		c.State = st
	}
}

// Clone returns a deep copy of the card.
func (c *Card) Clone() Card {
	out := *c
	out.Tags = append([]string(nil), c.Tags...)
	out.State = c.State.Clone()
	out.ReverseState = c.ReverseState.Clone()
	return out
}

// DirectionKey identifies one card direction, e.g. for the introduced-today
// set. The reverse direction gets a ":r" suffix so it never collides with a
// forward key.
func DirectionKey(term string, reverse bool) string {
	if reverse {
		return term + ":r"
	}
	return term
}

// StudyItem is a non-persisted projection of one reviewable card direction.
// For reverse items Front and Back are already swapped for display.
type StudyItem struct {
	Term      string
	Front     string
	Back      string
	IsReverse bool
	IsNew     bool
}
