package store

import (
	"errors"

	"github.com/conorfennell/gitdeck/internal/domain"
)

// ErrNothingToUndo is returned when a deck has no review log entries left.
var ErrNothingToUndo = errors.New("nothing to undo")

// CanUndo reports whether the deck has at least one review to roll back.
// It is independent of whether a current card is on screen; a just-finished
// session can still be undone into.
func (s *Store) CanUndo(deckName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decks[deckName]
	return ok && len(d.log) > 0
}

// LatestReview returns the log entry Undo would roll back, without rolling
// anything back.
func (s *Store) LatestReview(deckName string) (domain.ReviewLogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decks[deckName]
	if !ok || len(d.log) == 0 {
		return domain.ReviewLogEntry{}, false
	}
	return d.log[latestReviewIndex(d.log)], true
}

// The most recently rated card may already have left the visible queue, so
// the undo target is the max-timestamp entry, not the current card's latest.
func latestReviewIndex(log []domain.ReviewLogEntry) int {
	latest := 0
	for i := 1; i < len(log); i++ {
		if log[i].Timestamp.After(log[latest].Timestamp) {
			latest = i
		}
	}
	return latest
}

// Undo rolls back the most recent review across the entire deck: the
// direction's state is restored from the log entry's snapshot (or to nil if
// the direction was new before the review) and the entry is removed.
// Repeated calls walk the log backward one review at a time.
func (s *Store) Undo(deckName string) (domain.ReviewLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decks[deckName]
	if !ok || len(d.log) == 0 {
		return domain.ReviewLogEntry{}, ErrNothingToUndo
	}

	latest := latestReviewIndex(d.log)
	e := d.log[latest]
	d.log = append(d.log[:latest], d.log[latest+1:]...)

	if c, ok := d.cards[e.Term]; ok {
		if e.PriorPhase == domain.PhaseNew {
			c.SetDirectionState(e.IsReverse, nil)
		} else {
			c.SetDirectionState(e.IsReverse, e.Prior.Clone())
		}
	}
	return e, nil
}
