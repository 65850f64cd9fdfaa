// Package study builds the session queues. The builder is a pure function
// over the current card set and is recomputed from scratch after every
// mutation; queues are never patched incrementally.
package study

import (
	"sort"
	"time"

	"github.com/conorfennell/gitdeck/internal/domain"
)

// UnlimitedNewCards disables the daily new-card budget.
const UnlimitedNewCards = -1

// Queue holds today's study items. DueItems are ordered by due timestamp
// ascending; NewItems preserve the deck document's declared order.
type Queue struct {
	NewItems []domain.StudyItem
	DueItems []domain.StudyItem
}

// Current returns the card direction to show next: the head of the due queue
// if any, else the head of the new queue. ok is false when both are empty.
func (q Queue) Current() (item domain.StudyItem, ok bool) {
	if len(q.DueItems) > 0 {
		return q.DueItems[0], true
	}
	if len(q.NewItems) > 0 {
		return q.NewItems[0], true
	}
	return domain.StudyItem{}, false
}

type dueEntry struct {
	item domain.StudyItem
	due  time.Time
}

// Compute partitions a deck's cards into new and due queues.
//
// newCardsLimit is the daily new-card slot budget; UnlimitedNewCards (or any
// negative value) removes it. endOfDay is the inclusive cutoff for "due
// today": a direction due at exactly endOfDay is included, one due later is
// excluded from both queues. introducedToday lists direction keys already
// shown today; those are always admitted but still count toward the running
// slot total, so reopening a session mid-day keeps the same overall budget.
//
// Both directions of a reversible card are evaluated independently, in
// encounter order (forward first), against the same remaining budget.
func Compute(cards []domain.Card, newCardsLimit int, endOfDay time.Time, introducedToday map[string]bool) Queue {
	ordered := make([]domain.Card, len(cards))
	copy(ordered, cards)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	var q Queue
	var due []dueEntry
	newUsed := 0

	for i := range ordered {
		c := &ordered[i]
		if c.Suspended {
			continue
		}

		directions := []bool{false}
		if c.Reversible {
			directions = append(directions, true)
		}

		for _, reverse := range directions {
			// A reverseState on a non-reversible card is a data
			// inconsistency and never reaches this point.
			state := c.DirectionState(reverse)

			if state == nil {
				key := domain.DirectionKey(c.Term, reverse)
				admit := introducedToday[key]
				if !admit && (newCardsLimit < 0 || newUsed < newCardsLimit) {
					admit = true
				}
				if admit {
					newUsed++
					q.NewItems = append(q.NewItems, makeItem(c, reverse, true))
				}
				continue
			}

			if state.Due.After(endOfDay) {
				continue
			}
			due = append(due, dueEntry{item: makeItem(c, reverse, false), due: state.Due})
		}
	}

	// Due ordering is solely by due timestamp; an overdue learning step
	// interleaves with review-phase cards rather than jumping the queue.
	sort.SliceStable(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	for _, e := range due {
		q.DueItems = append(q.DueItems, e.item)
	}
	return q
}

func makeItem(c *domain.Card, reverse, isNew bool) domain.StudyItem {
	front, back := c.Front, c.Back
	if reverse {
		front, back = back, front
	}
	return domain.StudyItem{
		Term:      c.Term,
		Front:     front,
		Back:      back,
		IsReverse: reverse,
		IsNew:     isNew,
	}
}
