// Package store holds the local mutable card store: per-deck card maps and
// the append-only review log. It is the single in-process owner of card
// state; pulls replace a deck wholesale, last writer wins at document level.
package store

import (
	"sort"
	"sync"

	"github.com/conorfennell/gitdeck/internal/domain"
)

// Store is the in-memory card store for every known deck.
type Store struct {
	mu    sync.RWMutex
	decks map[string]*deck
}

type deck struct {
	cards map[string]*domain.Card
	log   []domain.ReviewLogEntry
}

// New returns an empty store.
func New() *Store {
	return &Store{decks: make(map[string]*deck)}
}

// Decks lists all known deck names, sorted.
func (s *Store) Decks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.decks))
	for name := range s.decks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReplaceDeck swaps a deck's entire card set for the given cards. This is
// the pull path: any local scheduling state not present in the incoming set
// is superseded. The review log is kept; undo history survives a pull.
func (s *Store) ReplaceDeck(name string, cards []domain.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.deckLocked(name)
	d.cards = make(map[string]*domain.Card, len(cards))
	for i := range cards {
		c := cards[i].Clone()
		c.Deck = name
		d.cards[c.Term] = &c
	}
}

// ReplaceAll swaps the full card set of every deck at once. Decks absent
// from the incoming map are dropped along with their review logs; this is
// the wholesale pull path. Decks named in keep are retained as they are —
// their pull failed, which must not read as deleted-from-remote.
func (s *Store) ReplaceAll(decks map[string][]domain.Card, keep []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	retained := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		retained[name] = struct{}{}
	}
	for name := range s.decks {
		if _, ok := decks[name]; ok {
			continue
		}
		if _, ok := retained[name]; ok {
			continue
		}
		delete(s.decks, name)
	}
	for name, cards := range decks {
		d := s.deckLocked(name)
		d.cards = make(map[string]*domain.Card, len(cards))
		for i := range cards {
			c := cards[i].Clone()
			c.Deck = name
			d.cards[c.Term] = &c
		}
	}
}

// Cards returns a copy of a deck's cards in document order.
func (s *Store) Cards(name string) []domain.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decks[name]
	if !ok {
		return nil
	}
	out := make([]domain.Card, 0, len(d.cards))
	for _, c := range d.cards {
		out = append(out, c.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Card looks up one card by deck and term.
func (s *Store) Card(deckName, term string) (domain.Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decks[deckName]
	if !ok {
		return domain.Card{}, false
	}
	c, ok := d.cards[term]
	if !ok {
		return domain.Card{}, false
	}
	return c.Clone(), true
}

// SetState replaces the scheduling state of one card direction. A nil state
// returns the direction to "never reviewed".
func (s *Store) SetState(deckName, term string, reverse bool, st *domain.SchedulingState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decks[deckName]
	if !ok {
		return false
	}
	c, ok := d.cards[term]
	if !ok {
		return false
	}
	c.SetDirectionState(reverse, st.Clone())
	return true
}

// AppendLog records a review in the deck's append-only log.
func (s *Store) AppendLog(deckName string, e domain.ReviewLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.deckLocked(deckName)
	d.log = append(d.log, e)
}

// Log returns a copy of a deck's review log in append order.
func (s *Store) Log(deckName string) []domain.ReviewLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decks[deckName]
	if !ok {
		return nil
	}
	return append([]domain.ReviewLogEntry(nil), d.log...)
}

// deckLocked returns the named deck, creating it if needed. Callers hold mu.
func (s *Store) deckLocked(name string) *deck {
	d, ok := s.decks[name]
	if !ok {
		d = &deck{cards: make(map[string]*domain.Card)}
		s.decks[name] = d
	}
	return d
}
