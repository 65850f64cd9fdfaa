// Package review ties the rating flow together: scheduler, card store,
// write-ahead log and sync engine. It also implements the reconciler the
// sync coordinator drives.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/conorfennell/gitdeck/internal/domain"
	"github.com/conorfennell/gitdeck/internal/repo"
	"github.com/conorfennell/gitdeck/internal/scheduler"
	"github.com/conorfennell/gitdeck/internal/store"
	"github.com/conorfennell/gitdeck/internal/study"
	"github.com/conorfennell/gitdeck/internal/wal"
)

// ErrCardNotFound is returned when rating a card the store does not hold.
var ErrCardNotFound = errors.New("card not found")

// Notifier receives change notifications for dirty-tracking. The sync
// coordinator satisfies it.
type Notifier interface {
	NotifyChange(cardID string)
}

// Session is the per-process review engine over one local store.
type Session struct {
	store  *store.Store
	sched  *scheduler.Adapter
	decks  *repo.DeckSync
	wal    *wal.Log
	now    func() time.Time
	log    *slog.Logger
	notify Notifier
}

// NewSession wires a session. now is injectable for tests; pass nil for the
// wall clock. The notifier is attached separately because the coordinator
// needs the session as its reconciler first.
func NewSession(st *store.Store, sched *scheduler.Adapter, decks *repo.DeckSync, w *wal.Log, now func() time.Time, log *slog.Logger) *Session {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Session{store: st, sched: sched, decks: decks, wal: w, now: now, log: log}
}

// AttachNotifier connects the dirty-tracking sink. Until attached, ratings
// still land in the store and WAL but trigger no pushes.
func (s *Session) AttachNotifier(n Notifier) {
	s.notify = n
}

// Rate applies a rating to one card direction: the scheduler computes the
// next state, the outcome is made durable in the WAL before any network
// activity, the store and review log are updated, and the sync engine is
// notified.
func (s *Session) Rate(deckName, term string, reverse bool, rating domain.Rating) (domain.SchedulingState, error) {
	card, ok := s.store.Card(deckName, term)
	if !ok {
		return domain.SchedulingState{}, fmt.Errorf("%w: %s/%s", ErrCardNotFound, deckName, term)
	}

	now := s.now()
	next, snap := s.sched.ComputeNewState(card.DirectionState(reverse), rating, now)

	if err := s.wal.Record(deckName, term, reverse, &next, now); err != nil {
		return domain.SchedulingState{}, fmt.Errorf("record wal: %w", err)
	}

	s.store.SetState(deckName, term, reverse, &next)
	cardID := card.ID()
	s.store.AppendLog(deckName, domain.ReviewLogEntry{
		ID:         domain.LogEntryID(cardID, reverse, now),
		CardID:     cardID,
		Deck:       deckName,
		Term:       term,
		IsReverse:  reverse,
		Rating:     rating,
		Timestamp:  now,
		PriorPhase: snap.PriorPhase,
		Prior:      snap.Prior,
	})

	s.log.Info("rated card", "deck", deckName, "term", term, "reverse", reverse, "rating", rating.String())
	if s.notify != nil {
		s.notify.NotifyChange(cardID)
	}
	return next, nil
}

// CanUndo reports whether the deck has a review to roll back.
func (s *Session) CanUndo(deckName string) bool {
	return s.store.CanUndo(deckName)
}

// Undo rolls back the deck's most recent review and records the restored
// state in the WAL so the rollback is as durable as the review was. The WAL
// write happens before the store mutates, the same discipline as Rate: a
// failed record leaves the review fully in place.
func (s *Session) Undo(deckName string) (domain.ReviewLogEntry, error) {
	e, ok := s.store.LatestReview(deckName)
	if !ok {
		return domain.ReviewLogEntry{}, store.ErrNothingToUndo
	}

	var restored *domain.SchedulingState
	if e.PriorPhase != domain.PhaseNew {
		restored = e.Prior
	}
	if err := s.wal.Record(deckName, e.Term, e.IsReverse, restored, s.now()); err != nil {
		return domain.ReviewLogEntry{}, fmt.Errorf("record wal: %w", err)
	}
	if _, err := s.store.Undo(deckName); err != nil {
		return domain.ReviewLogEntry{}, err
	}

	s.log.Info("undid review", "deck", deckName, "term", e.Term, "reverse", e.IsReverse)
	if s.notify != nil {
		s.notify.NotifyChange(e.CardID)
	}
	return e, nil
}

// Queue builds today's study queue for a deck from current store state.
func (s *Session) Queue(deckName string, newCardsLimit int, endOfDay time.Time, introducedToday map[string]bool) study.Queue {
	return study.Compute(s.store.Cards(deckName), newCardsLimit, endOfDay, introducedToday)
}

// Recover reapplies any WAL entries left over from a previous run to the
// in-memory store and marks them dirty for re-commit. Entries whose card is
// gone stay in the WAL; they are only cleared by a successful flush, never
// discarded on failure.
func (s *Session) Recover(ctx context.Context) error {
	decks, err := s.wal.Decks()
	if err != nil {
		return fmt.Errorf("list wal decks: %w", err)
	}
	for _, deckName := range decks {
		entries, err := s.wal.Pending(deckName)
		if err != nil {
			return fmt.Errorf("read wal for deck %s: %w", deckName, err)
		}
		for _, e := range entries {
			if !s.store.SetState(e.Deck, e.Term, e.Reverse, e.State) {
				s.log.Warn("wal entry for unknown card, keeping", "deck", e.Deck, "term", e.Term)
				continue
			}
			if s.notify != nil {
				s.notify.NotifyChange(e.Deck + "/" + e.Term)
			}
		}
		if len(entries) > 0 {
			s.log.Info("replayed wal entries", "deck", deckName, "count", len(entries))
		}
	}
	return nil
}

// Flush implements the coordinator's reconciler: it groups dirty card ids by
// deck and pushes each deck's current card values. On a conflict the deck is
// reset to the remote tip the push lost to; the local changes live on the
// side branch. WAL entries clear once their deck's push is durable.
func (s *Session) Flush(ctx context.Context, ids []string) error {
	byDeck := make(map[string][]string)
	for _, id := range ids {
		deckName, term, ok := strings.Cut(id, "/")
		if !ok {
			continue
		}
		byDeck[deckName] = append(byDeck[deckName], term)
	}

	for deckName, terms := range byDeck {
		cards := make([]domain.Card, 0, len(terms))
		for _, term := range terms {
			if c, ok := s.store.Card(deckName, term); ok {
				cards = append(cards, c)
			}
		}
		if len(cards) == 0 {
			continue
		}

		res, err := s.decks.PushDeck(ctx, deckName, cards)
		if err != nil {
			return fmt.Errorf("push deck %s: %w", deckName, err)
		}
		if res.ConflictBranch != "" {
			s.store.ReplaceDeck(deckName, res.RemoteCards)
		}
		if err := s.wal.Clear(deckName); err != nil {
			return fmt.Errorf("clear wal for deck %s: %w", deckName, err)
		}
	}
	return nil
}

// Pull implements the coordinator's full pull-and-replace step. Decks whose
// pull failed keep their local state; only decks genuinely absent from the
// remote are dropped.
func (s *Session) Pull(ctx context.Context) error {
	decks, failed, err := s.decks.PullAll(ctx)
	if err != nil {
		return err
	}
	s.store.ReplaceAll(decks, failed)
	return nil
}
