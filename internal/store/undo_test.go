package store

import (
	"testing"
	"time"

	"github.com/conorfennell/gitdeck/internal/domain"
)

func seededStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.ReplaceDeck("spanish-vocab", []domain.Card{
		{Term: "hola", Front: "hola", Back: "hello", Order: 0},
		{Term: "gato", Front: "gato", Back: "cat", Order: 1, Reversible: true},
	})
	return s
}

func logEntry(term string, reverse bool, at time.Time, priorPhase domain.Phase, prior *domain.SchedulingState) domain.ReviewLogEntry {
	cardID := "spanish-vocab/" + term
	return domain.ReviewLogEntry{
		ID:         domain.LogEntryID(cardID, reverse, at),
		CardID:     cardID,
		Deck:       "spanish-vocab",
		Term:       term,
		IsReverse:  reverse,
		Rating:     domain.Good,
		Timestamp:  at,
		PriorPhase: priorPhase,
		Prior:      prior,
	}
}

func TestUndoNewCardRestoresNil(t *testing.T) {
	s := seededStore(t)
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	st := &domain.SchedulingState{Phase: domain.PhaseLearning, Reps: 1, Due: now.Add(10 * time.Minute)}
	s.SetState("spanish-vocab", "hola", false, st)
	s.AppendLog("spanish-vocab", logEntry("hola", false, now, domain.PhaseNew, nil))

	if _, err := s.Undo("spanish-vocab"); err != nil {
		t.Fatalf("undo failed: %v", err)
	}

	c, _ := s.Card("spanish-vocab", "hola")
	if c.State != nil {
		t.Errorf("undo of a first review must restore nil state, got %+v", c.State)
	}
	if s.CanUndo("spanish-vocab") {
		t.Error("log entry should be removed by undo")
	}
}

func TestUndoRestoresSnapshotNotRederivation(t *testing.T) {
	s := seededStore(t)
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	prior := &domain.SchedulingState{Phase: domain.PhaseReview, Stability: 7.5, Difficulty: 4.4, Reps: 3, Due: now.Add(-time.Hour)}
	next := &domain.SchedulingState{Phase: domain.PhaseReview, Stability: 9.1, Difficulty: 4.4, Reps: 4, Due: now.Add(72 * time.Hour)}
	s.SetState("spanish-vocab", "hola", false, next)
	s.AppendLog("spanish-vocab", logEntry("hola", false, now, domain.PhaseReview, prior))

	if _, err := s.Undo("spanish-vocab"); err != nil {
		t.Fatalf("undo failed: %v", err)
	}

	c, _ := s.Card("spanish-vocab", "hola")
	if c.State == nil {
		t.Fatal("expected restored state")
	}
	if c.State.Stability != prior.Stability || c.State.Reps != prior.Reps || !c.State.Due.Equal(prior.Due) {
		t.Errorf("state must be the recorded snapshot, got %+v want %+v", c.State, prior)
	}
}

func TestUndoPicksLatestAcrossDeck(t *testing.T) {
	s := seededStore(t)
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	s.SetState("spanish-vocab", "hola", false, &domain.SchedulingState{Phase: domain.PhaseLearning, Reps: 1})
	s.AppendLog("spanish-vocab", logEntry("hola", false, base, domain.PhaseNew, nil))
	s.SetState("spanish-vocab", "gato", true, &domain.SchedulingState{Phase: domain.PhaseLearning, Reps: 1})
	s.AppendLog("spanish-vocab", logEntry("gato", true, base.Add(time.Minute), domain.PhaseNew, nil))

	e, err := s.Undo("spanish-vocab")
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if e.Term != "gato" || !e.IsReverse {
		t.Errorf("undo must target the most recent review deck-wide, got %+v", e)
	}

	c, _ := s.Card("spanish-vocab", "gato")
	if c.ReverseState != nil {
		t.Error("reverse direction should be restored to new")
	}
	if c.State != nil {
		t.Error("forward direction must be untouched by a reverse undo")
	}

	// Second undo walks one entry further back.
	e, err = s.Undo("spanish-vocab")
	if err != nil {
		t.Fatalf("second undo failed: %v", err)
	}
	if e.Term != "hola" {
		t.Errorf("expected hola, got %+v", e)
	}
}

func TestUndoEmptyLog(t *testing.T) {
	s := seededStore(t)
	if s.CanUndo("spanish-vocab") {
		t.Error("fresh deck has nothing to undo")
	}
	if _, err := s.Undo("spanish-vocab"); err != ErrNothingToUndo {
		t.Errorf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestReplaceAllDropsMissingDecks(t *testing.T) {
	s := seededStore(t)
	s.ReplaceDeck("french-vocab", []domain.Card{{Term: "chat", Back: "cat"}})

	s.ReplaceAll(map[string][]domain.Card{
		"spanish-vocab": {{Term: "hola", Back: "hello"}},
	}, nil)

	decks := s.Decks()
	if len(decks) != 1 || decks[0] != "spanish-vocab" {
		t.Errorf("pull must replace the full deck set, got %v", decks)
	}
	if _, ok := s.Card("french-vocab", "chat"); ok {
		t.Error("deck absent from pull must be dropped")
	}
}

func TestReplaceAllKeepsNamedDecks(t *testing.T) {
	s := seededStore(t)
	s.ReplaceDeck("french-vocab", []domain.Card{{Term: "chat", Back: "cat"}})
	s.ReplaceDeck("german-vocab", []domain.Card{{Term: "hund", Back: "dog"}})

	s.ReplaceAll(map[string][]domain.Card{
		"spanish-vocab": {{Term: "hola", Back: "hello"}},
	}, []string{"french-vocab"})

	if _, ok := s.Card("french-vocab", "chat"); !ok {
		t.Error("deck named in keep must survive the replace untouched")
	}
	if _, ok := s.Card("german-vocab", "hund"); ok {
		t.Error("deck neither pulled nor kept must still drop")
	}
}

func TestLatestReviewPeeksWithoutRollingBack(t *testing.T) {
	s := seededStore(t)
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	s.SetState("spanish-vocab", "hola", false, &domain.SchedulingState{Phase: domain.PhaseLearning, Reps: 1})
	s.AppendLog("spanish-vocab", logEntry("hola", false, now, domain.PhaseNew, nil))
	s.SetState("spanish-vocab", "gato", false, &domain.SchedulingState{Phase: domain.PhaseLearning, Reps: 1})
	s.AppendLog("spanish-vocab", logEntry("gato", false, now.Add(time.Minute), domain.PhaseNew, nil))

	e, ok := s.LatestReview("spanish-vocab")
	if !ok || e.Term != "gato" {
		t.Fatalf("expected latest review for gato, got %+v ok=%v", e, ok)
	}
	if got := len(s.Log("spanish-vocab")); got != 2 {
		t.Errorf("peek must not consume log entries, have %d", got)
	}
	if c, _ := s.Card("spanish-vocab", "gato"); c.State == nil {
		t.Error("peek must not restore card state")
	}
}
