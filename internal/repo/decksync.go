package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/conorfennell/gitdeck/internal/deckfile"
	"github.com/conorfennell/gitdeck/internal/domain"
	"github.com/conorfennell/gitdeck/internal/fingerprint"
)

// conflictBranchFormat names the side branch a rejected push escapes to.
// Millisecond precision keeps successive conflicts distinguishable.
const conflictBranchFormat = "20060102T150405.000"

// DeckSync reconciles one deck document at a time against the repository.
type DeckSync struct {
	client Client
	now    func() time.Time
	log    *slog.Logger
}

// NewDeckSync builds a DeckSync over the given transport. now is injectable
// for tests; pass nil for the wall clock.
func NewDeckSync(client Client, now func() time.Time, log *slog.Logger) *DeckSync {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &DeckSync{client: client, now: now, log: log}
}

// PushResult reports the outcome of a deck push.
type PushResult struct {
	// ConflictBranch is non-empty when the push lost a race and the local
	// changes were parked on a side branch instead.
	ConflictBranch string
	// RemoteCards is the remote tip's card set, returned on conflict so
	// the caller can reset local state; nil on a clean push.
	RemoteCards []domain.Card
}

// PushDeck merges the given cards into the deck's remote document by term
// and writes it back under the previously read fingerprint. On a
// non-fast-forward rejection local changes are pushed to a fresh
// timestamp-named branch and the caller gets the remote tip to reset to;
// local data is never lost and the main line is never force-overwritten.
func (s *DeckSync) PushDeck(ctx context.Context, deckName string, cards []domain.Card) (*PushResult, error) {
	docPath := path.Join(deckName, deckfile.Name)

	remote, token, err := s.client.ReadFile(ctx, docPath)
	var base []domain.Card
	switch {
	case err == nil:
		base, err = deckfile.Parse(deckName, bytes.NewReader(remote))
		if err != nil {
			return nil, fmt.Errorf("parse remote %s: %w", docPath, err)
		}
	case errors.Is(err, ErrNotFound):
		token = Zero
	default:
		return nil, fmt.Errorf("read %s: %w", docPath, err)
	}

	merged := mergeCards(base, cards)
	content, err := deckfile.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", docPath, err)
	}

	_, err = s.client.WriteFile(ctx, docPath, content, WriteOptions{Token: token})
	if err == nil {
		s.log.Info("pushed deck", "deck", deckName, "cards", len(cards))
		return &PushResult{}, nil
	}
	if !errors.Is(err, ErrPreconditionFailed) {
		return nil, fmt.Errorf("write %s: %w", docPath, err)
	}

	return s.escapeToBranch(ctx, deckName, docPath, content)
}

// escapeToBranch parks the rejected document on a timestamped side branch
// and re-reads the remote tip so the caller can reset local state to it.
func (s *DeckSync) escapeToBranch(ctx context.Context, deckName, docPath string, content []byte) (*PushResult, error) {
	branch := "conflict/" + s.now().UTC().Format(conflictBranchFormat)

	if err := s.client.CreateBranch(ctx, branch); err != nil {
		return nil, fmt.Errorf("create conflict branch %s: %w", branch, err)
	}
	if _, err := s.client.WriteFile(ctx, docPath, content, WriteOptions{Branch: branch}); err != nil {
		return nil, fmt.Errorf("write %s to %s: %w", docPath, branch, err)
	}

	remote, _, err := s.client.ReadFile(ctx, docPath)
	if err != nil {
		return nil, fmt.Errorf("re-read %s after conflict: %w", docPath, err)
	}
	tip, err := deckfile.Parse(deckName, bytes.NewReader(remote))
	if err != nil {
		return nil, fmt.Errorf("parse remote tip %s: %w", docPath, err)
	}

	s.log.Info("push conflict, yielded to branch", "deck", deckName, "branch", branch)
	return &PushResult{ConflictBranch: branch, RemoteCards: tip}, nil
}

// PullDeck reads and parses one deck document. ErrNotFound means the
// directory is not a deck.
func (s *DeckSync) PullDeck(ctx context.Context, deckName string) ([]domain.Card, error) {
	docPath := path.Join(deckName, deckfile.Name)
	content, _, err := s.client.ReadFile(ctx, docPath)
	if err != nil {
		return nil, err
	}
	cards, err := deckfile.Parse(deckName, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// PullAll enumerates top-level directories and pulls every one holding a
// deck document. Directories without a document are skipped silently; a
// malformed document fails only its own deck. Failed deck names come back in
// failed so callers can keep their local state rather than treat them as
// deleted from the remote.
func (s *DeckSync) PullAll(ctx context.Context) (decks map[string][]domain.Card, failed []string, err error) {
	dirs, err := s.client.ListDirectories(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list directories: %w", err)
	}

	decks = make(map[string][]domain.Card)
	var errs []error
	for _, dir := range dirs {
		cards, err := s.PullDeck(ctx, dir)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			s.log.Error("deck pull failed", "deck", dir, "error", err)
			failed = append(failed, dir)
			errs = append(errs, fmt.Errorf("deck %s: %w", dir, err))
			continue
		}
		for _, terms := range fingerprint.Duplicates(cards) {
			s.log.Warn("cards with identical content", "deck", dir, "terms", terms)
		}
		decks[dir] = cards
	}
	if len(decks) == 0 && len(errs) > 0 {
		return nil, failed, errors.Join(errs...)
	}
	return decks, failed, nil
}

// History lists recent repository commits, newest first.
func (s *DeckSync) History(ctx context.Context, limit int) ([]Commit, error) {
	return s.client.ListCommits(ctx, limit)
}

// mergeCards overlays local cards onto the remote base by term. Remote key
// order is preserved; cards new to the document are appended in their own
// order.
func mergeCards(base, local []domain.Card) []domain.Card {
	index := make(map[string]int, len(base))
	merged := make([]domain.Card, len(base))
	copy(merged, base)
	for i := range merged {
		index[merged[i].Term] = i
	}

	extra := make([]domain.Card, 0)
	for i := range local {
		c := local[i]
		if at, ok := index[c.Term]; ok {
			c.Order = merged[at].Order
			merged[at] = c
		} else {
			extra = append(extra, c)
		}
	}
	sort.SliceStable(extra, func(i, j int) bool { return extra[i].Order < extra[j].Order })
	for i := range extra {
		extra[i].Order = len(merged)
		merged = append(merged, extra[i])
	}
	return merged
}
