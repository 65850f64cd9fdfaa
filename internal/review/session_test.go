package review

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/gitdeck/internal/deckfile"
	"github.com/conorfennell/gitdeck/internal/domain"
	"github.com/conorfennell/gitdeck/internal/fsrs"
	"github.com/conorfennell/gitdeck/internal/repo"
	"github.com/conorfennell/gitdeck/internal/scheduler"
	"github.com/conorfennell/gitdeck/internal/store"
	"github.com/conorfennell/gitdeck/internal/wal"
)

type memClient struct {
	dirs         []string
	files        map[string][]byte
	tokens       map[string]repo.VersionToken
	branches     []string
	branchWrites map[string][]byte
	rejectMain   bool
}

func newMemClient() *memClient {
	return &memClient{
		files:        make(map[string][]byte),
		tokens:       make(map[string]repo.VersionToken),
		branchWrites: make(map[string][]byte),
	}
}

func (c *memClient) ListDirectories(context.Context) ([]string, error) { return c.dirs, nil }

func (c *memClient) ReadFile(_ context.Context, path string) ([]byte, repo.VersionToken, error) {
	content, ok := c.files[path]
	if !ok {
		return nil, repo.Zero, repo.ErrNotFound
	}
	return content, c.tokens[path], nil
}

func (c *memClient) WriteFile(_ context.Context, path string, content []byte, opts repo.WriteOptions) (repo.VersionToken, error) {
	if opts.Branch != "" {
		c.branchWrites[opts.Branch] = content
		return "branch-token", nil
	}
	if c.rejectMain {
		return repo.Zero, repo.ErrPreconditionFailed
	}
	c.files[path] = content
	c.tokens[path] = c.tokens[path] + "+"
	return c.tokens[path], nil
}

func (c *memClient) ListCommits(context.Context, int) ([]repo.Commit, error) { return nil, nil }

func (c *memClient) CreateBranch(_ context.Context, name string) error {
	c.branches = append(c.branches, name)
	return nil
}

func (c *memClient) DeleteBranch(context.Context, string) error { return nil }

type recordingNotifier struct {
	ids []string
}

func (n *recordingNotifier) NotifyChange(cardID string) { n.ids = append(n.ids, cardID) }

type fixture struct {
	session  *Session
	store    *store.Store
	wal      *wal.Log
	client   *memClient
	notifier *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	w, err := wal.Open(filepath.Join(t.TempDir(), "wal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	client := newMemClient()
	st := store.New()
	st.ReplaceDeck("spanish-vocab", []domain.Card{
		{Term: "hola", Front: "hola", Back: "hello", Order: 0, Reversible: true},
		{Term: "adios", Front: "adios", Back: "goodbye", Order: 1},
	})

	session := NewSession(
		st,
		scheduler.New(fsrs.DefaultParams().Next),
		repo.NewDeckSync(client, func() time.Time { return now }, nil),
		w,
		func() time.Time { return now },
		nil,
	)
	notifier := &recordingNotifier{}
	session.AttachNotifier(notifier)

	return &fixture{session: session, store: st, wal: w, client: client, notifier: notifier, now: now}
}

func TestRateRecordsEverywhere(t *testing.T) {
	f := newFixture(t)

	next, err := f.session.Rate("spanish-vocab", "hola", false, domain.Good)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseLearning, next.Phase)

	// Store holds the new state.
	card, ok := f.store.Card("spanish-vocab", "hola")
	require.True(t, ok)
	require.NotNil(t, card.State)
	assert.Equal(t, next.Due, card.State.Due)
	assert.Nil(t, card.ReverseState, "rating one direction leaves the other untouched")

	// The outcome is durable before any push happens.
	entries, err := f.wal.Pending("spanish-vocab")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hola", entries[0].Term)
	require.NotNil(t, entries[0].State)
	assert.Equal(t, next.Due, entries[0].State.Due)

	// Review log carries the undo snapshot.
	log := f.store.Log("spanish-vocab")
	require.Len(t, log, 1)
	assert.Equal(t, domain.PhaseNew, log[0].PriorPhase)
	assert.Nil(t, log[0].Prior)
	assert.Equal(t, domain.Good, log[0].Rating)

	assert.Equal(t, []string{"spanish-vocab/hola"}, f.notifier.ids)
}

func TestRateUnknownCard(t *testing.T) {
	f := newFixture(t)

	_, err := f.session.Rate("spanish-vocab", "nunca", false, domain.Good)
	require.ErrorIs(t, err, ErrCardNotFound)
	assert.Empty(t, f.notifier.ids)
}

func TestUndoRestoresAndRecords(t *testing.T) {
	f := newFixture(t)

	_, err := f.session.Rate("spanish-vocab", "hola", false, domain.Good)
	require.NoError(t, err)

	require.True(t, f.session.CanUndo("spanish-vocab"))
	e, err := f.session.Undo("spanish-vocab")
	require.NoError(t, err)
	assert.Equal(t, "hola", e.Term)

	// The direction is back to never-reviewed, in the store and the WAL.
	card, _ := f.store.Card("spanish-vocab", "hola")
	assert.Nil(t, card.State)

	entries, err := f.wal.Pending("spanish-vocab")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].State, "undo to new records an absent state")

	require.False(t, f.session.CanUndo("spanish-vocab"))
	assert.Equal(t, []string{"spanish-vocab/hola", "spanish-vocab/hola"}, f.notifier.ids)
}

func TestFlushPushesAndClearsWAL(t *testing.T) {
	f := newFixture(t)

	_, err := f.session.Rate("spanish-vocab", "hola", false, domain.Good)
	require.NoError(t, err)

	require.NoError(t, f.session.Flush(context.Background(), []string{"spanish-vocab/hola"}))

	doc, ok := f.client.files["spanish-vocab/cards.json"]
	require.True(t, ok, "flush writes the deck document")
	cards, err := deckfile.Parse("spanish-vocab", bytes.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "hola", cards[0].Term)
	require.NotNil(t, cards[0].State)

	entries, err := f.wal.Pending("spanish-vocab")
	require.NoError(t, err)
	assert.Empty(t, entries, "a durable push clears the deck's WAL")
}

func TestFlushConflictResetsDeck(t *testing.T) {
	f := newFixture(t)

	// Remote already has the deck at a tip the local push will lose to.
	remote := []domain.Card{{Deck: "spanish-vocab", Term: "hola", Front: "hola", Back: "hello!", Order: 0}}
	remoteDoc, err := deckfile.Marshal(remote)
	require.NoError(t, err)
	f.client.files["spanish-vocab/cards.json"] = remoteDoc
	f.client.tokens["spanish-vocab/cards.json"] = "v9"
	f.client.rejectMain = true

	_, err = f.session.Rate("spanish-vocab", "hola", false, domain.Good)
	require.NoError(t, err)

	require.NoError(t, f.session.Flush(context.Background(), []string{"spanish-vocab/hola"}))

	// Local changes survive on the side branch.
	require.Len(t, f.client.branches, 1)
	assert.Contains(t, f.client.branches[0], "conflict/")
	assert.NotEmpty(t, f.client.branchWrites[f.client.branches[0]])

	// The local deck resets to the winning remote tip.
	card, ok := f.store.Card("spanish-vocab", "hola")
	require.True(t, ok)
	assert.Equal(t, "hello!", card.Back)
	assert.Nil(t, card.State)

	entries, err := f.wal.Pending("spanish-vocab")
	require.NoError(t, err)
	assert.Empty(t, entries, "parked changes are off the replay path")
}

func TestRecoverReplaysWAL(t *testing.T) {
	f := newFixture(t)

	due := f.now.Add(10 * time.Minute)
	st := &domain.SchedulingState{Due: due, Stability: 2.5, Difficulty: 5, Reps: 1, Phase: domain.PhaseLearning}
	require.NoError(t, f.wal.Record("spanish-vocab", "hola", false, st, f.now))
	require.NoError(t, f.wal.Record("spanish-vocab", "desaparecido", false, st, f.now))

	require.NoError(t, f.session.Recover(context.Background()))

	card, _ := f.store.Card("spanish-vocab", "hola")
	require.NotNil(t, card.State)
	assert.Equal(t, due, card.State.Due)
	assert.Equal(t, []string{"spanish-vocab/hola"}, f.notifier.ids, "only known cards mark dirty")

	// The orphan entry stays queued for a future flush to clear.
	entries, err := f.wal.Pending("spanish-vocab")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestUndoWALFailureLeavesReviewInPlace(t *testing.T) {
	f := newFixture(t)

	next, err := f.session.Rate("spanish-vocab", "hola", false, domain.Good)
	require.NoError(t, err)

	// A closed WAL makes the durability write fail; the review must stand.
	require.NoError(t, f.wal.Close())

	_, err = f.session.Undo("spanish-vocab")
	require.Error(t, err)

	card, _ := f.store.Card("spanish-vocab", "hola")
	require.NotNil(t, card.State, "a failed rollback must not strip the reviewed state")
	assert.Equal(t, next.Due, card.State.Due)
	assert.Len(t, f.store.Log("spanish-vocab"), 1, "the log entry survives a failed rollback")
	assert.True(t, f.session.CanUndo("spanish-vocab"))
}

func TestPullKeepsDeckWithMalformedRemote(t *testing.T) {
	f := newFixture(t)

	f.store.ReplaceDeck("greek", []domain.Card{{Term: "alpha", Front: "alpha", Back: "a", Order: 0}})
	_, err := f.session.Rate("greek", "alpha", false, domain.Good)
	require.NoError(t, err)

	remoteDoc, err := deckfile.Marshal([]domain.Card{{Deck: "spanish-vocab", Term: "hola", Front: "hola", Back: "hello", Order: 0}})
	require.NoError(t, err)
	f.client.dirs = []string{"spanish-vocab", "greek"}
	f.client.files["spanish-vocab/cards.json"] = remoteDoc
	f.client.tokens["spanish-vocab/cards.json"] = "v1"
	f.client.files["greek/cards.json"] = []byte("not json")
	f.client.tokens["greek/cards.json"] = "v1"

	require.NoError(t, f.session.Pull(context.Background()))

	card, ok := f.store.Card("greek", "alpha")
	require.True(t, ok, "a deck whose remote document is malformed keeps its local cards")
	require.NotNil(t, card.State, "and its scheduling state")

	_, ok = f.store.Card("spanish-vocab", "hola")
	assert.True(t, ok, "healthy decks still pull")
}

func TestPullReplacesStore(t *testing.T) {
	f := newFixture(t)

	remoteDoc, err := deckfile.Marshal([]domain.Card{{Deck: "greek", Term: "alpha", Front: "alpha", Back: "a", Order: 0}})
	require.NoError(t, err)
	f.client.dirs = []string{"greek"}
	f.client.files["greek/cards.json"] = remoteDoc
	f.client.tokens["greek/cards.json"] = "v1"

	require.NoError(t, f.session.Pull(context.Background()))

	assert.Equal(t, []string{"greek"}, f.store.Decks(), "decks absent from the remote drop")
	_, ok := f.store.Card("greek", "alpha")
	assert.True(t, ok)
}
