package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/gitdeck/internal/config"
	"github.com/conorfennell/gitdeck/internal/fsrs"
	"github.com/conorfennell/gitdeck/internal/gitrepo"
	"github.com/conorfennell/gitdeck/internal/repo"
	"github.com/conorfennell/gitdeck/internal/review"
	"github.com/conorfennell/gitdeck/internal/scheduler"
	"github.com/conorfennell/gitdeck/internal/store"
	synceng "github.com/conorfennell/gitdeck/internal/sync"
	"github.com/conorfennell/gitdeck/internal/wal"
)

func main() {
	flags := pflag.NewFlagSet("gitdeck", pflag.ExitOnError)
	configPath := flags.String("config", "gitdeck.yaml", "Path to the configuration file")
	flags.String("repo_url", "", "URL of the deck repository")
	flags.String("branch", "", "Primary branch of the deck repository")
	flags.String("token", "", "Access token for the deck repository")
	_ = flags.Parse(os.Args[1:])

	if err := run(*configPath, flags); err != nil {
		slog.Error("gitdeck failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, flags *pflag.FlagSet) error {
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return err
	}

	ctx := context.Background()

	w, err := wal.Open(cfg.WALPath)
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}
	defer w.Close()

	client, err := gitrepo.Open(ctx, gitrepo.Options{
		URL:    cfg.RepoURL,
		Path:   cfg.ClonePath,
		Branch: cfg.Branch,
		Token:  cfg.Token,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	st := store.New()
	decks := repo.NewDeckSync(client, nil, slog.Default())
	session := review.NewSession(st, scheduler.New(fsrs.DefaultParams().Next), decks, w, nil, slog.Default())
	coord := synceng.NewCoordinator(session, nil, synceng.Options{
		Debounce: cfg.Debounce,
		MaxBatch: cfg.MaxBatch,
	}, slog.Default())
	session.AttachNotifier(coord)

	// Pull first so WAL replay lands on current cards, then push anything
	// a previous run left behind.
	if err := coord.RunSync(ctx); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	if err := session.Recover(ctx); err != nil {
		return fmt.Errorf("wal recovery: %w", err)
	}
	if err := coord.FlushSync(ctx); err != nil {
		return fmt.Errorf("flush recovered reviews: %w", err)
	}

	endOfDay := endOfToday(time.Now())
	for _, deckName := range st.Decks() {
		q := session.Queue(deckName, cfg.NewCardsPerDay, endOfDay, nil)
		fmt.Printf("%s: %d due, %d new\n", deckName, len(q.DueItems), len(q.NewItems))
		if item, ok := q.Current(); ok {
			fmt.Printf("  next: %s\n", item.Front)
		}
	}

	commits, err := decks.History(ctx, 5)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	for _, c := range commits {
		fmt.Printf("%s %s %s\n", c.Date.Format(time.DateOnly), c.ID[:7], c.Message)
	}
	return nil
}

func endOfToday(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 23, 59, 59, 999_000_000, now.Location())
}
