// Package sync tracks locally changed cards and decides when to talk to the
// repository: changes are debounced and batched, full reconciliation runs
// flush-then-pull, and at most one sync is in flight at any time.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"
)

// Syncer is the downstream reconciler: Flush pushes the given dirty card ids,
// Pull replaces local state from the remote wholesale.
type Syncer interface {
	Flush(ctx context.Context, ids []string) error
	Pull(ctx context.Context) error
}

// Options tune the coordinator. Zero values fall back to defaults.
type Options struct {
	Debounce time.Duration // window after the last change before a flush
	MaxBatch int           // dirty-set size that triggers an immediate flush
}

const (
	defaultDebounce = 5 * time.Second
	defaultMaxBatch = 10
)

// Coordinator owns the dirty set and debounce timer. It is the only mutable
// shared state of the engine and serializes all syncing behind a
// single-flight guard.
type Coordinator struct {
	syncer   Syncer
	clock    Clock
	debounce time.Duration
	maxBatch int
	log      *slog.Logger

	mu       gosync.Mutex
	dirty    map[string]struct{}
	timer    Timer
	inflight *flight
	pending  bool // a flush arrived while a sync was in flight
}

type flight struct {
	done chan struct{}
	err  error
	full bool // a flush-then-pull run, not a flush-only flight
}

// NewCoordinator wires a coordinator with an injected clock. Pass nil for
// the wall clock or default logger.
func NewCoordinator(syncer Syncer, clock Clock, opts Options, log *slog.Logger) *Coordinator {
	if clock == nil {
		clock = RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = defaultMaxBatch
	}
	return &Coordinator{
		syncer:   syncer,
		clock:    clock,
		debounce: opts.Debounce,
		maxBatch: opts.MaxBatch,
		log:      log,
		dirty:    make(map[string]struct{}),
	}
}

// NotifyChange marks a card dirty. Reaching the batch limit flushes
// immediately; otherwise the debounce timer restarts, so a burst of edits
// produces one flush after the last edit's window elapses.
func (c *Coordinator) NotifyChange(cardID string) {
	c.mu.Lock()
	c.dirty[cardID] = struct{}{}

	if len(c.dirty) >= c.maxBatch {
		c.stopTimerLocked()
		c.mu.Unlock()
		go func() {
			if err := c.FlushSync(context.Background()); err != nil {
				c.log.Error("batch flush failed", "error", err)
			}
		}()
		return
	}

	c.stopTimerLocked()
	c.timer = c.clock.AfterFunc(c.debounce, c.onDebounce)
	c.mu.Unlock()
}

func (c *Coordinator) onDebounce() {
	c.mu.Lock()
	c.timer = nil
	c.mu.Unlock()
	if err := c.FlushSync(context.Background()); err != nil {
		c.log.Error("debounced flush failed", "error", err)
	}
}

// FlushSync pushes the dirty set now. It is a no-op when nothing is dirty;
// when a sync is already in flight the flush is deferred and retried exactly
// once after that sync completes.
func (c *Coordinator) FlushSync(ctx context.Context) error {
	c.mu.Lock()
	if len(c.dirty) == 0 {
		c.mu.Unlock()
		return nil
	}
	if c.inflight != nil {
		c.pending = true
		c.mu.Unlock()
		return nil
	}
	f := &flight{done: make(chan struct{})}
	c.inflight = f
	c.stopTimerLocked()
	ids := c.drainLocked()
	c.mu.Unlock()

	err := c.syncer.Flush(ctx, ids)
	if err != nil {
		c.requeue(ids)
		err = fmt.Errorf("flush: %w", err)
	}
	f.err = err
	c.finish(ctx, f)
	return err
}

// RunSync is the authoritative full reconciliation: flush pending local
// changes first so they are not lost to the pull, then pull-and-replace the
// whole remote card set. Concurrent callers await the same in-flight full
// run; joining a flush-only flight does not count, the caller still owes a
// pull and runs its own once the flight lands.
func (c *Coordinator) RunSync(ctx context.Context) error {
	for {
		c.mu.Lock()
		f := c.inflight
		if f == nil {
			break
		}
		c.mu.Unlock()
		select {
		case <-f.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if f.full {
			return f.err
		}
	}
	f := &flight{done: make(chan struct{}), full: true}
	c.inflight = f
	c.stopTimerLocked()
	ids := c.drainLocked()
	c.mu.Unlock()

	f.err = c.runOnce(ctx, ids)
	c.finish(ctx, f)
	return f.err
}

func (c *Coordinator) runOnce(ctx context.Context, ids []string) error {
	if len(ids) > 0 {
		if err := c.syncer.Flush(ctx, ids); err != nil {
			c.requeue(ids)
			return fmt.Errorf("flush before pull: %w", err)
		}
	}
	if err := c.syncer.Pull(ctx); err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	return nil
}

// finish releases the single-flight guard and honors a flush request that
// arrived mid-sync: it is retried once, not looped. The retry takes over the
// guard before the finished flight is released, so nothing else syncs
// concurrently with it.
func (c *Coordinator) finish(ctx context.Context, f *flight) {
	c.mu.Lock()
	var ids []string
	if c.pending {
		c.pending = false
		ids = c.drainLocked()
	}
	var retry *flight
	if len(ids) > 0 {
		retry = &flight{done: make(chan struct{})}
		c.inflight = retry
	} else {
		c.inflight = nil
	}
	c.mu.Unlock()
	close(f.done)

	if retry == nil {
		return
	}
	retry.err = c.syncer.Flush(ctx, ids)
	if retry.err != nil {
		c.requeue(ids)
		c.log.Error("deferred flush failed", "error", retry.err)
	}
	c.mu.Lock()
	c.inflight = nil
	c.pending = false
	c.mu.Unlock()
	close(retry.done)
}

// CancelSync drops the debounce timer and dirty set without flushing. Used
// on logout so no further writes reach a stale repository. Safe to call at
// any time, including mid-debounce.
func (c *Coordinator) CancelSync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.dirty = make(map[string]struct{})
	c.pending = false
}

// Dirty returns a snapshot of the pending card ids, for status surfaces.
func (c *Coordinator) Dirty() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.dirty))
	for id := range c.dirty {
		ids = append(ids, id)
	}
	return ids
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) drainLocked() []string {
	ids := make([]string, 0, len(c.dirty))
	for id := range c.dirty {
		ids = append(ids, id)
	}
	c.dirty = make(map[string]struct{})
	return ids
}

// requeue restores ids after a failed flush so the next trigger retries them.
func (c *Coordinator) requeue(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.dirty[id] = struct{}{}
	}
}
