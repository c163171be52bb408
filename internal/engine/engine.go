// Package engine orchestrates decay cycles and conversation checkpoints
// over the fact repository.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/lazypower/paramem/internal/clock"
	"github.com/lazypower/paramem/internal/extract"
	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/factstore"
	"github.com/lazypower/paramem/internal/ledger"
	"github.com/lazypower/paramem/internal/logger"
	"github.com/lazypower/paramem/internal/store"
	"github.com/lazypower/paramem/internal/tier"
)

// Indexer is told after each cycle or checkpoint that memory files changed.
type Indexer interface {
	Update(ctx context.Context) error
}

// Options wires an Engine. Extractor may be nil, in which case checkpoints
// are skipped.
type Options struct {
	Backend   store.Backend
	Clock     clock.Clock
	Tiers     tier.Config
	Indexer   Indexer
	Extractor extract.Extractor

	Workspace   string
	MemoryDir   string
	MaxMessages int
	MaxChars    int
}

// Engine runs decay cycles, entity refreshes, and checkpoints.
type Engine struct {
	Facts  *factstore.Repository
	Ledger *ledger.Ledger

	backend   store.Backend
	clock     clock.Clock
	tiers     tier.Config
	indexer   Indexer
	extractor extract.Extractor
	opts      Options

	// serializes whole cycles and checkpoints inside this process
	runMu    sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Indexer == nil {
		opts.Indexer = nopIndexer{}
	}
	l := ledger.New(opts.Backend)
	return &Engine{
		Facts:     factstore.New(opts.Backend, l, opts.Clock, opts.Tiers),
		Ledger:    l,
		backend:   opts.Backend,
		clock:     opts.Clock,
		tiers:     opts.Tiers,
		indexer:   opts.Indexer,
		extractor: opts.Extractor,
		opts:      opts,
		stopCh:    make(chan struct{}),
	}
}

// Entities lists every entity in the store.
func (e *Engine) Entities(ctx context.Context) ([]facts.EntityRef, error) {
	return e.backend.List(ctx)
}

// Summary returns the rendered summary of ref.
func (e *Engine) Summary(ctx context.Context, ref facts.EntityRef) (string, error) {
	data, err := e.backend.Get(ctx, store.SummaryKey(ref))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Tiers returns the tier configuration summaries are rendered with.
func (e *Engine) Tiers() tier.Config { return e.tiers }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// CheckpointsEnabled reports whether an extractor is configured.
func (e *Engine) CheckpointsEnabled() bool { return e.extractor != nil }

// Schedule configures the background loops started by StartSchedules.
// A zero interval disables that loop.
type Schedule struct {
	Decay      time.Duration
	Checkpoint time.Duration
}

// StartSchedules runs a full decay cycle on startup, then repeats it every
// s.Decay. Checkpoints run every s.Checkpoint when an extractor is set.
func (e *Engine) StartSchedules(ctx context.Context, s Schedule) {
	if s.Decay > 0 {
		e.runDecay(ctx)
		e.loop(s.Decay, func() { e.runDecay(ctx) })
	}
	if s.Checkpoint > 0 && e.CheckpointsEnabled() {
		e.loop(s.Checkpoint, func() {
			if _, err := e.Checkpoint(ctx, "scheduled"); err != nil {
				logger.Errorw("checkpoint: scheduled run failed", "error", err)
			}
		})
	}
}

func (e *Engine) runDecay(ctx context.Context) {
	stats, err := e.RunDecayCycle(ctx, ModeFull)
	if err != nil {
		logger.Errorw("decay: cycle failed", "error", err)
		return
	}
	if len(stats.Failures) > 0 {
		logger.Warnw("decay: cycle finished with failures", "failures", len(stats.Failures))
	}
}

func (e *Engine) loop(every time.Duration, fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines and waits for a
// running iteration to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

func (e *Engine) notifyIndexer(ctx context.Context) {
	if err := e.indexer.Update(ctx); err != nil {
		logger.Warnw("indexer: update failed", "error", err)
	}
}

type nopIndexer struct{}

func (nopIndexer) Update(context.Context) error { return nil }
