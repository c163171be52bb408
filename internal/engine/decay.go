package engine

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/factstore"
	"github.com/lazypower/paramem/internal/logger"
	"github.com/lazypower/paramem/internal/store"
	"github.com/lazypower/paramem/internal/summary"
)

// Mode selects how much a decay cycle does.
type Mode string

const (
	// ModeFull refreshes every summary and reports superseded-chain
	// diagnostics.
	ModeFull Mode = "full"
	// ModeQuick only refreshes summaries.
	ModeQuick Mode = "quick"
)

// ParseMode accepts "full", "quick", or empty (full).
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFull:
		return ModeFull, nil
	case ModeQuick:
		return ModeQuick, nil
	}
	return "", errors.Newf("unknown decay mode %q", s)
}

// Failure records one entity that could not be processed.
type Failure struct {
	Entity string `json:"entity"`
	Error  string `json:"error"`
}

// Flag marks an entity whose superseded facts outnumber twice its active
// facts. Nothing is changed; it is a report.
type Flag struct {
	Entity     string `json:"entity"`
	Active     int    `json:"active"`
	Superseded int    `json:"superseded"`
}

// CycleStats summarizes a decay cycle.
type CycleStats struct {
	Mode              Mode          `json:"mode"`
	EntitiesProcessed int           `json:"entitiesProcessed"`
	FactsSummarized   int           `json:"factsSummarized"`
	Failures          []Failure     `json:"failures"`
	Flagged           []Flag        `json:"flagged,omitempty"`
	Duration          time.Duration `json:"-"` // wall time, logged; not part of the result
}

// RunDecayCycle regenerates the summary of every entity. A malformed
// document fails only its own entity. The returned error is reserved for
// failures that stop the whole cycle, such as enumeration.
func (e *Engine) RunDecayCycle(ctx context.Context, mode Mode) (*CycleStats, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	start := time.Now()
	refs, err := e.backend.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "enumerate entities")
	}
	logger.Infow("decay: cycle starting", "mode", mode, "entities", len(refs),
		"hot_days", e.tiers.HotDays, "warm_days", e.tiers.WarmDays, "high_freq", e.tiers.HighFreqThreshold)

	stats := &CycleStats{Mode: mode, Failures: []Failure{}}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		snap, res, err := e.refresh(ctx, ref)
		if err != nil {
			logger.Warnw("decay: entity failed", "entity", ref.String(), "error", err)
			stats.Failures = append(stats.Failures, Failure{Entity: ref.String(), Error: err.Error()})
			continue
		}
		stats.EntitiesProcessed++
		stats.FactsSummarized += res.Summarized()
		logger.Debugw("decay: entity processed", "entity", ref.String(),
			"hot", res.Hot, "warm", res.Warm, "cold", res.Cold)

		if mode == ModeFull {
			if f, ok := flag(snap); ok {
				logger.Infow("decay: superseded chain is long", "entity", f.Entity,
					"superseded", f.Superseded, "active", f.Active)
				stats.Flagged = append(stats.Flagged, f)
			}
		}
	}

	e.notifyIndexer(ctx)

	stats.Duration = time.Since(start)
	logger.Infow("decay: cycle complete", "mode", mode,
		"entities", stats.EntitiesProcessed, "summarized", stats.FactsSummarized,
		"failures", len(stats.Failures), "flagged", len(stats.Flagged), "elapsed", stats.Duration)
	return stats, nil
}

// RefreshEntity reloads one entity and rewrites its summary.
func (e *Engine) RefreshEntity(ctx context.Context, ref facts.EntityRef) (summary.Result, error) {
	_, res, err := e.refresh(ctx, ref)
	return res, err
}

func (e *Engine) refresh(ctx context.Context, ref facts.EntityRef) (*factstore.Snapshot, summary.Result, error) {
	snap, err := e.Facts.LoadActiveFacts(ctx, ref)
	if err != nil {
		return nil, summary.Result{}, err
	}
	res := summary.Render(summary.MetadataFor(ref, snap.Document), snap.Active, snap.Related, e.clock.Now(), e.tiers)
	if err := e.backend.Put(ctx, store.SummaryKey(ref), []byte(res.Text)); err != nil {
		return nil, summary.Result{}, errors.Wrapf(err, "write summary for %s", ref)
	}
	return snap, res, nil
}

func flag(snap *factstore.Snapshot) (Flag, bool) {
	if snap.Document == nil {
		return Flag{}, false
	}
	active, superseded := snap.Document.Counts()
	if superseded <= 2*active {
		return Flag{}, false
	}
	return Flag{Entity: snap.Ref.String(), Active: active, Superseded: superseded}, true
}
