// Package ledger keeps the shared access-statistics document used to hydrate
// facts that predate embedded access tracking.
package ledger

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/clock"
	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/store"
	"github.com/lazypower/paramem/internal/tier"
)

// Ledger reads and writes the access ledger through a store backend.
// Every mutation is a single scoped read-modify-write of the ledger document.
type Ledger struct {
	backend store.Backend
}

// New returns a ledger over backend.
func New(backend store.Backend) *Ledger {
	return &Ledger{backend: backend}
}

// RecordAccess bumps one entry, creating it if absent.
func (l *Ledger) RecordAccess(ctx context.Context, entity, factID string, now time.Time) error {
	return l.BumpMany(ctx, entity, []string{factID}, now)
}

// BumpMany bumps every listed fact id in one write.
func (l *Ledger) BumpMany(ctx context.Context, entity string, factIDs []string, now time.Time) error {
	if len(factIDs) == 0 {
		return nil
	}
	today := clock.Date(now)
	err := l.backend.Update(ctx, store.LedgerKey, func(cur []byte, exists bool) ([]byte, error) {
		entries, err := facts.DecodeLedger(cur)
		if err != nil {
			return nil, err
		}
		for _, id := range factIDs {
			key := facts.LedgerKey(entity, id)
			e, ok := entries[key]
			if !ok {
				e = facts.LedgerEntry{LastAccessed: today}
			}
			e.AccessCount++
			e.LastAccessed = laterDate(e.LastAccessed, today, now.Location())
			entries[key] = e
		}
		return facts.EncodeLedger(entries)
	})
	if err != nil {
		return errors.Wrapf(err, "bump ledger for %s", entity)
	}
	return nil
}

// Hydrate returns the entry for entity:factID. ok is false when absent,
// including when no ledger document exists yet.
func (l *Ledger) Hydrate(ctx context.Context, entity, factID string) (facts.LedgerEntry, bool, error) {
	entries, err := l.Snapshot(ctx)
	if err != nil {
		return facts.LedgerEntry{}, false, err
	}
	e, ok := entries[facts.LedgerKey(entity, factID)]
	return e, ok, nil
}

// Snapshot reads the whole ledger once, for callers hydrating many facts.
func (l *Ledger) Snapshot(ctx context.Context) (map[string]facts.LedgerEntry, error) {
	data, err := l.backend.Get(ctx, store.LedgerKey)
	if errors.Is(err, facts.ErrNotFound) {
		return map[string]facts.LedgerEntry{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read ledger")
	}
	return facts.DecodeLedger(data)
}

// laterDate keeps lastAccessed monotonic: an unparsable existing value is
// replaced, an existing value later than candidate is kept.
func laterDate(existing, candidate string, loc *time.Location) string {
	a, ok := tier.ParseDate(existing, loc)
	if !ok {
		return candidate
	}
	b, _ := tier.ParseDate(candidate, loc)
	if a.After(b) {
		return existing
	}
	return candidate
}
