package engine

import (
	"context"
	"slices"

	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/factstore"
	"github.com/lazypower/paramem/internal/logger"
)

// FactResult reports AddFact.
type FactResult struct {
	*factstore.AppendResult
	Propagated int      `json:"propagated"`
	Refreshed  []string `json:"refreshed"`
}

// AddFact appends one fact, propagates its cross-references, and refreshes
// the summaries of every entity it touched.
func (e *Engine) AddFact(ctx context.Context, nf factstore.NewFact) (*FactResult, error) {
	out, err := e.Facts.AppendFact(ctx, nf)
	if err != nil {
		return nil, err
	}
	res := &FactResult{AppendResult: out, Refreshed: []string{}}

	touched := []facts.EntityRef{nf.Entity}
	n, targets, err := e.propagate(ctx, nf.Entity, nf.Related)
	if err != nil {
		return nil, err
	}
	res.Propagated = n
	for _, ref := range targets {
		if !slices.Contains(touched, ref) {
			touched = append(touched, ref)
		}
	}

	for _, ref := range touched {
		if _, err := e.RefreshEntity(ctx, ref); err != nil {
			return nil, err
		}
		res.Refreshed = append(res.Refreshed, ref.String())
	}
	return res, nil
}

// TouchFacts records access to ids (nil for every fact) and refreshes the
// entity's summary so tiers reflect the access.
func (e *Engine) TouchFacts(ctx context.Context, ref facts.EntityRef, ids []string) (int, error) {
	n, err := e.Facts.BumpAccess(ctx, ref, ids)
	if err != nil || n == 0 {
		return n, err
	}
	if _, err := e.RefreshEntity(ctx, ref); err != nil {
		return n, err
	}
	return n, nil
}

// propagate adds source's back-reference to each target and returns the
// total links added and the targets that changed.
func (e *Engine) propagate(ctx context.Context, source facts.EntityRef, targets []string) (int, []facts.EntityRef, error) {
	total := 0
	var changed []facts.EntityRef
	for _, target := range targets {
		n, err := e.Facts.Propagate(ctx, source, []string{target})
		if err != nil {
			return total, changed, err
		}
		if n == 0 {
			continue
		}
		total += n
		if ref, err := facts.ParsePath(target); err == nil {
			changed = append(changed, ref)
		}
	}
	if total > 0 {
		logger.Debugw("engine: cross-references added", "source", source.String(), "links", total)
	}
	return total, changed, nil
}
