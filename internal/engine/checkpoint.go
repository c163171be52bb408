package engine

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/lazypower/paramem/internal/extract"
	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/factstore"
	"github.com/lazypower/paramem/internal/llm"
	"github.com/lazypower/paramem/internal/logger"
	"github.com/lazypower/paramem/internal/notes"
	"github.com/lazypower/paramem/internal/transcript"
)

// SourceConversation is the provenance type of facts written by checkpoints.
const SourceConversation = "conversation"

// CheckpointStatus is the outcome of a checkpoint.
type CheckpointStatus string

const (
	StatusSkipped CheckpointStatus = "skipped"
	StatusSuccess CheckpointStatus = "success"
	StatusError   CheckpointStatus = "error"
)

// CheckpointStats counts what a checkpoint wrote.
type CheckpointStats struct {
	EntitiesCreated int  `json:"entities_created"`
	FactsAdded      int  `json:"facts_added"`
	FactsSuperseded int  `json:"facts_superseded"`
	DailyNotes      bool `json:"daily_notes"`
}

// CheckpointResult reports one checkpoint.
type CheckpointResult struct {
	ID         string            `json:"checkpointId"`
	Reason     string            `json:"reason"`
	Status     CheckpointStatus  `json:"status"`
	SkipReason string            `json:"skipReason,omitempty"`
	Error      string            `json:"error,omitempty"`
	Source     transcript.Source `json:"source,omitempty"`
	Stats      CheckpointStats   `json:"stats"`
	Decisions  []string          `json:"decisions,omitempty"`
	Refreshed  []string          `json:"refreshed,omitempty"`
	Failures   []Failure         `json:"failures,omitempty"`
}

// Checkpoint distills recent conversation into entity facts. Context is
// read from the workspace session file, the main session, or today's daily
// note, in that order.
func (e *Engine) Checkpoint(ctx context.Context, reason string) (*CheckpointResult, error) {
	msgs, src, err := transcript.LoadRecent(e.opts.Workspace, e.opts.MemoryDir, e.clock.Now())
	if err != nil {
		return nil, errors.Wrap(err, "load recent context")
	}
	return e.CheckpointMessages(ctx, reason, msgs, src)
}

// CheckpointMessages runs a checkpoint over msgs.
//
// Extraction failures (timeouts, unparseable output) are reported as
// StatusError with nothing written. A returned error means the store
// failed part way through applying the plan.
func (e *Engine) CheckpointMessages(ctx context.Context, reason string, msgs []transcript.Message, src transcript.Source) (*CheckpointResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	res := &CheckpointResult{ID: uuid.NewString(), Reason: reason, Source: src}
	log := logger.Logger.With("checkpoint", res.ID, "reason", reason)

	if e.extractor == nil {
		res.Status, res.SkipReason = StatusSkipped, "no llm configured"
		return res, nil
	}
	if len(msgs) == 0 {
		log.Infow("checkpoint: no recent context, skipping")
		res.Status, res.SkipReason = StatusSkipped, "no context"
		return res, nil
	}

	in, err := e.checkpointInput(ctx, msgs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	plan, err := e.extractor.Extract(ctx, in)
	if err != nil {
		if errors.Is(err, llm.ErrDisabled) {
			res.Status, res.SkipReason = StatusSkipped, "no llm configured"
			return res, nil
		}
		log.Warnw("checkpoint: extraction failed", "error", err, "elapsed", time.Since(start))
		res.Status, res.Error = StatusError, err.Error()
		return res, nil
	}
	log.Infow("checkpoint: analysis complete", "elapsed", time.Since(start),
		"entity_facts", len(plan.EntityFacts), "new_entities", len(plan.NewEntities))

	res.Decisions = plan.Decisions
	if plan.Empty() {
		res.Status, res.SkipReason = StatusSkipped, plan.SkipReason
		if res.SkipReason == "" {
			res.SkipReason = "nothing to record"
		}
		return res, nil
	}

	if err := e.apply(ctx, plan, res); err != nil {
		res.Status, res.Error = StatusError, err.Error()
		return res, err
	}

	e.notifyIndexer(ctx)
	res.Status = StatusSuccess
	log.Infow("checkpoint: complete",
		"entities_created", res.Stats.EntitiesCreated,
		"facts_added", res.Stats.FactsAdded,
		"facts_superseded", res.Stats.FactsSuperseded,
		"daily_notes", res.Stats.DailyNotes)
	return res, nil
}

func (e *Engine) checkpointInput(ctx context.Context, msgs []transcript.Message) (llm.CheckpointInput, error) {
	in := llm.CheckpointInput{
		Messages:    transcript.Condense(msgs, e.opts.MaxMessages, e.opts.MaxChars),
		Entities:    map[string][]string{},
		EntityPaths: map[string]string{},
	}
	if e.opts.Workspace != "" {
		if data, err := os.ReadFile(filepath.Join(e.opts.Workspace, "MEMORY.md")); err == nil {
			in.CurrentMemory = string(data)
		}
	}

	refs, err := e.backend.List(ctx)
	if err != nil {
		return in, errors.Wrap(err, "enumerate entities")
	}
	for _, ref := range refs {
		coll := path.Base(ref.Type.Dir())
		in.Entities[coll] = append(in.Entities[coll], ref.Slug)
		in.EntityPaths[ref.Slug] = ref.Path()
	}
	return in, nil
}

// apply writes the plan: new entities, facts with their cross-references,
// refreshed summaries for everything touched, then the daily note.
func (e *Engine) apply(ctx context.Context, plan *extract.Plan, res *CheckpointResult) error {
	now := e.clock.Now()
	source := &facts.Source{
		Type:         SourceConversation,
		Timestamp:    now.Format(time.RFC3339),
		CheckpointID: res.ID,
	}

	var touched []facts.EntityRef
	seen := make(map[facts.EntityRef]bool)
	touch := func(ref facts.EntityRef) {
		if !seen[ref] {
			seen[ref] = true
			touched = append(touched, ref)
		}
	}

	for _, ne := range plan.NewEntities {
		created, err := e.Facts.CreateEntity(ctx, ne.Entity, ne.Reason)
		if err != nil {
			return err
		}
		if created {
			res.Stats.EntitiesCreated++
		}
	}

	for _, ef := range plan.EntityFacts {
		out, err := e.Facts.AppendFact(ctx, factstore.NewFact{
			Entity:     ef.Entity,
			Content:    ef.Content,
			Category:   ef.Category,
			Related:    ef.Related,
			Source:     source,
			Supersedes: ef.SupersedesID,
		})
		if err != nil {
			if errors.Is(err, facts.ErrMalformedDocument) {
				res.Failures = append(res.Failures, Failure{Entity: ef.Entity.String(), Error: err.Error()})
				continue
			}
			return err
		}
		touch(ef.Entity)
		if !out.Duplicate {
			res.Stats.FactsAdded++
			if out.Superseded != "" {
				res.Stats.FactsSuperseded++
			}
		}

		_, targets, err := e.propagate(ctx, ef.Entity, ef.Related)
		if err != nil {
			res.Failures = append(res.Failures, Failure{Entity: ef.Entity.String(), Error: err.Error()})
		}
		for _, ref := range targets {
			touch(ref)
		}
	}

	for _, ref := range touched {
		if _, err := e.RefreshEntity(ctx, ref); err != nil {
			res.Failures = append(res.Failures, Failure{Entity: ref.String(), Error: err.Error()})
			continue
		}
		res.Refreshed = append(res.Refreshed, ref.String())
	}

	if plan.DailyNote != "" && e.opts.MemoryDir != "" {
		if _, err := notes.Append(e.opts.MemoryDir, plan.DailyNote, now); err != nil {
			return err
		}
		res.Stats.DailyNotes = true
	}
	return nil
}
