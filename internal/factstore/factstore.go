// Package factstore owns entity fact documents: creation, appends with
// supersession, access bumps, hydrated reads, and cross-reference
// propagation. Every mutation is one scoped read-modify-write through the
// store backend.
package factstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/clock"
	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/ledger"
	"github.com/lazypower/paramem/internal/logger"
	"github.com/lazypower/paramem/internal/store"
	"github.com/lazypower/paramem/internal/summary"
	"github.com/lazypower/paramem/internal/tier"
)

// AutoCreateReason is recorded on documents created implicitly by an append.
const AutoCreateReason = "Auto-created for fact storage"

// fallbackAccessDate stands in for lastAccessed on legacy facts with no
// ledger entry and no created date.
const fallbackAccessDate = "2026-01-01"

// SourceCheckpoint is the provenance type used when a caller supplies none.
const SourceCheckpoint = "checkpoint"

// Repository reads and mutates fact documents.
type Repository struct {
	backend store.Backend
	ledger  *ledger.Ledger
	clock   clock.Clock
	tiers   tier.Config
}

// New returns a repository. tiers is only used to render the initial
// summary of newly created entities.
func New(backend store.Backend, l *ledger.Ledger, clk clock.Clock, tiers tier.Config) *Repository {
	return &Repository{backend: backend, ledger: l, clock: clk, tiers: tiers}
}

// CreateEntity writes an empty document for ref unless one exists.
// Returns true when the document was created.
func (r *Repository) CreateEntity(ctx context.Context, ref facts.EntityRef, reason string) (bool, error) {
	if err := checkRef(ref); err != nil {
		return false, err
	}
	now := r.clock.Now()

	var doc *facts.Document
	err := r.backend.Update(ctx, store.FactsKey(ref), func(cur []byte, exists bool) ([]byte, error) {
		if exists {
			return nil, nil
		}
		doc = facts.NewDocument(ref, clock.Date(now), reason)
		return facts.EncodeDocument(doc)
	})
	if err != nil {
		return false, errors.Wrapf(err, "create entity %s", ref)
	}
	if doc == nil {
		return false, nil
	}

	logger.Infow("factstore: entity created", "entity", ref.String(), "reason", reason)
	res := summary.Render(summary.MetadataFor(ref, doc), nil, nil, now, r.tiers)
	if err := r.backend.Put(ctx, store.SummaryKey(ref), []byte(res.Text)); err != nil {
		return true, errors.Wrapf(err, "write initial summary for %s", ref)
	}
	return true, nil
}

// NewFact is the input to AppendFact.
type NewFact struct {
	Entity     facts.EntityRef
	Content    string
	Category   facts.Category
	Related    []string
	Source     *facts.Source
	Supersedes string
}

// AppendResult reports the outcome of an append. Duplicate results carry no
// fact and left storage untouched.
type AppendResult struct {
	Fact       *facts.Fact `json:"fact,omitempty"`
	Duplicate  bool        `json:"duplicate"`
	Created    bool        `json:"created"`              // the document was auto-created
	Superseded string      `json:"superseded,omitempty"` // id of the fact this one replaced, if any
}

// AppendFact inserts a new active fact, auto-creating the document. The
// insertion and any supersession are committed in the same write.
func (r *Repository) AppendFact(ctx context.Context, nf NewFact) (*AppendResult, error) {
	if err := checkRef(nf.Entity); err != nil {
		return nil, err
	}
	if nf.Content == "" {
		return nil, errors.New("append fact: empty content")
	}
	cat := nf.Category
	if cat == "" {
		cat = facts.CategoryContext
	}
	if !cat.Valid() {
		return nil, errors.Newf("append fact: unknown category %q", cat)
	}

	now := r.clock.Now()
	today := clock.Date(now)
	res := &AppendResult{}

	err := r.backend.Update(ctx, store.FactsKey(nf.Entity), func(cur []byte, exists bool) ([]byte, error) {
		*res = AppendResult{}
		var doc *facts.Document
		if exists {
			var err error
			if doc, err = facts.DecodeDocument(cur); err != nil {
				return nil, err
			}
		} else {
			doc = facts.NewDocument(nf.Entity, today, AutoCreateReason)
			res.Created = true
		}

		if doc.HasContent(nf.Content) {
			res.Duplicate = true
			return nil, nil
		}

		src := nf.Source
		if src == nil {
			src = &facts.Source{Type: SourceCheckpoint, Timestamp: now.Format(time.RFC3339)}
		}
		related := append([]string{}, nf.Related...)

		f := facts.Fact{
			ID:              nextID(doc),
			Content:         nf.Content,
			Category:        cat,
			Status:          facts.StatusActive,
			Created:         today,
			LastAccessed:    today,
			AccessCount:     1,
			RelatedEntities: related,
			Source:          src,
		}

		if nf.Supersedes != "" {
			if old := doc.Find(nf.Supersedes); old != nil && old.Active() {
				old.Status = facts.StatusSuperseded
				id := f.ID
				old.SupersededBy = &id
				res.Superseded = old.ID
			} else {
				logger.Debugw("factstore: supersede target not active", "entity", nf.Entity.String(), "id", nf.Supersedes)
			}
		}

		doc.Facts = append(doc.Facts, f)
		doc.LastUpdated = today
		res.Fact = &f
		return facts.EncodeDocument(doc)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "append fact to %s", nf.Entity)
	}
	return res, nil
}

// nextID allocates "<prefix>-NNN" from the fact count, skipping ids already
// taken by hand-edited documents.
func nextID(doc *facts.Document) string {
	prefix := facts.IDPrefix(doc.Entity)
	for n := len(doc.Facts) + 1; ; n++ {
		id := fmt.Sprintf("%s-%03d", prefix, n)
		if doc.Find(id) == nil {
			return id
		}
	}
}

// BumpAccess advances accessCount and lastAccessed for the listed facts, or
// for every fact when ids is nil, then mirrors the bump into the ledger.
// Returns the number of facts bumped; a missing document bumps nothing.
func (r *Repository) BumpAccess(ctx context.Context, ref facts.EntityRef, ids []string) (int, error) {
	now := r.clock.Now()
	today := clock.Date(now)

	var want map[string]bool
	if ids != nil {
		want = make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
	}

	if ok, err := r.exists(ctx, ref); err != nil || !ok {
		return 0, err
	}

	var bumped []string
	err := r.backend.Update(ctx, store.FactsKey(ref), func(cur []byte, exists bool) ([]byte, error) {
		bumped = bumped[:0]
		if !exists {
			return nil, nil
		}
		doc, err := facts.DecodeDocument(cur)
		if err != nil {
			return nil, err
		}
		for i := range doc.Facts {
			f := &doc.Facts[i]
			if want != nil && !want[f.ID] {
				continue
			}
			f.AccessCount++
			f.LastAccessed = today
			bumped = append(bumped, f.ID)
		}
		if len(bumped) == 0 {
			return nil, nil
		}
		return facts.EncodeDocument(doc)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "bump access on %s", ref)
	}
	if len(bumped) == 0 {
		return 0, nil
	}

	// The document lock is released before the ledger lock is taken.
	if err := r.ledger.BumpMany(ctx, ref.Slug, bumped, now); err != nil {
		return len(bumped), err
	}
	return len(bumped), nil
}

// Snapshot is a hydrated read of one entity.
type Snapshot struct {
	Ref      facts.EntityRef
	Document *facts.Document // nil when the entity has no fact document
	Active   []facts.Fact
	Related  []string
	Hydrated int
}

// Superseded returns the number of superseded facts in the document.
func (s *Snapshot) Superseded() int {
	if s.Document == nil {
		return 0
	}
	_, sup := s.Document.Counts()
	return sup
}

// LoadActiveFacts returns the active facts of ref and the sorted union of
// their related entities. Facts without embedded access statistics are
// hydrated from the ledger, or from the document's created date with a zero
// count, and the hydration is written back so the fallback runs once.
func (r *Repository) LoadActiveFacts(ctx context.Context, ref facts.EntityRef) (*Snapshot, error) {
	key := store.FactsKey(ref)
	data, err := r.backend.Get(ctx, key)
	if errors.Is(err, facts.ErrNotFound) {
		return &Snapshot{Ref: ref, Active: []facts.Fact{}, Related: []string{}}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", ref)
	}
	doc, err := facts.DecodeDocument(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", ref)
	}

	hydrated := 0
	if needsHydration(doc) {
		entries, err := r.ledger.Snapshot(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "hydrate %s", ref)
		}
		err = r.backend.Update(ctx, key, func(cur []byte, exists bool) ([]byte, error) {
			hydrated = 0
			if !exists {
				return nil, nil
			}
			fresh, err := facts.DecodeDocument(cur)
			if err != nil {
				return nil, err
			}
			doc = fresh
			hydrated = hydrate(doc, ref.Slug, entries)
			if hydrated == 0 {
				return nil, nil
			}
			return facts.EncodeDocument(doc)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "hydrate %s", ref)
		}
		if hydrated > 0 {
			logger.Debugw("factstore: hydrated access stats", "entity", ref.String(), "facts", hydrated)
		}
	}

	snap := &Snapshot{Ref: ref, Document: doc, Active: []facts.Fact{}, Hydrated: hydrated}
	related := make(map[string]bool)
	for _, f := range doc.Facts {
		if !f.Active() {
			continue
		}
		snap.Active = append(snap.Active, f)
		for _, rel := range f.RelatedEntities {
			related[rel] = true
		}
	}
	snap.Related = make([]string, 0, len(related))
	for rel := range related {
		snap.Related = append(snap.Related, rel)
	}
	sort.Strings(snap.Related)
	return snap, nil
}

func needsHydration(doc *facts.Document) bool {
	for i := range doc.Facts {
		if !doc.Facts[i].HasAccessStats() {
			return true
		}
	}
	return false
}

// hydrate fills access statistics on facts lacking them and returns how
// many were filled. A ledger entry supplies the count, and its date when it
// has one; otherwise the document's created date, the fact's created date,
// or fallbackAccessDate is used, so every fact is hydrated exactly once.
func hydrate(doc *facts.Document, entity string, entries map[string]facts.LedgerEntry) int {
	n := 0
	for i := range doc.Facts {
		f := &doc.Facts[i]
		if f.HasAccessStats() {
			continue
		}
		f.AccessCount = 0
		f.LastAccessed = ""
		if e, ok := entries[facts.LedgerKey(entity, f.ID)]; ok {
			f.AccessCount = e.AccessCount
			f.LastAccessed = e.LastAccessed
		}
		for _, d := range []string{doc.Created, f.Created, fallbackAccessDate} {
			if f.LastAccessed != "" {
				break
			}
			f.LastAccessed = d
		}
		n++
	}
	return n
}

// Propagate adds source's path to the relatedEntities of every active fact
// in each target document. Targets that do not parse or do not exist are
// skipped. A self-reference links the source to itself. Returns the number
// of facts that gained the back-reference.
//
// The link is copied onto each active fact, not held once per document,
// so it is repeated as the target accumulates facts.
func (r *Repository) Propagate(ctx context.Context, source facts.EntityRef, targets []string) (int, error) {
	back := source.Path()
	total := 0
	for _, target := range targets {
		ref, err := facts.ParsePath(target)
		if err != nil {
			logger.Debugw("factstore: skipping unresolvable cross-reference", "target", target, "error", err)
			continue
		}
		if ok, err := r.exists(ctx, ref); err != nil {
			return total, err
		} else if !ok {
			continue
		}

		added := 0
		err = r.backend.Update(ctx, store.FactsKey(ref), func(cur []byte, exists bool) ([]byte, error) {
			added = 0
			if !exists {
				return nil, nil
			}
			doc, err := facts.DecodeDocument(cur)
			if err != nil {
				return nil, err
			}
			for i := range doc.Facts {
				f := &doc.Facts[i]
				if f.Active() && f.AddRelated(back) {
					added++
				}
			}
			if added == 0 {
				return nil, nil
			}
			return facts.EncodeDocument(doc)
		})
		if err != nil {
			return total, errors.Wrapf(err, "propagate %s to %s", back, ref)
		}
		total += added
	}
	return total, nil
}

// Load returns the raw document for ref.
func (r *Repository) Load(ctx context.Context, ref facts.EntityRef) (*facts.Document, error) {
	data, err := r.backend.Get(ctx, store.FactsKey(ref))
	if err != nil {
		return nil, err
	}
	return facts.DecodeDocument(data)
}

// exists checks for a document without going through Update, which on the
// filesystem backend would create the entity directory.
func (r *Repository) exists(ctx context.Context, ref facts.EntityRef) (bool, error) {
	_, err := r.backend.Get(ctx, store.FactsKey(ref))
	if errors.Is(err, facts.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", ref)
	}
	return true, nil
}

func checkRef(ref facts.EntityRef) error {
	if ref.Type.Dir() == "" || ref.Slug == "" {
		return errors.Wrapf(facts.ErrInvalidEntity, "%q/%q", ref.Type, ref.Slug)
	}
	return nil
}
