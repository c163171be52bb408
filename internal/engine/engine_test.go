package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/paramem/internal/clock"
	"github.com/lazypower/paramem/internal/extract"
	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/factstore"
	"github.com/lazypower/paramem/internal/llm"
	"github.com/lazypower/paramem/internal/logger"
	"github.com/lazypower/paramem/internal/store"
	"github.com/lazypower/paramem/internal/tier"
	"github.com/lazypower/paramem/internal/transcript"
)

var now = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)

type countingIndexer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingIndexer) Update(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *countingIndexer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testEngine(t *testing.T, opts Options) (*Engine, *store.Memory) {
	t.Helper()
	logger.SetForTest(t)
	mem := store.NewMemory()
	opts.Backend = mem
	if opts.Clock == nil {
		opts.Clock = clock.Fixed(now)
	}
	if opts.Tiers == (tier.Config{}) {
		opts.Tiers = tier.DefaultConfig()
	}
	return New(opts), mem
}

func putDoc(t *testing.T, mem *store.Memory, doc *facts.Document) facts.EntityRef {
	t.Helper()
	ref := facts.EntityRef{Type: doc.EntityType, Slug: doc.Entity}
	data, err := facts.EncodeDocument(doc)
	require.NoError(t, err)
	require.NoError(t, mem.Put(context.Background(), store.FactsKey(ref), data))
	return ref
}

func summaryText(t *testing.T, mem *store.Memory, ref facts.EntityRef) string {
	t.Helper()
	data, err := mem.Get(context.Background(), store.SummaryKey(ref))
	require.NoError(t, err)
	return string(data)
}

func TestAcmeCorpEndToEnd(t *testing.T) {
	idx := &countingIndexer{}
	e, mem := testEngine(t, Options{Indexer: idx})
	ctx := context.Background()

	ref := putDoc(t, mem, &facts.Document{
		Entity:      "acme-corp",
		EntityType:  facts.TypeCompany,
		Created:     "2026-01-02",
		LastUpdated: "2026-03-01",
		Facts: []facts.Fact{{
			ID:              "acm-001",
			Content:         "Signed contract",
			Category:        facts.CategoryMilestone,
			Status:          facts.StatusActive,
			LastAccessed:    now.AddDate(0, 0, -200).Format(facts.DateLayout),
			AccessCount:     12,
			RelatedEntities: []string{},
		}},
	})

	stats, err := e.RunDecayCycle(ctx, ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntitiesProcessed)
	assert.Equal(t, 1, stats.FactsSummarized)
	assert.Empty(t, stats.Failures)
	assert.Empty(t, stats.Flagged)
	assert.Equal(t, 1, idx.Calls())

	text := summaryText(t, mem, ref)
	assert.Contains(t, text, "## 🔥 Hot (Recent/Frequent)\n- 📌 **milestone**: Signed contract")
	assert.NotContains(t, text, "Warm")
	assert.NotContains(t, text, "older facts")
	assert.NotContains(t, text, "Connected To")
}

func TestFullCycleIdempotent(t *testing.T) {
	e, mem := testEngine(t, Options{})
	ctx := context.Background()

	tara := facts.EntityRef{Type: facts.TypePerson, Slug: "tara"}
	acme := facts.EntityRef{Type: facts.TypeCompany, Slug: "acme-corp"}
	for _, nf := range []factstore.NewFact{
		{Entity: tara, Content: "Works at Acme", Category: facts.CategoryRelationship, Related: []string{acme.Path()}},
		{Entity: tara, Content: "Likes tea", Category: facts.CategoryPreference},
		{Entity: acme, Content: "Series B closed", Category: facts.CategoryMilestone},
	} {
		_, err := e.Facts.AppendFact(ctx, nf)
		require.NoError(t, err)
	}
	_, err := e.Facts.Propagate(ctx, tara, []string{acme.Path()})
	require.NoError(t, err)

	first, err := e.RunDecayCycle(ctx, ModeFull)
	require.NoError(t, err)
	taraSummary := summaryText(t, mem, tara)
	acmeSummary := summaryText(t, mem, acme)
	factWrites := mem.WriteCount(store.FactsKey(tara))

	second, err := e.RunDecayCycle(ctx, ModeFull)
	require.NoError(t, err)

	assert.Equal(t, taraSummary, summaryText(t, mem, tara))
	assert.Equal(t, acmeSummary, summaryText(t, mem, acme))
	assert.Equal(t, factWrites, mem.WriteCount(store.FactsKey(tara)), "cycle must not rewrite fact documents")
	assert.Equal(t, 3, second.FactsSummarized)

	// reported stats are identical; wall time is not part of them
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
	assert.NotContains(t, string(secondJSON), "duration")
	first.Duration, second.Duration = 0, 0
	assert.Equal(t, first, second)
	assert.Contains(t, acmeSummary, "## 🔗 Connected To\n- areas/people/tara")
}

func TestMalformedDocumentIsolated(t *testing.T) {
	e, mem := testEngine(t, Options{})
	ctx := context.Background()

	broken := facts.EntityRef{Type: facts.TypeProject, Slug: "broken"}
	require.NoError(t, mem.Put(ctx, store.FactsKey(broken), []byte(`{"facts": "nope"`)))
	_, err := e.Facts.AppendFact(ctx, factstore.NewFact{
		Entity:  facts.EntityRef{Type: facts.TypeProject, Slug: "healthy"},
		Content: "Ships weekly",
	})
	require.NoError(t, err)

	stats, err := e.RunDecayCycle(ctx, ModeQuick)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntitiesProcessed)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "projects/broken", stats.Failures[0].Entity)

	_, err = mem.Get(ctx, store.SummaryKey(broken))
	assert.True(t, errors.Is(err, facts.ErrNotFound))
}

func TestFlaggedOnlyInFullMode(t *testing.T) {
	e, mem := testEngine(t, Options{})
	ctx := context.Background()

	next := "tar-004"
	superseded := func(id string) facts.Fact {
		return facts.Fact{ID: id, Content: id, Category: facts.CategoryStatus, Status: facts.StatusSuperseded,
			LastAccessed: "2026-10-01", AccessCount: 1, RelatedEntities: []string{}, SupersededBy: &next}
	}
	putDoc(t, mem, &facts.Document{
		Entity: "tara", EntityType: facts.TypePerson, Created: "2026-01-01", LastUpdated: "2026-10-01",
		Facts: []facts.Fact{
			superseded("tar-001"), superseded("tar-002"), superseded("tar-003"),
			{ID: "tar-004", Content: "CTO", Category: facts.CategoryStatus, Status: facts.StatusActive,
				LastAccessed: "2026-10-01", AccessCount: 1, RelatedEntities: []string{}},
		},
	})

	quick, err := e.RunDecayCycle(ctx, ModeQuick)
	require.NoError(t, err)
	assert.Empty(t, quick.Flagged)

	full, err := e.RunDecayCycle(ctx, ModeFull)
	require.NoError(t, err)
	require.Len(t, full.Flagged, 1)
	assert.Equal(t, Flag{Entity: "areas/people/tara", Active: 1, Superseded: 3}, full.Flagged[0])
}

func TestIndexerFailureSwallowed(t *testing.T) {
	idx := &countingIndexer{err: errors.New("qmd exploded")}
	e, _ := testEngine(t, Options{Indexer: idx})

	stats, err := e.RunDecayCycle(context.Background(), ModeQuick)
	require.NoError(t, err)
	assert.Zero(t, stats.EntitiesProcessed)
	assert.Equal(t, 1, idx.Calls())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFull, m)

	m, err = ParseMode("quick")
	require.NoError(t, err)
	assert.Equal(t, ModeQuick, m)

	_, err = ParseMode("slow")
	assert.Error(t, err)
}

type fakeExtractor struct {
	plan *extract.Plan
	err  error
	in   llm.CheckpointInput
}

func (f *fakeExtractor) Extract(_ context.Context, in llm.CheckpointInput) (*extract.Plan, error) {
	f.in = in
	return f.plan, f.err
}

var conversation = []transcript.Message{
	{Role: "user", Text: "Tara just got promoted to CTO at Acme"},
	{Role: "assistant", Text: "Congratulations to Tara!"},
}

func TestCheckpointAppliesPlan(t *testing.T) {
	idx := &countingIndexer{}
	memDir := filepath.Join(t.TempDir(), "memory")
	tara := facts.EntityRef{Type: facts.TypePerson, Slug: "tara"}
	acme := facts.EntityRef{Type: facts.TypeCompany, Slug: "acme-corp"}

	ext := &fakeExtractor{plan: &extract.Plan{
		NewEntities: []extract.NewEntity{{Entity: acme, Reason: "Direct relationship"}},
		EntityFacts: []extract.EntityFact{
			{Entity: acme, Category: facts.CategoryMilestone, Content: "Promoted Tara"},
			{Entity: tara, SupersedesID: "tar-001", Category: facts.CategoryStatus, Content: "CTO at Acme", Related: []string{acme.Path()}},
		},
		DailyNote: "Tara promoted to CTO",
		Decisions: []string{"Track Acme"},
	}}
	e, mem := testEngine(t, Options{Indexer: idx, Extractor: ext, MemoryDir: memDir, MaxMessages: 30, MaxChars: 15000})
	ctx := context.Background()

	_, err := e.Facts.AppendFact(ctx, factstore.NewFact{Entity: tara, Content: "Engineer at Acme", Category: facts.CategoryStatus})
	require.NoError(t, err)

	res, err := e.CheckpointMessages(ctx, "manual", conversation, transcript.SourceWorkspace)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, CheckpointStats{EntitiesCreated: 1, FactsAdded: 2, FactsSuperseded: 1, DailyNotes: true}, res.Stats)
	assert.ElementsMatch(t, []string{"areas/people/tara", "areas/companies/acme-corp"}, res.Refreshed)
	assert.Equal(t, []string{"Track Acme"}, res.Decisions)
	assert.Equal(t, 1, idx.Calls())

	assert.Contains(t, ext.in.Messages, "[USER] Tara just got promoted")
	assert.Equal(t, []string{"tara"}, ext.in.Entities["people"])
	assert.Equal(t, "areas/people/tara", ext.in.EntityPaths["tara"])

	doc, err := e.Facts.Load(ctx, tara)
	require.NoError(t, err)
	require.Len(t, doc.Facts, 2)
	assert.Equal(t, facts.StatusSuperseded, doc.Facts[0].Status)
	newest := doc.Facts[1]
	require.NotNil(t, newest.Source)
	assert.Equal(t, SourceConversation, newest.Source.Type)
	assert.Equal(t, res.ID, newest.Source.CheckpointID)

	acmeDoc, err := e.Facts.Load(ctx, acme)
	require.NoError(t, err)
	assert.Equal(t, "Direct relationship", acmeDoc.CreatedReason)
	assert.Equal(t, []string{"areas/people/tara"}, acmeDoc.Facts[0].RelatedEntities)
	assert.Contains(t, summaryText(t, mem, acme), "- areas/people/tara")

	note, err := os.ReadFile(filepath.Join(memDir, "2026-10-19.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(note), "## 14:30 - Checkpoint\nTara promoted to CTO\n"))
}

func TestCheckpointDuplicateNotCounted(t *testing.T) {
	tara := facts.EntityRef{Type: facts.TypePerson, Slug: "tara"}
	ext := &fakeExtractor{plan: &extract.Plan{
		EntityFacts: []extract.EntityFact{{Entity: tara, Category: facts.CategoryContext, Content: "Likes tea"}},
	}}
	e, _ := testEngine(t, Options{Extractor: ext})
	ctx := context.Background()

	first, err := e.CheckpointMessages(ctx, "manual", conversation, transcript.SourceWorkspace)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats.FactsAdded)

	second, err := e.CheckpointMessages(ctx, "manual", conversation, transcript.SourceWorkspace)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, second.Status)
	assert.Zero(t, second.Stats.FactsAdded)
}

func TestCheckpointSkips(t *testing.T) {
	ctx := context.Background()

	e, _ := testEngine(t, Options{})
	res, err := e.CheckpointMessages(ctx, "manual", conversation, transcript.SourceWorkspace)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)

	ext := &fakeExtractor{plan: &extract.Plan{SkipReason: "small talk"}}
	e, _ = testEngine(t, Options{Extractor: ext})

	res, err = e.CheckpointMessages(ctx, "manual", nil, transcript.SourceNone)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, "no context", res.SkipReason)

	res, err = e.CheckpointMessages(ctx, "manual", conversation, transcript.SourceWorkspace)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, "small talk", res.SkipReason)
}

func TestCheckpointExtractionTimeoutWritesNothing(t *testing.T) {
	idx := &countingIndexer{}
	mock := &llm.MockClient{Block: true}
	e, mem := testEngine(t, Options{Indexer: idx, Extractor: extract.NewLLM(mock, 20*time.Millisecond)})

	res, err := e.CheckpointMessages(context.Background(), "manual", conversation, transcript.SourceWorkspace)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, 1, mock.CallCount())
	assert.Zero(t, idx.Calls())

	refs, err := mem.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestCheckpointThroughLLMResponse(t *testing.T) {
	mock := &llm.MockClient{Response: &llm.Response{Content: "Here is the plan:\n```json\n" +
		`{"entity_facts": [{"entity_type": "projects", "entity_name": "Bards & Cards", "fact": {"category": "milestone", "content": "Beta launched"}}], "daily_notes": null}` +
		"\n```"}}
	e, mem := testEngine(t, Options{Extractor: extract.NewLLM(mock, time.Second)})

	res, err := e.CheckpointMessages(context.Background(), "manual", conversation, transcript.SourceWorkspace)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.False(t, res.Stats.DailyNotes)

	ref := facts.EntityRef{Type: facts.TypeProject, Slug: "bards-and-cards"}
	assert.Contains(t, summaryText(t, mem, ref), "- 📌 **milestone**: Beta launched")
}

func TestStartSchedulesRunsStartupCycle(t *testing.T) {
	idx := &countingIndexer{}
	e, _ := testEngine(t, Options{Indexer: idx})

	e.StartSchedules(context.Background(), Schedule{Decay: time.Hour, Checkpoint: time.Minute})
	assert.Equal(t, 1, idx.Calls())
	e.Stop()
	e.Stop()
}

func TestAddFactPropagatesAndRefreshes(t *testing.T) {
	e, mem := testEngine(t, Options{})
	ctx := context.Background()

	acme := facts.EntityRef{Type: facts.TypeCompany, Slug: "acme-corp"}
	tara := facts.EntityRef{Type: facts.TypePerson, Slug: "tara"}
	_, err := e.AddFact(ctx, factstore.NewFact{Entity: acme, Content: "Series B closed", Category: facts.CategoryMilestone})
	require.NoError(t, err)

	res, err := e.AddFact(ctx, factstore.NewFact{
		Entity:   tara,
		Content:  "Works at Acme",
		Category: facts.CategoryRelationship,
		Related:  []string{acme.Path(), "projects/missing"},
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 1, res.Propagated)
	assert.Equal(t, []string{"areas/people/tara", "areas/companies/acme-corp"}, res.Refreshed)
	assert.Contains(t, summaryText(t, mem, acme), "- areas/people/tara")
	assert.Contains(t, summaryText(t, mem, tara), "- areas/companies/acme-corp")

	_, err = mem.Get(ctx, store.SummaryKey(facts.EntityRef{Type: facts.TypeProject, Slug: "missing"}))
	assert.True(t, errors.Is(err, facts.ErrNotFound))
}

func TestTouchFactsRefreshesTiers(t *testing.T) {
	e, mem := testEngine(t, Options{})
	ctx := context.Background()

	ref := putDoc(t, mem, &facts.Document{
		Entity: "launch", EntityType: facts.TypeProject, Created: "2026-01-01", LastUpdated: "2026-01-01",
		Facts: []facts.Fact{{ID: "lau-001", Content: "Kickoff held", Category: facts.CategoryMilestone,
			Status: facts.StatusActive, LastAccessed: "2026-01-01", AccessCount: 1, RelatedEntities: []string{}}},
	})
	_, err := e.RefreshEntity(ctx, ref)
	require.NoError(t, err)
	assert.Contains(t, summaryText(t, mem, ref), "*(+ 1 older facts in facts.json)*")

	n, err := e.TouchFacts(ctx, ref, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, summaryText(t, mem, ref), "## 🔥 Hot (Recent/Frequent)\n- 📌 **milestone**: Kickoff held")

	n, err = e.TouchFacts(ctx, facts.EntityRef{Type: facts.TypeProject, Slug: "ghost"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddFactSelfReferenceRefreshedOnce(t *testing.T) {
	e, mem := testEngine(t, Options{})
	ctx := context.Background()
	acme := facts.EntityRef{Type: facts.TypeCompany, Slug: "acme-corp"}

	_, err := e.Facts.AppendFact(ctx, factstore.NewFact{Entity: acme, Content: "Series B closed"})
	require.NoError(t, err)

	res, err := e.AddFact(ctx, factstore.NewFact{Entity: acme, Content: "Office in Austin", Related: []string{acme.Path()}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Propagated)
	assert.Equal(t, []string{"areas/companies/acme-corp"}, res.Refreshed)
	assert.Contains(t, summaryText(t, mem, acme), "## 🔗 Connected To\n- areas/companies/acme-corp")
}
