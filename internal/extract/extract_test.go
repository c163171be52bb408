package extract

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/llm"
)

const planJSON = `{
  "entity_facts": [
    {
      "entity_type": "people",
      "entity_name": "Tara Nguyen",
      "action": "supersede",
      "supersedes_id": "tar-001",
      "fact": {"category": "status", "content": "Now CTO at Acme", "relatedEntities": ["areas/companies/acme-corp/"]}
    },
    {"entity_type": "planets", "entity_name": "mars", "fact": {"content": "red"}},
    {"entity_type": "projects", "entity_name": "x", "fact": {"content": "  "}},
    {"entity_type": "projects", "entity_name": "bards & cards", "fact": {"category": "Milestone", "content": "Beta shipped"}},
    {"entity_type": "resources", "entity_name": "go", "fact": {"category": "trivia", "content": "Generics landed in 1.18"}}
  ],
  "new_entities": [
    {"entity_type": "companies", "entity_name": "Acme Corp", "reason": "Direct relationship"},
    {"entity_type": "", "entity_name": "nobody"}
  ],
  "daily_notes": "Tara promoted",
  "decisions": ["Track Acme"],
  "skip_reason": ""
}`

func TestParseResponseDirect(t *testing.T) {
	p, err := ParseResponse(planJSON)
	require.NoError(t, err)

	require.Len(t, p.NewEntities, 1)
	assert.Equal(t, facts.EntityRef{Type: facts.TypeCompany, Slug: "acme-corp"}, p.NewEntities[0].Entity)
	assert.Equal(t, "Direct relationship", p.NewEntities[0].Reason)

	require.Len(t, p.EntityFacts, 3)
	tara := p.EntityFacts[0]
	assert.Equal(t, facts.EntityRef{Type: facts.TypePerson, Slug: "tara-nguyen"}, tara.Entity)
	assert.Equal(t, "tar-001", tara.SupersedesID)
	assert.Equal(t, facts.CategoryStatus, tara.Category)
	assert.Equal(t, []string{"areas/companies/acme-corp"}, tara.Related)

	assert.Equal(t, facts.EntityRef{Type: facts.TypeProject, Slug: "bards-and-cards"}, p.EntityFacts[1].Entity)
	assert.Equal(t, facts.CategoryMilestone, p.EntityFacts[1].Category)
	assert.Equal(t, facts.CategoryContext, p.EntityFacts[2].Category)

	assert.Equal(t, "Tara promoted", p.DailyNote)
	assert.Equal(t, []string{"Track Acme"}, p.Decisions)
	assert.False(t, p.Empty())
}

func TestParseResponseStrategies(t *testing.T) {
	flat := `{"entity_facts": [], "daily_notes": "flat"}`
	tests := []struct {
		name string
		text string
		note string
	}{
		{"json fence", "Here you go:\n```json\n{\"daily_notes\": \"fenced\"}\n```\nthanks", "fenced"},
		{"bare fence", "```\n{\"daily_notes\": \"bare\"}\n```", "bare"},
		{"flat object in prose", "Sure! " + flat + " Let me know.", "flat"},
		{"nested object in prose", `Result: {"new_entities": [], "entity_facts": [{"entity_type": "people", "entity_name": "tara", "fact": {"content": "hi there"}}], "daily_notes": "nested"} done`, "nested"},
		{"skips unrelated objects", `{"note": "x"} then {"entity_facts": [{"fact": {}}], "daily_notes": "second"}`, "second"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseResponse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.note, p.DailyNote)
		})
	}
}

func TestParseResponseNullDailyNote(t *testing.T) {
	p, err := ParseResponse(`{"entity_facts": [], "daily_notes": null, "skip_reason": "small talk"}`)
	require.NoError(t, err)
	assert.True(t, p.Empty())
	assert.Equal(t, "small talk", p.SkipReason)
}

func TestParseResponseUnparseable(t *testing.T) {
	for _, text := range []string{"", "no json here", "[1, 2, 3]", `{"a": {"b": 1}`} {
		_, err := ParseResponse(text)
		assert.True(t, errors.Is(err, ErrUnparseable), "text %q: %v", text, err)
	}
}

func TestLLMExtract(t *testing.T) {
	mock := &llm.MockClient{Response: &llm.Response{Content: "```json\n" + planJSON + "\n```"}}
	e := NewLLM(mock, time.Second)

	p, err := e.Extract(context.Background(), llm.CheckpointInput{Messages: "[USER] Tara is CTO now"})
	require.NoError(t, err)
	assert.Len(t, p.EntityFacts, 3)
	require.Equal(t, 1, mock.CallCount())
	assert.Contains(t, mock.Calls[0], "[USER] Tara is CTO now")
}

func TestLLMExtractTimeout(t *testing.T) {
	e := NewLLM(&llm.MockClient{Block: true}, 20*time.Millisecond)

	start := time.Now()
	_, err := e.Extract(context.Background(), llm.CheckpointInput{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLLMExtractDisabled(t *testing.T) {
	_, err := NewLLM(nil, time.Second).Extract(context.Background(), llm.CheckpointInput{})
	assert.True(t, errors.Is(err, llm.ErrDisabled))
}
