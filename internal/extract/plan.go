// Package extract turns model output into a validated checkpoint plan.
// Raw model text never leaves this package.
package extract

import (
	"strings"

	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/logger"
)

// Plan is what a checkpoint should write.
type Plan struct {
	NewEntities []NewEntity
	EntityFacts []EntityFact
	DailyNote   string
	Decisions   []string
	SkipReason  string
}

// Empty reports whether the plan has nothing to write.
func (p *Plan) Empty() bool {
	return len(p.NewEntities) == 0 && len(p.EntityFacts) == 0 && p.DailyNote == ""
}

// NewEntity asks for an entity to be created.
type NewEntity struct {
	Entity facts.EntityRef
	Reason string
}

// EntityFact is one fact to append.
type EntityFact struct {
	Entity       facts.EntityRef
	SupersedesID string
	Category     facts.Category
	Content      string
	Related      []string
}

type wirePlan struct {
	EntityFacts []wireEntityFact `json:"entity_facts"`
	NewEntities []wireNewEntity  `json:"new_entities"`
	DailyNotes  *string          `json:"daily_notes"`
	Decisions   []string         `json:"decisions"`
	SkipReason  string           `json:"skip_reason"`
}

type wireEntityFact struct {
	EntityType   string    `json:"entity_type"`
	EntityName   string    `json:"entity_name"`
	Action       string    `json:"action"`
	SupersedesID string    `json:"supersedes_id"`
	Fact         *wireFact `json:"fact"`
}

type wireFact struct {
	Category        string   `json:"category"`
	Content         string   `json:"content"`
	RelatedEntities []string `json:"relatedEntities"`
}

type wireNewEntity struct {
	EntityType string `json:"entity_type"`
	EntityName string `json:"entity_name"`
	Reason     string `json:"reason"`
}

// validate converts the wire form, dropping items that cannot be applied:
// unknown entity types, empty names, and facts without content. Unknown
// categories fall back to context.
func (w *wirePlan) validate() *Plan {
	p := &Plan{Decisions: w.Decisions, SkipReason: w.SkipReason}
	if w.DailyNotes != nil {
		p.DailyNote = strings.TrimSpace(*w.DailyNotes)
	}

	for _, ne := range w.NewEntities {
		ref, ok := entityRef(ne.EntityType, ne.EntityName)
		if !ok {
			continue
		}
		p.NewEntities = append(p.NewEntities, NewEntity{Entity: ref, Reason: strings.TrimSpace(ne.Reason)})
	}

	for _, ef := range w.EntityFacts {
		ref, ok := entityRef(ef.EntityType, ef.EntityName)
		if !ok || ef.Fact == nil {
			continue
		}
		content := strings.TrimSpace(ef.Fact.Content)
		if content == "" {
			logger.Debugw("extract: dropping fact without content", "entity", ref.String())
			continue
		}
		cat, err := facts.ParseCategory(strings.ToLower(strings.TrimSpace(ef.Fact.Category)))
		if err != nil {
			logger.Debugw("extract: unknown category, using context", "entity", ref.String(), "category", ef.Fact.Category)
			cat = facts.CategoryContext
		}
		var related []string
		for _, r := range ef.Fact.RelatedEntities {
			if r = strings.Trim(strings.TrimSpace(r), "/"); r != "" {
				related = append(related, r)
			}
		}
		p.EntityFacts = append(p.EntityFacts, EntityFact{
			Entity:       ref,
			SupersedesID: strings.TrimSpace(ef.SupersedesID),
			Category:     cat,
			Content:      content,
			Related:      related,
		})
	}
	return p
}

func entityRef(entityType, name string) (facts.EntityRef, bool) {
	if strings.TrimSpace(entityType) == "" || strings.TrimSpace(name) == "" {
		return facts.EntityRef{}, false
	}
	ref, err := facts.NewRef(entityType, name)
	if err != nil {
		logger.Debugw("extract: dropping item with unknown entity type", "type", entityType, "name", name)
		return facts.EntityRef{}, false
	}
	return ref, true
}
