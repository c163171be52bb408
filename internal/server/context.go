package server

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/logger"
	"github.com/lazypower/paramem/internal/tier"
)

// maxContextItems caps how many hot facts are injected into a session.
const maxContextItems = 15

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"context": s.buildContext(r.Context()),
	})
}

type rankedFact struct {
	entity string
	fact   facts.Fact
}

// buildContext renders the hot facts across all entities as markdown for
// session injection, most accessed first.
func (s *Server) buildContext(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("<context>\n## PARA Memory\n")

	refs, err := s.engine.Entities(ctx)
	if err != nil {
		logger.Warnw("context: list entities", "error", err)
		b.WriteString("</context>")
		return b.String()
	}

	now := s.engine.Now()
	tiers := s.engine.Tiers()
	perType := make(map[facts.EntityType]int)
	var items []rankedFact

	for _, ref := range refs {
		perType[ref.Type]++
		snap, err := s.engine.Facts.LoadActiveFacts(ctx, ref)
		if err != nil {
			continue
		}
		for _, f := range snap.Active {
			if tier.Classify(f.LastAccessed, f.AccessCount, now, tiers) != tier.Hot {
				continue
			}
			items = append(items, rankedFact{entity: ref.Path(), fact: f})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].fact.AccessCount != items[j].fact.AccessCount {
			return items[i].fact.AccessCount > items[j].fact.AccessCount
		}
		return items[i].fact.LastAccessed > items[j].fact.LastAccessed
	})
	if len(items) > maxContextItems {
		items = items[:maxContextItems]
	}

	if len(refs) > 0 {
		var counts []string
		for _, t := range facts.EntityTypes {
			if n := perType[t]; n > 0 {
				counts = append(counts, fmt.Sprintf("%d %s", n, t.Dir()))
			}
		}
		b.WriteString("\n### Entities\n")
		b.WriteString(strings.Join(counts, ", "))
		b.WriteString("\n")
	}

	if len(items) > 0 {
		b.WriteString("\n### Hot Facts\n")
		for _, it := range items {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", it.entity, it.fact.Category, it.fact.Content)
		}
	}

	b.WriteString("</context>")
	return b.String()
}
