// Package summary renders an entity's active facts into its summary.md.
//
// Render is a pure function: identical inputs produce byte-identical output.
// It never reads the clock; the caller supplies now.
package summary

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/tier"
)

const unknown = "unknown"

const (
	headingHot       = "## 🔥 Hot (Recent/Frequent)"
	headingWarm      = "## 🌡️ Warm (Older)"
	headingConnected = "## 🔗 Connected To"

	markerMilestone  = "📌"
	markerDefault    = "📎"
	markerSuperseded = "🔄"
)

// Metadata is the document-level information shown in the summary header.
type Metadata struct {
	Slug        string
	Created     string
	LastUpdated string
	Reason      string
}

// MetadataFor builds header metadata for ref. doc may be nil when the
// entity has no fact document yet.
func MetadataFor(ref facts.EntityRef, doc *facts.Document) Metadata {
	m := Metadata{Slug: ref.Slug, Created: unknown, LastUpdated: unknown}
	if doc == nil {
		return m
	}
	if doc.Created != "" {
		m.Created = doc.Created
	}
	if doc.LastUpdated != "" {
		m.LastUpdated = doc.LastUpdated
	}
	m.Reason = doc.CreatedReason
	return m
}

// Result is the rendered text plus the tier breakdown of the active facts.
type Result struct {
	Text string
	Hot  int
	Warm int
	Cold int
}

// Summarized is the number of facts listed in the summary body.
func (r Result) Summarized() int { return r.Hot + r.Warm }

// Render classifies active facts and emits the summary. Facts keep their
// input order within each tier; related entities are listed sorted.
func Render(meta Metadata, active []facts.Fact, related []string, now time.Time, cfg tier.Config) Result {
	var hot, warm []facts.Fact
	cold := 0
	for _, f := range active {
		switch tier.Classify(f.LastAccessed, f.AccessCount, now, cfg) {
		case tier.Hot:
			hot = append(hot, f)
		case tier.Warm:
			warm = append(warm, f)
		default:
			cold++
		}
	}

	lines := []string{
		"# " + Title(meta.Slug),
		"",
		"*Entity created: " + orUnknown(meta.Created) + "*",
		"*Last updated: " + orUnknown(meta.LastUpdated) + "*",
	}
	if meta.Reason != "" {
		lines = append(lines, "*Reason: "+meta.Reason+"*")
	}
	lines = append(lines, "")

	lines = appendSection(lines, headingHot, hot)
	lines = appendSection(lines, headingWarm, warm)

	if cold > 0 {
		lines = append(lines, "*(+ "+strconv.Itoa(cold)+" older facts in facts.json)*")
	}

	if len(related) > 0 {
		sorted := append([]string(nil), related...)
		sort.Strings(sorted)
		lines = append(lines, "", headingConnected)
		for _, r := range sorted {
			lines = append(lines, "- "+r)
		}
	}

	return Result{
		Text: strings.Join(lines, "\n"),
		Hot:  len(hot),
		Warm: len(warm),
		Cold: cold,
	}
}

func appendSection(lines []string, heading string, fs []facts.Fact) []string {
	if len(fs) == 0 {
		return lines
	}
	lines = append(lines, heading)
	for _, f := range fs {
		lines = append(lines, "- "+marker(f)+" **"+string(category(f))+"**: "+f.Content)
	}
	return append(lines, "")
}

// marker picks the bullet glyph. A non-null supersededBy wins over the
// milestone marker, even though active facts should never carry one.
func marker(f facts.Fact) string {
	if f.SupersededBy != nil && *f.SupersededBy != "" {
		return markerSuperseded
	}
	if f.Category == facts.CategoryMilestone {
		return markerMilestone
	}
	return markerDefault
}

func category(f facts.Fact) facts.Category {
	if f.Category == "" {
		return facts.CategoryContext
	}
	return f.Category
}

// Title turns a slug into a heading: hyphens become spaces, words are
// title-cased.
func Title(slug string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(slug, "-", " "))
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
