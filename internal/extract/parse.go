package extract

import (
	"encoding/json"
	"regexp"

	"github.com/cockroachdb/errors"
)

// ErrUnparseable means no strategy recovered a plan object from the text.
var ErrUnparseable = errors.New("could not parse model response")

var (
	jsonFenceRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	bareFenceRe = regexp.MustCompile("(?s)```\\s*(\\{.*?\\})\\s*```")
	flatPlanRe  = regexp.MustCompile(`(?s)\{[^{}]*"entity_facts"[^{}]*\}`)
)

// ParseResponse recovers a plan from model output. It tries, in order: the
// whole text as JSON, a ```json fenced block, a bare fenced block, a flat
// object mentioning entity_facts, and finally every balanced top-level
// {...} span that carries entity_facts or new_entities.
func ParseResponse(text string) (*Plan, error) {
	if p, ok := decode(text, false); ok {
		return p, nil
	}
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		if p, ok := decode(m[1], false); ok {
			return p, nil
		}
	}
	if m := bareFenceRe.FindStringSubmatch(text); m != nil {
		if p, ok := decode(m[1], false); ok {
			return p, nil
		}
	}
	if m := flatPlanRe.FindString(text); m != "" {
		if p, ok := decode(m, false); ok {
			return p, nil
		}
	}

	depth, start := 0, -1
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				if p, ok := decode(text[start:i+1], true); ok {
					return p, nil
				}
				start = -1
			}
		}
	}

	preview := text
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return nil, errors.WithDetailf(ErrUnparseable, "first 500 chars: %s", preview)
}

// decode parses s as a plan object. With requireKeys, the object must
// carry entity_facts or new_entities.
func decode(s string, requireKeys bool) (*Plan, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	if requireKeys {
		_, hasFacts := raw["entity_facts"]
		_, hasEntities := raw["new_entities"]
		if !hasFacts && !hasEntities {
			return nil, false
		}
	}
	var w wirePlan
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, false
	}
	return w.validate(), true
}
