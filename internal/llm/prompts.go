package llm

import (
	"encoding/json"
	"fmt"
)

// CheckpointInput is everything the checkpoint prompt shows the model.
type CheckpointInput struct {
	Messages      string              // condensed recent conversation
	CurrentMemory string              // MEMORY.md, truncated by the caller
	Entities      map[string][]string // collection dir name -> slugs
	EntityPaths   map[string]string   // slug -> entity path
}

// InternalSentinel prefixes every prompt paramem sends. The claude-cli
// provider starts a nested agent session whose hooks would otherwise feed
// the prompt back in as user input.
const InternalSentinel = "[paramem-internal]"

// maxMemoryChars caps how much of MEMORY.md is included.
const maxMemoryChars = 3000

// CheckpointPrompt asks the model to sort recent conversation into entity
// facts, new entities, and a daily-note entry, answering in JSON.
func CheckpointPrompt(in CheckpointInput) string {
	memory := in.CurrentMemory
	if len(memory) > maxMemoryChars {
		memory = memory[:maxMemoryChars]
	}
	entities, _ := json.MarshalIndent(in.Entities, "", "  ")
	paths, _ := json.MarshalIndent(in.EntityPaths, "", "  ")

	return fmt.Sprintf(InternalSentinel+`
You are deciding what from a conversation should be kept as long-term memory.

## Recent messages
%s

## Current memory summary
%s

## Existing entities
%s

## Known entity paths (use these in relatedEntities)
%s

## Layout
- areas/people/ : people with a direct relationship
- areas/companies/ : companies and organizations
- projects/ : active work with goals or deadlines
- resources/ : topics of interest

## Task
Pull out durable information. For each item decide whether it is
1. a new permanent fact about an existing entity,
2. a reason to create a new entity (mentioned 3+ times, a direct relationship, or a significant project), or
3. only daily-note material.

Each fact has:
- category: relationship|milestone|status|preference|context
- content: the fact itself
- relatedEntities: optional entity paths such as ["areas/people/tara", "projects/bards-and-cards"]
- supersedes_id: optional id of the fact this one replaces

Answer with JSON only:
{
  "entity_facts": [
    {
      "entity_type": "people|companies|projects|resources",
      "entity_name": "slug-name",
      "action": "append|supersede",
      "supersedes_id": "ent-002",
      "fact": {
        "category": "relationship|milestone|status|preference|context",
        "content": "The fact",
        "relatedEntities": ["areas/people/tara"]
      }
    }
  ],
  "daily_notes": "Timeline entry for today, or null",
  "new_entities": [
    {"entity_type": "people|companies|projects|resources", "entity_name": "slug-name", "reason": "Why it deserves an entity"}
  ],
  "decisions": ["Decisions made"],
  "skip_reason": "If nothing is worth keeping, say why"
}

Rules:
- Skip small talk, greetings, and one-off requests
- Keep only facts that matter beyond this conversation
- Reuse existing entity names from the list above
- Entity names are slugs: lowercase, hyphen-separated
- Set supersedes_id when a fact corrects or updates an earlier one`, in.Messages, memory, entities, paths)
}
