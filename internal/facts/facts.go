// Package facts defines the persisted records of the fact store: entity
// documents, facts, provenance, and access-ledger entries.
package facts

import "github.com/cockroachdb/errors"

// DateLayout is the on-disk date format for created/lastAccessed/lastUpdated.
const DateLayout = "2006-01-02"

var (
	// ErrNotFound indicates an entity document (or ledger entry) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMalformedDocument indicates a document failed to parse or validate.
	// It is the only hard failure of the engine and is scoped to one entity.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrInvalidEntity indicates an unknown entity type or empty slug.
	ErrInvalidEntity = errors.New("invalid entity")
)

// Category classifies what kind of statement a fact is.
type Category string

const (
	CategoryRelationship Category = "relationship"
	CategoryMilestone    Category = "milestone"
	CategoryStatus       Category = "status"
	CategoryPreference   Category = "preference"
	CategoryContext      Category = "context"
)

var validCategories = map[Category]bool{
	CategoryRelationship: true,
	CategoryMilestone:    true,
	CategoryStatus:       true,
	CategoryPreference:   true,
	CategoryContext:      true,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool { return validCategories[c] }

// ParseCategory normalizes a category string. Empty becomes context.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return CategoryContext, nil
	}
	c := Category(s)
	if !c.Valid() {
		return "", errors.Newf("unknown category %q", s)
	}
	return c, nil
}

// Status of a fact within its supersession chain.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
)

// Source records where a fact came from.
type Source struct {
	Type         string `json:"type"`
	Timestamp    string `json:"timestamp,omitempty"`
	MessageID    string `json:"messageId,omitempty"`
	Channel      string `json:"channel,omitempty"`
	CheckpointID string `json:"checkpointId,omitempty"`
}

// Fact is one timestamped statement about an entity. Facts are never
// deleted; supersession and tiering only change how they are rendered.
type Fact struct {
	ID              string   `json:"id"`
	Content         string   `json:"fact"`
	Category        Category `json:"category"`
	Status          Status   `json:"status"`
	Created         string   `json:"created,omitempty"`
	LastAccessed    string   `json:"lastAccessed,omitempty"`
	AccessCount     int      `json:"accessCount"`
	RelatedEntities []string `json:"relatedEntities"`
	Source          *Source  `json:"source,omitempty"`
	SupersededBy    *string  `json:"supersededBy"`
}

// Active reports whether the fact is the live head of its chain.
func (f *Fact) Active() bool { return f.Status == StatusActive }

// HasAccessStats reports whether the fact carries embedded access statistics.
func (f *Fact) HasAccessStats() bool { return f.LastAccessed != "" }

// AddRelated appends path to RelatedEntities unless already present.
// Returns true when the slice changed.
func (f *Fact) AddRelated(path string) bool {
	for _, r := range f.RelatedEntities {
		if r == path {
			return false
		}
	}
	f.RelatedEntities = append(f.RelatedEntities, path)
	return true
}

// Document is the unit of persistence and of read-modify-write exclusivity.
type Document struct {
	Entity        string     `json:"entity"`
	EntityType    EntityType `json:"entityType"`
	Created       string     `json:"created"`
	LastUpdated   string     `json:"lastUpdated"`
	CreatedReason string     `json:"createdReason"`
	Facts         []Fact     `json:"facts"`
}

// NewDocument returns an empty document for ref created on date.
func NewDocument(ref EntityRef, date, reason string) *Document {
	return &Document{
		Entity:        ref.Slug,
		EntityType:    ref.Type,
		Created:       date,
		LastUpdated:   date,
		CreatedReason: reason,
		Facts:         []Fact{},
	}
}

// Find returns the fact with the given id, or nil.
func (d *Document) Find(id string) *Fact {
	for i := range d.Facts {
		if d.Facts[i].ID == id {
			return &d.Facts[i]
		}
	}
	return nil
}

// HasContent reports whether any fact (active or not) has exactly content.
func (d *Document) HasContent(content string) bool {
	for i := range d.Facts {
		if d.Facts[i].Content == content {
			return true
		}
	}
	return false
}

// Counts returns the number of active and superseded facts.
func (d *Document) Counts() (active, superseded int) {
	for i := range d.Facts {
		switch d.Facts[i].Status {
		case StatusActive:
			active++
		case StatusSuperseded:
			superseded++
		}
	}
	return active, superseded
}

// LedgerEntry is the access statistics cached for one entity:fact pair.
type LedgerEntry struct {
	AccessCount  int    `json:"accessCount"`
	LastAccessed string `json:"lastAccessed"`
}

// LedgerKey builds the ledger map key for an entity slug and fact id.
func LedgerKey(entity, factID string) string {
	return entity + ":" + factID
}
