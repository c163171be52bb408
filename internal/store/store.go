// Package store persists fact documents, summaries, and the access ledger
// behind a small key/value interface with scoped exclusive updates.
package store

import (
	"context"

	"github.com/lazypower/paramem/internal/facts"
)

// Space separates entity documents from process-wide cache documents.
type Space string

const (
	SpaceEntities Space = "entities"
	SpaceCache    Space = "cache"
)

// Key addresses one stored document.
type Key struct {
	Space Space
	Path  string // slash separated, relative to the space root
}

func (k Key) String() string { return string(k.Space) + ":" + k.Path }

const (
	factsFile   = "facts.json"
	summaryFile = "summary.md"
	ledgerFile  = "access-log.json"
)

// LedgerKey addresses the shared access ledger.
var LedgerKey = Key{Space: SpaceCache, Path: ledgerFile}

// FactsKey addresses an entity's fact document.
func FactsKey(ref facts.EntityRef) Key {
	return Key{Space: SpaceEntities, Path: ref.Path() + "/" + factsFile}
}

// SummaryKey addresses an entity's rendered summary.
func SummaryKey(ref facts.EntityRef) Key {
	return Key{Space: SpaceEntities, Path: ref.Path() + "/" + summaryFile}
}

// UpdateFunc receives the current bytes (nil, false when absent) and returns
// the replacement. Returning nil bytes with a nil error skips the write.
type UpdateFunc func(cur []byte, exists bool) ([]byte, error)

// Enumerator lists the entities that currently exist.
type Enumerator interface {
	List(ctx context.Context) ([]facts.EntityRef, error)
}

// Backend is the persistence boundary of the engine.
//
// Update holds an exclusive acquisition on the key for the duration of fn,
// so concurrent read-modify-write cycles (in this or other processes) on the
// same document serialize rather than lose updates. fn must not call back
// into the backend.
type Backend interface {
	Enumerator
	Get(ctx context.Context, key Key) ([]byte, error)
	Update(ctx context.Context, key Key, fn UpdateFunc) error
	Put(ctx context.Context, key Key, data []byte) error
	Close() error
}

// RefFromFactsPath maps "areas/people/tara/facts.json" back to a ref.
// Paths that are not fact documents report false.
func RefFromFactsPath(path string) (facts.EntityRef, bool) {
	const suffix = "/" + factsFile
	if len(path) <= len(suffix) || path[len(path)-len(suffix):] != suffix {
		return facts.EntityRef{}, false
	}
	ref, err := facts.ParsePath(path[:len(path)-len(suffix)])
	if err != nil {
		return facts.EntityRef{}, false
	}
	return ref, true
}
