package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/facts"
)

// Memory is an in-process backend for tests and dry runs.
type Memory struct {
	mu   sync.Mutex
	docs map[Key][]byte

	// writes counts committed writes per key so tests can check that no-op
	// updates leave storage untouched.
	writes map[Key]int
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{docs: make(map[Key][]byte), writes: make(map[Key]int)}
}

func (m *Memory) Get(ctx context.Context, key Key) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[key]
	if !ok {
		return nil, errors.Wrapf(facts.ErrNotFound, "%s", key)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Update(ctx context.Context, key Key, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[key]
	if ok {
		cur = append([]byte(nil), cur...)
	}
	out, err := fn(cur, ok)
	if err != nil || out == nil {
		return err
	}
	m.docs[key] = append([]byte(nil), out...)
	m.writes[key]++
	return nil
}

func (m *Memory) Put(ctx context.Context, key Key, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), data...)
	m.writes[key]++
	return nil
}

// List returns every entity that has a fact document.
func (m *Memory) List(ctx context.Context) ([]facts.EntityRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[facts.EntityRef]bool)
	for key := range m.docs {
		if key.Space != SpaceEntities {
			continue
		}
		if ref, ok := RefFromFactsPath(key.Path); ok {
			seen[ref] = true
		}
	}
	return sortRefs(seen), nil
}

// WriteCount returns how many times key has been written.
func (m *Memory) WriteCount(key Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[key]
}

func (m *Memory) Close() error { return nil }

func sortRefs(set map[facts.EntityRef]bool) []facts.EntityRef {
	order := make(map[facts.EntityType]int, len(facts.EntityTypes))
	for i, t := range facts.EntityTypes {
		order[t] = i
	}
	refs := make([]facts.EntityRef, 0, len(set))
	for ref := range set {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Type != refs[j].Type {
			return order[refs[i].Type] < order[refs[j].Type]
		}
		return refs[i].Slug < refs[j].Slug
	})
	return refs
}
