package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/paramem/internal/facts"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	dir := t.TempDir()
	fs, err := OpenFS(filepath.Join(dir, "para"), filepath.Join(dir, "cache"))
	require.NoError(t, err)

	sqlite, err := OpenSQLite(filepath.Join(dir, "paramem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Backend{
		"memory": NewMemory(),
		"fs":     fs,
		"sqlite": sqlite,
	}
}

func TestBackendGetMissing(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get(context.Background(), LedgerKey)
			assert.True(t, errors.Is(err, facts.ErrNotFound), "got %v", err)
		})
	}
}

func TestBackendUpdateCreatesAndSkips(t *testing.T) {
	ctx := context.Background()
	ref := facts.EntityRef{Type: facts.TypePerson, Slug: "tara"}
	key := FactsKey(ref)

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := b.Update(ctx, key, func(cur []byte, exists bool) ([]byte, error) {
				assert.False(t, exists)
				assert.Nil(t, cur)
				return []byte(`{"v":1}`), nil
			})
			require.NoError(t, err)

			// nil result leaves the document untouched
			err = b.Update(ctx, key, func(cur []byte, exists bool) ([]byte, error) {
				assert.True(t, exists)
				assert.Equal(t, `{"v":1}`, string(cur))
				return nil, nil
			})
			require.NoError(t, err)

			got, err := b.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, `{"v":1}`, string(got))

			// callback errors abort without writing
			boom := errors.New("boom")
			err = b.Update(ctx, key, func(cur []byte, exists bool) ([]byte, error) {
				return []byte(`{"v":2}`), boom
			})
			assert.True(t, errors.Is(err, boom))

			got, err = b.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, `{"v":1}`, string(got))
		})
	}
}

func TestBackendList(t *testing.T) {
	ctx := context.Background()
	refs := []facts.EntityRef{
		{Type: facts.TypeResource, Slug: "go-generics"},
		{Type: facts.TypePerson, Slug: "tara"},
		{Type: facts.TypeProject, Slug: "bards-and-cards"},
		{Type: facts.TypeCompany, Slug: "acme-corp"},
	}

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, ref := range refs {
				require.NoError(t, b.Put(ctx, FactsKey(ref), []byte(`{}`)))
			}
			require.NoError(t, b.Put(ctx, LedgerKey, []byte(`{}`)))

			got, err := b.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []facts.EntityRef{
				{Type: facts.TypePerson, Slug: "tara"},
				{Type: facts.TypeCompany, Slug: "acme-corp"},
				{Type: facts.TypeProject, Slug: "bards-and-cards"},
				{Type: facts.TypeResource, Slug: "go-generics"},
			}, got)
		})
	}
}

func TestBackendConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	const workers = 8
	const perWorker = 10

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < perWorker; j++ {
						err := b.Update(ctx, LedgerKey, func(cur []byte, exists bool) ([]byte, error) {
							ledger, err := facts.DecodeLedger(cur)
							if err != nil {
								return nil, err
							}
							e := ledger["x:1"]
							e.AccessCount++
							ledger["x:1"] = e
							return facts.EncodeLedger(ledger)
						})
						assert.NoError(t, err)
					}
				}()
			}
			wg.Wait()

			data, err := b.Get(ctx, LedgerKey)
			require.NoError(t, err)
			ledger, err := facts.DecodeLedger(data)
			require.NoError(t, err)
			assert.Equal(t, workers*perWorker, ledger["x:1"].AccessCount)
		})
	}
}

func TestFSLayout(t *testing.T) {
	dir := t.TempDir()
	fs, err := OpenFS(filepath.Join(dir, "para"), filepath.Join(dir, "cache"))
	require.NoError(t, err)

	ref := facts.EntityRef{Type: facts.TypeCompany, Slug: "acme-corp"}
	require.NoError(t, fs.Put(context.Background(), SummaryKey(ref), []byte("# Acme Corp")))
	require.NoError(t, fs.Put(context.Background(), LedgerKey, []byte("{}")))

	_, err = os.Stat(filepath.Join(dir, "para", "areas", "companies", "acme-corp", "summary.md"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "cache", "access-log.json"))
	assert.NoError(t, err)

	// directories count as entities even without a fact document
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "para", "projects", "empty-project"), 0755))
	refs, err := fs.List(context.Background())
	require.NoError(t, err)
	assert.Contains(t, refs, facts.EntityRef{Type: facts.TypeProject, Slug: "empty-project"})
	assert.Contains(t, refs, ref)
}

func TestFSNoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	fs, err := OpenFS(filepath.Join(dir, "para"), filepath.Join(dir, "cache"))
	require.NoError(t, err)

	ref := facts.EntityRef{Type: facts.TypePerson, Slug: "tara"}
	for i := 0; i < 3; i++ {
		require.NoError(t, fs.Update(context.Background(), FactsKey(ref), func(cur []byte, exists bool) ([]byte, error) {
			return []byte(`{}`), nil
		}))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "para", "areas", "people", "tara"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}
