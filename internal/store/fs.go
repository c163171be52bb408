package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"

	"github.com/lazypower/paramem/internal/facts"
)

// lockRetry is how often a contended advisory lock is retried.
const lockRetry = 25 * time.Millisecond

// FS stores documents as files: entity documents under the PARA directory,
// cache documents (the ledger) under the cache directory.
type FS struct {
	EntityRoot string
	CacheRoot  string
}

// OpenFS returns a filesystem backend rooted at the given directories.
func OpenFS(entityRoot, cacheRoot string) (*FS, error) {
	if entityRoot == "" || cacheRoot == "" {
		return nil, errors.New("fs store: entity and cache roots are required")
	}
	if err := os.MkdirAll(entityRoot, 0755); err != nil {
		return nil, errors.Wrap(err, "create entity root")
	}
	return &FS{EntityRoot: entityRoot, CacheRoot: cacheRoot}, nil
}

// Path resolves a key to its file path.
func (s *FS) Path(key Key) string {
	root := s.EntityRoot
	if key.Space == SpaceCache {
		root = s.CacheRoot
	}
	return filepath.Join(root, filepath.FromSlash(key.Path))
}

func (s *FS) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(facts.ErrNotFound, "%s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return data, nil
}

// Update takes an advisory lock on a sibling ".<name>.lock" file, runs fn
// on the current contents, and atomically replaces the file with the result.
// The lock file is left in place; removing it would race other holders.
func (s *FS) Update(ctx context.Context, key Key, fn UpdateFunc) error {
	path := s.Path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create dir for %s", key)
	}

	lock := flock.New(filepath.Join(dir, "."+filepath.Base(path)+".lock"))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return errors.Wrapf(err, "lock %s", key)
	}
	if !locked {
		return errors.Newf("lock %s: not acquired", key)
	}
	defer lock.Unlock()

	cur, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "read %s", key)
	}

	out, err := fn(cur, exists)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return writeAtomic(path, out)
}

func (s *FS) Put(ctx context.Context, key Key, data []byte) error {
	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "create dir for %s", key)
	}
	return writeAtomic(path, data)
}

// List enumerates entity directories per collection, in collection order
// and then by name. A directory counts as an entity even before it has a
// fact document.
func (s *FS) List(ctx context.Context) ([]facts.EntityRef, error) {
	var refs []facts.EntityRef
	for _, t := range facts.EntityTypes {
		entries, err := os.ReadDir(filepath.Join(s.EntityRoot, filepath.FromSlash(t.Dir())))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "list %s", t.Dir())
		}
		for _, e := range entries {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			refs = append(refs, facts.EntityRef{Type: t, Slug: e.Name()})
		}
	}
	return refs, nil
}

func (s *FS) Close() error { return nil }

// writeAtomic writes to a temp file in the target directory and renames it
// over the destination so readers never observe a partial document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "chmod temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "rename into %s", path)
	}
	return nil
}
