// Package watcher refreshes entity summaries when fact documents change on
// disk, for example after a manual edit or a write by another process.
package watcher

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/logger"
	"github.com/lazypower/paramem/internal/store"
)

// DefaultDebounce collapses the burst of events an atomic replace produces.
const DefaultDebounce = 500 * time.Millisecond

// RefreshFunc is called once per changed entity after the debounce period.
type RefreshFunc func(ctx context.Context, ref facts.EntityRef) error

// Watcher watches the PARA tree. fsnotify is not recursive, so every
// collection and entity directory is registered, and new directories are
// added as they appear.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	refresh  RefreshFunc
	debounce time.Duration

	mu      sync.Mutex
	pending map[facts.EntityRef]*time.Timer
	wg      sync.WaitGroup
}

// New creates a watcher over root. A non-positive debounce uses
// DefaultDebounce.
func New(root string, debounce time.Duration, fn RefreshFunc) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	w := &Watcher{
		root:     root,
		fsw:      fsw,
		refresh:  fn,
		debounce: debounce,
		pending:  make(map[facts.EntityRef]*time.Timer),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree registers dir and all of its subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return errors.Wrapf(err, "watch %s", p)
		}
		return nil
	})
}

// Run processes events until ctx is cancelled, then waits for in-flight
// refreshes and closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	logger.Infow("watcher: watching", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("watcher: error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logger.Warnw("watcher: could not watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	ref, ok := w.entityFor(event.Name)
	if !ok {
		return
	}
	logger.Debugw("watcher: fact document changed", "entity", ref.String(), "op", event.Op.String())
	w.schedule(ctx, ref)
}

// entityFor maps an event path to its entity when it names a fact document.
func (w *Watcher) entityFor(name string) (facts.EntityRef, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		return facts.EntityRef{}, false
	}
	rel = filepath.ToSlash(rel)
	ref, ok := store.RefFromFactsPath(rel)
	if !ok || ref.Path() != path.Dir(rel) {
		return facts.EntityRef{}, false
	}
	return ref, true
}

// schedule debounces refreshes per entity.
func (w *Watcher) schedule(ctx context.Context, ref facts.EntityRef) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[ref]; ok {
		if t.Stop() {
			w.wg.Done()
		}
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[ref] == t {
			delete(w.pending, ref)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := w.refresh(ctx, ref); err != nil {
			logger.Warnw("watcher: refresh failed", "entity", ref.String(), "error", err)
			return
		}
		logger.Infow("watcher: summary refreshed", "entity", ref.String())
	})
	w.pending[ref] = t
}

func (w *Watcher) close() {
	w.mu.Lock()
	for ref, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, ref)
	}
	w.mu.Unlock()
	w.wg.Wait()
	w.fsw.Close()
}
