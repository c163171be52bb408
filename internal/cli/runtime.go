package cli

import (
	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/config"
	"github.com/lazypower/paramem/internal/engine"
	"github.com/lazypower/paramem/internal/extract"
	"github.com/lazypower/paramem/internal/indexer"
	"github.com/lazypower/paramem/internal/llm"
	"github.com/lazypower/paramem/internal/logger"
	"github.com/lazypower/paramem/internal/store"
)

// openBackend opens the configured storage backend.
func openBackend(c *config.Config) (store.Backend, error) {
	switch c.Storage.Backend {
	case "sqlite":
		path := c.Storage.DBPath
		if path == "" {
			var err error
			path, err = store.DefaultDBPath()
			if err != nil {
				return nil, errors.Wrap(err, "resolve db path")
			}
		}
		db, err := store.OpenSQLite(path)
		if err != nil {
			return nil, errors.Wrap(err, "open database")
		}
		return db, nil
	default:
		fs, err := store.OpenFS(c.Paths.ParaDir, c.Paths.CacheDir)
		if err != nil {
			return nil, errors.Wrap(err, "open para tree")
		}
		return fs, nil
	}
}

// openEngine wires an Engine from configuration. A disabled LLM leaves the
// engine without an extractor; checkpoints then report skipped.
func openEngine(c *config.Config) (*engine.Engine, store.Backend, error) {
	backend, err := openBackend(c)
	if err != nil {
		return nil, nil, err
	}

	var extractor extract.Extractor
	client, err := llm.NewClient(c.LLM)
	switch {
	case errors.Is(err, llm.ErrDisabled):
		logger.Debugw("llm disabled, checkpoints will be skipped")
	case err != nil:
		logger.Warnw("llm not configured, checkpoints will be skipped", "error", err)
	default:
		extractor = extract.NewLLM(client, c.CheckpointTimeout())
	}

	eng := engine.New(engine.Options{
		Backend:     backend,
		Tiers:       c.Tiers,
		Indexer:     indexer.New(c.Indexer),
		Extractor:   extractor,
		Workspace:   c.Workspace,
		MemoryDir:   c.Paths.MemoryDir,
		MaxMessages: c.Checkpoint.MaxMessages,
		MaxChars:    c.Checkpoint.MaxChars,
	})
	return eng, backend, nil
}
