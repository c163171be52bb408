// Package indexer notifies the external search index that memory files
// changed. The index is optional: a missing binary is not an error.
package indexer

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/config"
	"github.com/lazypower/paramem/internal/logger"
)

// QMD runs `qmd update` over the memory collections.
type QMD struct {
	Command string
	Args    []string
	Timeout time.Duration

	lookPath func(string) (string, error)
}

// New builds the configured indexer. An empty command yields Nop.
func New(cfg config.IndexerConfig) Updater {
	if strings.TrimSpace(cfg.Command) == "" {
		return Nop{}
	}
	return &QMD{
		Command: cfg.Command,
		Args:    cfg.Args,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// Updater is satisfied by every indexer.
type Updater interface {
	Update(ctx context.Context) error
}

func (q *QMD) Update(ctx context.Context) error {
	look := q.lookPath
	if look == nil {
		look = exec.LookPath
	}
	bin, err := look(q.Command)
	if err != nil {
		logger.Debugw("indexer: binary not found, skipping", "command", q.Command)
		return nil
	}

	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, q.Args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return errors.WithDetail(
			errors.Wrapf(err, "%s %s", q.Command, strings.Join(q.Args, " ")),
			strings.TrimSpace(stderr.String()))
	}
	logger.Debugw("indexer: updated", "command", q.Command, "elapsed", time.Since(start))
	return nil
}

// Nop ignores updates.
type Nop struct{}

func (Nop) Update(context.Context) error { return nil }
