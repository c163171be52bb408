package indexer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/paramem/internal/config"
)

func TestNewEmptyCommandIsNop(t *testing.T) {
	assert.IsType(t, Nop{}, New(config.IndexerConfig{}))
	assert.NoError(t, Nop{}.Update(context.Background()))
}

func TestMissingBinaryIsNoop(t *testing.T) {
	q := &QMD{Command: "qmd-does-not-exist-here", Args: []string{"update"}}
	assert.NoError(t, q.Update(context.Background()))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	path := filepath.Join(t.TempDir(), "fake-qmd")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestRunsWithArgs(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args.txt")
	script := writeScript(t, `echo "$@" > "`+out+`"`)

	q := New(config.IndexerConfig{
		Command:        script,
		Args:           []string{"update", "-c", "memory", "-c", "para", "-c", "para-facts"},
		TimeoutSeconds: 10,
	})
	require.NoError(t, q.Update(context.Background()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "update -c memory -c para -c para-facts\n", string(data))
}

func TestFailureReturnsError(t *testing.T) {
	script := writeScript(t, "echo broken index >&2; exit 3")
	q := &QMD{Command: script, Args: []string{"update"}}

	err := q.Update(context.Background())
	require.Error(t, err)
	assert.Contains(t, errors.FlattenDetails(err), "broken index")
}

func TestTimeout(t *testing.T) {
	script := writeScript(t, "exec sleep 10")
	q := &QMD{Command: script, Timeout: 50 * time.Millisecond}

	start := time.Now()
	require.Error(t, q.Update(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
}
