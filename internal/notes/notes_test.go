package notes

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCreatesAndExtends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "memory")
	morning := time.Date(2026, 10, 19, 9, 5, 0, 0, time.UTC)

	path, err := Append(dir, "Tara promoted to CTO", morning)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2026-10-19.md"), path)

	_, err = Append(dir, "  Acme contract signed\n", morning.Add(3*time.Hour))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"# 2026-10-19\n"+
			"\n## 09:05 - Checkpoint\nTara promoted to CTO\n"+
			"\n## 12:05 - Checkpoint\nAcme contract signed\n",
		string(data))
}

func TestAppendEmptyEntry(t *testing.T) {
	dir := t.TempDir()
	_, err := Append(dir, "   ", time.Now())
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
