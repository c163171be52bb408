package server

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTranscript writes a small agent JSONL transcript to path.
func writeTranscript(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	for _, entry := range []map[string]any{
		{"type": "user", "message": map[string]any{"role": "user", "content": "Tara joined Acme as CTO last week"}},
		{"type": "assistant", "message": map[string]any{"role": "assistant", "content": "Noted, Tara is now CTO at Acme."}},
	} {
		data, err := json.Marshal(entry)
		require.NoError(t, err)
		_, err = f.Write(append(data, '\n'))
		require.NoError(t, err)
	}
}
