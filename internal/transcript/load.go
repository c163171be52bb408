package transcript

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

// Source names where LoadRecent found context.
type Source string

const (
	SourceNone      Source = ""
	SourceWorkspace Source = "session-context"
	SourceSession   Source = "main-session"
	SourceDailyNote Source = "daily-note"

	// SourceTranscript marks messages read from an agent JSONL transcript.
	SourceTranscript Source = "transcript"
)

// LoadRecent returns recent conversation from the first location that
// exists: <workspace>/.openclaw/session-context.json,
// ~/.openclaw/sessions/main.json, or today's daily note in memoryDir (as a
// single "context" message). Nothing found is not an error.
func LoadRecent(workspace, memoryDir string, now time.Time) ([]Message, Source, error) {
	candidates := []struct {
		path string
		src  Source
	}{
		{filepath.Join(workspace, ".openclaw", "session-context.json"), SourceWorkspace},
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, struct {
			path string
			src  Source
		}{filepath.Join(home, ".openclaw", "sessions", "main.json"), SourceSession})
	}

	for _, c := range candidates {
		data, err := os.ReadFile(c.path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, SourceNone, errors.Wrapf(err, "read %s", c.path)
		}
		msgs, err := ParseSession(data)
		if err != nil {
			return nil, SourceNone, errors.Wrapf(err, "parse %s", c.path)
		}
		return msgs, c.src, nil
	}

	note := filepath.Join(memoryDir, now.Format("2006-01-02")+".md")
	data, err := os.ReadFile(note)
	if os.IsNotExist(err) {
		return nil, SourceNone, nil
	}
	if err != nil {
		return nil, SourceNone, errors.Wrapf(err, "read %s", note)
	}
	return []Message{{Role: "context", Text: string(data)}}, SourceDailyNote, nil
}
