// Package notes writes the per-day timeline notes under the memory directory.
package notes

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/facts"
)

// PathFor returns the daily note path for the day of now.
func PathFor(dir string, now time.Time) string {
	return filepath.Join(dir, now.Format(facts.DateLayout)+".md")
}

// Append adds a checkpoint entry to today's note, creating the note with a
// date heading if it does not exist yet.
func Append(dir, entry string, now time.Time) (string, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return "", errors.New("empty daily note entry")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create memory dir")
	}

	path := PathFor(dir, now)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errors.Wrapf(err, "open daily note %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.Wrapf(err, "stat daily note %s", path)
	}

	var b strings.Builder
	if info.Size() == 0 {
		b.WriteString("# " + now.Format(facts.DateLayout) + "\n")
	}
	b.WriteString("\n## " + now.Format("15:04") + " - Checkpoint\n" + entry + "\n")

	if _, err := f.WriteString(b.String()); err != nil {
		return "", errors.Wrapf(err, "write daily note %s", path)
	}
	return path, nil
}
