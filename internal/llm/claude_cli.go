package llm

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
)

// ClaudeCLI runs `claude -p` as a subprocess. The caller's context bounds
// the run.
type ClaudeCLI struct {
	bin   string
	model string
}

// NewClaudeCLI creates a client that runs the claude binary from PATH.
func NewClaudeCLI(model string) *ClaudeCLI {
	return &ClaudeCLI{bin: "claude", model: model}
}

// Complete pipes the prompt to the CLI and returns its trimmed stdout.
func (c *ClaudeCLI) Complete(ctx context.Context, prompt string) (*Response, error) {
	cmd := exec.CommandContext(ctx, c.bin, "-p", "--model", c.model, "--max-turns", "1")
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = filterEnv(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "claude cli (stderr: %s)", strings.TrimSpace(stderr.String()))
	}

	return &Response{
		Content:  strings.TrimSpace(stdout.String()),
		Provider: "claude-cli",
	}, nil
}

// filterEnv drops CLAUDE_* variables so a checkpoint triggered from inside
// an agent session does not run the subprocess as part of that session.
func filterEnv(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "CLAUDE_") {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
