package hooks

import (
	"context"
	"strings"

	"github.com/lazypower/paramem/internal/client"
	"github.com/lazypower/paramem/internal/llm"
)

// signalTriggers are phrases that indicate the user wants something
// remembered now rather than at the next scheduled checkpoint.
var signalTriggers = []string{
	"remember this", "don't forget", "note that",
	"we decided", "from now on",
	"promoted", "joined", "left the company", "moved to",
	"deadline is", "launched", "signed",
}

// isInternalPrompt returns true if the prompt came from paramem's own LLM
// calls. The sentinel must be at the start of the prompt.
func isInternalPrompt(prompt string) bool {
	return strings.HasPrefix(prompt, llm.InternalSentinel)
}

// hasSignal returns true if the prompt contains any signal trigger phrase.
func hasSignal(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, trigger := range signalTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

func handleSubmit(ctx context.Context, c *client.Client, input *HookInput) error {
	if isInternalPrompt(input.Prompt) || !hasSignal(input.Prompt) {
		return nil
	}
	return c.Checkpoint(ctx, "signal", input.TranscriptPath)
}
