package hooks

import (
	"context"

	"github.com/lazypower/paramem/internal/client"
)

func handleEnd(ctx context.Context, c *client.Client, input *HookInput) error {
	reason := "session-end"
	if input.Reason != "" {
		reason += ":" + input.Reason
	}
	return c.Checkpoint(ctx, reason, input.TranscriptPath)
}
