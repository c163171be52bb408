package hooks

import (
	"context"
	"io"

	"github.com/lazypower/paramem/internal/client"
)

func handleStart(ctx context.Context, c *client.Client, stdout io.Writer) error {
	text, err := c.Context(ctx)
	if err != nil {
		// Degrade gracefully with empty context
		return WriteSessionStartOutput(stdout, "")
	}
	return WriteSessionStartOutput(stdout, text)
}
