// Package hooks handles agent hook events: injecting memory at session
// start and triggering checkpoints from the conversation transcript.
package hooks

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/client"
)

// hookTimeout bounds one hook invocation; hooks must never stall the agent.
const hookTimeout = 10 * time.Second

// Handle reads HookInput from stdin, dispatches on event, and writes any
// hook output to stdout. Failures are reported on stderr only.
func Handle(event string, stdin io.Reader) {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	if err := HandleWith(ctx, client.New(""), event, stdin, os.Stdout); err != nil {
		ExitError(err)
	}
}

// HandleWith is Handle with an explicit client and output.
func HandleWith(ctx context.Context, c *client.Client, event string, stdin io.Reader, stdout io.Writer) error {
	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil {
		// Stdin may be empty for some events
		if event == "start" {
			return WriteSessionStartOutput(stdout, "")
		}
		return errors.Wrap(err, "decode stdin")
	}

	// Server down is not an error
	if !c.Healthy(ctx) {
		if event == "start" {
			return WriteSessionStartOutput(stdout, "")
		}
		return nil
	}

	switch event {
	case "start":
		return handleStart(ctx, c, stdout)
	case "submit":
		return handleSubmit(ctx, c, &input)
	case "end":
		return handleEnd(ctx, c, &input)
	default:
		return errors.Newf("unknown hook event: %s", event)
	}
}
