package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/paramem/internal/hooks"
)

// Hook commands talk to a running server and never fail the agent, so they
// skip config loading and always exit 0.
var hookCmd = &cobra.Command{
	Use:         "hook",
	Short:       "Handle agent hook events",
	Annotations: skipConfig,
}

func hookEvent(event, short string) *cobra.Command {
	return &cobra.Command{
		Use:         event,
		Short:       short,
		Args:        cobra.NoArgs,
		Annotations: skipConfig,
		Run: func(cmd *cobra.Command, args []string) {
			hooks.Handle(event, os.Stdin)
		},
	}
}

func init() {
	hookCmd.AddCommand(hookEvent("start", "Handle SessionStart: inject hot facts"))
	hookCmd.AddCommand(hookEvent("submit", "Handle UserPromptSubmit: checkpoint on memory signals"))
	hookCmd.AddCommand(hookEvent("end", "Handle SessionEnd: checkpoint the transcript"))
}
