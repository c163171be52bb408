package cli

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lazypower/paramem/internal/client"
	"github.com/lazypower/paramem/internal/engine"
)

var (
	decayQuick bool
	remote     bool
	serverURL  string
	jsonOutput bool
)

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Regenerate every entity summary from its active facts",
	Long: "Runs a decay cycle: each entity's facts are re-tiered by recency and access\n" +
		"frequency and its summary.md is rewritten. A full cycle also flags entities\n" +
		"dominated by superseded facts.",
	Args: cobra.NoArgs,
	RunE: runDecay,
}

func runDecay(cmd *cobra.Command, args []string) error {
	mode := engine.ModeFull
	if decayQuick {
		mode = engine.ModeQuick
	}
	ctx := cmd.Context()
	start := time.Now()

	var stats *engine.CycleStats
	if remote {
		var err error
		stats, err = client.New(serverURL).Decay(ctx, mode)
		if err != nil {
			return err
		}
	} else {
		var err error
		stats, err = localDecay(ctx, mode)
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), stats)
	}
	pterm.Success.Printf("%s decay: %d entities, %d facts summarized in %s\n",
		stats.Mode, stats.EntitiesProcessed, stats.FactsSummarized, time.Since(start).Round(time.Millisecond))
	for _, f := range stats.Failures {
		pterm.Error.Printf("%s: %s\n", f.Entity, f.Error)
	}
	for _, f := range stats.Flagged {
		pterm.Warning.Printf("%s: %d superseded vs %d active facts\n", f.Entity, f.Superseded, f.Active)
	}
	return nil
}

func localDecay(ctx context.Context, mode engine.Mode) (*engine.CycleStats, error) {
	eng, backend, err := openEngine(cfg)
	if err != nil {
		return nil, err
	}
	defer backend.Close()
	return eng.RunDecayCycle(ctx, mode)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&remote, "remote", false, "ask a running server instead of opening the store")
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (default: $PARA_URL or http://127.0.0.1:37778)")
}

func init() {
	decayCmd.Flags().BoolVar(&decayQuick, "quick", false, "skip flagging of superseded-heavy entities")
	decayCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the cycle stats as JSON")
	addRemoteFlags(decayCmd)
}
