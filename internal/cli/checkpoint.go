package cli

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lazypower/paramem/internal/client"
	"github.com/lazypower/paramem/internal/engine"
	"github.com/lazypower/paramem/internal/transcript"
)

var checkpointTranscript string

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint [reason]",
	Short: "Distill recent conversation into entity facts",
	Long: "Reads recent conversation (a --transcript file, the workspace session,\n" +
		"the main session, or today's daily note), asks the LLM for durable facts,\n" +
		"and writes them to the PARA tree.",
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckpoint,
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	reason := "manual"
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		reason = args[0]
	}
	ctx := cmd.Context()

	if remote {
		if err := client.New(serverURL).Checkpoint(ctx, reason, checkpointTranscript); err != nil {
			return err
		}
		pterm.Info.Println("checkpoint started on server")
		return nil
	}

	eng, backend, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	var res *engine.CheckpointResult
	if checkpointTranscript != "" {
		msgs, perr := transcript.ParseJSONL(checkpointTranscript)
		if perr != nil {
			return errors.Wrap(perr, "read transcript")
		}
		res, err = eng.CheckpointMessages(ctx, reason, msgs, transcript.SourceTranscript)
	} else {
		res, err = eng.Checkpoint(ctx, reason)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	switch res.Status {
	case engine.StatusSkipped:
		pterm.Info.Printf("checkpoint skipped: %s\n", res.SkipReason)
	case engine.StatusError:
		return errors.Newf("checkpoint %s failed: %s", res.ID, res.Error)
	default:
		pterm.Success.Printf("checkpoint %s: %d entities created, %d facts added, %d superseded\n",
			res.ID, res.Stats.EntitiesCreated, res.Stats.FactsAdded, res.Stats.FactsSuperseded)
		for _, d := range res.Decisions {
			pterm.Info.Printf("decision: %s\n", d)
		}
		for _, f := range res.Failures {
			pterm.Warning.Printf("%s: %s\n", f.Entity, f.Error)
		}
	}
	return nil
}

func init() {
	checkpointCmd.Flags().StringVar(&checkpointTranscript, "transcript", "", "read conversation from an agent JSONL transcript")
	checkpointCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the checkpoint result as JSON")
	addRemoteFlags(checkpointCmd)
}
