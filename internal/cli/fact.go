package cli

import (
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/factstore"
)

var (
	factCategory   string
	factRelated    []string
	factSupersedes string
)

var factCmd = &cobra.Command{
	Use:   "fact",
	Short: "Record and touch entity facts",
}

var factAddCmd = &cobra.Command{
	Use:   "add <type> <slug> <content>",
	Short: "Append a fact to an entity, creating the entity if needed",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := facts.NewRef(args[0], args[1])
		if err != nil {
			return err
		}
		content := strings.TrimSpace(args[2])
		cat, err := facts.ParseCategory(factCategory)
		if err != nil {
			return err
		}

		eng, backend, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		res, err := eng.AddFact(cmd.Context(), factstore.NewFact{
			Entity:     ref,
			Content:    content,
			Category:   cat,
			Related:    factRelated,
			Supersedes: factSupersedes,
			Source:     &facts.Source{Type: "manual", Timestamp: eng.Now().Format(time.RFC3339)},
		})
		if err != nil {
			return err
		}
		if res.Duplicate {
			pterm.Info.Printf("%s already has this fact\n", ref)
			return nil
		}
		pterm.Success.Printf("%s: added %s\n", ref, res.Fact.ID)
		if res.Superseded != "" {
			pterm.Info.Printf("superseded %s\n", res.Superseded)
		}
		if res.Propagated > 0 {
			pterm.Info.Printf("linked from %d related entities\n", res.Propagated)
		}
		return nil
	},
}

var factBumpCmd = &cobra.Command{
	Use:   "bump <type> <slug> [fact-id...]",
	Short: "Record access to facts (all facts when no ids are given)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := facts.NewRef(args[0], args[1])
		if err != nil {
			return err
		}
		var ids []string
		if len(args) > 2 {
			ids = args[2:]
		}

		eng, backend, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		n, err := eng.TouchFacts(cmd.Context(), ref, ids)
		if err != nil {
			return err
		}
		pterm.Success.Printf("%s: %d facts bumped\n", ref, n)
		return nil
	},
}

func init() {
	factAddCmd.Flags().StringVarP(&factCategory, "category", "c", "", "milestone, status, preference, relationship, or context (default)")
	factAddCmd.Flags().StringSliceVarP(&factRelated, "related", "r", nil, "related entity paths, e.g. areas/people/tara")
	factAddCmd.Flags().StringVar(&factSupersedes, "supersedes", "", "id of the fact this one replaces")

	factCmd.AddCommand(factAddCmd)
	factCmd.AddCommand(factBumpCmd)
}
