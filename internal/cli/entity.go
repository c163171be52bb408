package cli

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lazypower/paramem/internal/facts"
)

var (
	entityReason string
	listType     string
	showRefresh  bool
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Manage PARA entities",
}

var entityCreateCmd = &cobra.Command{
	Use:   "create <type> <name>",
	Short: "Create an entity with an empty fact document",
	Long:  "Types: person, company, project, resource. The name is slugified.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := facts.NewRef(args[0], args[1])
		if err != nil {
			return err
		}
		eng, backend, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		created, err := eng.Facts.CreateEntity(cmd.Context(), ref, entityReason)
		if err != nil {
			return err
		}
		if created {
			pterm.Success.Printf("created %s\n", ref)
		} else {
			pterm.Info.Printf("%s already exists\n", ref)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <type> <slug>",
	Short: "Print an entity's summary",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := facts.NewRef(args[0], args[1])
		if err != nil {
			return err
		}
		eng, backend, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		if showRefresh {
			if _, err := eng.RefreshEntity(cmd.Context(), ref); err != nil {
				return err
			}
		}
		text, err := eng.Summary(cmd.Context(), ref)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List entities with their fact counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter facts.EntityType
		if listType != "" {
			var err error
			if filter, err = facts.ParseEntityType(listType); err != nil {
				return err
			}
		}
		eng, backend, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		ctx := cmd.Context()
		refs, err := eng.Entities(ctx)
		if err != nil {
			return err
		}

		rows := [][]string{{"Entity", "Active", "Superseded", "Last updated"}}
		for _, ref := range refs {
			if filter != "" && ref.Type != filter {
				continue
			}
			doc, err := eng.Facts.Load(ctx, ref)
			switch {
			case errors.Is(err, facts.ErrNotFound):
				rows = append(rows, []string{ref.String(), "0", "0", "unknown"})
				continue
			case err != nil:
				rows = append(rows, []string{ref.String(), "-", "-", pterm.Red("malformed")})
				continue
			}
			active, superseded := doc.Counts()
			rows = append(rows, []string{ref.String(), strconv.Itoa(active), strconv.Itoa(superseded), doc.LastUpdated})
		}
		if len(rows) == 1 {
			pterm.Info.Println("no entities")
			return nil
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	entityCreateCmd.Flags().StringVar(&entityReason, "reason", "", "why the entity exists")
	entityCmd.AddCommand(entityCreateCmd)

	showCmd.Flags().BoolVar(&showRefresh, "refresh", false, "regenerate the summary before printing")
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "only list one entity type")
}
