package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/watcher"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate summaries when facts.json files change on disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Storage.Backend != "fs" {
			return errors.WithHint(
				errors.Newf("watch needs the fs backend, configured backend is %q", cfg.Storage.Backend),
				"set storage.backend = \"fs\" in paramem.toml")
		}
		eng, backend, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		w, err := watcher.New(cfg.Paths.ParaDir, watchDebounce, func(ctx context.Context, ref facts.EntityRef) error {
			_, err := eng.RefreshEntity(ctx, ref)
			return err
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pterm.Info.Printf("watching %s\n", cfg.Paths.ParaDir)
		return w.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before a changed entity is refreshed")
}
