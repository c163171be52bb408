package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lazypower/paramem/internal/engine"
	"github.com/lazypower/paramem/internal/logger"
	"github.com/lazypower/paramem/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and scheduled decay/checkpoints",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, backend, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng.StartSchedules(ctx, engine.Schedule{
		Decay:      cfg.DecayInterval(),
		Checkpoint: cfg.CheckpointInterval(),
	})
	defer eng.Stop()

	srv := server.New(eng, VersionString())
	defer srv.Close()

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	pterm.Info.Printf("paramem serving on %s\n", addr)
	pterm.Info.Printf("para: %s (%s backend)\n", cfg.Paths.ParaDir, cfg.Storage.Backend)
	if eng.CheckpointsEnabled() {
		pterm.Info.Printf("llm: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	} else {
		pterm.Warning.Println("llm disabled, checkpoints will be skipped")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
	case <-ctx.Done():
	}
	logger.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
