package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbeckmann/shapemc/internal/server"
	"github.com/cbeckmann/shapemc/internal/store"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the evolution job server",
	Long: `Starts the HTTP server that runs shape evolution jobs in the background.

Jobs are created with POST /api/v1/jobs, queried under /api/v1/jobs/:id,
streamed as server-sent events from /api/v1/jobs/:id/stream and cancelled
with DELETE. Prometheus metrics are exposed on /metrics.

The checkpoint backend is selected through SHAPEMC_STORE_DRIVER
(fs, memory, sqlite, postgres, s3) and its companion variables.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	openCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	st, err := store.Open(openCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	srv, err := server.NewServer(serveAddr, st)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case s := <-sig:
		slog.Info("received shutdown signal", "signal", s.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
