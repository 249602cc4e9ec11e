package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/invsizer/internal/server"
	"github.com/cwbudde/invsizer/internal/store"
)

var (
	serveAddr     string
	serveNoRecord bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run optimize and grid jobs behind an HTTP API",
	Long: `Starts an HTTP server that accepts sizing jobs on /api/v1/jobs, streams
their progress as server-sent events and exposes Prometheus metrics on
/metrics. Finished runs are recorded under the data directory.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&serveNoRecord, "no-record", false, "Keep job results in memory only")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var st store.Store
	if !serveNoRecord {
		fs, err := store.NewFSStore(dataDir())
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		st = fs
	}

	srv := server.NewServer(serveAddr, st, currentConfig())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	ctx := commandContext(cmd)
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
