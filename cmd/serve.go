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

	"github.com/spf13/cobra"

	"github.com/cwbudde/piyavskiy/internal/server"
	"github.com/cwbudde/piyavskiy/internal/store"
)

var (
	serveAddr    string
	serveDataDir string
	noStore      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP job server",
	Long: `Starts an HTTP server that runs optimizations as background jobs.

  POST /api/v1/jobs                    create a job (JSON run parameters)
  GET  /api/v1/jobs                    list jobs
  GET  /api/v1/jobs/{id}               job with all iteration records
  GET  /api/v1/jobs/{id}/status        job summary
  GET  /api/v1/jobs/{id}/stream        server-sent progress events
  GET  /api/v1/jobs/{id}/records.csv   iteration table (?labels=en|ru)
  POST /api/v1/jobs/{id}/cancel        stop a running job

Finished jobs are saved to the data directory and can be continued with resume.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory for run storage")
	serveCmd.Flags().BoolVar(&noStore, "no-store", false, "Keep jobs in memory only")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var runStore store.Store
	if !noStore {
		st, err := store.NewFSStore(serveDataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		runStore = st
	}

	srv := server.NewServer(serveAddr, runStore)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	slog.Info("Server stopped")
	return nil
}
