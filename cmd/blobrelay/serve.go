package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aretw0/blobrelay"
	httpAdapter "github.com/aretw0/blobrelay/internal/adapters/http"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger",
	Long: `Starts the engine behind an HTTP API. Pending transfers found in the state
store are resumed on boot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// runCtx outlives requests; it is cancelled only on shutdown.
		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, cfg, err := loadApp(runCtx, cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		logger := app.Logger

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.HTTPAddr
		}

		server := httpAdapter.NewServer(runCtx, app.Engine,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithGatherer(app.Registry),
			httpAdapter.WithVersion(strings.TrimSpace(blobrelay.Version)),
		)
		srv := &http.Server{
			Addr:              addr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Resumed transfers must be stopped before the store and clients close.
		var resuming sync.WaitGroup
		defer func() {
			stop()
			resuming.Wait()
		}()
		resuming.Add(1)
		go func() {
			defer resuming.Done()
			n, err := app.Engine.ResumePending(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Resume failed", "err", err)
			}
			if n > 0 {
				logger.Info("Resumed pending transfers", "count", n)
			}
		}()

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting blobrelay server", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			return err
		case <-runCtx.Done():
			logger.Info("Start shutdown")
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			if err := srv.Close(); err != nil {
				logger.Error("Error killing server", "err", err)
			}
		}

		// Running transfers stop at their next checkpoint and resume on the next boot.
		server.Wait()
		logger.Info("blobrelay server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Listen address (default HTTP_ADDR)")
}
