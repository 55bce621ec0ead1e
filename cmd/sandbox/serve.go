package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cryguy/sandbox"
	"github.com/cryguy/sandbox/internal/config"
	"github.com/cryguy/sandbox/internal/metrics"
	"github.com/cryguy/sandbox/internal/server"
)

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sandbox over a websocket",
	Long: `Start an HTTP server. Each text frame sent to /ws is a JSON request
{"id", "source", "timeout_seconds", "memory_bytes"} and is answered with a
JSON outcome. Prometheus metrics are served on /metrics.

Examples:
  sandbox serve
  sandbox serve --addr 127.0.0.1:9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	addr := cfg.Server.Addr
	if addrFlag != "" {
		addr = addrFlag
	}

	m := metrics.NewCollector()
	sb := sandbox.New(cfg.Limits.Core(), sandbox.WithLogger(logger), sandbox.WithMetrics(m))
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(sb, m, logger, cfg.Server.MaxConcurrent).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serve: listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
