package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-fetch/internal/dispatch"
	"github.com/ironsheep/image-fetch/internal/fetch"
	"github.com/ironsheep/image-fetch/internal/pipeline"
	"github.com/ironsheep/image-fetch/internal/server"
)

const metricsShutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin and stdout",
		Long: `Run the MCP server on stdin and stdout. Logs go to stderr.

Environment variables:
  IMAGE_FETCH_LOG_LEVEL=debug    Enable debug logging
  IMAGE_FETCH_WORKERS, IMAGE_FETCH_RETRY_BUDGET, IMAGE_FETCH_RETRY_DELAY,
  IMAGE_FETCH_CACHE_MAX_BYTES, IMAGE_FETCH_CACHE_MAX_ENTRIES,
  IMAGE_FETCH_HTTP_TIMEOUT, IMAGE_FETCH_USER_AGENT, IMAGE_FETCH_CONTENT_ROOT,
  IMAGE_FETCH_RESOURCE_DIR, IMAGE_FETCH_METRICS_ADDR`,
		Args:              cobra.NoArgs,
		RunE:              runServe,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	logger.V(1).Info("starting", "version", Version, "buildTime", BuildTime, "commit", GitCommit)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := cfg.PipelineOptions(logger)
	opts.Listener = failureLogger(logger)
	p, err := pipeline.New(opts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Start(gctx)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, logger)
		})
	}

	g.Go(func() error {
		// the client hanging up ends the pipeline too
		defer stop()
		srv := server.New(p, server.Options{Version: Version, Logger: logger})
		return srv.Run(gctx)
	})
	return g.Wait()
}

// failureLogger reports terminal fetch failures once per failed task.
func failureLogger(logger logr.Logger) dispatch.Listener {
	return dispatch.ListenerFunc(func(src fetch.Source, err error) {
		logger.Info("image fetch failed", "source", src.ID(), "error", err.Error())
	})
}

func serveMetrics(ctx context.Context, addr string, logger logr.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
