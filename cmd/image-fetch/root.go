package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/ironsheep/image-fetch/internal/config"
)

const (
	flagConfig      = "config"
	flagLogLevel    = "log-level"
	flagWorkers     = "workers"
	flagRetryBudget = "retry-budget"
	flagRetryDelay  = "retry-delay"
	flagCacheBytes  = "cache-max-bytes"
	flagContentRoot = "content-root"
	flagResourceDir = "resource-dir"
	flagMetricsAddr = "metrics-addr"
)

func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	cmd := &cobra.Command{
		Use:   "image-fetch [sub-command]",
		Short: "Coalescing image fetch and transform pipeline",
		Long: `image-fetch loads images from files, HTTP, content roots and bundled
resources, resizes and transforms them, and keeps the results in a memory
cache. Identical concurrent requests share a single fetch.

Without a sub-command it runs the MCP server on stdin and stdout.`,
		RunE:              serve.RunE,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	flags := cmd.PersistentFlags()
	flags.String(flagConfig, "", "Path to a YAML config file")
	flags.String(flagLogLevel, "", `Log level, "info" or "debug" (overrides IMAGE_FETCH_LOG_LEVEL)`)
	flags.Int(flagWorkers, 0, "Number of fetch workers")
	flags.Int(flagRetryBudget, 0, "Retries after a transient failure; 0 disables retries")
	flags.Duration(flagRetryDelay, 0, `Wait before each retry (e.g. "500ms")`)
	flags.Int64(flagCacheBytes, 0, "Memory cache size in bytes; 0 disables the cache")
	flags.String(flagContentRoot, "", "Directory that content:// URIs resolve under")
	flags.String(flagResourceDir, "", "Directory holding bundled resources")
	flags.String(flagMetricsAddr, "", `Serve Prometheus metrics on this address (e.g. ":9090")`)

	cmd.AddCommand(serve)
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadConfig resolves the effective configuration: defaults, then the config
// file, then the environment, then flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	path, err := flags.GetString(flagConfig)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	if flags.Changed(flagLogLevel) {
		cfg.LogLevel, _ = flags.GetString(flagLogLevel)
	}
	if flags.Changed(flagWorkers) {
		cfg.Workers, _ = flags.GetInt(flagWorkers)
	}
	if flags.Changed(flagRetryBudget) {
		cfg.RetryBudget, _ = flags.GetInt(flagRetryBudget)
	}
	if flags.Changed(flagRetryDelay) {
		d, _ := flags.GetDuration(flagRetryDelay)
		cfg.RetryDelay = config.Duration(d)
	}
	if flags.Changed(flagCacheBytes) {
		cfg.CacheMaxBytes, _ = flags.GetInt64(flagCacheBytes)
	}
	if flags.Changed(flagContentRoot) {
		cfg.ContentRoot, _ = flags.GetString(flagContentRoot)
	}
	if flags.Changed(flagResourceDir) {
		cfg.ResourceDir, _ = flags.GetString(flagResourceDir)
	}
	if flags.Changed(flagMetricsAddr) {
		cfg.MetricsAddr, _ = flags.GetString(flagMetricsAddr)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger logs to stderr; stdout carries the MCP protocol.
func newLogger(cfg config.Config) logr.Logger {
	if cfg.Debug() {
		stdr.SetVerbosity(1)
	}
	return stdr.New(log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)).WithName("image-fetch")
}
