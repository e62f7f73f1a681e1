// Package config loads image-fetch settings from a YAML file and
// IMAGE_FETCH_* environment variables.
//
// Precedence, lowest first: Default, the config file, the environment, then
// command line flags applied by the caller.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/ironsheep/image-fetch/internal/cache"
	"github.com/ironsheep/image-fetch/internal/dispatch"
	"github.com/ironsheep/image-fetch/internal/fetch"
	"github.com/ironsheep/image-fetch/internal/pipeline"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "IMAGE_FETCH_"

// Duration wraps time.Duration to accept human-readable strings such as
// "500ms" or "20s" in config files, as well as nanosecond numbers.
type Duration time.Duration

// Value returns the underlying time.Duration.
func (d Duration) Value() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("failed to parse duration: %w", err)
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: must be like 500ms, 20s or a nanoseconds number: %w", value, err)
		}
		*d = Duration(tmp)
		return nil
	default:
		return fmt.Errorf("duration must be a string or nanoseconds number, got %T", v)
	}
}

// Config holds every tunable of the service.
type Config struct {
	// Workers is the fetch worker pool size.
	Workers int `json:"workers"`
	// RetryBudget is the number of retries after a recoverable failure.
	// Zero or a negative value disables retries.
	RetryBudget int `json:"retryBudget"`
	// RetryDelay is the fixed wait before each retry. Zero retries at once.
	RetryDelay Duration `json:"retryDelay"`

	// CacheMaxBytes bounds the memory cache by decoded pixel bytes. Zero
	// disables the cache.
	CacheMaxBytes int64 `json:"cacheMaxBytes"`
	// CacheMaxEntries bounds the memory cache by entry count.
	CacheMaxEntries int `json:"cacheMaxEntries"`

	// HTTPTimeout bounds one network download.
	HTTPTimeout Duration `json:"httpTimeout"`
	// UserAgent is sent with network requests.
	UserAgent string `json:"userAgent"`

	// ContentRoot is the directory content:// URIs resolve under. Empty
	// disables content sources.
	ContentRoot string `json:"contentRoot,omitempty"`
	// ResourceDir holds bundled resources. Empty disables resource sources.
	ResourceDir string `json:"resourceDir,omitempty"`

	// LogLevel is "info" or "debug".
	LogLevel string `json:"logLevel"`
	// MetricsAddr, if set, is the listen address of the Prometheus endpoint.
	MetricsAddr string `json:"metricsAddr,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workers:         dispatch.DefaultWorkerCount,
		RetryBudget:     dispatch.DefaultRetryBudget,
		RetryDelay:      Duration(dispatch.DefaultRetryDelay),
		CacheMaxBytes:   pipeline.DefaultCacheMaxBytes,
		CacheMaxEntries: cache.DefaultMaxEntries,
		HTTPTimeout:     Duration(fetch.DefaultHTTPTimeout),
		UserAgent:       fetch.DefaultUserAgent,
		LogLevel:        "info",
	}
}

// Load returns Default overlaid with the YAML file at path. An empty path
// returns Default unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays IMAGE_FETCH_* variables found by lookup, usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	intVar := func(name string, target *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*target = n
		}
	}
	int64Var := func(name string, target *int64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*target = n
		}
	}
	durationVar := func(name string, target *Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*target = Duration(d)
		}
	}
	stringVar := func(name string, target *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*target = v
		}
	}

	intVar("WORKERS", &c.Workers)
	intVar("RETRY_BUDGET", &c.RetryBudget)
	durationVar("RETRY_DELAY", &c.RetryDelay)
	int64Var("CACHE_MAX_BYTES", &c.CacheMaxBytes)
	intVar("CACHE_MAX_ENTRIES", &c.CacheMaxEntries)
	durationVar("HTTP_TIMEOUT", &c.HTTPTimeout)
	stringVar("USER_AGENT", &c.UserAgent)
	stringVar("CONTENT_ROOT", &c.ContentRoot)
	stringVar("RESOURCE_DIR", &c.ResourceDir)
	stringVar("LOG_LEVEL", &c.LogLevel)
	stringVar("METRICS_ADDR", &c.MetricsAddr)

	return errors.Join(errs...)
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retryDelay must not be negative, got %s", c.RetryDelay))
	}
	if c.CacheMaxBytes < 0 {
		errs = append(errs, fmt.Errorf("cacheMaxBytes must not be negative, got %d", c.CacheMaxBytes))
	}
	if c.CacheMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cacheMaxEntries must not be negative, got %d", c.CacheMaxEntries))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("httpTimeout must be positive, got %s", c.HTTPTimeout))
	}
	switch strings.ToLower(c.LogLevel) {
	case "info", "debug":
	default:
		errs = append(errs, fmt.Errorf("logLevel must be info or debug, got %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// Debug reports whether debug logging is enabled.
func (c Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}
