package config

import (
	"os"

	"github.com/go-logr/logr"

	"github.com/ironsheep/image-fetch/internal/cache"
	"github.com/ironsheep/image-fetch/internal/fetch"
	"github.com/ironsheep/image-fetch/internal/pipeline"
)

// Registry builds the fetch registry described by c.
func (c Config) Registry(logger logr.Logger) *fetch.Registry {
	opts := fetch.RegistryOptions{
		Downloader: fetch.NewHTTPDownloader(fetch.HTTPDownloaderOptions{
			Timeout:   c.HTTPTimeout.Value(),
			UserAgent: c.UserAgent,
		}),
		Logger: logger,
	}
	if c.ContentRoot != "" {
		opts.Resolver = &fetch.DirResolver{Root: c.ContentRoot}
	}
	if c.ResourceDir != "" {
		opts.Resources = os.DirFS(c.ResourceDir)
	}
	return fetch.NewRegistry(opts)
}

// Cache builds the memory cache described by c.
func (c Config) Cache() cache.Cache {
	if c.CacheMaxBytes == 0 {
		return cache.None
	}
	return cache.NewLRU(c.CacheMaxBytes, c.CacheMaxEntries)
}

// PipelineOptions translates c into pipeline options. Zero retry settings
// mean "none" here, while the dispatcher reads zero as "default".
func (c Config) PipelineOptions(logger logr.Logger) pipeline.Options {
	budget := c.RetryBudget
	if budget <= 0 {
		budget = -1
	}
	delay := c.RetryDelay.Value()
	if delay == 0 {
		delay = -1
	}
	return pipeline.Options{
		Registry:    c.Registry(logger.WithName("fetch")),
		Cache:       c.Cache(),
		WorkerCount: c.Workers,
		RetryBudget: budget,
		RetryDelay:  delay,
		Logger:      logger,
	}
}
