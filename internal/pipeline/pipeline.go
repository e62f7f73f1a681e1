// Package pipeline is the entry point for loading images.
//
// A Pipeline owns a Dispatcher, a memory cache and a fetch Registry. Callers
// describe a request with a RequestBuilder and either bind it to a consumer
// with Into, wait for it with Fetch, or run it on the calling goroutine with
// Get.
//
// Each consumer has at most one live request: binding a new request to a
// consumer cancels the one it replaces.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/ironsheep/image-fetch/internal/cache"
	"github.com/ironsheep/image-fetch/internal/dispatch"
	"github.com/ironsheep/image-fetch/internal/fetch"
	"github.com/ironsheep/image-fetch/internal/fingerprint"
	"github.com/ironsheep/image-fetch/internal/imaging"
)

// DefaultCacheMaxBytes bounds the default memory cache.
const DefaultCacheMaxBytes = 64 << 20

// Options configures a Pipeline.
type Options struct {
	// Registry selects a fetcher per source. Defaults to fetch.NewRegistry
	// with network and file support only.
	Registry *fetch.Registry
	// Cache defaults to an LRU of DefaultCacheMaxBytes.
	Cache cache.Cache

	WorkerCount int
	RetryBudget int
	RetryDelay  time.Duration

	Listener dispatch.Listener
	Clock    clock.WithDelayedExecution
	Logger   logr.Logger
}

// Pipeline loads, transforms and caches images for consumers.
type Pipeline struct {
	registry   *fetch.Registry
	cache      cache.Cache
	dispatcher *dispatch.Dispatcher
	logger     logr.Logger

	mu      sync.Mutex
	targets map[any]*dispatch.Request
}

// Snapshot is a point-in-time view of pipeline state.
type Snapshot struct {
	Cache    cache.Stats `json:"cache"`
	InFlight int         `json:"in_flight"`
	Tracked  int         `json:"tracked_consumers"`
}

// New creates a Pipeline. Call Start to begin processing.
func New(opts Options) (*Pipeline, error) {
	if opts.WorkerCount < 0 {
		return nil, fmt.Errorf("worker count must not be negative: %d", opts.WorkerCount)
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Registry == nil {
		opts.Registry = fetch.NewRegistry(fetch.RegistryOptions{Logger: opts.Logger.WithName("fetch")})
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewLRU(DefaultCacheMaxBytes, 0)
	}

	p := &Pipeline{
		registry: opts.Registry,
		cache:    opts.Cache,
		logger:   opts.Logger,
		targets:  make(map[any]*dispatch.Request),
	}
	p.dispatcher = dispatch.New(dispatch.Options{
		WorkerCount: opts.WorkerCount,
		RetryBudget: opts.RetryBudget,
		RetryDelay:  opts.RetryDelay,
		Cache:       opts.Cache,
		Listener:    opts.Listener,
		OnRelease:   p.release,
		Clock:       opts.Clock,
		Logger:      opts.Logger.WithName("dispatcher"),
	})
	return p, nil
}

// Start runs the dispatcher until ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) error {
	return p.dispatcher.Start(ctx)
}

// Load starts a request for a URI: http(s), file, content or resource.
func (p *Pipeline) Load(uri string) *RequestBuilder {
	b := &RequestBuilder{p: p, source: fetch.Source{URI: uri}}
	if uri == "" {
		b.err = errors.New("uri must not be empty")
	}
	return b
}

// LoadFile starts a request for a local file path.
func (p *Pipeline) LoadFile(path string) *RequestBuilder {
	b := &RequestBuilder{p: p, source: fetch.Source{URI: path}}
	if path == "" {
		b.err = errors.New("path must not be empty")
	}
	return b
}

// LoadResource starts a request for a bundled resource.
func (p *Pipeline) LoadResource(id int) *RequestBuilder {
	b := &RequestBuilder{p: p, source: fetch.Source{ResourceID: id}}
	if id == 0 {
		b.err = errors.New("resource id must not be zero")
	}
	return b
}

// CancelRequest cancels the live request of consumer, if any.
func (p *Pipeline) CancelRequest(consumer any) {
	if !isComparable(consumer) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.targets[consumer]; ok {
		r.Cancel()
		delete(p.targets, consumer)
	}
}

// QuickMemoryCacheCheck returns the cached bitmap for key without touching
// the dispatcher.
func (p *Pipeline) QuickMemoryCacheCheck(key fingerprint.Key) (*imaging.Bitmap, bool) {
	return p.cache.Get(key)
}

// Cache returns the memory cache.
func (p *Pipeline) Cache() cache.Cache {
	return p.cache
}

// Registry returns the fetch registry.
func (p *Pipeline) Registry() *fetch.Registry {
	return p.registry
}

// Snapshot reports cache statistics and queue depth.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	tracked := len(p.targets)
	p.mu.Unlock()

	return Snapshot{
		Cache:    p.cache.Stats(),
		InFlight: p.dispatcher.InFlight(),
		Tracked:  tracked,
	}
}

// track binds r to its consumer, cancelling the request it replaces.
func (p *Pipeline) track(r *dispatch.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.targets[r.Consumer]; ok && old != r {
		old.Cancel()
		p.logger.V(1).Info("cancelled replaced request", "request", old.ID, "key", old.Key.Short())
	}
	p.targets[r.Consumer] = r
}

// release unbinds r, unless its consumer has moved on to another request.
func (p *Pipeline) release(r *dispatch.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.targets[r.Consumer] == r {
		delete(p.targets, r.Consumer)
	}
}

// isComparable reports whether v can be used as a map key. Interface fields
// are checked by their dynamic type, so a struct holding a slice in an any
// field is rejected.
func isComparable(v any) bool {
	return v != nil && reflect.ValueOf(v).Comparable()
}
