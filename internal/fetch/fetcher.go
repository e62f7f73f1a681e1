package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ironsheep/image-fetch/internal/imaging"
)

// LoadedFrom is the provenance of a delivered bitmap.
type LoadedFrom int

const (
	LoadedFromMemory LoadedFrom = iota
	LoadedFromDisk
	LoadedFromNetwork
)

func (l LoadedFrom) String() string {
	switch l {
	case LoadedFromMemory:
		return "memory"
	case LoadedFromDisk:
		return "disk"
	case LoadedFromNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Result is a decoded bitmap and where it came from.
type Result struct {
	Bitmap     *imaging.Bitmap
	LoadedFrom LoadedFrom
}

// Fetcher loads one Source and decodes it, honoring g as a sampling hint.
//
// Errors are *RecoverableError or *UnrecoverableError.
type Fetcher interface {
	Fetch(ctx context.Context, src Source, g imaging.Geometry) (*Result, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, src Source, g imaging.Geometry) (*Result, error)

func (f FetcherFunc) Fetch(ctx context.Context, src Source, g imaging.Geometry) (*Result, error) {
	return f(ctx, src, g)
}

// RegistryOptions configures the default fetchers of NewRegistry.
type RegistryOptions struct {
	// Downloader serves network sources. Defaults to an HTTPDownloader.
	Downloader Downloader
	// Resolver serves content and contact sources. Nil leaves those kinds unregistered.
	Resolver ContentResolver
	// Resources holds bundled images. Nil leaves resources unregistered.
	Resources fs.FS
	// Logger is used for debug output.
	Logger logr.Logger
}

// Registry maps each Kind to its Fetcher.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[Kind]Fetcher
}

// NewRegistry creates a Registry with the default fetchers for opts.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Downloader == nil {
		opts.Downloader = NewHTTPDownloader(HTTPDownloaderOptions{})
	}

	r := &Registry{fetchers: make(map[Kind]Fetcher)}
	r.Register(KindNetwork, &NetworkFetcher{Downloader: opts.Downloader, Logger: opts.Logger})
	r.Register(KindFile, &FileFetcher{})
	if opts.Resolver != nil {
		r.Register(KindContent, &ContentFetcher{Resolver: opts.Resolver})
		r.Register(KindContactsPhoto, &ContactsPhotoFetcher{Resolver: opts.Resolver})
	}
	if opts.Resources != nil {
		r.Register(KindResource, &ResourceFetcher{FS: opts.Resources})
	}
	return r
}

// Register installs f for k, replacing any previous fetcher.
func (r *Registry) Register(k Kind, f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[k] = f
}

// For classifies src and returns its Kind and Fetcher.
func (r *Registry) For(src Source) (Kind, Fetcher, error) {
	kind, err := Classify(src)
	if err != nil {
		return KindUnknown, nil, err
	}

	r.mu.RLock()
	f, ok := r.fetchers[kind]
	r.mu.RUnlock()
	if !ok {
		return kind, nil, fmt.Errorf("%w: no fetcher registered for %s sources", ErrUnsupportedSource, kind)
	}
	return kind, f, nil
}

// decodeStream decodes rc and closes it, classifying failures for source.
func decodeStream(rc io.ReadCloser, source string, g imaging.Geometry, autoOrient bool) (*imaging.Bitmap, error) {
	defer rc.Close()

	b, err := imaging.Decode(rc, imaging.DecodeOptions{Geometry: g, AutoOrient: autoOrient})
	if err != nil {
		if errors.Is(err, imaging.ErrMalformed) {
			return nil, Unrecoverable(source, err)
		}
		return nil, Recoverable(source, err)
	}
	return b, nil
}

// classifyOpenError maps an error from opening a local source.
func classifyOpenError(source string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
		return Unrecoverable(source, fmt.Errorf("%w: %v", ErrNotFound, err))
	}
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrInvalid) {
		return Unrecoverable(source, err)
	}
	return Recoverable(source, err)
}
