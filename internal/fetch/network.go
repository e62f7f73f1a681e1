package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/ironsheep/image-fetch/internal/imaging"
)

// DefaultUserAgent is sent by HTTPDownloader when none is configured.
const DefaultUserAgent = "image-fetch"

// DefaultHTTPTimeout bounds one download when none is configured.
const DefaultHTTPTimeout = 20 * time.Second

// Response is an open download.
type Response struct {
	Body io.ReadCloser
	// Cached is set when the bytes came from an HTTP cache rather than the origin.
	Cached bool
	// ContentLength is the declared length, or -1 when unknown.
	ContentLength int64
}

// Downloader retrieves the bytes behind a network URL.
//
// Implementations return *RecoverableError or *UnrecoverableError so the
// dispatcher can decide whether to retry.
type Downloader interface {
	Download(ctx context.Context, uri string) (*Response, error)
}

// HTTPDownloaderOptions configures an HTTPDownloader.
type HTTPDownloaderOptions struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
}

// HTTPDownloader is a Downloader over net/http.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
}

// NewHTTPDownloader creates an HTTPDownloader. A nil Client gets one with Timeout.
func NewHTTPDownloader(opts HTTPDownloaderOptions) *HTTPDownloader {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultHTTPTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPDownloader{client: opts.Client, userAgent: opts.UserAgent}
}

// Download implements Downloader.
func (d *HTTPDownloader) Download(ctx context.Context, uri string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, Unrecoverable(uri, fmt.Errorf("invalid request: %w", err))
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Unrecoverable(uri, ctx.Err())
		}
		return nil, Recoverable(uri, err)
	}

	if err := statusError(resp.StatusCode); err != nil {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		resp.Body.Close()
		if isRetryableStatus(resp.StatusCode) {
			return nil, Recoverable(uri, err)
		}
		return nil, Unrecoverable(uri, err)
	}

	return &Response{
		Body:          resp.Body,
		Cached:        resp.Header.Get("Age") != "",
		ContentLength: resp.ContentLength,
	}, nil
}

// HTTPStatusError is a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: %w", ErrNotFound, &HTTPStatusError{StatusCode: code})
	default:
		return &HTTPStatusError{StatusCode: code}
	}
}

func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

// NetworkFetcher fetches http and https sources through a Downloader.
type NetworkFetcher struct {
	Downloader Downloader
	Logger     logr.Logger
}

// Fetch implements Fetcher.
func (f *NetworkFetcher) Fetch(ctx context.Context, src Source, g imaging.Geometry) (*Result, error) {
	resp, err := f.Downloader.Download(ctx, src.URI)
	if err != nil {
		var re *RecoverableError
		var ue *UnrecoverableError
		if errors.As(err, &re) || errors.As(err, &ue) {
			return nil, err
		}
		return nil, Recoverable(src.ID(), err)
	}

	loadedFrom := LoadedFromNetwork
	if resp.Cached {
		loadedFrom = LoadedFromDisk
	}
	if loadedFrom == LoadedFromNetwork && resp.ContentLength == 0 {
		resp.Body.Close()
		return nil, Recoverable(src.ID(), ErrEmptyResponse)
	}

	f.logger().V(1).Info("downloaded image", "source", src.ID(), "loadedFrom", loadedFrom.String(), "contentLength", resp.ContentLength)

	b, err := decodeStream(resp.Body, src.ID(), g, false)
	if err != nil {
		return nil, err
	}
	return &Result{Bitmap: b, LoadedFrom: loadedFrom}, nil
}

func (f *NetworkFetcher) logger() logr.Logger {
	if f.Logger.GetSink() == nil {
		return logr.Discard()
	}
	return f.Logger
}
