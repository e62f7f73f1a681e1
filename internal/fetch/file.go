package fetch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ironsheep/image-fetch/internal/imaging"
)

// FileFetcher reads images from the local filesystem.
//
// EXIF orientation is applied during decode, so rotated camera images come
// out upright before any geometry runs.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (f *FileFetcher) Fetch(ctx context.Context, src Source, g imaging.Geometry) (*Result, error) {
	p, err := filePath(src.URI)
	if err != nil {
		return nil, Unrecoverable(src.ID(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, Unrecoverable(src.ID(), err)
	}

	file, err := os.Open(p)
	if err != nil {
		return nil, classifyOpenError(src.ID(), err)
	}

	b, err := decodeStream(file, src.ID(), g, true)
	if err != nil {
		return nil, err
	}
	return &Result{Bitmap: b, LoadedFrom: LoadedFromDisk}, nil
}

// filePath returns the local path of a file URL or bare absolute path.
func filePath(uri string) (string, error) {
	if strings.HasPrefix(uri, "/") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid file uri: %w", err)
	}
	if u.Path == "" {
		return "", fmt.Errorf("file uri has no path: %q", uri)
	}
	return u.Path, nil
}
