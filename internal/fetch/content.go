package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ironsheep/image-fetch/internal/imaging"
)

// ContentResolver opens content URIs.
type ContentResolver interface {
	Open(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// DirResolver resolves content://<authority>/<path> to <Root>/<authority>/<path>.
// Lookups cannot escape Root.
type DirResolver struct {
	Root string
}

// Open implements ContentResolver.
func (r DirResolver) Open(_ context.Context, u *url.URL) (io.ReadCloser, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("content uri has no authority: %q", u.String())
	}
	name := filepath.Join(u.Host, filepath.FromSlash(strings.TrimPrefix(path.Clean("/"+u.Path), "/")))

	f, err := os.OpenInRoot(r.Root, name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ContentFetcher fetches content URIs through a ContentResolver.
type ContentFetcher struct {
	Resolver ContentResolver
}

// Fetch implements Fetcher.
func (f *ContentFetcher) Fetch(ctx context.Context, src Source, g imaging.Geometry) (*Result, error) {
	u, err := url.Parse(src.URI)
	if err != nil {
		return nil, Unrecoverable(src.ID(), err)
	}
	return openAndDecode(ctx, f.Resolver, u, src.ID(), g)
}

// ContactsPhotoFetcher fetches the photo of a contact record.
//
// A contact URI addresses the contact itself; the photo lives in the
// contact's photo directory, which is what gets opened.
type ContactsPhotoFetcher struct {
	Resolver ContentResolver
}

// Fetch implements Fetcher.
func (f *ContactsPhotoFetcher) Fetch(ctx context.Context, src Source, g imaging.Geometry) (*Result, error) {
	u, err := url.Parse(src.URI)
	if err != nil {
		return nil, Unrecoverable(src.ID(), err)
	}
	photo := *u
	photo.Path = path.Join("/", u.Path, PhotoDirectory)
	return openAndDecode(ctx, f.Resolver, &photo, src.ID(), g)
}

func openAndDecode(ctx context.Context, resolver ContentResolver, u *url.URL, source string, g imaging.Geometry) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unrecoverable(source, err)
	}
	rc, err := resolver.Open(ctx, u)
	if err != nil {
		return nil, classifyOpenError(source, err)
	}
	b, err := decodeStream(rc, source, g, false)
	if err != nil {
		return nil, err
	}
	return &Result{Bitmap: b, LoadedFrom: LoadedFromDisk}, nil
}
