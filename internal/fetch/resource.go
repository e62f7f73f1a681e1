package fetch

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/ironsheep/image-fetch/internal/imaging"
)

// ResourceFetcher serves images bundled in an fs.FS.
//
// A numeric resource id n resolves to the first file matching "n.*" at the
// root of FS. A resource URI (resource://<name> or
// android.resource://<package>/<name>) resolves to its last path element,
// which may itself be a numeric id.
type ResourceFetcher struct {
	FS fs.FS
}

// Fetch implements Fetcher.
func (f *ResourceFetcher) Fetch(ctx context.Context, src Source, g imaging.Geometry) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unrecoverable(src.ID(), err)
	}

	name, err := f.resolve(src)
	if err != nil {
		return nil, err
	}

	file, err := f.FS.Open(name)
	if err != nil {
		return nil, classifyOpenError(src.ID(), err)
	}

	b, err := decodeStream(file, src.ID(), g, false)
	if err != nil {
		return nil, err
	}
	return &Result{Bitmap: b, LoadedFrom: LoadedFromDisk}, nil
}

func (f *ResourceFetcher) resolve(src Source) (string, error) {
	if src.ResourceID != 0 {
		return f.byID(src.ID(), src.ResourceID)
	}

	u, err := url.Parse(src.URI)
	if err != nil {
		return "", Unrecoverable(src.ID(), err)
	}
	name := path.Base(path.Clean("/" + u.Host + "/" + u.Path))
	if name == "/" || name == "." {
		return "", Unrecoverable(src.ID(), fmt.Errorf("resource uri names no resource: %q", src.URI))
	}
	if id, err := strconv.Atoi(name); err == nil {
		return f.byID(src.ID(), id)
	}
	return name, nil
}

func (f *ResourceFetcher) byID(source string, id int) (string, error) {
	matches, err := fs.Glob(f.FS, strconv.Itoa(id)+".*")
	if err != nil {
		return "", Unrecoverable(source, err)
	}
	for _, m := range matches {
		if !strings.HasPrefix(path.Base(m), ".") {
			return m, nil
		}
	}
	return "", Unrecoverable(source, fmt.Errorf("%w: resource %d", ErrNotFound, id))
}
