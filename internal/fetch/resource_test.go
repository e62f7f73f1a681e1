package fetch

import (
	"context"
	"image/color"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-fetch/internal/imaging"
)

func TestResourceFetcher(t *testing.T) {
	fsys := fstest.MapFS{
		"42.png":   {Data: pngBytes(t, 4, 2, color.White)},
		"logo.png": {Data: pngBytes(t, 7, 7, color.Black)},
	}
	f := &ResourceFetcher{FS: fsys}

	tests := []struct {
		name  string
		src   Source
		width int
	}{
		{"by id", Source{ResourceID: 42}, 4},
		{"by numeric uri", Source{URI: "android.resource://pkg/42"}, 4},
		{"by name", Source{URI: "resource://logo.png"}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.Fetch(context.Background(), tt.src, imaging.Geometry{})
			require.NoError(t, err)
			assert.Equal(t, tt.width, res.Bitmap.Width())
		})
	}
}

func TestResourceFetcher_Missing(t *testing.T) {
	f := &ResourceFetcher{FS: fstest.MapFS{}}

	_, err := f.Fetch(context.Background(), Source{ResourceID: 9}, imaging.Geometry{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.Fetch(context.Background(), Source{URI: "resource://missing.png"}, imaging.Geometry{})
	assert.ErrorIs(t, err, ErrNotFound)
}
