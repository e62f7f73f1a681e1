package fetch

import (
	"context"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-fetch/internal/imaging"
)

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.png", pngBytes(t, 6, 3, color.Black))

	for _, uri := range []string{p, "file://" + p} {
		t.Run(uri, func(t *testing.T) {
			res, err := (&FileFetcher{}).Fetch(context.Background(), Source{URI: uri}, imaging.Geometry{})
			require.NoError(t, err)
			assert.Equal(t, LoadedFromDisk, res.LoadedFrom)
			assert.Equal(t, 6, res.Bitmap.Width())
			assert.Equal(t, 3, res.Bitmap.Height())
		})
	}
}

func TestFileFetcher_NotFound(t *testing.T) {
	_, err := (&FileFetcher{}).Fetch(context.Background(), Source{URI: "/nonexistent/image.png"}, imaging.Geometry{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsRecoverable(err))

	var ue *UnrecoverableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "/nonexistent/image.png", ue.Source)
}

func TestFileFetcher_Malformed(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bad.png", []byte("not a png"))

	_, err := (&FileFetcher{}).Fetch(context.Background(), Source{URI: p}, imaging.Geometry{})
	require.Error(t, err)
	assert.ErrorIs(t, err, imaging.ErrMalformed)
	assert.False(t, IsRecoverable(err))
}
