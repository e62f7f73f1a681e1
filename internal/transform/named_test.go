package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-fetch/internal/imaging"
)

func TestParse_Keys(t *testing.T) {
	tests := []struct {
		spec string
		key  string
	}{
		{"grayscale", "grayscale"},
		{"GrayScale", "grayscale"},
		{"blur", "blur:2"},
		{"blur:2.0", "blur:2"},
		{"blur:0.5", "blur:0.5"},
		{"edges", "edges:1"},
		{"brightness:-0.25", "brightness:-0.25"},
		{"hue:90", "hue:90"},
		{"flip", "flip:h"},
		{"flip:vertical", "flip:v"},
		{"rotate:45", "rotate:45"},
		{"grid", "grid:50,#FF000080"},
		{"grid:10,#00ff00", "grid:10,#00FF00FF"},
		{"tint:#0000ff", "tint:#0000FF,0.5"},
		{"tint:#0000FF,0.25", "tint:#0000FF,0.25"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			tr, err := Parse(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.key, tr.Key())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []string{
		"unknown",
		"grayscale:1",
		"blur:abc",
		"blur:-1",
		"brightness:2",
		"flip:diagonal",
		"grid:0",
		"grid:10,#nothex",
		"tint",
		"tint:#0000FF,2",
	}

	for _, spec := range tests {
		t.Run(spec, func(t *testing.T) {
			_, err := Parse(spec)
			assert.Error(t, err)
		})
	}

	_, err := Parse("unknown")
	assert.ErrorIs(t, err, ErrUnknownTransform)
}

func TestNamedTransforms_HonorContract(t *testing.T) {
	for _, info := range Catalog() {
		spec := info.Name
		if info.Name == "tint" {
			spec = "tint:#00FF00"
		}
		t.Run(spec, func(t *testing.T) {
			tr, err := Parse(spec)
			require.NoError(t, err)

			b := newBitmap(8, 6)
			out, err := Apply(context.Background(), b, imaging.Geometry{}, []Transformation{tr})
			require.NoError(t, err)
			require.NotNil(t, out)
			assert.False(t, out.Released())
		})
	}
}

func TestNamedTransforms_Identity(t *testing.T) {
	for _, spec := range []string{"blur:0", "brightness", "hue:0", "rotate:0", "tint:#FF0000,0"} {
		t.Run(spec, func(t *testing.T) {
			tr, err := Parse(spec)
			require.NoError(t, err)

			b := newBitmap(4, 4)
			out, err := tr.Transform(b)
			require.NoError(t, err)
			assert.Same(t, b, out)
			assert.False(t, b.Released())
		})
	}
}

func TestNamedTransforms_Effects(t *testing.T) {
	b := newBitmap(4, 4)

	gray, err := Parse("grayscale")
	require.NoError(t, err)
	out, err := gray.Transform(b)
	require.NoError(t, err)

	r, g, bl, _ := out.Image().At(1, 1).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, bl)

	rotate, err := Parse("rotate:90")
	require.NoError(t, err)
	rotated, err := rotate.Transform(newBitmap(4, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, rotated.Width())
	assert.Equal(t, 4, rotated.Height())
}

func TestParseAll(t *testing.T) {
	ts, err := ParseAll([]string{"sepia", "blur:1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sepia", "blur:1"}, Keys(ts))

	_, err = ParseAll([]string{"sepia", "nope"})
	assert.ErrorIs(t, err, ErrUnknownTransform)
}

func TestCatalog(t *testing.T) {
	infos := Catalog()
	require.NotEmpty(t, infos)
	for i := 1; i < len(infos); i++ {
		assert.Less(t, infos[i-1].Name, infos[i].Name)
	}
}
