package imaging

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNG_RoundTrip(t *testing.T) {
	b := NewBitmap(createInMemoryImage(7, 3, color.RGBA{10, 20, 30, 255}))

	data, err := PNG(b)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 7, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
	r, g, bl, a := img.At(3, 1).RGBA()
	assert.Equal(t, []uint32{10, 20, 30, 255}, []uint32{r >> 8, g >> 8, bl >> 8, a >> 8})
}
