package imaging

import (
	"image"
	"sync/atomic"
)

// Bitmap is a decoded image artifact.
//
// A Bitmap wraps an image.Image with an explicit released flag. Transform steps
// that produce a new Bitmap must release the one they were given; steps that
// modify an image in place must return the same Bitmap and leave it unreleased.
type Bitmap struct {
	img      image.Image
	width    int
	height   int
	released atomic.Bool
}

// NewBitmap wraps img. It returns nil when img is nil.
func NewBitmap(img image.Image) *Bitmap {
	if img == nil {
		return nil
	}
	bounds := img.Bounds()
	return &Bitmap{
		img:    img,
		width:  bounds.Dx(),
		height: bounds.Dy(),
	}
}

// Image returns the underlying image.
func (b *Bitmap) Image() image.Image {
	return b.img
}

// Width returns the width in pixels.
func (b *Bitmap) Width() int {
	return b.width
}

// Height returns the height in pixels.
func (b *Bitmap) Height() int {
	return b.height
}

// ByteSize estimates the memory held by the bitmap, assuming 4 bytes per pixel.
func (b *Bitmap) ByteSize() int64 {
	return int64(b.width) * int64(b.height) * 4
}

// Release marks the bitmap as no longer owned by its producer.
func (b *Bitmap) Release() {
	b.released.Store(true)
}

// Released reports whether Release has been called.
func (b *Bitmap) Released() bool {
	return b.released.Load()
}
