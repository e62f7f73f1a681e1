package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ErrMalformed is wrapped by every Decode error caused by the image data itself.
var ErrMalformed = errors.New("malformed image data")

// DecodeOptions tunes a single Decode call.
type DecodeOptions struct {
	// Geometry is the target geometry of the request. When it carries a target
	// size, Decode performs a bounds pass first and downsamples the result.
	Geometry Geometry

	// AutoOrient applies the EXIF orientation tag while decoding. File sources
	// set this; streamed sources generally do not carry reliable EXIF data.
	AutoOrient bool
}

// Decode reads r to the end and decodes it into a Bitmap.
//
// When opts.Geometry has a target size the decode is done in two passes: the
// first only reads the image configuration to learn the source dimensions,
// the second decodes the pixels, which are then reduced by SampleSize.
//
// # Errors
//
//   - Read failures are returned wrapped, without ErrMalformed
//   - Unknown formats and corrupt data are wrapped in ErrMalformed
func Decode(r io.Reader, opts DecodeOptions) (*Bitmap, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty stream", ErrMalformed)
	}

	sample := 1
	if opts.Geometry.HasSize() {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode bounds: %v", ErrMalformed, err)
		}
		sample = SampleSize(cfg.Width, cfg.Height, opts.Geometry.TargetWidth, opts.Geometry.TargetHeight)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(opts.AutoOrient))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if sample > 1 {
		bounds := img.Bounds()
		w := max(bounds.Dx()/sample, 1)
		h := max(bounds.Dy()/sample, 1)
		img = imaging.Resize(img, w, h, imaging.Box)
	}

	return NewBitmap(img), nil
}

// SampleSize computes the integer downsample factor for a source of the given
// size so that it still covers the requested size.
//
// The factor is the smaller of the rounded width and height ratios, and is
// never below 1. A zero requested dimension leaves that axis unconstrained.
func SampleSize(width, height, reqWidth, reqHeight int) int {
	if reqWidth <= 0 && reqHeight <= 0 {
		return 1
	}
	if height <= reqHeight && width <= reqWidth {
		return 1
	}

	ratio := func(have, want int) int {
		if want <= 0 {
			return math.MaxInt
		}
		return int(math.Round(float64(have) / float64(want)))
	}

	sample := min(ratio(height, reqHeight), ratio(width, reqWidth))
	if sample < 1 || sample == math.MaxInt {
		return 1
	}
	return sample
}
