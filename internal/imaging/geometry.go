package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrCenterCropNeedsSize is returned when center crop is requested without a target size.
	ErrCenterCropNeedsSize = errors.New("center crop requires a target size")
	// ErrCenterInsideNeedsSize is returned when center inside is requested without a target size.
	ErrCenterInsideNeedsSize = errors.New("center inside requires a target size")
	// ErrCropAndInside is returned when both center crop and center inside are requested.
	ErrCropAndInside = errors.New("center crop and center inside are mutually exclusive")
	// ErrInvalidSize is returned for negative target dimensions or scale factors.
	ErrInvalidSize = errors.New("invalid target size")
)

// decodeLock serialises the resample step of ApplyGeometry across all workers.
// Resampling allocates a second full-size buffer, so at most one runs at a time.
var decodeLock = semaphore.NewWeighted(1)

// Geometry describes how a decoded image should be sized and oriented before
// any caller supplied transforms run.
type Geometry struct {
	// TargetWidth and TargetHeight request an exact output size. Zero means
	// "keep the decoded size".
	TargetWidth  int `json:"target_width,omitempty"`
	TargetHeight int `json:"target_height,omitempty"`

	// CenterCrop scales the image to fill the target size and crops the
	// overflowing axis around the center.
	CenterCrop bool `json:"center_crop,omitempty"`

	// CenterInside scales the image to fit within the target size, keeping
	// the aspect ratio.
	CenterInside bool `json:"center_inside,omitempty"`

	// Rotation in degrees, clockwise.
	Rotation float64 `json:"rotation,omitempty"`

	// PivotX and PivotY are the rotation pivot, used when HasPivot is set.
	PivotX   float64 `json:"pivot_x,omitempty"`
	PivotY   float64 `json:"pivot_y,omitempty"`
	HasPivot bool    `json:"has_pivot,omitempty"`

	// ScaleX and ScaleY are explicit scale factors. When either is non-zero
	// they replace the scaling derived from the target size.
	ScaleX float64 `json:"scale_x,omitempty"`
	ScaleY float64 `json:"scale_y,omitempty"`
}

// HasSize reports whether a target size was requested.
func (g Geometry) HasSize() bool {
	return g.TargetWidth != 0 || g.TargetHeight != 0
}

// IsZero reports whether the geometry requests no change at all.
func (g Geometry) IsZero() bool {
	return g == Geometry{}
}

// Validate checks option combinations that cannot be satisfied.
func (g Geometry) Validate() error {
	if g.TargetWidth < 0 || g.TargetHeight < 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, g.TargetWidth, g.TargetHeight)
	}
	if g.ScaleX < 0 || g.ScaleY < 0 {
		return fmt.Errorf("%w: scale %gx%g", ErrInvalidSize, g.ScaleX, g.ScaleY)
	}
	if g.CenterCrop && g.CenterInside {
		return ErrCropAndInside
	}
	if g.CenterCrop && (g.TargetWidth == 0 || g.TargetHeight == 0) {
		return ErrCenterCropNeedsSize
	}
	if g.CenterInside && (g.TargetWidth == 0 || g.TargetHeight == 0) {
		return ErrCenterInsideNeedsSize
	}
	return nil
}

// plan is the resolved crop rectangle, output size and rotation for one input.
type plan struct {
	src      image.Rectangle
	width    int
	height   int
	rotation float64
}

func (p plan) identity(in image.Rectangle) bool {
	return p.src == in && p.width == in.Dx() && p.height == in.Dy() && p.rotation == 0
}

// planFor resolves g against an input of the given bounds.
func planFor(g Geometry, in image.Rectangle) plan {
	inW, inH := in.Dx(), in.Dy()
	src := in
	sx, sy := 1.0, 1.0

	tw, th := float64(g.TargetWidth), float64(g.TargetHeight)

	switch {
	case g.CenterCrop:
		widthRatio := tw / float64(inW)
		heightRatio := th / float64(inH)
		if widthRatio > heightRatio {
			newSize := int(math.Ceil(float64(inH) * (heightRatio / widthRatio)))
			drawY := (inH - newSize) / 2
			src = image.Rect(in.Min.X, in.Min.Y+drawY, in.Max.X, in.Min.Y+drawY+newSize)
			sx, sy = widthRatio, widthRatio
		} else {
			newSize := int(math.Ceil(float64(inW) * (widthRatio / heightRatio)))
			drawX := (inW - newSize) / 2
			src = image.Rect(in.Min.X+drawX, in.Min.Y, in.Min.X+drawX+newSize, in.Max.Y)
			sx, sy = heightRatio, heightRatio
		}
	case g.CenterInside:
		scale := math.Min(tw/float64(inW), th/float64(inH))
		sx, sy = scale, scale
	case g.TargetWidth != 0 && g.TargetHeight != 0 &&
		(g.TargetWidth != inW || g.TargetHeight != inH):
		sx = tw / float64(inW)
		sy = th / float64(inH)
	}

	if g.ScaleX != 0 || g.ScaleY != 0 {
		sx, sy = g.ScaleX, g.ScaleY
		if sx == 0 {
			sx = 1
		}
		if sy == 0 {
			sy = 1
		}
	}

	return plan{
		src:      src,
		width:    max(int(math.Round(float64(src.Dx())*sx)), 1),
		height:   max(int(math.Round(float64(src.Dy())*sy)), 1),
		rotation: math.Mod(g.Rotation, 360),
	}
}

// ApplyGeometry sizes and rotates b according to g.
//
// When g resolves to no change, b itself is returned untouched. Otherwise a new
// Bitmap is returned and b is released. The resample runs under the package
// decode lock; ctx only bounds the wait for that lock.
//
// Rotation is always about the image center: the output canvas is expanded to
// hold the rotated image, so a pivot only changes the placement of the result
// within an unbounded plane, which a Bitmap does not have.
func ApplyGeometry(ctx context.Context, b *Bitmap, g Geometry) (*Bitmap, error) {
	if b == nil {
		return nil, errors.New("nil bitmap")
	}
	if g.IsZero() {
		return b, nil
	}

	in := b.Image().Bounds()
	p := planFor(g, in)
	if p.identity(in) {
		return b, nil
	}

	if err := decodeLock.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for decode lock: %w", err)
	}
	defer decodeLock.Release(1)

	var out image.Image = b.Image()
	if p.src != in {
		out = imaging.Crop(out, p.src)
	}
	if p.width != p.src.Dx() || p.height != p.src.Dy() {
		out = imaging.Resize(out, p.width, p.height, imaging.Lanczos)
	}
	if p.rotation != 0 {
		// imaging rotates counter-clockwise.
		out = imaging.Rotate(out, -p.rotation, color.Transparent)
	}

	b.Release()
	return NewBitmap(out), nil
}
