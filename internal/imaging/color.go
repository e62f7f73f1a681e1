package imaging

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ParseHexColor parses a hex color string like "#FF0000" or "#FF000080".
//
// The leading '#' is optional. Six digit values are fully opaque; eight digit
// values carry the alpha channel in the last byte.
func ParseHexColor(hex string) (color.NRGBA, error) {
	if hex == "" {
		return color.NRGBA{}, fmt.Errorf("empty color string")
	}
	hex = strings.TrimPrefix(hex, "#")

	alpha := uint8(255)
	switch len(hex) {
	case 6:
	case 8:
		a, err := strconv.ParseUint(hex[6:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid alpha in %q: %w", hex, err)
		}
		alpha = uint8(a)
		hex = hex[:6]
	default:
		return color.NRGBA{}, fmt.Errorf("invalid hex color length: %q", hex)
	}

	c, err := colorful.Hex("#" + hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// Tint blends every pixel of img toward tint by t (0 = unchanged, 1 = solid
// tint) in CIE L*a*b* space, preserving the alpha channel.
func Tint(img image.Image, tint colorful.Color, t float64) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			src := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c := colorful.Color{
				R: float64(src.R) / 255,
				G: float64(src.G) / 255,
				B: float64(src.B) / 255,
			}
			r, g, b := c.BlendLab(tint, t).Clamped().RGB255()
			out.SetNRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.NRGBA{R: r, G: g, B: b, A: src.A})
		}
	}
	return out
}

// DominantColor returns the most frequent color of img as "#RRGGBB".
//
// Colors are quantized by dividing each 8-bit component by 16 before
// counting, so near-identical shades are grouped. Only every step-th pixel on
// each axis is sampled; step values below 1 sample every pixel.
func DominantColor(img image.Image, step int) string {
	if step < 1 {
		step = 1
	}
	bounds := img.Bounds()

	counts := make(map[colorful.Color]int)
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, _ := img.At(x, y).RGBA()
			// Quantize to reduce color space (group similar colors)
			q := colorful.Color{
				R: float64((r>>8)/16*16) / 255,
				G: float64((g>>8)/16*16) / 255,
				B: float64((b>>8)/16*16) / 255,
			}
			counts[q]++
		}
	}
	if len(counts) == 0 {
		return ""
	}

	type bucket struct {
		hex   string
		count int
	}
	buckets := make([]bucket, 0, len(counts))
	for c, n := range counts {
		buckets = append(buckets, bucket{hex: strings.ToUpper(c.Hex()), count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].count != buckets[j].count {
			return buckets[i].count > buckets[j].count
		}
		return buckets[i].hex < buckets[j].hex
	})
	return buckets[0].hex
}
