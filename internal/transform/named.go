package transform

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"
	"strconv"
	"strings"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	imgutil "github.com/ironsheep/image-fetch/internal/imaging"
)

// ErrUnknownTransform is returned by Parse for names not in the catalog.
var ErrUnknownTransform = errors.New("unknown transform")

// Info describes a named transformation for listing.
type Info struct {
	Name        string `json:"name"`
	Argument    string `json:"argument,omitempty"`
	Description string `json:"description"`
}

// builder parses the argument of one named transformation.
type builder struct {
	info  Info
	build func(arg string) (Transformation, error)
}

var catalog = map[string]builder{}

func register(info Info, build func(arg string) (Transformation, error)) {
	catalog[info.Name] = builder{info: info, build: build}
}

func init() {
	register(Info{Name: "blur", Argument: "radius (default 2)", Description: "Gaussian blur"},
		floatArg("blur", 2, 0, 100, func(r float64) func(image.Image) image.Image {
			if r == 0 {
				return nil
			}
			return func(img image.Image) image.Image { return blur.Gaussian(img, r) }
		}))
	register(Info{Name: "grayscale", Description: "Convert to grayscale"},
		noArg("grayscale", func(img image.Image) image.Image { return effect.Grayscale(img) }))
	register(Info{Name: "invert", Description: "Invert colors"},
		noArg("invert", func(img image.Image) image.Image { return effect.Invert(img) }))
	register(Info{Name: "sepia", Description: "Sepia tone"},
		noArg("sepia", func(img image.Image) image.Image { return effect.Sepia(img) }))
	register(Info{Name: "sharpen", Description: "Sharpen edges"},
		noArg("sharpen", func(img image.Image) image.Image { return effect.Sharpen(img) }))
	register(Info{Name: "emboss", Description: "Emboss relief effect"},
		noArg("emboss", func(img image.Image) image.Image { return effect.Emboss(img) }))
	register(Info{Name: "edges", Argument: "radius (default 1)", Description: "Edge detection"},
		floatArg("edges", 1, 0.1, 100, func(r float64) func(image.Image) image.Image {
			return func(img image.Image) image.Image { return effect.EdgeDetection(img, r) }
		}))
	register(Info{Name: "brightness", Argument: "change in [-1,1]", Description: "Adjust brightness"},
		floatArg("brightness", 0, -1, 1, adjustment(adjust.Brightness)))
	register(Info{Name: "contrast", Argument: "change in [-1,1]", Description: "Adjust contrast"},
		floatArg("contrast", 0, -1, 1, adjustment(adjust.Contrast)))
	register(Info{Name: "saturation", Argument: "change in [-1,1]", Description: "Adjust saturation"},
		floatArg("saturation", 0, -1, 1, adjustment(adjust.Saturation)))
	register(Info{Name: "hue", Argument: "degrees in [-360,360]", Description: "Rotate hue"},
		floatArg("hue", 0, -360, 360, func(deg float64) func(image.Image) image.Image {
			if deg == 0 {
				return nil
			}
			return func(img image.Image) image.Image { return adjust.Hue(img, int(deg)) }
		}))
	register(Info{Name: "flip", Argument: "h or v", Description: "Mirror horizontally or vertically"}, parseFlip)
	register(Info{Name: "rotate", Argument: "degrees clockwise", Description: "Rotate, expanding the canvas"},
		floatArg("rotate", 0, -360, 360, func(deg float64) func(image.Image) image.Image {
			if deg == 0 {
				return nil
			}
			return func(img image.Image) image.Image { return imaging.Rotate(img, -deg, color.Transparent) }
		}))
	register(Info{Name: "grid", Argument: "spacing[,#RRGGBBAA] (default 50,#FF000080)", Description: "Overlay a coordinate grid"}, parseGrid)
	register(Info{Name: "tint", Argument: "#RRGGBB[,amount in [0,1]] (default amount 0.5)", Description: "Blend toward a color in Lab space"}, parseTint)
}

// Catalog lists the named transformations accepted by Parse, sorted by name.
func Catalog() []Info {
	infos := make([]Info, 0, len(catalog))
	for _, b := range catalog {
		infos = append(infos, b.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Parse builds a named transformation from "name" or "name:arg".
// The resulting Key is canonical, so "blur:2.0" and "blur:2" are equal.
func Parse(spec string) (Transformation, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(spec), ":")
	b, ok := catalog[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, name)
	}
	t, err := b.build(strings.TrimSpace(arg))
	if err != nil {
		return nil, fmt.Errorf("invalid %s transform: %w", b.info.Name, err)
	}
	return t, nil
}

// ParseAll parses every spec in order.
func ParseAll(specs []string) ([]Transformation, error) {
	ts := make([]Transformation, 0, len(specs))
	for _, s := range specs {
		t, err := Parse(s)
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	return ts, nil
}

// imageTransformation produces a new bitmap from its input via fn. A nil fn
// is the identity and returns the input untouched.
type imageTransformation struct {
	key string
	fn  func(image.Image) image.Image
}

func (t imageTransformation) Key() string {
	return t.key
}

func (t imageTransformation) Transform(b *imgutil.Bitmap) (*imgutil.Bitmap, error) {
	if t.fn == nil {
		return b, nil
	}
	out := imgutil.NewBitmap(t.fn(b.Image()))
	b.Release()
	return out, nil
}

func noArg(name string, fn func(image.Image) image.Image) func(string) (Transformation, error) {
	return func(arg string) (Transformation, error) {
		if arg != "" {
			return nil, fmt.Errorf("takes no argument, got %q", arg)
		}
		return imageTransformation{key: name, fn: fn}, nil
	}
}

func floatArg(name string, def, lo, hi float64, fn func(float64) func(image.Image) image.Image) func(string) (Transformation, error) {
	return func(arg string) (Transformation, error) {
		v := def
		if arg != "" {
			var err error
			if v, err = strconv.ParseFloat(arg, 64); err != nil {
				return nil, fmt.Errorf("argument %q is not a number", arg)
			}
		}
		if v < lo || v > hi {
			return nil, fmt.Errorf("argument %g out of range [%g,%g]", v, lo, hi)
		}
		return imageTransformation{key: name + ":" + formatFloat(v), fn: fn(v)}, nil
	}
}

func adjustment(fn func(image.Image, float64) *image.RGBA) func(float64) func(image.Image) image.Image {
	return func(change float64) func(image.Image) image.Image {
		if change == 0 {
			return nil
		}
		return func(img image.Image) image.Image { return fn(img, change) }
	}
}

func parseFlip(arg string) (Transformation, error) {
	switch strings.ToLower(arg) {
	case "h", "horizontal", "":
		return imageTransformation{key: "flip:h", fn: func(img image.Image) image.Image { return imaging.FlipH(img) }}, nil
	case "v", "vertical":
		return imageTransformation{key: "flip:v", fn: func(img image.Image) image.Image { return imaging.FlipV(img) }}, nil
	default:
		return nil, fmt.Errorf("direction must be h or v, got %q", arg)
	}
}

func parseGrid(arg string) (Transformation, error) {
	spacing := 50
	lineColor := color.NRGBA{R: 255, A: 128}

	spacingArg, colorArg, hasColor := strings.Cut(arg, ",")
	if spacingArg != "" {
		n, err := strconv.Atoi(strings.TrimSpace(spacingArg))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("spacing must be a positive integer, got %q", spacingArg)
		}
		spacing = n
	}
	if hasColor {
		c, err := imgutil.ParseHexColor(strings.TrimSpace(colorArg))
		if err != nil {
			return nil, err
		}
		lineColor = c
	}

	key := fmt.Sprintf("grid:%d,#%02X%02X%02X%02X", spacing, lineColor.R, lineColor.G, lineColor.B, lineColor.A)
	return imageTransformation{key: key, fn: func(img image.Image) image.Image {
		return imgutil.GridOverlay(img, spacing, true, lineColor)
	}}, nil
}

func parseTint(arg string) (Transformation, error) {
	hexArg, amountArg, hasAmount := strings.Cut(arg, ",")
	if hexArg == "" {
		return nil, errors.New("color is required")
	}
	c, err := imgutil.ParseHexColor(strings.TrimSpace(hexArg))
	if err != nil {
		return nil, err
	}

	amount := 0.5
	if hasAmount {
		if amount, err = strconv.ParseFloat(strings.TrimSpace(amountArg), 64); err != nil {
			return nil, fmt.Errorf("amount %q is not a number", amountArg)
		}
		if amount < 0 || amount > 1 {
			return nil, fmt.Errorf("amount %g out of range [0,1]", amount)
		}
	}

	tint, _ := colorful.MakeColor(color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
	key := fmt.Sprintf("tint:#%02X%02X%02X,%s", c.R, c.G, c.B, formatFloat(amount))
	if amount == 0 {
		return imageTransformation{key: key}, nil
	}
	return imageTransformation{key: key, fn: func(img image.Image) image.Image {
		return imgutil.Tint(img, tint, amount)
	}}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
