package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
)

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		hex     string
		wantR   uint8
		wantG   uint8
		wantB   uint8
		wantA   uint8
		wantErr bool
	}{
		{"#FF0000", 255, 0, 0, 255, false},
		{"#00FF00", 0, 255, 0, 255, false},
		{"#0000FF", 0, 0, 255, 255, false},
		{"#FFFFFF", 255, 255, 255, 255, false},
		{"#000000", 0, 0, 0, 255, false},
		{"FF0000", 255, 0, 0, 255, false},    // without #
		{"#FF000080", 255, 0, 0, 128, false}, // with alpha
		{"FF000080", 255, 0, 0, 128, false},  // without # with alpha
		{"", 0, 0, 0, 0, true},               // empty
		{"#FFF", 0, 0, 0, 0, true},           // invalid length
		{"#GGGGGG", 0, 0, 0, 0, true},        // invalid hex
		{"#FF0000ZZ", 0, 0, 0, 0, true},      // invalid alpha
	}

	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			c, err := ParseHexColor(tt.hex)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if c.R != tt.wantR || c.G != tt.wantG || c.B != tt.wantB || c.A != tt.wantA {
				t.Errorf("got (%d,%d,%d,%d), want (%d,%d,%d,%d)",
					c.R, c.G, c.B, c.A, tt.wantR, tt.wantG, tt.wantB, tt.wantA)
			}
		})
	}
}

func TestTint(t *testing.T) {
	img := createInMemoryImage(4, 4, color.RGBA{255, 255, 255, 255})
	blue, _ := colorful.Hex("#0000FF")

	full := Tint(img, blue, 1)
	if r, g, b := rgb8(full.At(1, 1)); r != 0 || g != 0 || b != 255 {
		t.Errorf("full tint: got (%d,%d,%d), want (0,0,255)", r, g, b)
	}

	none := Tint(img, blue, 0)
	if r, g, b := rgb8(none.At(1, 1)); r != 255 || g != 255 || b != 255 {
		t.Errorf("zero tint: got (%d,%d,%d), want (255,255,255)", r, g, b)
	}
}

func TestTint_PreservesAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{200, 100, 50, 64})
	red, _ := colorful.Hex("#FF0000")

	out := Tint(img, red, 0.5)
	if a := out.NRGBAAt(0, 0).A; a != 64 {
		t.Errorf("alpha: got %d, want 64", a)
	}
}

func TestDominantColor(t *testing.T) {
	// Three quarters red, one quarter white
	img := createInMemoryImage(20, 20, color.RGBA{255, 0, 0, 255})
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	if got := DominantColor(img, 1); got != "#F00000" {
		t.Errorf("DominantColor: got %s, want #F00000", got)
	}
	if got := DominantColor(img, 3); got != "#F00000" {
		t.Errorf("DominantColor with step: got %s, want #F00000", got)
	}
}

func TestDominantColor_Empty(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 0, 0))
	if got := DominantColor(img, 1); got != "" {
		t.Errorf("DominantColor of empty image: got %q, want empty", got)
	}
}
