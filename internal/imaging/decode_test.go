package imaging

import (
	"bytes"
	"errors"
	"image/color"
	"strings"
	"testing"
	"testing/iotest"
)

func TestDecode(t *testing.T) {
	data := encodePNG(t, createInMemoryImage(64, 32, color.RGBA{255, 0, 0, 255}))

	b, err := Decode(bytes.NewReader(data), DecodeOptions{})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if b.Width() != 64 || b.Height() != 32 {
		t.Errorf("dimensions: got %dx%d, want 64x32", b.Width(), b.Height())
	}
}

func TestDecode_TwoPassDownsample(t *testing.T) {
	data := encodePNG(t, createInMemoryImage(400, 200, color.RGBA{0, 0, 255, 255}))

	b, err := Decode(bytes.NewReader(data), DecodeOptions{
		Geometry: Geometry{TargetWidth: 100, TargetHeight: 50},
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if b.Width() != 100 || b.Height() != 50 {
		t.Errorf("dimensions: got %dx%d, want 100x50", b.Width(), b.Height())
	}
}

func TestDecode_SmallerThanTarget(t *testing.T) {
	data := encodePNG(t, createInMemoryImage(40, 40, color.White))

	b, err := Decode(bytes.NewReader(data), DecodeOptions{
		Geometry: Geometry{TargetWidth: 100, TargetHeight: 100},
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if b.Width() != 40 || b.Height() != 40 {
		t.Errorf("dimensions: got %dx%d, want 40x40", b.Width(), b.Height())
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
		geo  Geometry
	}{
		{"garbage", "not an image", Geometry{}},
		{"garbage with bounds pass", "not an image", Geometry{TargetWidth: 10, TargetHeight: 10}},
		{"empty", "", Geometry{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.data), DecodeOptions{Geometry: tt.geo})
			if err == nil {
				t.Fatal("Decode should fail")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error should wrap ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecode_ReadError(t *testing.T) {
	readErr := errors.New("connection reset")
	_, err := Decode(iotest.ErrReader(readErr), DecodeOptions{})
	if err == nil {
		t.Fatal("Decode should fail")
	}
	if errors.Is(err, ErrMalformed) {
		t.Error("read failures must not be reported as malformed data")
	}
	if !errors.Is(err, readErr) {
		t.Errorf("error should wrap the read error, got %v", err)
	}
}

func TestSampleSize(t *testing.T) {
	tests := []struct {
		name             string
		w, h, reqW, reqH int
		want             int
	}{
		{"no target", 100, 100, 0, 0, 1},
		{"exact quarter", 400, 200, 100, 50, 4},
		{"smaller than target", 100, 100, 200, 200, 1},
		{"width only", 300, 100, 100, 0, 3},
		{"height only", 100, 300, 0, 100, 3},
		{"rounds half up", 250, 250, 100, 100, 3},
		{"uses smaller ratio", 800, 200, 100, 100, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SampleSize(tt.w, tt.h, tt.reqW, tt.reqH)
			if got != tt.want {
				t.Errorf("SampleSize(%d,%d,%d,%d) = %d, want %d", tt.w, tt.h, tt.reqW, tt.reqH, got, tt.want)
			}
		})
	}
}
