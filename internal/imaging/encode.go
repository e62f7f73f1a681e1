package imaging

import (
	"bytes"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

// EncodePNG writes b to w as PNG.
func EncodePNG(w io.Writer, b *Bitmap) error {
	if err := imaging.Encode(w, b.Image(), imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}

// PNG returns b encoded as PNG.
func PNG(b *Bitmap) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
