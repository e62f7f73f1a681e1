package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// GridOverlay draws a coordinate grid over a copy of img.
//
// Lines are drawn every spacing pixels in lineColor, blended over the source.
// When showCoordinates is set, each grid intersection gets a small "x,y" label.
// The source image is not modified. A spacing below 1 returns a plain copy.
func GridOverlay(img image.Image, spacing int, showCoordinates bool, lineColor color.Color) *image.RGBA {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	result := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(result, result.Bounds(), img, bounds.Min, draw.Src)

	if spacing < 1 {
		return result
	}

	line := image.NewUniform(lineColor)

	// Vertical lines
	for x := spacing; x < width; x += spacing {
		draw.Draw(result, image.Rect(x, 0, x+1, height), line, image.Point{}, draw.Over)
	}

	// Horizontal lines
	for y := spacing; y < height; y += spacing {
		draw.Draw(result, image.Rect(0, y, width, y+1), line, image.Point{}, draw.Over)
	}

	if showCoordinates {
		labelColor := color.RGBA{255, 255, 255, 255}
		bgColor := color.RGBA{0, 0, 0, 180}

		for y := spacing; y < height; y += spacing {
			for x := spacing; x < width; x += spacing {
				drawLabel(result, x+2, y+2, fmt.Sprintf("%d,%d", x, y), labelColor, bgColor)
			}
		}
	}

	return result
}

// labelFont is a 3x5 pixel font covering coordinate labels. Each row is a
// 3-bit mask, most significant bit on the left.
var labelFont = map[rune][5]uint8{
	'0': {7, 5, 5, 5, 7},
	'1': {2, 6, 2, 2, 7},
	'2': {7, 1, 7, 4, 7},
	'3': {7, 1, 7, 1, 7},
	'4': {5, 5, 7, 1, 1},
	'5': {7, 4, 7, 1, 7},
	'6': {7, 4, 7, 5, 7},
	'7': {7, 1, 1, 1, 1},
	'8': {7, 5, 7, 5, 7},
	'9': {7, 5, 7, 1, 7},
	',': {0, 0, 0, 2, 2},
}

const (
	glyphAdvance = 4
	labelHeight  = 7
)

// drawLabel writes text with its top-left corner at (x, y) over a one-pixel
// padded background box. Anything outside img is clipped; runes missing from
// labelFont leave a gap.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	box := image.Rect(x-1, y-1, x+len(text)*glyphAdvance, y+labelHeight)
	draw.Draw(img, box, image.NewUniform(bg), image.Point{}, draw.Src)

	for i, ch := range text {
		rows, ok := labelFont[ch]
		if !ok {
			continue
		}
		left := x + i*glyphAdvance
		for row, mask := range rows {
			for col := 0; col < 3; col++ {
				if mask&(4>>col) != 0 {
					img.SetRGBA(left+col, y+row, fg)
				}
			}
		}
	}
}
