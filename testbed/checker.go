package testbed

import (
	"image"
	"image/color"
	"image/png"
	"io"
)

var (
	checkerLight = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	checkerDark  = color.RGBA{R: 0x20, G: 0x60, B: 0xa0, A: 0xff}
)

// WriteChecker encodes a size x size PNG of alternating cell x cell tiles.
func WriteChecker(w io.Writer, size, cell int) error {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := checkerLight
			if (x/cell+y/cell)%2 == 1 {
				c = checkerDark
			}
			img.SetRGBA(x, y, c)
		}
	}
	return png.Encode(w, img)
}
