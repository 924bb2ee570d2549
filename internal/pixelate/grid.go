package pixelate

import (
	"image"
	"image/color"
)

// Grid is the 2-D color grid derived from a source bitmap. One cell is one
// averaged-color unit of the pixelated representation. A Grid is immutable
// once derived; effects project it without mutating it.
type Grid struct {
	width  int
	height int
	cells  []color.NRGBA
}

func NewGrid(width, height int, cells []color.NRGBA) Grid {
	if width <= 0 || height <= 0 || len(cells) != width*height {
		return Grid{}
	}
	return Grid{width: width, height: height, cells: cells}
}

func (g Grid) Width() int  { return g.width }
func (g Grid) Height() int { return g.height }

func (g Grid) Empty() bool {
	return g.width == 0 || g.height == 0
}

// At returns the cell color at grid coordinates (x, y). Out-of-range
// coordinates return a transparent cell.
func (g Grid) At(x, y int) color.NRGBA {
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return color.NRGBA{}
	}
	return g.cells[y*g.width+x]
}

// Image renders the grid at one pixel per cell.
func (g Grid) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.width, g.height))
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			img.SetNRGBA(x, y, g.cells[y*g.width+x])
		}
	}
	return img
}
