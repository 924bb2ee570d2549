package pixelate

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// ErrImageLoad reports a source that could not be decoded.
var ErrImageLoad = errors.New("pixelate: image load failed")

const (
	MinBlockSize     = 4
	MaxBlockSize     = 64
	DefaultBlockSize = 8
)

// Geometry is the output frame of a pixelated rendering. Output dimensions
// are always exact multiples of the block size.
type Geometry struct {
	OutputWidth  int
	OutputHeight int
	GridWidth    int
	GridHeight   int
	BlockSize    int
}

// Source owns one decoded bitmap plus the block-size configuration used to
// derive color grids from it. The zero value is a valid "no image loaded"
// state; all derivations on it return empty results.
type Source struct {
	img       *image.NRGBA
	blockSize int
}

func NewSource() *Source {
	return &Source{blockSize: DefaultBlockSize}
}

// Decode decodes raw image bytes and takes ownership of the result.
func (s *Source) Decode(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty source", ErrImageLoad)
	}
	img, err := decodeBytes(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	s.SetImage(img)
	return nil
}

// SetImage installs an already-decoded bitmap, replacing any previous one.
func (s *Source) SetImage(img image.Image) {
	if img == nil {
		s.img = nil
		return
	}
	s.img = toNRGBA(img)
}

// Release drops the decoded bitmap, returning the source to its unloaded
// steady state.
func (s *Source) Release() {
	s.img = nil
}

func (s *Source) Loaded() bool {
	return s.img != nil
}

// SetBlockSize clamps n into [MinBlockSize, MaxBlockSize]. It is a pure
// state update; callers re-derive grids before the next render.
func (s *Source) SetBlockSize(n int) {
	s.blockSize = ClampBlockSize(n)
}

func (s *Source) BlockSize() int {
	if s.blockSize == 0 {
		return DefaultBlockSize
	}
	return s.blockSize
}

func ClampBlockSize(n int) int {
	if n < MinBlockSize {
		return MinBlockSize
	}
	if n > MaxBlockSize {
		return MaxBlockSize
	}
	return n
}

// Geometry scales the source to fit maxW x maxH without upscaling beyond the
// original resolution, then snaps the result up to a whole number of blocks.
// The snap keeps every exported frame grid-aligned, which the effect math
// relies on when it addresses cells by integer grid coordinates.
func (s *Source) Geometry(maxW, maxH int) (Geometry, bool) {
	if s.img == nil || maxW <= 0 || maxH <= 0 {
		return Geometry{}, false
	}

	srcW := s.img.Bounds().Dx()
	srcH := s.img.Bounds().Dy()
	if srcW == 0 || srcH == 0 {
		return Geometry{}, false
	}

	scale := math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH))
	if scale > 1 {
		scale = 1
	}

	scaledW := int(math.Floor(float64(srcW) * scale))
	scaledH := int(math.Floor(float64(srcH) * scale))
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}

	block := s.BlockSize()
	gridW := (scaledW + block - 1) / block
	gridH := (scaledH + block - 1) / block

	return Geometry{
		OutputWidth:  gridW * block,
		OutputHeight: gridH * block,
		GridWidth:    gridW,
		GridHeight:   gridH,
		BlockSize:    block,
	}, true
}

// Grid downsamples the bitmap directly to grid resolution with an
// area-averaging kernel, so each cell carries the averaged color of its
// source region rather than a single sampled pixel.
func (s *Source) Grid(geom Geometry) (Grid, bool) {
	if s.img == nil || geom.GridWidth <= 0 || geom.GridHeight <= 0 {
		return Grid{}, false
	}

	small := image.NewNRGBA(image.Rect(0, 0, geom.GridWidth, geom.GridHeight))
	xdraw.CatmullRom.Scale(small, small.Bounds(), s.img, s.img.Bounds(), xdraw.Src, nil)

	cells := make([]color.NRGBA, geom.GridWidth*geom.GridHeight)
	for y := 0; y < geom.GridHeight; y++ {
		for x := 0; x < geom.GridWidth; x++ {
			cells[y*geom.GridWidth+x] = small.NRGBAAt(x, y)
		}
	}

	return Grid{width: geom.GridWidth, height: geom.GridHeight, cells: cells}, true
}

// RenderPixelated draws the grid magnified to the output geometry with
// nearest-neighbor sampling, producing the hard-edged pixel-art look.
func RenderPixelated(dst *image.NRGBA, grid Grid, geom Geometry) {
	if dst == nil || grid.Empty() {
		return
	}
	target := image.Rect(0, 0, geom.OutputWidth, geom.OutputHeight)
	xdraw.NearestNeighbor.Scale(dst, target, grid.Image(), grid.Image().Bounds(), xdraw.Src, nil)
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}
