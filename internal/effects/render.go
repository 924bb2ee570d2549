package effects

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/dunamismax/pixelloop/internal/pixelate"
)

// alphaSkipThreshold drops cells that are close enough to transparent that
// drawing them is pure overdraw (about 4% of full alpha).
const alphaSkipThreshold = 10

// Render draws one frame of the selected effect into dst. It is pure in
// (grid, intensity, t): the grid is never mutated and identical inputs
// produce identical frames. An empty grid or nil surface is a no-op.
func Render(dst *image.NRGBA, grid pixelate.Grid, geom pixelate.Geometry, effect Effect, intensity int, t float64) {
	if dst == nil || grid.Empty() {
		return
	}
	intensity = ClampIntensity(intensity)

	clear(dst.Pix)

	switch effect {
	case None:
		renderStatic(dst, grid, geom)
	case Glitch:
		renderGlitch(dst, grid, geom, intensity, t)
	case Float:
		renderFloat(dst, grid, geom, intensity, t)
	case Sparkle:
		renderSparkle(dst, grid, geom, intensity, t)
	case Wave:
		renderWave(dst, grid, geom, intensity, t)
	case Rainbow:
		renderRainbow(dst, grid, geom, intensity, t)
	default:
		renderStatic(dst, grid, geom)
	}
}

func renderStatic(dst *image.NRGBA, grid pixelate.Grid, geom pixelate.Geometry) {
	b := geom.BlockSize
	for y := 0; y < grid.Height(); y++ {
		for x := 0; x < grid.Width(); x++ {
			c := grid.At(x, y)
			if c.A < alphaSkipThreshold {
				continue
			}
			fillRect(dst, x*b, y*b, b, b, c)
		}
	}
}

// renderGlitch shifts whole rows horizontally along seeded glitch lines and
// splits each cell into red/cyan/base passes whose separation oscillates
// with time. All randomness is seeded on the frame index, so a given
// (grid, intensity, t) always renders the same frame.
func renderGlitch(dst *image.NRGBA, grid pixelate.Grid, geom pixelate.Geometry, intensity int, t float64) {
	b := geom.BlockSize
	gridH := grid.Height()
	frame := int(math.Floor(t * 60))

	rowShift := make([]float64, gridH)

	lineCount := intensity/2 + 1
	for j := 0; j < lineCount; j++ {
		if pseudoRand(frame*131+j*7919) >= float64(intensity)/10 {
			continue
		}
		start := pseudoRandRange(frame*151+j*104729, gridH)
		span := 1 + pseudoRandRange(frame*163+j*611953, 3)
		offset := (pseudoRand(frame*179+j*1299709)*2 - 1) * float64(intensity) * 2
		for y := start; y < start+span && y < gridH; y++ {
			rowShift[y] = offset
		}
	}

	// Micro-jitter: every row has a small chance of a one-off nudge.
	for y := 0; y < gridH; y++ {
		if pseudoRand(frame*191+y*353) < 0.08 {
			rowShift[y] += (pseudoRand(frame*193+y*389)*2 - 1) * 2
		}
	}

	chroma := math.Sin(t*10) * float64(intensity) * 0.3

	for y := 0; y < gridH; y++ {
		shift := int(math.Round(rowShift[y]))
		for x := 0; x < grid.Width(); x++ {
			c := grid.At(x, y)
			if c.A < alphaSkipThreshold {
				continue
			}
			px := x*b + shift
			py := y * b

			red := color.NRGBA{R: c.R, A: scaleAlpha(c.A, 0.6)}
			cyan := color.NRGBA{G: c.G, B: c.B, A: scaleAlpha(c.A, 0.5)}
			base := color.NRGBA{R: c.R, G: c.G, B: c.B, A: scaleAlpha(c.A, 0.4)}

			fillRect(dst, px+int(math.Round(chroma)), py, b, b, red)
			fillRect(dst, px-int(math.Round(chroma)), py, b, b, cyan)
			fillRect(dst, px, py, b, b, base)
		}
	}
}

// renderFloat moves the grid as a rigid body on two slow sine tracks, with a
// flat shadow pass underneath and a breathing brightness on the main pass.
func renderFloat(dst *image.NRGBA, grid pixelate.Grid, geom pixelate.Geometry, intensity int, t float64) {
	b := geom.BlockSize
	dy := int(math.Round(math.Sin(t*2) * float64(intensity) * 2))
	dx := int(math.Round(math.Cos(t*1.5) * float64(intensity) * 0.5))

	shadow := color.NRGBA{A: 76} // flat black at 0.3
	for y := 0; y < grid.Height(); y++ {
		for x := 0; x < grid.Width(); x++ {
			if grid.At(x, y).A < alphaSkipThreshold {
				continue
			}
			fillRect(dst, x*b+dx+4, y*b+dy+4, b, b, shadow)
		}
	}

	brightness := 0.9 + math.Sin(t*3)*0.1*(float64(intensity)/10)
	for y := 0; y < grid.Height(); y++ {
		for x := 0; x < grid.Width(); x++ {
			c := grid.At(x, y)
			if c.A < alphaSkipThreshold {
				continue
			}
			lit := color.NRGBA{
				R: scaleChannel(c.R, brightness),
				G: scaleChannel(c.G, brightness),
				B: scaleChannel(c.B, brightness),
				A: c.A,
			}
			fillRect(dst, x*b+dx, y*b+dy, b, b, lit)
		}
	}
}

// renderSparkle draws the static grid and overlays white highlights whose
// positions are seeded per ~0.33s time window, so sparkles hold still
// briefly instead of flickering every frame.
func renderSparkle(dst *image.NRGBA, grid pixelate.Grid, geom pixelate.Geometry, intensity int, t float64) {
	renderStatic(dst, grid, geom)

	b := geom.BlockSize
	window := int(math.Floor(t * 3))
	count := intensity * 5

	for i := 0; i < count; i++ {
		seed := i*1000 + window
		gx := pseudoRandRange(seed, grid.Width())
		gy := pseudoRandRange(seed+499979, grid.Height())
		if grid.At(gx, gy).A < alphaSkipThreshold {
			continue
		}

		phase := math.Mod(t*5+float64(i)*0.5, 2*math.Pi)
		s := math.Sin(phase)
		brightness := s * s
		if brightness <= 0.3 {
			continue
		}

		size := int(math.Round(float64(b) * (1 + brightness*0.5)))
		cx := gx*b + b/2
		cy := gy*b + b/2

		if brightness > 0.6 {
			halo := size + 2*b
			fillRect(dst, cx-halo/2, cy-halo/2, halo, halo, color.NRGBA{R: 255, G: 255, B: 255, A: scaleAlpha(255, brightness*0.25)})
		}
		fillRect(dst, cx-size/2, cy-size/2, size, size, color.NRGBA{R: 255, G: 255, B: 255, A: scaleAlpha(255, brightness)})
	}
}

// renderWave displaces rows and cells on two sine frequencies: a row-level
// sweep plus a smaller per-cell vertical ripple.
func renderWave(dst *image.NRGBA, grid pixelate.Grid, geom pixelate.Geometry, intensity int, t float64) {
	b := geom.BlockSize
	amp := float64(intensity)
	for y := 0; y < grid.Height(); y++ {
		rowDX := math.Sin(float64(y)*0.3+t*3) * amp * 0.8
		rowDY := math.Sin(float64(y)*0.2+t*2) * amp * 0.3
		for x := 0; x < grid.Width(); x++ {
			c := grid.At(x, y)
			if c.A < alphaSkipThreshold {
				continue
			}
			cellDY := math.Sin(float64(x)*0.4+t*4) * amp * 0.2
			px := x*b + int(math.Round(rowDX))
			py := y*b + int(math.Round(rowDY+cellDY))
			fillRect(dst, px, py, b, b, c)
		}
	}
}

// renderRainbow cycles each cell's hue through HSL space, keyed on grid
// position and time, with a mild saturation boost. Achromatic cells keep
// hue 0 and are unaffected by the shift.
func renderRainbow(dst *image.NRGBA, grid pixelate.Grid, geom pixelate.Geometry, intensity int, t float64) {
	b := geom.BlockSize
	in := float64(intensity)
	for y := 0; y < grid.Height(); y++ {
		for x := 0; x < grid.Width(); x++ {
			c := grid.At(x, y)
			if c.A < alphaSkipThreshold {
				continue
			}

			col := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
			h, s, l := col.Hsl()

			shift := math.Mod(float64(x+y)+t*50*(in/5), 360) * (in / 10)
			h = math.Mod(h+shift, 360)
			s = math.Min(1, s+0.2*(in/10))

			r8, g8, b8 := colorful.Hsl(h, s, l).Clamped().RGB255()
			fillRect(dst, x*b, y*b, b, b, color.NRGBA{R: r8, G: g8, B: b8, A: c.A})
		}
	}
}

func scaleAlpha(a uint8, f float64) uint8 {
	v := float64(a) * f
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	return uint8(math.Round(v))
}

func scaleChannel(c uint8, f float64) uint8 {
	v := float64(c) * f
	if v > 255 {
		v = 255
	}
	return uint8(math.Round(v))
}

// fillRect composites a solid rectangle over dst with src-over blending,
// clipped to the surface bounds.
func fillRect(dst *image.NRGBA, x, y, w, h int, c color.NRGBA) {
	if c.A == 0 {
		return
	}
	bounds := dst.Bounds()
	x0 := maxInt(x, bounds.Min.X)
	y0 := maxInt(y, bounds.Min.Y)
	x1 := minInt(x+w, bounds.Max.X)
	y1 := minInt(y+h, bounds.Max.Y)
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			if c.A == 255 {
				dst.SetNRGBA(px, py, c)
				continue
			}
			dst.SetNRGBA(px, py, blendOver(c, dst.NRGBAAt(px, py)))
		}
	}
}

// blendOver is src-over compositing in non-premultiplied RGBA.
func blendOver(src, dst color.NRGBA) color.NRGBA {
	if src.A == 0 {
		return dst
	}
	if src.A == 255 || dst.A == 0 {
		return src
	}

	srcA := uint32(src.A)
	dstA := uint32(dst.A)
	dstFactorA := (dstA * (256 - srcA)) >> 8
	outA := srcA + dstFactorA
	if outA == 0 {
		return color.NRGBA{}
	}

	scale := (uint32(1) << 24) / outA
	blend := func(sc, dc uint8) uint8 {
		v := (uint32(sc)*srcA + uint32(dc)*dstFactorA) * scale >> 24
		if v > 255 {
			v = 255
		}
		return uint8(v)
	}

	return color.NRGBA{
		R: blend(src.R, dst.R),
		G: blend(src.G, dst.G),
		B: blend(src.B, dst.B),
		A: uint8(outA),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
