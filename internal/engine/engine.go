package engine

import (
	"errors"
	"fmt"
	"image"

	"github.com/dunamismax/pixelloop/internal/effects"
	"github.com/dunamismax/pixelloop/internal/pixelate"
)

// Mode is the rendering context's ownership state. Live playback and export
// capture are mutually exclusive consumers of the one drawing surface;
// ModeExporting exclusively suspends ModePlaying.
type Mode int

const (
	ModeIdle Mode = iota
	ModePlaying
	ModeExporting
)

func (m Mode) String() string {
	switch m {
	case ModePlaying:
		return "playing"
	case ModeExporting:
		return "exporting"
	default:
		return "idle"
	}
}

var (
	ErrNoImage       = errors.New("engine: no image loaded")
	ErrBusyExporting = errors.New("engine: export in progress")
)

// Engine owns the full rendering context: the decoded source, the derived
// color grid and geometry, the drawing surface, and the animation clock.
// It is the explicit state object the capture bridge's scoped pause/resume
// discipline operates on. Not safe for concurrent use; all ticks run on one
// scheduling context.
type Engine struct {
	source *pixelate.Source

	grid    pixelate.Grid
	geom    pixelate.Geometry
	surface *image.NRGBA

	effect    effects.Effect
	intensity int
	speed     int

	mode       Mode
	clock      float64
	frameCount int

	maxWidth  int
	maxHeight int

	dirty bool
}

// Options bound the output geometry. Defaults keep previews at a sensible
// display size.
type Options struct {
	MaxWidth  int
	MaxHeight int
}

func New(opts Options) *Engine {
	maxW := opts.MaxWidth
	if maxW <= 0 {
		maxW = 480
	}
	maxH := opts.MaxHeight
	if maxH <= 0 {
		maxH = 480
	}
	return &Engine{
		source:    pixelate.NewSource(),
		intensity: 5,
		speed:     5,
		maxWidth:  maxW,
		maxHeight: maxH,
	}
}

// LoadImage decodes and installs a new source, releasing the previous one
// and invalidating derived state. Loading always stops playback.
func (e *Engine) LoadImage(data []byte) error {
	if e.mode == ModeExporting {
		return ErrBusyExporting
	}
	if err := e.source.Decode(data); err != nil {
		return err
	}
	e.Stop()
	e.dirty = true
	return nil
}

// SetImage installs an already-decoded bitmap.
func (e *Engine) SetImage(img image.Image) error {
	if e.mode == ModeExporting {
		return ErrBusyExporting
	}
	e.source.SetImage(img)
	e.Stop()
	e.dirty = true
	return nil
}

// Reset releases the source image and returns the engine to idle.
func (e *Engine) Reset() {
	e.source.Release()
	e.grid = pixelate.Grid{}
	e.geom = pixelate.Geometry{}
	e.surface = nil
	e.mode = ModeIdle
	e.clock = 0
	e.frameCount = 0
	e.dirty = false
}

func (e *Engine) SetBlockSize(n int) {
	if pixelate.ClampBlockSize(n) != e.source.BlockSize() {
		e.dirty = true
	}
	e.source.SetBlockSize(n)
}

func (e *Engine) SetEffect(effect effects.Effect) {
	e.effect = effect
}

func (e *Engine) SetIntensity(n int) {
	e.intensity = effects.ClampIntensity(n)
}

func (e *Engine) SetSpeed(n int) {
	e.speed = effects.ClampSpeed(n)
}

func (e *Engine) Effect() effects.Effect { return e.effect }
func (e *Engine) Intensity() int         { return e.intensity }
func (e *Engine) Speed() int             { return e.speed }
func (e *Engine) Mode() Mode             { return e.mode }
func (e *Engine) Clock() float64         { return e.clock }
func (e *Engine) FrameCount() int        { return e.frameCount }
func (e *Engine) Loaded() bool           { return e.source.Loaded() }
func (e *Engine) Geometry() pixelate.Geometry { return e.geom }
func (e *Engine) Grid() pixelate.Grid    { return e.grid }

// Surface returns the drawing surface, or nil before the first refresh.
func (e *Engine) Surface() *image.NRGBA {
	return e.surface
}

// Refresh re-derives geometry, grid, and surface from the current source
// and block size. It is a no-op steady state without a loaded image.
func (e *Engine) Refresh() bool {
	geom, ok := e.source.Geometry(e.maxWidth, e.maxHeight)
	if !ok {
		return false
	}
	grid, ok := e.source.Grid(geom)
	if !ok {
		return false
	}

	e.geom = geom
	e.grid = grid
	if e.surface == nil ||
		e.surface.Bounds().Dx() != geom.OutputWidth ||
		e.surface.Bounds().Dy() != geom.OutputHeight {
		e.surface = image.NewNRGBA(image.Rect(0, 0, geom.OutputWidth, geom.OutputHeight))
	}
	e.dirty = false
	return true
}

// Play transitions idle -> playing. Playing while exporting is an error;
// playing while already playing is a no-op.
func (e *Engine) Play() error {
	switch e.mode {
	case ModeExporting:
		return ErrBusyExporting
	case ModePlaying:
		return nil
	}
	if !e.source.Loaded() {
		return ErrNoImage
	}
	if e.dirty || e.grid.Empty() {
		if !e.Refresh() {
			return ErrNoImage
		}
	}
	e.mode = ModePlaying
	return nil
}

// Stop halts playback and resets the animation clock to zero.
func (e *Engine) Stop() {
	if e.mode == ModeExporting {
		return
	}
	e.mode = ModeIdle
	e.clock = 0
	e.frameCount = 0
}

// Tick advances the clock by one logical step and renders the current frame
// into the surface. The clock only moves while playing or exporting;
// rendering without a grid is a no-op.
func (e *Engine) Tick() {
	if e.mode == ModeIdle {
		return
	}
	if e.dirty {
		if !e.Refresh() {
			return
		}
	}
	e.clock += effects.TickStep(e.speed)
	e.frameCount++
	e.renderFrame()
}

// RenderStill renders one frame at the current clock without advancing it.
func (e *Engine) RenderStill() bool {
	if e.dirty || e.grid.Empty() {
		if !e.Refresh() {
			return false
		}
	}
	e.renderFrame()
	return true
}

func (e *Engine) renderFrame() {
	effects.Render(e.surface, e.grid, e.geom, e.effect, e.intensity, e.clock)
}

// Snapshot returns a copy of the current surface, safe to hand to an
// encoder while ticking continues.
func (e *Engine) Snapshot() *image.NRGBA {
	if e.surface == nil {
		return nil
	}
	dup := image.NewNRGBA(e.surface.Bounds())
	copy(dup.Pix, e.surface.Pix)
	return dup
}

// BeginExport transitions to exporting, suspending live playback. It
// returns a restore function that reinstates the prior mode and clock; the
// caller must invoke it on every exit path.
func (e *Engine) BeginExport() (restore func(), err error) {
	if e.mode == ModeExporting {
		return nil, ErrBusyExporting
	}
	if !e.source.Loaded() {
		return nil, ErrNoImage
	}
	if e.dirty || e.grid.Empty() {
		if !e.Refresh() {
			return nil, ErrNoImage
		}
	}

	prevMode := e.mode
	prevClock := e.clock
	prevFrames := e.frameCount

	e.mode = ModeExporting
	e.clock = 0
	e.frameCount = 0

	return func() {
		e.mode = prevMode
		e.clock = prevClock
		e.frameCount = prevFrames
	}, nil
}

// Describe summarizes the engine state for logs.
func (e *Engine) Describe() string {
	return fmt.Sprintf("mode=%s effect=%s intensity=%d speed=%d grid=%dx%d",
		e.mode, e.effect, e.intensity, e.speed, e.grid.Width(), e.grid.Height())
}
