package engine

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/dunamismax/pixelloop/internal/effects"
)

func loadedEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Options{MaxWidth: 480, MaxHeight: 480})
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 255, A: 255}), image.Point{}, draw.Src)
	if err := e.SetImage(img); err != nil {
		t.Fatalf("set image: %v", err)
	}
	return e
}

func TestPlayWithoutImageFails(t *testing.T) {
	e := New(Options{})
	if err := e.Play(); err != ErrNoImage {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestClockOnlyAdvancesWhileRunning(t *testing.T) {
	e := loadedEngine(t)

	e.Tick()
	if e.Clock() != 0 {
		t.Fatalf("clock advanced while idle: %v", e.Clock())
	}

	if err := e.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	e.Tick()
	e.Tick()
	want := 2 * effects.TickStep(e.Speed())
	if math.Abs(e.Clock()-want) > 1e-9 {
		t.Fatalf("clock = %v, want %v", e.Clock(), want)
	}
	if e.FrameCount() != 2 {
		t.Fatalf("frame count = %d, want 2", e.FrameCount())
	}

	e.Stop()
	if e.Clock() != 0 || e.FrameCount() != 0 {
		t.Fatal("stop must reset the clock")
	}
}

func TestTickRendersIntoSurface(t *testing.T) {
	e := loadedEngine(t)
	if err := e.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	e.Tick()

	surface := e.Surface()
	if surface == nil {
		t.Fatal("expected surface after tick")
	}
	geom := e.Geometry()
	if surface.Bounds().Dx() != geom.OutputWidth || surface.Bounds().Dy() != geom.OutputHeight {
		t.Fatalf("surface %v does not match geometry %dx%d", surface.Bounds(), geom.OutputWidth, geom.OutputHeight)
	}
	if surface.NRGBAAt(0, 0) != (color.NRGBA{R: 255, A: 255}) {
		t.Fatalf("expected red pixel, got %v", surface.NRGBAAt(0, 0))
	}
}

func TestBlockSizeChangeInvalidatesGrid(t *testing.T) {
	e := loadedEngine(t)
	if err := e.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	e.Tick()
	if e.Grid().Width() != 8 {
		t.Fatalf("expected 8-wide grid at block=8, got %d", e.Grid().Width())
	}

	e.SetBlockSize(16)
	e.Tick()
	if e.Grid().Width() != 4 {
		t.Fatalf("expected re-derived 4-wide grid at block=16, got %d", e.Grid().Width())
	}
}

func TestBeginExportSuspendsAndRestores(t *testing.T) {
	e := loadedEngine(t)
	if err := e.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	e.Tick()
	e.Tick()
	prevClock := e.Clock()

	restore, err := e.BeginExport()
	if err != nil {
		t.Fatalf("begin export: %v", err)
	}
	if e.Mode() != ModeExporting {
		t.Fatalf("mode = %v, want exporting", e.Mode())
	}
	if e.Clock() != 0 {
		t.Fatal("export must start from a zeroed clock")
	}

	if err := e.Play(); err != ErrBusyExporting {
		t.Fatalf("play during export: got %v, want ErrBusyExporting", err)
	}
	if _, err := e.BeginExport(); err != ErrBusyExporting {
		t.Fatalf("nested export: got %v, want ErrBusyExporting", err)
	}

	e.Tick()
	restore()

	if e.Mode() != ModePlaying {
		t.Fatalf("mode after restore = %v, want playing", e.Mode())
	}
	if e.Clock() != prevClock {
		t.Fatalf("clock after restore = %v, want %v", e.Clock(), prevClock)
	}
}

func TestStopIgnoredWhileExporting(t *testing.T) {
	e := loadedEngine(t)
	restore, err := e.BeginExport()
	if err != nil {
		t.Fatalf("begin export: %v", err)
	}
	e.Tick()
	clock := e.Clock()

	e.Stop()
	if e.Mode() != ModeExporting || e.Clock() != clock {
		t.Fatal("stop must not disturb an in-progress export")
	}
	restore()
}

func TestRenderStillDoesNotAdvanceClock(t *testing.T) {
	e := loadedEngine(t)
	if !e.RenderStill() {
		t.Fatal("expected still render for loaded engine")
	}
	if e.Clock() != 0 {
		t.Fatal("still render must not advance the clock")
	}

	empty := New(Options{})
	if empty.RenderStill() {
		t.Fatal("still render without image must report false")
	}
}
