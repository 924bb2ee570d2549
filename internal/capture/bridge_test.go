package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/dunamismax/pixelloop/internal/engine"
)

type fakeEncoder struct {
	frames    int
	delays    []int
	aborted   bool
	rendered  bool
	addErr    error
	renderErr error
	onAdd     func(frame int)
}

func (f *fakeEncoder) AddFrame(img image.Image, delayMS int) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.frames++
	f.delays = append(f.delays, delayMS)
	if f.onAdd != nil {
		f.onAdd(f.frames)
	}
	return nil
}

func (f *fakeEncoder) Render(onProgress func(done, total int)) ([]byte, error) {
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	f.rendered = true
	if onProgress != nil {
		onProgress(1, 2)
		onProgress(2, 2)
	}
	return []byte("gif-bytes"), nil
}

func (f *fakeEncoder) Abort() {
	f.aborted = true
}

func exportEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New(engine.Options{MaxWidth: 64, MaxHeight: 64})
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 200, G: 40, B: 90, A: 255}), image.Point{}, draw.Src)
	if err := e.SetImage(img); err != nil {
		t.Fatalf("set image: %v", err)
	}
	return e
}

func TestRunCapturesExactFrameCount(t *testing.T) {
	eng := exportEngine(t)
	enc := &fakeEncoder{}
	bridge := New(nil)

	var percents []int
	sawCaptureBoundary := false
	data, err := bridge.Run(context.Background(), eng, enc, Options{Frames: 30, CaptureInterval: 2}, func(p int, _ string) {
		percents = append(percents, p)
		if p == 50 {
			sawCaptureBoundary = true
		}
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if string(data) != "gif-bytes" {
		t.Fatalf("unexpected artifact: %q", data)
	}

	if enc.frames != 30 {
		t.Fatalf("expected exactly 30 add-frame calls, got %d", enc.frames)
	}
	if !enc.rendered {
		t.Fatal("expected encoder finalize")
	}
	if !sawCaptureBoundary {
		t.Fatal("progress must reach exactly 50 at the capture/encode boundary")
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress regressed: %v", percents)
		}
	}
	if percents[len(percents)-1] != 100 {
		t.Fatalf("expected terminal 100%%, got %d", percents[len(percents)-1])
	}
}

func TestRunDefaultsDelayFromSpeed(t *testing.T) {
	eng := exportEngine(t)
	eng.SetSpeed(4)
	enc := &fakeEncoder{}

	if _, err := New(nil).Run(context.Background(), eng, enc, Options{Frames: 2}, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(enc.delays) == 0 || enc.delays[0] != 25 {
		t.Fatalf("expected default delay floor(100/4)=25, got %v", enc.delays)
	}
}

func TestRunRestoresEngineState(t *testing.T) {
	eng := exportEngine(t)
	if err := eng.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	eng.Tick()
	eng.Tick()
	prevClock := eng.Clock()

	enc := &fakeEncoder{}
	if _, err := New(nil).Run(context.Background(), eng, enc, Options{Frames: 4}, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	if eng.Mode() != engine.ModePlaying {
		t.Fatalf("mode after export = %v, want playing", eng.Mode())
	}
	if eng.Clock() != prevClock {
		t.Fatalf("clock after export = %v, want %v", eng.Clock(), prevClock)
	}
}

func TestRunCancellationAbortsWithoutPartialOutput(t *testing.T) {
	eng := exportEngine(t)
	if err := eng.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	eng.Tick()
	prevClock := eng.Clock()

	ctx, cancel := context.WithCancel(context.Background())
	enc := &fakeEncoder{}
	enc.onAdd = func(frame int) {
		if frame == 5 {
			cancel()
		}
	}

	data, err := New(nil).Run(ctx, eng, enc, Options{Frames: 30}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if data != nil {
		t.Fatal("cancellation must not produce partial output")
	}
	if !enc.aborted {
		t.Fatal("expected encoder abort on cancellation")
	}
	if enc.frames != 5 {
		t.Fatalf("cancellation must stop at the next tick boundary, got %d frames", enc.frames)
	}

	if eng.Mode() != engine.ModePlaying || eng.Clock() != prevClock {
		t.Fatal("engine state must be restored after cancellation")
	}
}

func TestRunNilEncoderFailsBeforeCapture(t *testing.T) {
	eng := exportEngine(t)
	_, err := New(nil).Run(context.Background(), eng, nil, Options{}, nil)
	if !errors.Is(err, ErrEncoderUnavailable) {
		t.Fatalf("expected ErrEncoderUnavailable, got %v", err)
	}
	if eng.Mode() != engine.ModeIdle {
		t.Fatal("engine must be untouched when encoder is missing")
	}
}

func TestRunEncoderFailuresSurface(t *testing.T) {
	eng := exportEngine(t)

	addFail := &fakeEncoder{addErr: errors.New("disk full")}
	if _, err := New(nil).Run(context.Background(), eng, addFail, Options{Frames: 3}, nil); err == nil {
		t.Fatal("expected add-frame failure to surface")
	}
	if !addFail.aborted {
		t.Fatal("expected abort after add-frame failure")
	}
	if eng.Mode() != engine.ModeIdle {
		t.Fatal("engine must be restored after failure")
	}

	renderFail := &fakeEncoder{renderErr: errors.New("encode exploded")}
	if _, err := New(nil).Run(context.Background(), eng, renderFail, Options{Frames: 3}, nil); err == nil {
		t.Fatal("expected finalize failure to surface")
	}
	if eng.Mode() != engine.ModeIdle {
		t.Fatal("engine must be restored after finalize failure")
	}
}
