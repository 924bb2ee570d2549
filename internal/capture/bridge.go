package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"

	"github.com/dunamismax/pixelloop/internal/engine"
)

var (
	// ErrEncoderUnavailable reports a missing export dependency, surfaced
	// before any frame is captured.
	ErrEncoderUnavailable = errors.New("capture: encoder unavailable")
)

// Encoder is the external add-frame/render contract the bridge drives. The
// bridge never looks inside: frames go in during the capture phase, bytes
// come out of Render during the encode phase, and Abort discards state on
// cancellation.
type Encoder interface {
	AddFrame(img image.Image, delayMS int) error
	Render(onProgress func(done, total int)) ([]byte, error)
	Abort()
}

// Progress receives two-phase export progress: 0-50 while capturing,
// 50-100 while encoding.
type Progress func(percent int, message string)

// Options control one export run. Zero fields take defaults derived from
// the engine's speed.
type Options struct {
	Frames          int
	DelayMS         int
	CaptureInterval int
}

const (
	DefaultFrames          = 30
	DefaultCaptureInterval = 2
)

func (o Options) withDefaults(speed int) Options {
	if o.Frames <= 0 {
		o.Frames = DefaultFrames
	}
	if o.DelayMS <= 0 {
		if speed < 1 {
			speed = 1
		}
		o.DelayMS = 100 / speed
	}
	if o.CaptureInterval < 1 {
		o.CaptureInterval = DefaultCaptureInterval
	}
	return o
}

// Bridge drives the engine at a fixed logical step, decoupled from any
// display refresh, and hands sampled frames to an encoder.
type Bridge struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Bridge{logger: logger}
}

// Run captures opts.Frames frames and returns the encoded artifact. It
// takes scoped ownership of the engine: live playback is suspended and the
// clock zeroed before the first tick, and the prior mode and clock are
// restored on every exit path, including error and cancellation.
//
// The loop strictly serializes advance -> render -> maybe capture, with
// cancellation observed at tick boundaries only. No partial output is
// produced on cancellation or failure.
func (b *Bridge) Run(ctx context.Context, eng *engine.Engine, enc Encoder, opts Options, progress Progress) ([]byte, error) {
	if enc == nil {
		return nil, ErrEncoderUnavailable
	}
	if progress == nil {
		progress = func(int, string) {}
	}

	restore, err := eng.BeginExport()
	if err != nil {
		return nil, err
	}
	defer restore()

	opts = opts.withDefaults(eng.Speed())
	b.logger.Printf("capture start frames=%d delay_ms=%d interval=%d effect=%s",
		opts.Frames, opts.DelayMS, opts.CaptureInterval, eng.Effect())

	captured := 0
	ticks := 0
	for captured < opts.Frames {
		select {
		case <-ctx.Done():
			enc.Abort()
			b.logger.Printf("capture cancelled after %d/%d frames", captured, opts.Frames)
			return nil, ctx.Err()
		default:
		}

		eng.Tick()
		ticks++
		if ticks%opts.CaptureInterval != 0 {
			continue
		}

		frame := eng.Snapshot()
		if frame == nil {
			enc.Abort()
			return nil, errors.New("capture: engine produced no frame")
		}
		if err := enc.AddFrame(frame, opts.DelayMS); err != nil {
			enc.Abort()
			return nil, fmt.Errorf("capture: add frame %d: %w", captured+1, err)
		}
		captured++
		progress(captured*50/opts.Frames, fmt.Sprintf("capturing frame %d/%d", captured, opts.Frames))
	}

	data, err := enc.Render(func(done, total int) {
		if total <= 0 {
			return
		}
		progress(50+done*50/total, "encoding")
	})
	if err != nil {
		return nil, fmt.Errorf("capture: encode failed: %w", err)
	}

	progress(100, "complete")
	b.logger.Printf("capture done frames=%d bytes=%d", captured, len(data))
	return data, nil
}
