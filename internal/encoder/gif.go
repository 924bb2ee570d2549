package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"

	"github.com/andybons/gogif"
)

var ErrEncoderClosed = errors.New("encoder: closed")

const (
	DefaultQuality = 10
	minFrameDelay  = 2 // GIF delay unit floor, in 1/100s
)

// GIFOptions configures a GIF encoder. Quality follows the exported job
// contract (lower is better); it selects the palette budget for the
// median-cut quantizer.
type GIFOptions struct {
	Width      int
	Height     int
	Quality    int
	Background color.NRGBA
}

// GIF accumulates frames and assembles a looping GIF on Render. Frames are
// held unquantized so capture stays cheap; all palette work happens in the
// Render phase, which is where encode progress is reported from.
type GIF struct {
	opts    GIFOptions
	frames  []*image.NRGBA
	delays  []int
	closed  bool
	aborted bool
}

func NewGIF(opts GIFOptions) *GIF {
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}
	if opts.Background.A == 0 {
		opts.Background = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return &GIF{opts: opts}
}

// AddFrame appends one frame with its display delay in milliseconds.
func (g *GIF) AddFrame(img image.Image, delayMS int) error {
	if g.closed || g.aborted {
		return ErrEncoderClosed
	}
	if img == nil {
		return errors.New("encoder: nil frame")
	}

	frame := image.NewNRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(g.opts.Background), image.Point{}, draw.Src)
	draw.Draw(frame, frame.Bounds(), img, img.Bounds().Min, draw.Over)

	delay := delayMS / 10
	if delay < minFrameDelay {
		delay = minFrameDelay
	}

	g.frames = append(g.frames, frame)
	g.delays = append(g.delays, delay)
	return nil
}

func (g *GIF) FrameCount() int {
	return len(g.frames)
}

// Abort discards all buffered frames; a subsequent Render fails.
func (g *GIF) Abort() {
	g.aborted = true
	g.frames = nil
	g.delays = nil
}

// Render quantizes every buffered frame and assembles the looping GIF
// byte stream. onProgress, if non-nil, is invoked after each frame is
// quantized and once after final assembly.
func (g *GIF) Render(onProgress func(done, total int)) ([]byte, error) {
	if g.aborted {
		return nil, ErrEncoderClosed
	}
	if g.closed {
		return nil, ErrEncoderClosed
	}
	if len(g.frames) == 0 {
		return nil, errors.New("encoder: no frames added")
	}
	g.closed = true

	total := len(g.frames) + 1
	out := &gif.GIF{LoopCount: 0}
	quantizer := &gogif.MedianCutQuantizer{NumColor: paletteSizeForQuality(g.opts.Quality)}

	for i, frame := range g.frames {
		paletted := image.NewPaletted(frame.Bounds(), nil)
		quantizer.Quantize(paletted, frame.Bounds(), frame, image.Point{})
		out.Image = append(out.Image, paletted)
		out.Delay = append(out.Delay, g.delays[i])
		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		return nil, fmt.Errorf("encoder: assemble gif: %w", err)
	}
	if onProgress != nil {
		onProgress(total, total)
	}

	g.frames = nil
	g.delays = nil
	return buf.Bytes(), nil
}

// paletteSizeForQuality maps the job-level quality knob (1 best, 30 worst)
// to a median-cut palette budget.
func paletteSizeForQuality(quality int) int {
	switch {
	case quality <= 10:
		return 256
	case quality <= 20:
		return 128
	default:
		return 64
	}
}
