package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"testing"
	"time"
)

func solidFrame(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func TestGIFRoundTrip(t *testing.T) {
	enc := NewGIF(GIFOptions{Width: 16, Height: 16, Quality: 10})

	colors := []color.NRGBA{
		{R: 255, A: 255},
		{G: 255, A: 255},
		{B: 255, A: 255},
	}
	for _, c := range colors {
		if err := enc.AddFrame(solidFrame(16, 16, c), 50); err != nil {
			t.Fatalf("add frame: %v", err)
		}
	}

	var calls int
	data, err := enc.Render(func(done, total int) {
		calls++
		if done > total {
			t.Fatalf("progress overflow: %d/%d", done, total)
		}
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if calls != len(colors)+1 {
		t.Fatalf("expected %d progress calls, got %d", len(colors)+1, calls)
	}

	decoded, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(decoded.Image) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(decoded.Image))
	}
	if decoded.LoopCount != 0 {
		t.Fatalf("expected infinite loop, got %d", decoded.LoopCount)
	}
	if decoded.Delay[0] != 5 {
		t.Fatalf("expected 50ms delay as 5 ticks, got %d", decoded.Delay[0])
	}
}

func TestGIFRenderWithoutFramesFails(t *testing.T) {
	enc := NewGIF(GIFOptions{Width: 8, Height: 8})
	if _, err := enc.Render(nil); err == nil {
		t.Fatal("expected error for empty encoder")
	}
}

func TestGIFAbortDiscardsFrames(t *testing.T) {
	enc := NewGIF(GIFOptions{Width: 8, Height: 8})
	if err := enc.AddFrame(solidFrame(8, 8, color.NRGBA{R: 9, A: 255}), 30); err != nil {
		t.Fatalf("add frame: %v", err)
	}

	enc.Abort()

	if err := enc.AddFrame(solidFrame(8, 8, color.NRGBA{A: 255}), 30); err == nil {
		t.Fatal("expected error adding frame after abort")
	}
	if _, err := enc.Render(nil); err == nil {
		t.Fatal("expected error rendering after abort")
	}
	if enc.FrameCount() != 0 {
		t.Fatalf("expected no buffered frames after abort, got %d", enc.FrameCount())
	}
}

func TestGIFFlattensTransparencyOntoBackground(t *testing.T) {
	enc := NewGIF(GIFOptions{Width: 4, Height: 4, Background: color.NRGBA{R: 255, G: 255, B: 255, A: 255}})
	if err := enc.AddFrame(image.NewNRGBA(image.Rect(0, 0, 4, 4)), 40); err != nil {
		t.Fatalf("add frame: %v", err)
	}
	data, err := enc.Render(nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	decoded, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, b, _ := decoded.Image[0].At(0, 0).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Fatalf("expected white background pixel, got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestStillFilename(t *testing.T) {
	now := time.Unix(1700000000, 0)
	if got := StillFilename("glitch", now); got != "pixelart-glitch-1700000000.png" {
		t.Fatalf("unexpected filename: %s", got)
	}
	if got := StillFilename("", now); got != "pixelart-none-1700000000.png" {
		t.Fatalf("unexpected fallback filename: %s", got)
	}
	if got := GIFFilename("wave", now); got != "pixelart-wave-1700000000.gif" {
		t.Fatalf("unexpected gif filename: %s", got)
	}
}

func TestEncodePNG(t *testing.T) {
	data, err := EncodePNG(solidFrame(6, 6, color.NRGBA{G: 128, A: 255}))
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected png bytes")
	}
	if _, err := EncodePNG(nil); err == nil {
		t.Fatal("expected error for nil surface")
	}
}
