package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"
)

// EncodePNG serializes a drawing surface to PNG bytes for still export.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("encoder: nil surface")
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoder: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// StillFilename builds the download name for a still export, encoding the
// active effect and a timestamp.
func StillFilename(effect string, now time.Time) string {
	if effect == "" {
		effect = "none"
	}
	return fmt.Sprintf("pixelart-%s-%d.png", effect, now.Unix())
}

// GIFFilename builds the download name for an animated export.
func GIFFilename(effect string, now time.Time) string {
	if effect == "" {
		effect = "none"
	}
	return fmt.Sprintf("pixelart-%s-%d.gif", effect, now.Unix())
}
