// Command pixelloop renders a pixel-art animation from a single image on
// the local filesystem, without the API or queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dunamismax/pixelloop/internal/domain"
	"github.com/dunamismax/pixelloop/internal/effects"
	"github.com/dunamismax/pixelloop/internal/id"
	"github.com/dunamismax/pixelloop/internal/pipeline"
	"github.com/dunamismax/pixelloop/internal/pixelate"
)

func main() {
	var (
		input     = flag.String("input", "", "path to the source image (png, jpeg, gif, webp)")
		outputDir = flag.String("output-dir", ".", "directory for the rendered artifact")
		effect    = flag.String("effect", "none", "animation effect: "+strings.Join(effects.Names(), ", "))
		blockSize = flag.Int("block-size", 8, "pixel block size")
		intensity = flag.Int("intensity", 5, "effect intensity, 1-10")
		speed     = flag.Int("speed", 5, "animation speed, 1-10")
		frames    = flag.Int("frames", 30, "number of frames to capture")
		still     = flag.Bool("still", false, "render a single PNG instead of an animated GIF")
		maxSize   = flag.Int("max-size", 480, "bounding box for the output, in pixels")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[pixelloop] ", log.LstdFlags|log.Lmsgprefix)
	if *input == "" {
		logger.Fatal("missing -input")
	}

	if err := pixelate.Startup(); err != nil {
		logger.Fatalf("image runtime startup failed: %v", err)
	}
	defer pixelate.Shutdown()

	format := domain.FormatGIF
	if *still {
		format = domain.FormatPNG
	}

	req := pipeline.Request{
		JobID:      id.New(),
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  *input,
		Render: domain.RenderSpec{
			BlockSize: *blockSize,
			Effect:    *effect,
			Intensity: *intensity,
			Speed:     *speed,
			MaxWidth:  *maxSize,
			MaxHeight: *maxSize,
		},
		Export: domain.ExportSpec{
			Format: format,
			Frames: *frames,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc := pipeline.NewLocalProcessor(*outputDir, logger)
	result, err := proc.Process(ctx, req, func(percent int, message string) {
		fmt.Fprintf(os.Stderr, "\r%3d%% %-40s", percent, message)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		logger.Fatalf("render failed: %v", err)
	}

	logger.Printf("wrote %s (%d bytes, %d frames, grid %dx%d)",
		result.Artifact.Path, result.Artifact.Bytes, result.Artifact.Frames,
		result.GridWidth, result.GridHeight)
}
