package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunamismax/pixelloop/internal/capture"
	"github.com/dunamismax/pixelloop/internal/domain"
	"github.com/dunamismax/pixelloop/internal/effects"
	"github.com/dunamismax/pixelloop/internal/encoder"
	"github.com/dunamismax/pixelloop/internal/engine"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	Render     domain.RenderSpec
	Export     domain.ExportSpec
}

// Artifact describes the one encoded output a job produces.
type Artifact struct {
	Format  string
	Path    string
	Bytes   int
	Width   int
	Height  int
	Frames  int
	Success bool
}

type Result struct {
	Artifact        Artifact
	GridWidth       int
	GridHeight      int
	FramesRendered  int64
	PixelsProcessed int64
}

// Progress receives export progress, 0-100, with a human-readable phase.
type Progress func(percent int, message string)

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, data []byte, format string, width, height int) (Artifact, error)
}

// Processor runs one render job end to end: fetch the source, pixelate it,
// drive the animation engine through the capture bridge, and emit the
// encoded artifact.
type Processor struct {
	fetcher Fetcher
	emitter Emitter
	logger  *log.Logger
}

func NewProcessor(fetcher Fetcher, emitter Emitter, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Processor{
		fetcher: fetcher,
		emitter: emitter,
		logger:  logger,
	}
}

func NewLocalProcessor(outputDir string, logger *log.Logger) *Processor {
	return NewProcessor(LocalFileFetcher{}, LocalFileEmitter{OutputDir: outputDir}, logger)
}

func (p *Processor) Process(ctx context.Context, req Request, progress Progress) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if err := req.Render.Validate(); err != nil {
		return Result{}, err
	}
	if err := req.Export.Validate(); err != nil {
		return Result{}, err
	}
	req.Render.ApplyDefaults()
	req.Export.ApplyDefaults(req.Render.Speed)

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	effect, err := effects.Parse(req.Render.Effect)
	if err != nil {
		return Result{}, err
	}

	eng := engine.New(engine.Options{MaxWidth: req.Render.MaxWidth, MaxHeight: req.Render.MaxHeight})
	if err := eng.LoadImage(sourceBytes); err != nil {
		return Result{}, fmt.Errorf("decode stage: %w", err)
	}
	eng.SetBlockSize(req.Render.BlockSize)
	eng.SetEffect(effect)
	eng.SetIntensity(req.Render.Intensity)
	eng.SetSpeed(req.Render.Speed)
	if !eng.Refresh() {
		return Result{}, errors.New("pixelate stage: could not derive grid")
	}
	geom := eng.Geometry()
	p.logger.Printf("job=%s effect=%s block=%d grid=%dx%d out=%dx%d",
		req.JobID, effect, geom.BlockSize, geom.GridWidth, geom.GridHeight, geom.OutputWidth, geom.OutputHeight)

	var (
		data   []byte
		frames int
	)
	switch req.Export.Format {
	case domain.FormatPNG:
		data, err = p.renderStill(ctx, eng, progress)
		frames = 1
	default:
		data, frames, err = p.renderAnimation(ctx, eng, req.Export, progress)
	}
	if err != nil {
		return Result{}, err
	}

	artifact, err := p.emitter.Emit(ctx, req, data, req.Export.Format, geom.OutputWidth, geom.OutputHeight)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}
	artifact.Frames = frames

	return Result{
		Artifact:        artifact,
		GridWidth:       geom.GridWidth,
		GridHeight:      geom.GridHeight,
		FramesRendered:  int64(frames),
		PixelsProcessed: int64(frames) * int64(geom.OutputWidth) * int64(geom.OutputHeight),
	}, nil
}

func (p *Processor) renderStill(ctx context.Context, eng *engine.Engine, progress Progress) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if !eng.RenderStill() {
		return nil, errors.New("render stage: no frame produced")
	}
	data, err := encoder.EncodePNG(eng.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("render stage: %w", err)
	}
	if progress != nil {
		progress(100, "complete")
	}
	return data, nil
}

func (p *Processor) renderAnimation(ctx context.Context, eng *engine.Engine, export domain.ExportSpec, progress Progress) ([]byte, int, error) {
	geom := eng.Geometry()
	enc := encoder.NewGIF(encoder.GIFOptions{
		Width:   geom.OutputWidth,
		Height:  geom.OutputHeight,
		Quality: export.Quality,
	})

	data, err := capture.New(p.logger).Run(ctx, eng, enc, capture.Options{
		Frames:          export.Frames,
		DelayMS:         export.DelayMS,
		CaptureInterval: export.CaptureInterval,
	}, capture.Progress(progress))
	if err != nil {
		return nil, 0, fmt.Errorf("capture stage: %w", err)
	}
	return data, export.Frames, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
	Now       func() time.Time
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, data []byte, format string, width, height int) (Artifact, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Artifact{}, errors.New("output directory is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create output dir: %w", err)
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	fullPath := filepath.Join(jobDir, artifactFilename(req.Render.Effect, format, now()))
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write output file: %w", err)
	}

	return Artifact{
		Format:  normalizeOutputFormat(format),
		Path:    fullPath,
		Bytes:   len(data),
		Width:   width,
		Height:  height,
		Success: true,
	}, nil
}

func artifactFilename(effect, format string, now time.Time) string {
	if normalizeOutputFormat(format) == domain.FormatPNG {
		return encoder.StillFilename(effect, now)
	}
	return encoder.GIFFilename(effect, now)
}

func normalizeOutputFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), domain.FormatPNG) {
		return domain.FormatPNG
	}
	return domain.FormatGIF
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
