package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/pixelloop/internal/effects"
	"github.com/dunamismax/pixelloop/internal/pixelate"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"

	FormatGIF = "gif"
	FormatPNG = "png"
)

// RenderSpec is the pixelation and animation configuration for one job.
type RenderSpec struct {
	BlockSize int    `json:"block_size,omitempty"`
	Effect    string `json:"effect,omitempty"`
	Intensity int    `json:"intensity,omitempty"`
	Speed     int    `json:"speed,omitempty"`
	MaxWidth  int    `json:"max_width,omitempty"`
	MaxHeight int    `json:"max_height,omitempty"`
}

func (r *RenderSpec) ApplyDefaults() {
	if r.BlockSize == 0 {
		r.BlockSize = pixelate.DefaultBlockSize
	}
	if r.Intensity == 0 {
		r.Intensity = 5
	}
	if r.Speed == 0 {
		r.Speed = 5
	}
	if r.MaxWidth == 0 {
		r.MaxWidth = 480
	}
	if r.MaxHeight == 0 {
		r.MaxHeight = 480
	}
}

func (r RenderSpec) Validate() error {
	if r.BlockSize != 0 && (r.BlockSize < pixelate.MinBlockSize || r.BlockSize > pixelate.MaxBlockSize) {
		return fmt.Errorf("render.block_size must be in [%d,%d]", pixelate.MinBlockSize, pixelate.MaxBlockSize)
	}
	if r.Intensity != 0 && (r.Intensity < effects.MinIntensity || r.Intensity > effects.MaxIntensity) {
		return fmt.Errorf("render.intensity must be in [%d,%d]", effects.MinIntensity, effects.MaxIntensity)
	}
	if r.Speed != 0 && (r.Speed < effects.MinSpeed || r.Speed > effects.MaxSpeed) {
		return fmt.Errorf("render.speed must be in [%d,%d]", effects.MinSpeed, effects.MaxSpeed)
	}
	if _, err := effects.Parse(r.Effect); err != nil {
		return fmt.Errorf("render.effect: %v (accepted: %s)", err, strings.Join(effects.Names(), ", "))
	}
	if r.MaxWidth < 0 || r.MaxHeight < 0 {
		return errors.New("render.max_width and render.max_height must be positive")
	}
	return nil
}

// ExportSpec is the artifact contract for one job: a looping GIF or a
// single still frame.
type ExportSpec struct {
	Format          string `json:"format,omitempty"`
	Frames          int    `json:"frames,omitempty"`
	DelayMS         int    `json:"delay_ms,omitempty"`
	Quality         int    `json:"quality,omitempty"`
	CaptureInterval int    `json:"capture_interval,omitempty"`
}

// ApplyDefaults fills zero fields. The frame delay default derives from the
// render speed so faster animations export with shorter per-frame delays.
func (e *ExportSpec) ApplyDefaults(speed int) {
	if e.Format == "" {
		e.Format = FormatGIF
	}
	if e.Frames == 0 {
		e.Frames = 30
	}
	if e.DelayMS == 0 {
		if speed < 1 {
			speed = 1
		}
		e.DelayMS = 100 / speed
	}
	if e.Quality == 0 {
		e.Quality = 10
	}
	if e.CaptureInterval == 0 {
		e.CaptureInterval = 2
	}
}

func (e ExportSpec) Validate() error {
	switch e.Format {
	case "", FormatGIF, FormatPNG:
	default:
		return fmt.Errorf("export.format must be %q or %q", FormatGIF, FormatPNG)
	}
	if e.Frames < 0 {
		return errors.New("export.frames must be positive")
	}
	if e.DelayMS < 0 {
		return errors.New("export.delay_ms must be positive")
	}
	if e.CaptureInterval < 0 {
		return errors.New("export.capture_interval must be at least 1")
	}
	return nil
}

type CreateJobRequest struct {
	SourceType string     `json:"source_type"`
	WebhookURL string     `json:"webhook_url,omitempty"`
	ObjectKey  string     `json:"object_key,omitempty"`
	Render     RenderSpec `json:"render"`
	Export     ExportSpec `json:"export"`
}

type Job struct {
	ID          string
	UserID      string
	Status      string
	SourceType  string
	WebhookURL  string
	ObjectKey   string
	ArtifactKey string
	Render      RenderSpec
	Export      ExportSpec
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if err := r.Render.Validate(); err != nil {
		return err
	}
	return r.Export.Validate()
}
