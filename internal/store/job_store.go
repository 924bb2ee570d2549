package store

import (
	"context"

	"github.com/dunamismax/pixelloop/internal/domain"
)

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	SetArtifact(ctx context.Context, id, artifactKey string) (domain.Job, error)
}

// UsageStore records per-job render accounting for billing and capacity
// planning.
type UsageStore interface {
	RecordUsage(ctx context.Context, usage domain.UsageLog) error
}
