package domain

import "time"

type UsageLog struct {
	UserID          string
	JobID           string
	FramesRendered  int64
	PixelsProcessed int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
