package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/pixelloop/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeRenderGIF = "gif:render"

type RenderGIFPayload struct {
	JobID       string            `json:"job_id"`
	UserID      string            `json:"user_id,omitempty"`
	SourceType  string            `json:"source_type"`
	WebhookURL  string            `json:"webhook_url,omitempty"`
	ObjectKey   string            `json:"object_key"`
	Render      domain.RenderSpec `json:"render"`
	Export      domain.ExportSpec `json:"export"`
	RequestedAt time.Time         `json:"requested_at"`
}

func NewRenderGIFTask(payload RenderGIFPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal render payload: %w", err)
	}
	return asynq.NewTask(TypeRenderGIF, body), nil
}

func ParseRenderGIFPayload(task *asynq.Task) (RenderGIFPayload, error) {
	var payload RenderGIFPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RenderGIFPayload{}, fmt.Errorf("unmarshal render payload: %w", err)
	}
	return payload, nil
}
