package worker

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/dunamismax/pixelloop/internal/domain"
	"github.com/dunamismax/pixelloop/internal/pipeline"
	"github.com/dunamismax/pixelloop/internal/queue"
)

type captureUsageStore struct {
	called bool
	log    domain.UsageLog
}

func (s *captureUsageStore) RecordUsage(_ context.Context, usage domain.UsageLog) error {
	s.called = true
	s.log = usage
	return nil
}

type captureWebhook struct {
	events []string
}

func (c *captureWebhook) Send(_ context.Context, _, event string, _ any) error {
	c.events = append(c.events, event)
	return nil
}

func TestRecordUsageWritesUsageLog(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	payload := queue.RenderGIFPayload{JobID: "job-1", UserID: "user-1"}
	s.recordUsage(context.Background(), payload, pipeline.Result{
		FramesRendered:  30,
		PixelsProcessed: 30 * 480 * 480,
	}, 250*time.Millisecond)

	if !usageStore.called {
		t.Fatal("expected usage log to be written")
	}
	if usageStore.log.UserID != "user-1" {
		t.Fatalf("expected user_id=user-1, got %s", usageStore.log.UserID)
	}
	if usageStore.log.FramesRendered != 30 {
		t.Fatalf("expected frames_rendered=30, got %d", usageStore.log.FramesRendered)
	}
	if usageStore.log.PixelsProcessed != 30*480*480 {
		t.Fatalf("expected pixels_processed=%d, got %d", 30*480*480, usageStore.log.PixelsProcessed)
	}
	if usageStore.log.ComputeTimeMS != 250 {
		t.Fatalf("expected compute_time_ms=250, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestRecordUsageDefaultsAnonymousUser(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), queue.RenderGIFPayload{JobID: "job-2"}, pipeline.Result{}, 0)

	if usageStore.log.UserID != "anonymous" {
		t.Fatalf("expected anonymous user, got %s", usageStore.log.UserID)
	}
	if usageStore.log.ComputeTimeMS < 1 {
		t.Fatalf("expected compute_time_ms to be at least 1, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestProgressNotifierThrottles(t *testing.T) {
	wh := &captureWebhook{}
	s := &Server{
		logger:        log.New(io.Discard, "", 0),
		webhookClient: wh,
		metrics:       newMetrics(),
	}

	notify := s.progressNotifier(context.Background(), queue.RenderGIFPayload{
		JobID:      "job-3",
		WebhookURL: "https://hooks.test/job-3",
	})
	if notify == nil {
		t.Fatal("expected a notifier when a webhook url is set")
	}

	for p := 1; p <= 100; p++ {
		notify(p, "working")
	}

	// 25, 50, 75 and the terminal 100.
	if len(wh.events) != 4 {
		t.Fatalf("expected 4 throttled progress events, got %d", len(wh.events))
	}
	for _, evt := range wh.events {
		if evt != "job.progress" {
			t.Fatalf("unexpected event %s", evt)
		}
	}

	if s.progressNotifier(context.Background(), queue.RenderGIFPayload{JobID: "job-4"}) != nil {
		t.Fatal("expected nil notifier without a webhook url")
	}
}
