package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dunamismax/pixelloop/internal/domain"
	"github.com/dunamismax/pixelloop/internal/queue"
	"github.com/dunamismax/pixelloop/internal/store"
	"github.com/hibiken/asynq"
)

type fakeQueue struct {
	payloads []queue.RenderGIFPayload
	err      error
}

func (f *fakeQueue) EnqueueRenderGIF(_ context.Context, payload queue.RenderGIFPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{ID: "task-1", Queue: "default", State: asynq.TaskStatePending}, nil
}

type fakeStorage struct {
	objects map[string]bool
}

func (f *fakeStorage) PresignedPutURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://minio.test/put/" + objectKey, nil
}

func (f *fakeStorage) PresignedGetURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://minio.test/get/" + objectKey, nil
}

func (f *fakeStorage) ObjectExists(_ context.Context, objectKey string) (bool, error) {
	return f.objects[objectKey], nil
}

func newTestServer(q *fakeQueue, st *fakeStorage) (*Server, *store.MemoryJobStore) {
	jobs := store.NewMemoryJobStore()
	srv := NewServer(Options{
		Queue:    q,
		JobStore: jobs,
		Storage:  st,
	})
	return srv, jobs
}

func TestExtractJobIDFromStartPath(t *testing.T) {
	jobID, err := extractJobIDFromStartPath("/v1/jobs/abc123/start")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if jobID != "abc123" {
		t.Fatalf("expected abc123, got %s", jobID)
	}

	if _, err := extractJobIDFromStartPath("/v1/jobs/abc123"); err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestCreateJobPresignsUpload(t *testing.T) {
	srv, _ := newTestServer(&fakeQueue{}, &fakeStorage{objects: map[string]bool{}})

	body, _ := json.Marshal(domain.CreateJobRequest{
		SourceType: domain.SourceTypeS3Presigned,
		Render:     domain.RenderSpec{Effect: "glitch", Intensity: 8},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
		Upload struct {
			ObjectKey       string `json:"object_key"`
			PresignedPutURL string `json:"presigned_put_url"`
		} `json:"upload"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != domain.JobStatusCreated {
		t.Fatalf("expected created status, got %s", resp.Status)
	}
	if resp.Upload.PresignedPutURL == "" {
		t.Fatal("expected a presigned upload URL")
	}
	if resp.Upload.ObjectKey != "uploads/"+resp.JobID+"/source" {
		t.Fatalf("unexpected object key: %s", resp.Upload.ObjectKey)
	}
}

func TestCreateJobRejectsInvalidSpec(t *testing.T) {
	srv, _ := newTestServer(&fakeQueue{}, &fakeStorage{})

	body := []byte(`{"source_type":"s3_presigned","render":{"effect":"vaporwave"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestStartJobEnqueuesRenderTask(t *testing.T) {
	q := &fakeQueue{}
	st := &fakeStorage{objects: map[string]bool{"uploads/job-1/source": true}}
	srv, jobs := newTestServer(q, st)

	now := time.Now().UTC()
	if err := jobs.Create(context.Background(), domain.Job{
		ID:         "job-1",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-1/source",
		Render:     domain.RenderSpec{BlockSize: 8, Effect: "wave", Intensity: 5, Speed: 5},
		Export:     domain.ExportSpec{Format: domain.FormatGIF, Frames: 30},
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/job-1/start", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(q.payloads) != 1 {
		t.Fatalf("expected one enqueued payload, got %d", len(q.payloads))
	}
	if q.payloads[0].Render.Effect != "wave" {
		t.Fatalf("render spec did not reach the queue: %+v", q.payloads[0].Render)
	}

	job, ok, _ := jobs.Get(context.Background(), "job-1")
	if !ok || job.Status != domain.JobStatusQueued {
		t.Fatalf("expected queued status, got %+v", job)
	}
}

func TestStartJobMissingSourceConflicts(t *testing.T) {
	q := &fakeQueue{}
	srv, jobs := newTestServer(q, &fakeStorage{objects: map[string]bool{}})

	_ = jobs.Create(context.Background(), domain.Job{
		ID:         "job-2",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-2/source",
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/job-2/start", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if len(q.payloads) != 0 {
		t.Fatal("missing source must not enqueue work")
	}
}

func TestGetJobReturnsArtifactURL(t *testing.T) {
	srv, jobs := newTestServer(&fakeQueue{}, &fakeStorage{})

	_ = jobs.Create(context.Background(), domain.Job{
		ID:          "job-3",
		Status:      domain.JobStatusSucceeded,
		SourceType:  domain.SourceTypeS3Presigned,
		ArtifactKey: "outputs/job-3/pixelart-wave-1700000000.gif",
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-3", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["artifact_url"] != "https://minio.test/get/outputs/job-3/pixelart-wave-1700000000.gif" {
		t.Fatalf("unexpected artifact url: %v", resp["artifact_url"])
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/does-not-exist", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
