package badger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

func newTestJob(id string) *core.IngestionJob {
	return &core.IngestionJob{
		ID:             id,
		CollectionName: "papers",
		Strategy:       core.StrategySemantic,
		Status:         core.JobPending,
		Message:        "queued for processing",
		SourceFilename: "doc.pdf",
	}
}

func TestJobCreateAndGet(t *testing.T) {
	jobRepo, collectionRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { collectionRepo.Close(); jobRepo.Close(); backend.Close() }()

	ctx := context.Background()

	job := newTestJob("job-1")
	if err := jobRepo.CreateJob(ctx, job); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Fatal("Expected timestamps to be set")
	}

	got, err := jobRepo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.CollectionName != "papers" || got.Status != core.JobPending {
		t.Fatalf("Unexpected job: %+v", got)
	}

	_, err = jobRepo.GetJob(ctx, "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestJobUpdate(t *testing.T) {
	jobRepo, collectionRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { collectionRepo.Close(); jobRepo.Close(); backend.Close() }()

	ctx := context.Background()
	if err := jobRepo.CreateJob(ctx, newTestJob("job-1")); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	status := core.JobProcessing
	progress := 50.0
	message := "embedding 10 chunks"
	updated, err := jobRepo.UpdateJob(ctx, "job-1", storage.JobUpdate{
		Status:   &status,
		Progress: &progress,
		Message:  &message,
	})
	if err != nil {
		t.Fatalf("Failed to update job: %v", err)
	}
	if updated.Status != core.JobProcessing || updated.Progress != 50 || updated.Message != message {
		t.Fatalf("Unexpected job after update: %+v", updated)
	}

	// Progress never moves backwards
	lower := 20.0
	updated, err = jobRepo.UpdateJob(ctx, "job-1", storage.JobUpdate{Progress: &lower})
	if err != nil {
		t.Fatalf("Failed to update job: %v", err)
	}
	if updated.Progress != 50 {
		t.Fatalf("Expected progress to stay at 50, got %f", updated.Progress)
	}

	_, err = jobRepo.UpdateJob(ctx, "missing", storage.JobUpdate{Progress: &progress})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestJobUpdate_TerminalIsImmutable(t *testing.T) {
	jobRepo, collectionRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { collectionRepo.Close(); jobRepo.Close(); backend.Close() }()

	ctx := context.Background()
	if err := jobRepo.CreateJob(ctx, newTestJob("job-1")); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	done := core.JobCompleted
	progress := 100.0
	count := 7
	if _, err := jobRepo.UpdateJob(ctx, "job-1", storage.JobUpdate{
		Status:     &done,
		Progress:   &progress,
		ChunkCount: &count,
	}); err != nil {
		t.Fatalf("Failed to complete job: %v", err)
	}

	processing := core.JobProcessing
	_, err = jobRepo.UpdateJob(ctx, "job-1", storage.JobUpdate{Status: &processing})
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}

	got, err := jobRepo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status != core.JobCompleted || got.ChunkCount != 7 {
		t.Fatalf("Terminal job was mutated: %+v", got)
	}
}

func TestJobList_NewestFirst(t *testing.T) {
	jobRepo, collectionRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { collectionRepo.Close(); jobRepo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		job := newTestJob(fmt.Sprintf("job-%d", i))
		job.CreatedAt = now.Add(time.Duration(i) * time.Second)
		job.UpdatedAt = job.CreatedAt
		if err := jobRepo.CreateJob(ctx, job); err != nil {
			t.Fatalf("Failed to create job: %v", err)
		}
	}

	jobs, err := jobRepo.ListJobs(ctx, 3, 0)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "job-4" || jobs[1].ID != "job-3" || jobs[2].ID != "job-2" {
		t.Fatalf("Unexpected order: %s, %s, %s", jobs[0].ID, jobs[1].ID, jobs[2].ID)
	}

	// Offset skips the newest jobs
	jobs, err = jobRepo.ListJobs(ctx, 2, 2)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "job-2" || jobs[1].ID != "job-1" {
		t.Fatalf("Unexpected page: %+v", jobs)
	}

	// No limit returns everything
	jobs, err = jobRepo.ListJobs(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(jobs) != 5 {
		t.Fatalf("Expected 5 jobs, got %d", len(jobs))
	}
}

func TestFailInterrupted(t *testing.T) {
	jobRepo, collectionRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { collectionRepo.Close(); jobRepo.Close(); backend.Close() }()

	ctx := context.Background()

	pending := newTestJob("job-pending")
	if err := jobRepo.CreateJob(ctx, pending); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	processing := newTestJob("job-processing")
	processing.Status = core.JobProcessing
	if err := jobRepo.CreateJob(ctx, processing); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	completed := newTestJob("job-completed")
	completed.Status = core.JobCompleted
	if err := jobRepo.CreateJob(ctx, completed); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	count, err := jobRepo.FailInterrupted(ctx)
	if err != nil {
		t.Fatalf("FailInterrupted failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 interrupted jobs, got %d", count)
	}

	for _, id := range []string{"job-pending", "job-processing"} {
		got, err := jobRepo.GetJob(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get job %s: %v", id, err)
		}
		if got.Status != core.JobFailed {
			t.Fatalf("Expected %s to be failed, got %s", id, got.Status)
		}
		if got.ErrorDetail != "interrupted by restart" {
			t.Fatalf("Unexpected error detail: %q", got.ErrorDetail)
		}
	}

	got, err := jobRepo.GetJob(ctx, "job-completed")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status != core.JobCompleted {
		t.Fatalf("Completed job should be untouched, got %s", got.Status)
	}

	// Second pass finds nothing to fail
	count, err = jobRepo.FailInterrupted(ctx)
	if err != nil {
		t.Fatalf("FailInterrupted failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("Expected 0, got %d", count)
	}
}
