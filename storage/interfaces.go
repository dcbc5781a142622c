package storage

import (
	"context"

	"github.com/poiesic/corpora/core"
)

// JobUpdate is a partial update applied to an ingestion job.
// Nil fields are left unchanged.
type JobUpdate struct {
	Status      *core.JobStatus
	Progress    *float64
	Message     *string
	ErrorDetail *string
	ChunkCount  *int
}

// JobRepository provides operations on the durable ingestion job ledger.
// Implementations must be thread-safe and support concurrent access.
type JobRepository interface {
	// CreateJob persists a new job record.
	// Sets CreatedAt and UpdatedAt timestamps if not already set.
	CreateJob(ctx context.Context, job *core.IngestionJob) error

	// UpdateJob applies a partial update to an existing job and returns
	// the updated record. Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the job doesn't exist.
	// Returns ErrInvalidTransition if the job is already in a terminal status.
	// Progress is monotonic: an update with a lower progress value keeps
	// the stored one.
	UpdateJob(ctx context.Context, id string, update JobUpdate) (*core.IngestionJob, error)

	// GetJob retrieves a single job by ID.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*core.IngestionJob, error)

	// ListJobs retrieves jobs ordered by creation time descending.
	// offset skips that many records; limit <= 0 means no limit.
	ListJobs(ctx context.Context, limit, offset int) ([]*core.IngestionJob, error)

	// FailInterrupted marks every non-terminal job as failed.
	// Returns the number of jobs transitioned. Called once at startup,
	// before any new jobs are accepted.
	FailInterrupted(ctx context.Context) (int, error)

	// Close closes the storage backend and releases resources.
	Close() error
}

// CollectionRepository provides operations on named chunk collections.
// Implementations must be thread-safe and support concurrent access.
type CollectionRepository interface {
	// Ensure creates the collection if it does not exist. Idempotent.
	Ensure(ctx context.Context, name string) error

	// AppendChunks adds chunks to a collection atomically: either all
	// chunks and the updated collection count are committed, or none are.
	// Assigns collection-scoped sequence numbers and InsertedAt timestamps.
	// Creates the collection if it does not exist.
	AppendChunks(ctx context.Context, name string, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// Query finds the k chunks most similar to the given vector,
	// ordered by similarity score (highest first).
	// Returns ErrNotFound if the collection doesn't exist or holds no chunks.
	Query(ctx context.Context, name string, vector []float32, k int) ([]*core.ScoredChunk, error)

	// ListCollections returns all collections with their chunk counts,
	// ordered by name.
	ListCollections(ctx context.Context) ([]*core.CollectionInfo, error)

	// ChunkCount returns the number of chunks in a collection.
	// Returns ErrNotFound if the collection doesn't exist.
	ChunkCount(ctx context.Context, name string) (int, error)

	// DeleteCollection removes a collection and all of its chunks.
	// Deleting a collection that doesn't exist is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// DeleteAll removes every collection and all stored chunks.
	DeleteAll(ctx context.Context) error

	// Close closes the storage backend and releases resources.
	Close() error
}
