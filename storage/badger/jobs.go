package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
type JobRepository struct {
	backend *Backend
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) (*JobRepository, error) {
	return &JobRepository{backend: backend}, nil
}

// Close is a no-op; the repository holds no resources beyond the backend.
func (r *JobRepository) Close() error {
	return nil
}

// CreateJob persists a new job record along with its creation-time index entry.
func (r *JobRepository) CreateJob(ctx context.Context, job *core.IngestionJob) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if job.CreatedAt.IsZero() {
			job.CreatedAt = time.Now().UTC()
		}
		if job.UpdatedAt.IsZero() {
			job.UpdatedAt = job.CreatedAt
		}

		key := makeJobKey(job.ID)
		if err := tx.Set(key, storage.MarshalJob(job)); err != nil {
			return err
		}

		createdKey := makeJobCreatedKey(job.CreatedAt, job.ID)
		if err := tx.Set(createdKey, []byte(job.ID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// UpdateJob applies a partial update to an existing job.
// Terminal jobs are immutable. Progress never moves backwards.
func (r *JobRepository) UpdateJob(ctx context.Context, id string, update storage.JobUpdate) (*core.IngestionJob, error) {
	var result *core.IngestionJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(id)
		job, err := r.readJob(tx, key)
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		if job.Status.Terminal() {
			return storage.ErrInvalidTransition
		}

		if update.Status != nil {
			job.Status = *update.Status
		}
		if update.Progress != nil && *update.Progress > job.Progress {
			job.Progress = *update.Progress
		}
		if update.Message != nil {
			job.Message = *update.Message
		}
		if update.ErrorDetail != nil {
			job.ErrorDetail = *update.ErrorDetail
		}
		if update.ChunkCount != nil {
			job.ChunkCount = *update.ChunkCount
		}
		job.UpdatedAt = time.Now().UTC()

		if err := tx.Set(key, storage.MarshalJob(job)); err != nil {
			return err
		}
		result = job
		return tx.Commit()
	}, true)
	return result, err
}

// GetJob retrieves a single job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.IngestionJob, error) {
	var result *core.IngestionJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(id)
		var err error
		result, err = r.readJob(tx, key)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListJobs retrieves jobs ordered by creation time descending.
func (r *JobRepository) ListJobs(ctx context.Context, limit, offset int) ([]*core.IngestionJob, error) {
	var results []*core.IngestionJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Use reverse iterator to get most recent jobs first
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek to the last possible key in the creation-time index
		startKey := makePartialJobCreatedKey(time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC))

		prefix := []byte(jobCreatedPrefix + ":")

		skipped := 0
		for iter.Seek(startKey); iter.Valid(); iter.Next() {
			key := iter.Item().Key()

			// Check if we're still in the creation-time index
			if len(key) < len(prefix) || slices.Compare(key[:len(prefix)], prefix) != 0 {
				break
			}

			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && len(results) >= limit {
				break
			}

			// Read the ID from the index
			var jobID string
			if err := iter.Item().Value(func(val []byte) error {
				jobID = string(val)
				return nil
			}); err != nil {
				return err
			}

			// Look up the full record
			job, err := r.readJob(tx, makeJobKey(jobID))
			if err != nil {
				return err
			}
			if job != nil {
				results = append(results, job)
			}
		}
		return nil
	}, false)

	return results, err
}

// FailInterrupted marks every non-terminal job as failed. Jobs left
// pending or processing by a previous run can never complete, so they
// are failed before any new work is accepted.
func (r *JobRepository) FailInterrupted(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		now := time.Now().UTC()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()

			var job *core.IngestionJob
			if err := item.Value(func(val []byte) error {
				var err error
				job, err = storage.UnmarshalJob(val)
				return err
			}); err != nil {
				return err
			}
			if job == nil || job.Status.Terminal() {
				continue
			}

			job.Status = core.JobFailed
			job.Message = "ingestion failed"
			job.ErrorDetail = "interrupted by restart"
			job.UpdatedAt = now

			if err := tx.Set(item.KeyCopy(nil), storage.MarshalJob(job)); err != nil {
				return err
			}
			count++
		}
		// The iterator must be closed before Commit; badger panics on
		// commit (or discard) while an iterator is open.
		iter.Close()
		return tx.Commit()
	}, true)

	if err != nil {
		return 0, err
	}
	return count, nil
}

// readJob reads a job record from the transaction.
func (r *JobRepository) readJob(tx *badger.Txn, key []byte) (*core.IngestionJob, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.IngestionJob
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalJob(val)
		return unmarshalErr
	})
	return job, err
}
