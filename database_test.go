package corpora

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/corpora/ai/mock"
	"github.com/poiesic/corpora/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T, path string) *Database {
	t.Helper()
	db, err := NewDatabase(path,
		WithProvider(mock.NewMockProvider()),
		WithExtractor(mock.NewMockExtractor()),
	)
	require.NoError(t, err)
	return db
}

func TestNewDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_db")

	db := newTestDatabase(t, dbPath)
	assert.NotNil(t, db.JobRepository())
	assert.NotNil(t, db.CollectionRepository())
	require.NoError(t, db.Close())
}

func TestNewDatabase_InvalidPath(t *testing.T) {
	// A regular file where the directory should be
	filePath := filepath.Join(t.TempDir(), "not_a_dir")
	require.NoError(t, os.WriteFile(filePath, []byte("blocker"), 0o644))

	_, err := NewDatabase(filePath,
		WithProvider(mock.NewMockProvider()),
		WithExtractor(mock.NewMockExtractor()),
	)
	assert.Error(t, err)
}

func TestDatabase_Factories(t *testing.T) {
	db := newTestDatabase(t, filepath.Join(t.TempDir(), "test_db"))
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline()
	require.NoError(t, err)
	require.NotNil(t, pipeline)
	defer pipeline.Release()

	router, err := db.NewRouter()
	require.NoError(t, err)
	assert.NotNil(t, router)
}

func TestDatabase_IngestAndQuery(t *testing.T) {
	db := newTestDatabase(t, filepath.Join(t.TempDir(), "test_db"))
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	ctx := context.Background()
	document := []byte("Badger stores keys in an LSM tree. Values live in a value log.")
	jobID, err := pipeline.Submit(ctx, document, "badger.txt", "notes", "fixed")
	require.NoError(t, err)

	deadline := time.Now().Add(10 * time.Second)
	var job *core.IngestionJob
	for time.Now().Before(deadline) {
		job, err = db.JobRepository().GetJob(ctx, jobID)
		require.NoError(t, err)
		if job.Status.Terminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, job)
	require.Equal(t, core.JobCompleted, job.Status)

	router, err := db.NewRouter()
	require.NoError(t, err)

	result, err := router.Answer(ctx, "notes", "Where does badger keep values?", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Answer)
	assert.Len(t, result.Chunks, 1)
}

func TestDatabase_ReopenFailsInterruptedJobs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_db")
	ctx := context.Background()

	db := newTestDatabase(t, dbPath)
	job := &core.IngestionJob{
		ID:             "stuck-job",
		CollectionName: "papers",
		Strategy:       core.StrategyFixed,
		Status:         core.JobProcessing,
		Message:        "embedding 3 chunks",
		SourceFilename: "doc.pdf",
	}
	require.NoError(t, db.JobRepository().CreateJob(ctx, job))
	require.NoError(t, db.Close())

	// Reopening sweeps the ledger for unfinished work
	db = newTestDatabase(t, dbPath)
	defer db.Close()

	got, err := db.JobRepository().GetJob(ctx, "stuck-job")
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, got.Status)
	assert.Equal(t, "ingestion failed", got.Message)
	assert.Equal(t, "interrupted by restart", got.ErrorDetail)
}
