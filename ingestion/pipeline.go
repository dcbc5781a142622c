package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/chunk"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

const (
	defaultBatchSize    = 64
	defaultStageTimeout = 5 * time.Minute
)

// Progress milestones reported to the job ledger.
const (
	progressExtracting = 0
	progressChunking   = 20
	progressEmbedding  = 50
	progressWriting    = 80
	progressDone       = 100
)

// Pipeline orchestrates asynchronous document ingestion.
// Submit records a job and queues the work; a worker pool runs the
// extract/chunk/embed/write stages and reports progress to the ledger.
type Pipeline struct {
	jobs         storage.JobRepository
	collections  storage.CollectionRepository
	provider     ai.AIProvider
	extractor    ai.TextExtractor
	pool         *ants.Pool
	batchSize    int
	stageTimeout time.Duration
	chunkCfg     chunk.Config
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent ingestion jobs.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per request.
// Default is 64.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.batchSize = size
		return nil
	}
}

// WithStageTimeout sets the timeout applied to each pipeline stage.
// Default is 5 minutes.
func WithStageTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		if timeout <= 0 {
			timeout = defaultStageTimeout
		}
		p.stageTimeout = timeout
		return nil
	}
}

// WithChunkConfig sets the chunking parameters.
func WithChunkConfig(cfg chunk.Config) Option {
	return func(p *Pipeline) error {
		p.chunkCfg = cfg
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	jobs storage.JobRepository,
	collections storage.CollectionRepository,
	provider ai.AIProvider,
	extractor ai.TextExtractor,
	opts ...Option,
) (*Pipeline, error) {
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if collections == nil {
		return nil, ErrCollectionRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if extractor == nil {
		return nil, ErrTextExtractorRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		jobs:         jobs,
		collections:  collections,
		provider:     provider,
		extractor:    extractor,
		pool:         pool,
		batchSize:    defaultBatchSize,
		stageTimeout: defaultStageTimeout,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// Submit validates the request, records a pending job, and queues the
// document for background ingestion. Returns the job ID immediately;
// callers poll the ledger for progress.
func (p *Pipeline) Submit(ctx context.Context, document []byte, filename, collectionName, strategy string) (string, error) {
	if err := core.ValidateCollectionName(collectionName); err != nil {
		return "", err
	}
	parsed, err := core.ParseStrategy(strategy)
	if err != nil {
		return "", err
	}
	if len(document) == 0 {
		return "", fmt.Errorf("%w: empty document", core.ErrValidation)
	}

	job := &core.IngestionJob{
		ID:             uuid.NewString(),
		CollectionName: collectionName,
		Strategy:       parsed,
		Status:         core.JobPending,
		Message:        "queued for processing",
		SourceFilename: filename,
	}
	if err := p.jobs.CreateJob(ctx, job); err != nil {
		return "", err
	}

	submitErr := p.pool.Submit(func() {
		p.run(job.ID, document, filename, collectionName, parsed)
	})
	if submitErr != nil {
		p.fail(job.ID, submitErr)
		return "", submitErr
	}

	p.logger.Info("ingestion job queued",
		"job_id", job.ID,
		"collection", collectionName,
		"strategy", parsed,
		"filename", filename,
		"bytes", len(document))

	return job.ID, nil
}

// run executes the ingestion stages for one job.
// Runs on the worker pool; failures are recorded in the ledger, never returned.
func (p *Pipeline) run(jobID string, document []byte, filename, collectionName string, strategy core.Strategy) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("ingestion panicked", "job_id", jobID, "panic", r)
			p.fail(jobID, fmt.Errorf("internal error: %v", r))
		}
	}()

	// Stage 1: extract text
	if !p.advance(jobID, core.JobProcessing, progressExtracting, "extracting text") {
		return
	}
	text, err := runStage(p, func(ctx context.Context) (string, error) {
		return p.extractor.ExtractText(ctx, document, filename)
	})
	if err != nil {
		p.fail(jobID, err)
		return
	}
	if strings.TrimSpace(text) == "" {
		p.fail(jobID, core.ErrEmptyDocument)
		return
	}

	// Stage 2: chunk
	if !p.advance(jobID, core.JobProcessing, progressChunking, "chunking text") {
		return
	}
	chunker, err := chunk.ForStrategy(strategy, p.provider.Embedder(), p.chunkCfg)
	if err != nil {
		p.fail(jobID, err)
		return
	}
	texts, err := runStage(p, func(ctx context.Context) ([]string, error) {
		return chunker.Split(ctx, text)
	})
	if err != nil {
		p.fail(jobID, err)
		return
	}
	if len(texts) == 0 {
		p.fail(jobID, core.ErrEmptyDocument)
		return
	}

	// Stage 3: embed in batches
	if !p.advance(jobID, core.JobProcessing, progressEmbedding, fmt.Sprintf("embedding %d chunks", len(texts))) {
		return
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := runStage(p, func(ctx context.Context) ([][]float32, error) {
			return p.provider.Embedder().EmbedTexts(ctx, texts[start:end])
		})
		if err != nil {
			p.fail(jobID, err)
			return
		}
		if len(batch) != end-start {
			p.fail(jobID, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), end-start))
			return
		}
		for _, v := range batch {
			vectors = append(vectors, core.NormalizeVector(v))
		}
	}

	// Stage 4: write to collection
	if !p.advance(jobID, core.JobProcessing, progressWriting, "writing to collection") {
		return
	}
	docID := core.IDFromContent(document)
	chunks := make([]*core.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = &core.Chunk{
			DocumentID: docID,
			Source:     filename,
			Index:      i,
			Text:       t,
			Vector:     vectors[i],
		}
	}
	if _, err := runStage(p, func(ctx context.Context) ([]*core.Chunk, error) {
		return p.collections.AppendChunks(ctx, collectionName, chunks...)
	}); err != nil {
		p.fail(jobID, err)
		return
	}

	p.complete(jobID, filename, len(chunks))
}

// advance moves the job to the given status, progress, and stage message.
// Returns false if the ledger update failed; the job is abandoned in that case.
func (p *Pipeline) advance(jobID string, status core.JobStatus, progress float64, message string) bool {
	update := storage.JobUpdate{
		Status:   &status,
		Progress: &progress,
		Message:  &message,
	}
	if _, err := p.jobs.UpdateJob(context.Background(), jobID, update); err != nil {
		p.logger.Error("failed to update job", "job_id", jobID, "stage", message, "err", err)
		return false
	}
	p.logger.Debug("ingestion stage", "job_id", jobID, "progress", progress, "stage", message)
	return true
}

// complete marks the job completed with its final chunk count.
func (p *Pipeline) complete(jobID, filename string, chunkCount int) {
	status := core.JobCompleted
	progress := float64(progressDone)
	message := fmt.Sprintf("successfully ingested %q", filename)
	update := storage.JobUpdate{
		Status:     &status,
		Progress:   &progress,
		Message:    &message,
		ChunkCount: &chunkCount,
	}
	if _, err := p.jobs.UpdateJob(context.Background(), jobID, update); err != nil {
		p.logger.Error("failed to complete job", "job_id", jobID, "err", err)
		return
	}
	p.logger.Info("ingestion completed", "job_id", jobID, "chunks", chunkCount)
}

// fail marks the job failed and records the error detail.
func (p *Pipeline) fail(jobID string, cause error) {
	status := core.JobFailed
	message := "ingestion failed"
	detail := cause.Error()
	update := storage.JobUpdate{
		Status:      &status,
		Message:     &message,
		ErrorDetail: &detail,
	}
	if _, err := p.jobs.UpdateJob(context.Background(), jobID, update); err != nil {
		p.logger.Error("failed to record job failure", "job_id", jobID, "cause", cause, "err", err)
		return
	}
	p.logger.Warn("ingestion failed", "job_id", jobID, "err", cause)
}

// runStage runs one pipeline stage under the configured timeout.
func runStage[T any](p *Pipeline, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.stageTimeout)
	defer cancel()
	return fn(ctx)
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
