package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// DocumentID is a deterministic identifier for an ingested source document.
// Identical document bytes produce identical IDs, so chunks remain traceable
// to their source across resubmissions.
type DocumentID uint64

// IDFromContent generates a DocumentID from raw document bytes using BLAKE2b hashing.
func IDFromContent(data []byte) DocumentID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(data)
	sum := h.Sum(nil)
	return DocumentID(binary.LittleEndian.Uint64(sum))
}

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	// JobPending means the job is accepted but background execution has not started.
	JobPending JobStatus = "pending"
	// JobProcessing means the background pipeline is running.
	JobProcessing JobStatus = "processing"
	// JobCompleted means the job finished and its chunks are committed.
	JobCompleted JobStatus = "completed"
	// JobFailed means the job terminated with an error; ErrorDetail is set.
	JobFailed JobStatus = "failed"
)

// Terminal reports whether the status is final. Jobs never leave a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Strategy selects how a document is split into chunks.
type Strategy string

const (
	// StrategySemantic groups sentences by embedding-similarity boundaries.
	StrategySemantic Strategy = "semantic"
	// StrategyFixed uses a fixed-size sliding window with overlap.
	StrategyFixed Strategy = "fixed"
)

// IngestionJob is the durable record of one asynchronous ingestion.
// The orchestrator is the only writer of Status and Progress; readers never mutate.
type IngestionJob struct {
	ID             string
	CollectionName string
	Strategy       Strategy
	Status         JobStatus
	Progress       float64 // 0-100, non-decreasing while processing
	Message        string
	ErrorDetail    string // set only when Status is JobFailed
	SourceFilename string
	ChunkCount     int // set on completion
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Chunk is a contiguous span of document text stored with its embedding.
type Chunk struct {
	Seq        uint64 // collection-scoped sequence, assigned on append
	DocumentID DocumentID
	Source     string // original filename of the ingested document
	Index      int    // position of the chunk within its source document
	Text       string
	Vector     []float32
	InsertedAt time.Time
}

// CollectionMeta is the persisted descriptor of a collection.
type CollectionMeta struct {
	Name       string
	ChunkCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CollectionInfo is a listing entry for a collection.
type CollectionInfo struct {
	Name       string
	ChunkCount int
}

// ScoredChunk is a retrieval result with its similarity score.
type ScoredChunk struct {
	Chunk *Chunk
	Score float32
}
