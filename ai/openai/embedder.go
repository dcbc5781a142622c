package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/corpora/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// maxEmbedBatch caps how many texts go to the embedding API in one request.
// The ingestion pipeline batches chunk embedding upstream, but a single
// semantic-chunking call carries every sentence of a document at once, so
// the adapter splits oversized requests itself.
const maxEmbedBatch = 256

// Embedder implements ai.Embedder against an OpenAI-compatible embeddings API.
type Embedder struct {
	embedder embeddings.Embedder
	maxBatch int
	logger   *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible servers ignore the token, but the client
	// requires one to be set.
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		maxBatch: maxEmbedBatch,
		logger: slog.Default().With(
			"component", "openai-embedder",
			"host", config.EmbeddingHost,
			"model", config.EmbeddingModel,
		),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Error("failed to generate embedding", "length", len(text), "err", err)
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("embedding service returned no vectors")
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple texts, splitting the
// request into API-sized batches. Vectors are returned in input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	batches := 0
	for start := 0; start < len(texts); start += e.maxBatch {
		end := min(start+e.maxBatch, len(texts))
		batch, err := e.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			e.logger.Error("failed to generate embeddings",
				"texts", len(texts), "batch_start", start, "err", err)
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding service returned %d vectors for %d texts",
				len(batch), end-start)
		}
		vectors = append(vectors, batch...)
		batches++
	}

	e.logger.Debug("generated embeddings", "texts", len(texts), "batches", batches)
	return vectors, nil
}
