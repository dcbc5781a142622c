package query

import (
	"context"
	"log/slog"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

// Router answers questions against a single collection.
type Router struct {
	collections storage.CollectionRepository
	embedder    ai.Embedder
	generator   ai.AnswerGenerator
	logger      *slog.Logger
}

// Option configures a Router.
type Option func(*Router) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRouter creates a new query router.
func NewRouter(
	collections storage.CollectionRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Router, error) {
	if collections == nil {
		return nil, ErrCollectionRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	r := &Router{
		collections: collections,
		embedder:    provider.Embedder(),
		generator:   provider.Generator(),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Result holds a generated answer with the chunks it was grounded in.
type Result struct {
	Answer string
	Chunks []*core.ScoredChunk
}

// Retrieve returns the k chunks most similar to the question without
// generating an answer. k <= 0 uses the default retrieval count.
func (r *Router) Retrieve(ctx context.Context, collectionName, question string, k int) ([]*core.ScoredChunk, error) {
	if err := core.ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = core.DefaultRetrievalCount
	}
	if err := core.ValidateRetrievalCount(k); err != nil {
		return nil, err
	}

	vector, err := r.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, err
	}
	vector = core.NormalizeVector(vector)

	chunks, err := r.collections.Query(ctx, collectionName, vector, k)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("retrieved chunks",
		"collection", collectionName,
		"k", k,
		"hits", len(chunks))

	return chunks, nil
}

// Answer retrieves the k most relevant chunks and generates an answer
// grounded in them. k <= 0 uses the default retrieval count.
func (r *Router) Answer(ctx context.Context, collectionName, question string, k int) (*Result, error) {
	chunks, err := r.Retrieve(ctx, collectionName, question, k)
	if err != nil {
		return nil, err
	}

	passages := make([]string, len(chunks))
	for i, sc := range chunks {
		passages[i] = sc.Chunk.Text
	}

	answer, err := r.generator.GenerateAnswer(ctx, question, passages)
	if err != nil {
		return nil, err
	}

	return &Result{
		Answer: answer,
		Chunks: chunks,
	}, nil
}
