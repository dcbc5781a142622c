package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbeddings implements embeddings.Embedder, recording batch sizes.
type stubEmbeddings struct {
	batchSizes  []int
	shouldError bool
	shortCount  int // if > 0, return this many vectors regardless of input
}

func (s *stubEmbeddings) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if s.shouldError {
		return nil, errors.New("embedding service unavailable")
	}
	s.batchSizes = append(s.batchSizes, len(texts))

	count := len(texts)
	if s.shortCount > 0 {
		count = s.shortCount
	}
	vectors := make([][]float32, count)
	for i := range vectors {
		vectors[i] = []float32{float32(len(texts[0]))}
	}
	return vectors, nil
}

func (s *stubEmbeddings) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

func newStubEmbedder(stub *stubEmbeddings, maxBatch int) *Embedder {
	return &Embedder{
		embedder: stub,
		maxBatch: maxBatch,
		logger:   slog.Default(),
	}
}

func TestEmbedTexts_SplitsIntoBatches(t *testing.T) {
	stub := &stubEmbeddings{}
	embedder := newStubEmbedder(stub, 3)

	texts := make([]string, 8)
	for i := range texts {
		texts[i] = fmt.Sprintf("sentence %d", i)
	}

	vectors, err := embedder.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, 8)
	assert.Equal(t, []int{3, 3, 2}, stub.batchSizes)
}

func TestEmbedTexts_SingleBatch(t *testing.T) {
	stub := &stubEmbeddings{}
	embedder := newStubEmbedder(stub, 10)

	vectors, err := embedder.EmbedTexts(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, []int{2}, stub.batchSizes)
}

func TestEmbedTexts_EmptyInput(t *testing.T) {
	embedder := newStubEmbedder(&stubEmbeddings{}, 10)

	vectors, err := embedder.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedTexts_CountMismatch(t *testing.T) {
	stub := &stubEmbeddings{shortCount: 1}
	embedder := newStubEmbedder(stub, 10)

	_, err := embedder.EmbedTexts(context.Background(), []string{"one", "two", "three"})
	assert.ErrorContains(t, err, "returned 1 vectors for 3 texts")
}

func TestEmbedTexts_ServiceError(t *testing.T) {
	stub := &stubEmbeddings{shouldError: true}
	embedder := newStubEmbedder(stub, 10)

	_, err := embedder.EmbedTexts(context.Background(), []string{"one"})
	assert.ErrorContains(t, err, "embedding service unavailable")
}

func TestEmbedText(t *testing.T) {
	stub := &stubEmbeddings{}
	embedder := newStubEmbedder(stub, 10)

	vector, err := embedder.EmbedText(context.Background(), "a question")
	require.NoError(t, err)
	assert.NotEmpty(t, vector)
	assert.Equal(t, []int{1}, stub.batchSizes)
}
