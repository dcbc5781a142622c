package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// AnswerGenerator produces grounded answers from retrieved context.
// Implementations must be thread-safe for concurrent use.
type AnswerGenerator interface {
	// GenerateAnswer answers a question using only the provided context
	// passages. The passages are joined into the prompt in the order given,
	// most relevant first.
	// Returns an error if answer generation fails.
	GenerateAnswer(ctx context.Context, question string, passages []string) (string, error)
}

// TextExtractor extracts plain text from raw document bytes.
// Implementations must be thread-safe for concurrent use.
type TextExtractor interface {
	// ExtractText extracts the text content of a document. The filename
	// is used to decide how to interpret the bytes.
	// Returns an error if the document cannot be parsed.
	ExtractText(ctx context.Context, data []byte, filename string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder and AnswerGenerator instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the answer generation service.
	// The returned AnswerGenerator is safe for concurrent use.
	Generator() AnswerGenerator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
