// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package chunk splits extracted document text into passages for embedding.
//
// Two strategies are available. Fixed chunking uses a recursive character
// splitter with a fixed window and overlap. Semantic chunking embeds
// individual sentences and breaks wherever the embedding distance between
// neighbors crosses a percentile threshold, so chunk boundaries follow
// topic shifts instead of character counts.
package chunk

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the fixed-strategy window size in characters.
	DefaultChunkSize = 2000
	// DefaultChunkOverlap is the fixed-strategy overlap in characters.
	DefaultChunkOverlap = 200
	// DefaultBreakpointPercentile is the semantic-strategy distance
	// percentile above which a chunk boundary is placed.
	DefaultBreakpointPercentile = 95.0
)

// sentencePattern splits text into sentences on terminal punctuation.
var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Config holds chunking parameters. Zero values fall back to defaults.
// ChunkOverlap distinguishes unset from none: 0 selects the default,
// a negative value disables overlap entirely.
type Config struct {
	ChunkSize            int
	ChunkOverlap         int
	BreakpointPercentile float64
}

// withDefaults fills in unset fields.
func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	switch {
	case c.ChunkOverlap < 0:
		c.ChunkOverlap = 0
	case c.ChunkOverlap == 0:
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 10
	}
	if c.BreakpointPercentile <= 0 || c.BreakpointPercentile > 100 {
		c.BreakpointPercentile = DefaultBreakpointPercentile
	}
	return c
}

// Chunker splits document text into passages.
// Implementations must be thread-safe for concurrent use.
type Chunker interface {
	// Split breaks text into passages. Returns nil for empty input.
	Split(ctx context.Context, text string) ([]string, error)
}

// ForStrategy returns a chunker for the given strategy. The embedder is
// required for the semantic strategy and ignored otherwise.
func ForStrategy(strategy core.Strategy, embedder ai.Embedder, cfg Config) (Chunker, error) {
	switch strategy {
	case core.StrategyFixed:
		return NewFixed(cfg), nil
	case core.StrategySemantic:
		return NewSemantic(embedder, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownStrategy, strategy)
	}
}

// FixedChunker splits text into fixed-size windows with overlap.
type FixedChunker struct {
	splitter textsplitter.RecursiveCharacter
}

var _ Chunker = (*FixedChunker)(nil)

// NewFixed creates a fixed-window chunker.
func NewFixed(cfg Config) *FixedChunker {
	cfg = cfg.withDefaults()
	return &FixedChunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
	}
}

// Split breaks text into fixed-size passages.
func (c *FixedChunker) Split(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			chunks = append(chunks, part)
		}
	}
	return chunks, nil
}

// SemanticChunker groups sentences by embedding-similarity boundaries.
type SemanticChunker struct {
	embedder   ai.Embedder
	percentile float64
}

var _ Chunker = (*SemanticChunker)(nil)

// NewSemantic creates a semantic chunker backed by an embedder.
func NewSemantic(embedder ai.Embedder, cfg Config) (*SemanticChunker, error) {
	if embedder == nil {
		return nil, fmt.Errorf("semantic chunker requires an embedder")
	}
	cfg = cfg.withDefaults()
	return &SemanticChunker{
		embedder:   embedder,
		percentile: cfg.BreakpointPercentile,
	}, nil
}

// Split embeds each sentence and places chunk boundaries where the
// distance between consecutive sentence embeddings exceeds the
// configured percentile of all such distances.
func (c *SemanticChunker) Split(ctx context.Context, text string) ([]string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		sentences = []string{trimmed}
	}
	if len(sentences) < 2 {
		return []string{strings.Join(sentences, " ")}, nil
	}

	vectors, err := c.embedder.EmbedTexts(ctx, sentences)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(sentences) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d sentences", len(vectors), len(sentences))
	}

	distances := make([]float64, len(sentences)-1)
	for i := 0; i < len(sentences)-1; i++ {
		distances[i] = 1.0 - cosineSimilarity(vectors[i], vectors[i+1])
	}
	threshold := percentile(distances, c.percentile)

	var chunks []string
	start := 0
	for i, d := range distances {
		if d > threshold {
			chunks = append(chunks, strings.Join(sentences[start:i+1], " "))
			start = i + 1
		}
	}
	if start < len(sentences) {
		chunks = append(chunks, strings.Join(sentences[start:], " "))
	}
	return chunks, nil
}

// splitSentences breaks text on terminal punctuation and trims whitespace.
func splitSentences(text string) []string {
	raw := sentencePattern.FindAllString(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// cosineSimilarity computes the cosine of the angle between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < minLen; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// percentile returns the pct-th percentile of values using nearest-rank.
func percentile(values []float64, pct float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	slices.Sort(sorted)

	rank := int(math.Ceil(pct/100.0*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
