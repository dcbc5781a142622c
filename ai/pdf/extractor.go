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


// Package pdf extracts plain text from uploaded documents.
//
// PDF files are parsed page by page via langchaingo's document loaders.
// Anything else is treated as UTF-8 plain text.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/poiesic/corpora/ai"
	"github.com/tmc/langchaingo/documentloaders"
)

// Extractor implements ai.TextExtractor.
type Extractor struct {
	logger *slog.Logger
}

var _ ai.TextExtractor = (*Extractor)(nil)

// NewExtractor creates a new document text extractor.
//
// Returns ai.TextExtractor interface to enforce abstraction.
func NewExtractor() ai.TextExtractor {
	return &Extractor{
		logger: slog.Default().With("component", "pdf-extractor"),
	}
}

// ExtractText extracts the text content of a document.
// The filename extension decides how the bytes are interpreted.
func (e *Extractor) ExtractText(ctx context.Context, data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".pdf" {
		return string(data), nil
	}

	loader := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	docs, err := loader.Load(ctx)
	if err != nil {
		e.logger.Error("failed to parse PDF", "filename", filename, "err", err)
		return "", fmt.Errorf("parsing %s: %w", filename, err)
	}

	pages := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.PageContent != "" {
			pages = append(pages, doc.PageContent)
		}
	}

	e.logger.Debug("extracted PDF text", "filename", filename, "pages", len(pages))
	return strings.Join(pages, "\n\n"), nil
}
