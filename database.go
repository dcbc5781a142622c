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


package corpora

import (
	"context"
	"log/slog"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/ai/openai"
	"github.com/poiesic/corpora/ai/pdf"
	"github.com/poiesic/corpora/ingestion"
	"github.com/poiesic/corpora/query"
	"github.com/poiesic/corpora/storage"
	"github.com/poiesic/corpora/storage/badger"
)

type Database struct {
	backend        *badger.Backend
	jobRepo        storage.JobRepository
	collectionRepo storage.CollectionRepository
	provider       ai.AIProvider
	extractor      ai.TextExtractor
	logger         *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig  *ai.Config
	provider  ai.AIProvider
	extractor ai.TextExtractor
}

// WithAIConfig sets the AI service configuration used to build the
// default OpenAI-compatible provider. Ignored if WithProvider is given.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider injects a pre-built AI provider instead of the default
// OpenAI-compatible one. Useful for testing.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithExtractor injects a custom text extractor.
// Default is the PDF/plain-text extractor.
func WithExtractor(extractor ai.TextExtractor) DatabaseOption {
	return func(o *databaseOptions) {
		o.extractor = extractor
	}
}

// NewDatabase opens the document store at filePath and wires up repositories
// and AI services. Jobs left unfinished by a previous run are failed before
// the database is returned, so the ledger never reports stale progress.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, false)
	if err != nil {
		return nil, err
	}

	jobRepo, err := badger.NewJobRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	collectionRepo, err := badger.NewCollectionRepository(backend)
	if err != nil {
		jobRepo.Close()
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			collectionRepo.Close()
			jobRepo.Close()
			backend.Close()
			return nil, err
		}
	}

	extractor := options.extractor
	if extractor == nil {
		extractor = pdf.NewExtractor()
	}

	logger := slog.Default()

	// Jobs that were pending or processing when the previous process
	// exited can never finish; fail them before accepting new work.
	failed, err := jobRepo.FailInterrupted(context.Background())
	if err != nil {
		provider.Close()
		collectionRepo.Close()
		jobRepo.Close()
		backend.Close()
		return nil, err
	}
	if failed > 0 {
		logger.Warn("failed interrupted ingestion jobs", "count", failed)
	}

	return &Database{
		backend:        backend,
		jobRepo:        jobRepo,
		collectionRepo: collectionRepo,
		provider:       provider,
		extractor:      extractor,
		logger:         logger,
	}, nil
}

func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	// Close repositories
	if err := db.collectionRepo.Close(); err != nil {
		db.logger.Error("error closing collection repository", "err", err)
		return err
	}
	if err := db.jobRepo.Close(); err != nil {
		db.logger.Error("error closing job repository", "err", err)
		return err
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) JobRepository() storage.JobRepository {
	return db.jobRepo
}

func (db *Database) CollectionRepository() storage.CollectionRepository {
	return db.collectionRepo
}

func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(db.jobRepo, db.collectionRepo, db.provider, db.extractor, opts...)
}

func (db *Database) NewRouter(opts ...query.Option) (*query.Router, error) {
	return query.NewRouter(db.collectionRepo, db.provider, opts...)
}
