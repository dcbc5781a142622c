package badger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

func setupCollectionRepo(t *testing.T) storage.CollectionRepository {
	t.Helper()
	jobRepo, collectionRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	t.Cleanup(func() { collectionRepo.Close(); jobRepo.Close(); backend.Close() })
	return collectionRepo
}

func TestCollectionEnsure(t *testing.T) {
	repo := setupCollectionRepo(t)
	ctx := context.Background()

	if err := repo.Ensure(ctx, "papers"); err != nil {
		t.Fatalf("Failed to ensure collection: %v", err)
	}
	// Idempotent
	if err := repo.Ensure(ctx, "papers"); err != nil {
		t.Fatalf("Second ensure failed: %v", err)
	}

	count, err := repo.ChunkCount(ctx, "papers")
	if err != nil {
		t.Fatalf("Failed to get chunk count: %v", err)
	}
	if count != 0 {
		t.Fatalf("Expected empty collection, got %d chunks", count)
	}

	_, err = repo.ChunkCount(ctx, "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestCollectionAppendChunks(t *testing.T) {
	repo := setupCollectionRepo(t)
	ctx := context.Background()

	chunks := []*core.Chunk{
		{DocumentID: 1, Source: "a.pdf", Index: 0, Text: "first", Vector: []float32{1, 0}},
		{DocumentID: 1, Source: "a.pdf", Index: 1, Text: "second", Vector: []float32{0, 1}},
	}

	// Append creates the collection implicitly
	added, err := repo.AppendChunks(ctx, "papers", chunks...)
	if err != nil {
		t.Fatalf("Failed to append chunks: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(added))
	}
	for _, chunk := range added {
		if chunk.InsertedAt.IsZero() {
			t.Fatal("Expected InsertedAt to be set")
		}
	}
	if added[0].Seq == added[1].Seq {
		t.Fatal("Expected distinct sequence numbers")
	}

	count, err := repo.ChunkCount(ctx, "papers")
	if err != nil {
		t.Fatalf("Failed to get chunk count: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 chunks, got %d", count)
	}

	// Appends accumulate
	if _, err := repo.AppendChunks(ctx, "papers",
		&core.Chunk{DocumentID: 2, Source: "b.pdf", Text: "third", Vector: []float32{1, 1}}); err != nil {
		t.Fatalf("Failed to append chunk: %v", err)
	}
	count, _ = repo.ChunkCount(ctx, "papers")
	if count != 3 {
		t.Fatalf("Expected 3 chunks, got %d", count)
	}
}

func TestCollectionQuery(t *testing.T) {
	repo := setupCollectionRepo(t)
	ctx := context.Background()

	// Unit vectors at known angles; dot product against [1,0] ranks them.
	chunks := []*core.Chunk{
		{Source: "a.txt", Index: 0, Text: "exact match", Vector: []float32{1, 0}},
		{Source: "a.txt", Index: 1, Text: "close", Vector: []float32{0.9487, 0.3162}},
		{Source: "a.txt", Index: 2, Text: "orthogonal", Vector: []float32{0, 1}},
		{Source: "a.txt", Index: 3, Text: "opposite", Vector: []float32{-1, 0}},
	}
	if _, err := repo.AppendChunks(ctx, "papers", chunks...); err != nil {
		t.Fatalf("Failed to append chunks: %v", err)
	}

	results, err := repo.Query(ctx, "papers", []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0].Chunk.Text != "exact match" || results[1].Chunk.Text != "close" {
		t.Fatalf("Unexpected ranking: %s, %s", results[0].Chunk.Text, results[1].Chunk.Text)
	}
	if results[0].Score < results[1].Score || results[1].Score < results[2].Score {
		t.Fatal("Expected scores in descending order")
	}

	// k larger than the collection returns everything
	results, err = repo.Query(ctx, "papers", []float32{1, 0}, 20)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(results))
	}
}

func TestCollectionQuery_MissingOrEmpty(t *testing.T) {
	repo := setupCollectionRepo(t)
	ctx := context.Background()

	_, err := repo.Query(ctx, "missing", []float32{1, 0}, 3)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing collection, got %v", err)
	}

	// Exists but holds no chunks
	if err := repo.Ensure(ctx, "empty"); err != nil {
		t.Fatalf("Failed to ensure collection: %v", err)
	}
	_, err = repo.Query(ctx, "empty", []float32{1, 0}, 3)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for empty collection, got %v", err)
	}
}

func TestCollectionIsolation(t *testing.T) {
	repo := setupCollectionRepo(t)
	ctx := context.Background()

	if _, err := repo.AppendChunks(ctx, "alpha",
		&core.Chunk{Source: "a.txt", Text: "alpha chunk", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if _, err := repo.AppendChunks(ctx, "beta",
		&core.Chunk{Source: "b.txt", Text: "beta chunk", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	results, err := repo.Query(ctx, "alpha", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Text != "alpha chunk" {
		t.Fatalf("Query leaked across collections: %+v", results)
	}
}

func TestListCollections(t *testing.T) {
	repo := setupCollectionRepo(t)
	ctx := context.Background()

	infos, err := repo.ListCollections(ctx)
	if err != nil {
		t.Fatalf("Failed to list collections: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("Expected no collections, got %d", len(infos))
	}

	for i, name := range []string{"zeta", "alpha"} {
		chunks := make([]*core.Chunk, i+1)
		for j := range chunks {
			chunks[j] = &core.Chunk{Source: "x.txt", Index: j, Text: fmt.Sprintf("chunk %d", j), Vector: []float32{1}}
		}
		if _, err := repo.AppendChunks(ctx, name, chunks...); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	infos, err = repo.ListCollections(ctx)
	if err != nil {
		t.Fatalf("Failed to list collections: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("Expected 2 collections, got %d", len(infos))
	}
	// Ordered by name
	if infos[0].Name != "alpha" || infos[1].Name != "zeta" {
		t.Fatalf("Unexpected order: %s, %s", infos[0].Name, infos[1].Name)
	}
	if infos[0].ChunkCount != 2 || infos[1].ChunkCount != 1 {
		t.Fatalf("Unexpected counts: %d, %d", infos[0].ChunkCount, infos[1].ChunkCount)
	}
}

func TestDeleteCollection(t *testing.T) {
	repo := setupCollectionRepo(t)
	ctx := context.Background()

	if _, err := repo.AppendChunks(ctx, "papers",
		&core.Chunk{Source: "a.txt", Text: "chunk", Vector: []float32{1}}); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	if err := repo.DeleteCollection(ctx, "papers"); err != nil {
		t.Fatalf("Failed to delete collection: %v", err)
	}

	_, err := repo.ChunkCount(ctx, "papers")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after delete, got %v", err)
	}

	// Deleting an absent collection is not an error
	if err := repo.DeleteCollection(ctx, "papers"); err != nil {
		t.Fatalf("Second delete failed: %v", err)
	}

	// The name can be reused
	if _, err := repo.AppendChunks(ctx, "papers",
		&core.Chunk{Source: "b.txt", Text: "new chunk", Vector: []float32{1}}); err != nil {
		t.Fatalf("Failed to append after delete: %v", err)
	}
	count, err := repo.ChunkCount(ctx, "papers")
	if err != nil {
		t.Fatalf("Failed to get chunk count: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected 1 chunk, got %d", count)
	}
}

func TestDeleteCollection_InterruptedDeleteLeavesNoOrphans(t *testing.T) {
	jobRepo, repo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	t.Cleanup(func() { repo.Close(); jobRepo.Close(); backend.Close() })

	ctx := context.Background()
	if _, err := repo.AppendChunks(ctx, "papers",
		&core.Chunk{Source: "a.txt", Text: "old chunk", Vector: []float32{1}}); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	// A delete interrupted after its first phase: chunk and sequence keys
	// are gone, the descriptor is still present.
	if err := backend.DropPrefix(
		makeChunkPrefix("papers"),
		[]byte(makeCollectionSeqName("papers")),
	); err != nil {
		t.Fatalf("Failed to drop prefixes: %v", err)
	}

	// Reusing the name must not resurface the old chunk
	if _, err := repo.AppendChunks(ctx, "papers",
		&core.Chunk{Source: "b.txt", Text: "new chunk", Vector: []float32{1}}); err != nil {
		t.Fatalf("Failed to append after interrupted delete: %v", err)
	}
	results, err := repo.Query(ctx, "papers", []float32{1}, 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for _, sc := range results {
		if sc.Chunk.Text == "old chunk" {
			t.Fatal("Orphaned chunk resurfaced after interrupted delete")
		}
	}

	// A completed delete removes every key belonging to the collection
	if err := repo.DeleteCollection(ctx, "papers"); err != nil {
		t.Fatalf("Failed to delete collection: %v", err)
	}
	err = backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix("papers")
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			return fmt.Errorf("unexpected chunk key %q", iter.Item().Key())
		}

		if _, err := tx.Get(makeCollectionMetaKey("papers")); err != badger.ErrKeyNotFound {
			return fmt.Errorf("expected descriptor to be deleted, got %v", err)
		}
		return nil
	}, false)
	if err != nil {
		t.Fatal(err)
	}
}

func TestDeleteAll(t *testing.T) {
	repo := setupCollectionRepo(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta", "gamma"} {
		if _, err := repo.AppendChunks(ctx, name,
			&core.Chunk{Source: "x.txt", Text: "chunk", Vector: []float32{1}}); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	infos, err := repo.ListCollections(ctx)
	if err != nil {
		t.Fatalf("Failed to list collections: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("Expected no collections, got %d", len(infos))
	}
}
