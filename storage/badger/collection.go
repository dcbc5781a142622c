package badger

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

// collectionHandle serializes appends for one collection and caches its
// chunk key sequence. Concurrent appends to the same collection would
// otherwise conflict on the descriptor record.
type collectionHandle struct {
	mu  sync.Mutex
	seq *badger.Sequence
}

// CollectionRepository implements storage.CollectionRepository for BadgerDB.
type CollectionRepository struct {
	backend *Backend

	mu      sync.Mutex
	handles map[string]*collectionHandle
}

var _ storage.CollectionRepository = (*CollectionRepository)(nil)

// NewCollectionRepository creates a new CollectionRepository.
func NewCollectionRepository(backend *Backend) (*CollectionRepository, error) {
	return &CollectionRepository{
		backend: backend,
		handles: make(map[string]*collectionHandle),
	}, nil
}

// Close releases all cached chunk key sequences.
func (r *CollectionRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, handle := range r.handles {
		if handle.seq != nil {
			if err := handle.seq.Release(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(r.handles, name)
	}
	return firstErr
}

// handle returns the handle for a collection, creating it on first use.
func (r *CollectionRepository) handle(name string) (*collectionHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[name]; ok {
		return h, nil
	}
	seq, err := r.backend.GetSequence(makeCollectionSeqName(name))
	if err != nil {
		return nil, err
	}
	h := &collectionHandle{seq: seq}
	r.handles[name] = h
	return h, nil
}

// dropHandle releases and forgets a collection's handle, if any.
func (r *CollectionRepository) dropHandle(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[name]
	if !ok {
		return nil
	}
	delete(r.handles, name)
	if h.seq != nil {
		return h.seq.Release()
	}
	return nil
}

// Ensure creates the collection descriptor if it does not exist.
func (r *CollectionRepository) Ensure(ctx context.Context, name string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeCollectionMetaKey(name)
		meta, err := r.readMeta(tx, key)
		if err != nil {
			return err
		}
		if meta != nil {
			return nil
		}

		now := time.Now().UTC()
		meta = &core.CollectionMeta{
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Set(key, storage.MarshalCollectionMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// AppendChunks adds chunks to a collection in a single transaction.
// The chunks and the updated descriptor count commit together or not at all.
func (r *CollectionRepository) AppendChunks(ctx context.Context, name string, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	h, err := r.handle(name)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		metaKey := makeCollectionMetaKey(name)
		meta, err := r.readMeta(tx, metaKey)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if meta == nil {
			meta = &core.CollectionMeta{Name: name, CreatedAt: now}
		}

		for _, chunk := range chunks {
			seq, err := h.seq.Next()
			if err != nil {
				return err
			}
			chunk.Seq = seq
			chunk.InsertedAt = now

			key := makeChunkKey(name, chunk.Seq)
			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}

		meta.ChunkCount += len(chunks)
		meta.UpdatedAt = now
		if err := tx.Set(metaKey, storage.MarshalCollectionMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// Query finds the k chunks most similar to the given vector.
// Scores are dot products; callers store and query unit-length vectors.
func (r *CollectionRepository) Query(ctx context.Context, name string, vector []float32, k int) ([]*core.ScoredChunk, error) {
	var results []*core.ScoredChunk

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := r.readMeta(tx, makeCollectionMetaKey(name))
		if err != nil {
			return err
		}
		if meta == nil || meta.ChunkCount == 0 {
			return storage.ErrNotFound
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(name)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if chunk == nil || len(chunk.Vector) == 0 {
				continue
			}

			results = append(results, &core.ScoredChunk{
				Chunk: chunk,
				Score: dotProduct(vector, chunk.Vector),
			})
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.ScoredChunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// ListCollections returns all collection descriptors ordered by name.
func (r *CollectionRepository) ListCollections(ctx context.Context) ([]*core.CollectionInfo, error) {
	var results []*core.CollectionInfo
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(collectionMetaPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var meta *core.CollectionMeta
			err := iter.Item().Value(func(val []byte) error {
				var err error
				meta, err = storage.UnmarshalCollectionMeta(val)
				return err
			})
			if err != nil {
				return err
			}
			if meta != nil {
				results = append(results, &core.CollectionInfo{
					Name:       meta.Name,
					ChunkCount: meta.ChunkCount,
				})
			}
		}
		return nil
	}, false)

	return results, err
}

// ChunkCount returns the number of chunks in a collection.
func (r *CollectionRepository) ChunkCount(ctx context.Context, name string) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := r.readMeta(tx, makeCollectionMetaKey(name))
		if err != nil {
			return err
		}
		if meta == nil {
			return storage.ErrNotFound
		}
		count = meta.ChunkCount
		return nil
	}, false)
	return count, err
}

// DeleteCollection removes a collection descriptor and all of its chunks.
// Deleting an absent collection is a no-op.
func (r *CollectionRepository) DeleteCollection(ctx context.Context, name string) error {
	if err := r.dropHandle(name); err != nil {
		return err
	}

	// Chunks and sequence state go first. A crash before the descriptor
	// delete below leaves an empty but listed collection; the reverse
	// order could leave orphaned chunks that resurface when the name is
	// reused.
	if err := r.backend.DropPrefix(
		makeChunkPrefix(name),
		[]byte(makeCollectionSeqName(name)),
	); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeCollectionMetaKey(name)
		meta, err := r.readMeta(tx, key)
		if err != nil {
			return err
		}
		if meta == nil {
			return nil
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteAll removes every collection and all stored chunks.
func (r *CollectionRepository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	for name, h := range r.handles {
		if h.seq != nil {
			// Release errors are ignored; the keys are dropped below.
			_ = h.seq.Release()
		}
		delete(r.handles, name)
	}
	r.mu.Unlock()

	return r.backend.DropPrefix(
		[]byte(collectionDataPrefix+":"),
		[]byte(collectionMetaPrefix+":"),
		[]byte(collectionSeqPrefix+":"),
	)
}

// readMeta reads a collection descriptor from the transaction.
func (r *CollectionRepository) readMeta(tx *badger.Txn, key []byte) (*core.CollectionMeta, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var meta *core.CollectionMeta
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		meta, unmarshalErr = storage.UnmarshalCollectionMeta(val)
		return unmarshalErr
	})
	return meta, err
}
