package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/storage"
)

// IndexRepository implements storage.IndexRepository for BadgerDB.
// Vectors are scanned linearly; with normalized embeddings the dot product
// is the cosine similarity.
type IndexRepository struct {
	backend *Backend
}

var _ storage.IndexRepository = (*IndexRepository)(nil)

// NewIndexRepository creates a new IndexRepository.
func NewIndexRepository(backend *Backend) *IndexRepository {
	return &IndexRepository{
		backend: backend,
	}
}

// Close implements storage.Repository. The shared backend is closed by its owner.
func (r *IndexRepository) Close() error {
	return nil
}

// EnsureIndex creates the named index if it does not exist yet.
func (r *IndexRepository) EnsureIndex(ctx context.Context, index string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeIndexMetaKey(index)
		if _, err := tx.Get(key); err == nil {
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := tx.Set(key, []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// UpsertChunks stores a document's chunks and vectors in the named index,
// replacing any previous chunks for the same document.
func (r *IndexRepository) UpsertChunks(ctx context.Context, index string, chunks []core.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	documentID := chunks[0].Chunk.DocumentID

	return r.backend.WithTx(func(tx *badger.Txn) error {
		// Drop any previous upload of this document.
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeIndexDocScanPrefix(index, documentID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		var stale [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			stale = append(stale, iter.Item().KeyCopy(nil))
		}
		iter.Close()
		for _, key := range stale {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}

		for i := range chunks {
			key := makeIndexChunkKey(index, chunks[i].Chunk.DocumentID, chunks[i].Chunk.Seq)
			if err := tx.Set(key, storage.MarshalIndexedChunk(&chunks[i])); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// FindSimilar returns chunks from the named index whose vectors have
// similarity >= minSimilarity to the query vector, best first.
func (r *IndexRepository) FindSimilar(ctx context.Context, index string, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := tx.Get(makeIndexMetaKey(index)); err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeIndexScanPrefix(index)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.IndexedChunk
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				chunk, unmarshalErr = storage.UnmarshalIndexedChunk(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			if chunk == nil || len(chunk.Vector.Vector) == 0 {
				continue
			}

			similarity := dotProduct(vector, chunk.Vector.Vector)
			if similarity >= minSimilarity {
				results = append(results, &core.SearchResult{
					Chunk: chunk,
					Score: similarity,
				})
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
