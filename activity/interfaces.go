package activity

import (
	"context"

	"github.com/poiesic/indexd/core"
)

// Lister enumerates candidate documents under a prefix, one page at a time.
// Implementations must be thread-safe for concurrent use.
type Lister interface {
	// ListDocuments returns one page of blob references under the prefix,
	// starting after the opaque cursor. An empty cursor starts from the
	// beginning; an empty next cursor signals the end of the listing.
	// Pages may be partial.
	ListDocuments(ctx context.Context, prefix, cursor string) (page []string, next string, err error)
}

// Extractor extracts text from a stored document.
// Implementations must be thread-safe for concurrent use.
type Extractor interface {
	// ExtractText returns the document's text, one entry per page.
	// Unsupported content types fail permanently; transport failures
	// fail transiently.
	ExtractText(ctx context.Context, blobRef string) (core.DocumentText, error)
}

// Chunker splits extracted text into an ordered sequence of chunk records.
// Implementations must be thread-safe for concurrent use.
type Chunker interface {
	// ChunkText returns chunk records with unique, contiguous sequence
	// indices starting at zero. Chunking failures are permanent: the same
	// input will fail the same way on retry.
	ChunkText(ctx context.Context, documentID core.ID, text core.DocumentText) ([]core.ChunkRecord, error)
}

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// Model returns the identifier of the embedding model, recorded on
	// every produced vector.
	Model() string
}

// IndexUploader upserts a document's chunks and vectors into a named
// search index. Implementations must be thread-safe for concurrent use.
type IndexUploader interface {
	// Upload stores the full set of chunk/vector pairs for one document.
	// It is called at most once per document per job, after every chunk
	// has an embedding.
	Upload(ctx context.Context, indexName string, chunks []core.IndexedChunk) error
}

// Set bundles the external activities the orchestration engine drives.
// The set is closed: the engine dispatches on core.ActivityKind explicitly.
type Set struct {
	Lister    Lister
	Extractor Extractor
	Chunker   Chunker
	Embedder  Embedder
	Uploader  IndexUploader
}

// Validate reports whether every activity is present.
func (s *Set) Validate() error {
	if s.Lister == nil {
		return ErrListerRequired
	}
	if s.Extractor == nil {
		return ErrExtractorRequired
	}
	if s.Chunker == nil {
		return ErrChunkerRequired
	}
	if s.Embedder == nil {
		return ErrEmbedderRequired
	}
	if s.Uploader == nil {
		return ErrUploaderRequired
	}
	return nil
}
