package storage

import (
	"context"

	"github.com/poiesic/indexd/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
// Writes must be atomic per record: readers never observe a partially
// written record.
type Repository interface {
	// Close closes the storage backend and releases resources.
	Close() error
}

// StatusRepository is the durable, queryable projection of job and document
// state. Writes are visible to subsequent reads issued after the triggering
// transition completes.
type StatusRepository interface {
	Repository

	// PutJobStatus stores a job status record, replacing any previous one.
	PutJobStatus(ctx context.Context, record *core.JobStatusRecord) error

	// GetJobStatus retrieves a job status record by job ID.
	// Returns ErrNotFound if the job is unknown.
	GetJobStatus(ctx context.Context, jobID string) (*core.JobStatusRecord, error)

	// ListJobStatuses returns every stored job status record, newest first.
	ListJobStatuses(ctx context.Context) ([]*core.JobStatusRecord, error)

	// PutDocumentStatus stores a document status record. Stage regressions
	// are dropped silently: if the stored record is already at a later stage
	// the write is a no-op, so external pollers never observe a document
	// moving backwards.
	PutDocumentStatus(ctx context.Context, record *core.DocumentStatusRecord) error

	// GetDocumentStatuses returns the document status records for a job,
	// ordered by blob reference.
	GetDocumentStatuses(ctx context.Context, jobID string) ([]*core.DocumentStatusRecord, error)

	// ListNonTerminalJobs returns the IDs of jobs whose state is not terminal,
	// used for crash recovery on startup.
	ListNonTerminalJobs(ctx context.Context) ([]string, error)
}

// HistoryRepository is the append-only replay log. Events for one instance
// are totally ordered by sequence number; an append with a sequence number
// that already exists returns ErrDuplicateKey.
type HistoryRepository interface {
	Repository

	// Append durably stores a history event. The event's Seq must be the
	// next unused sequence number for its instance.
	Append(ctx context.Context, event *core.HistoryEvent) error

	// Events returns the full history of an instance in sequence order.
	// Returns an empty slice for an unknown instance.
	Events(ctx context.Context, instanceID core.ID) ([]*core.HistoryEvent, error)
}

// IndexRepository stores uploaded chunk embeddings per named index and
// answers vector similarity queries over them.
type IndexRepository interface {
	Repository

	// EnsureIndex creates the named index if it does not exist yet.
	EnsureIndex(ctx context.Context, index string) error

	// UpsertChunks stores a document's chunks and vectors in the named index,
	// replacing any previous chunks for the same document.
	UpsertChunks(ctx context.Context, index string, chunks []core.IndexedChunk) error

	// FindSimilar returns chunks from the named index whose vectors have
	// similarity >= minSimilarity to the query vector, best first, up to
	// limit results. Returns ErrNotFound for an unknown index.
	FindSimilar(ctx context.Context, index string, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)
}
