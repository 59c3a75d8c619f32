package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing so that the same document
// admitted into the same job always maps to the same orchestration instance.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Stage identifies a document's position in the indexing pipeline.
// Stages only move forward in declaration order, or jump to StageFailed.
type Stage int

const (
	// StageListed means the document was discovered by the lister.
	StageListed Stage = iota + 1
	// StageExtracting means text extraction is in progress.
	StageExtracting
	// StageExtracted means text extraction completed.
	StageExtracted
	// StageChunking means chunking is in progress.
	StageChunking
	// StageChunked means chunking completed.
	StageChunked
	// StageEmbedding means the chunk embedding fan-out is in progress.
	StageEmbedding
	// StageEmbedded means every chunk embedding completed.
	StageEmbedded
	// StageIndexing means the index upload is in progress.
	StageIndexing
	// StageIndexed is the terminal success stage.
	StageIndexed
	// StageFailed is the terminal failure stage, reachable from any
	// non-terminal stage.
	StageFailed
)

var stageNames = map[Stage]string{
	StageListed:     "listed",
	StageExtracting: "extracting",
	StageExtracted:  "extracted",
	StageChunking:   "chunking",
	StageChunked:    "chunked",
	StageEmbedding:  "embedding",
	StageEmbedded:   "embedded",
	StageIndexing:   "indexing",
	StageIndexed:    "indexed",
	StageFailed:     "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transitions can occur from s.
func (s Stage) Terminal() bool {
	return s == StageIndexed || s == StageFailed
}

// CanTransition reports whether moving from s to next is legal.
// Forward moves of exactly one stage are allowed, plus the jump to
// StageFailed from any non-terminal stage.
func (s Stage) CanTransition(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	return next == s+1 && next <= StageIndexed
}

// JobState is the lifecycle state of an indexing job.
type JobState int

const (
	// JobStateRunning means document tasks are still non-terminal.
	JobStateRunning JobState = iota + 1
	// JobStateCompleted means every task is terminal and at least one
	// document succeeded (or the listing was empty).
	JobStateCompleted
	// JobStateFailed means every task is terminal and none succeeded,
	// or the job could not list its documents at all.
	JobStateFailed
	// JobStateCancelled means the job was cancelled before completion.
	JobStateCancelled
)

var jobStateNames = map[JobState]string{
	JobStateRunning:   "running",
	JobStateCompleted: "completed",
	JobStateFailed:    "failed",
	JobStateCancelled: "cancelled",
}

func (s JobState) String() string {
	if name, ok := jobStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the job reached a final state.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

// ActivityKind identifies one of the external activities the pipeline calls.
// The set is closed; the invoker dispatches on it explicitly.
type ActivityKind int

const (
	// ActivityExtract extracts text from a blob.
	ActivityExtract ActivityKind = iota + 1
	// ActivityChunk splits extracted text into chunk records.
	ActivityChunk
	// ActivityEmbed generates an embedding vector for one chunk.
	ActivityEmbed
	// ActivityIndexUpload upserts a document's chunks into the search index.
	ActivityIndexUpload
)

var activityNames = map[ActivityKind]string{
	ActivityExtract:     "extract",
	ActivityChunk:       "chunk",
	ActivityEmbed:       "embed",
	ActivityIndexUpload: "index-upload",
}

func (k ActivityKind) String() string {
	if name, ok := activityNames[k]; ok {
		return name
	}
	return "unknown"
}

// DocumentText is the result of text extraction, one entry per page.
type DocumentText struct {
	BlobRef string
	Pages   []string
}

// ChunkRecord is one chunk of an extracted document. Sequence indices are
// unique and contiguous per document, starting at zero. Records are never
// mutated after creation.
type ChunkRecord struct {
	DocumentID ID
	Seq        int
	Text       string
	StartByte  int
	EndByte    int
	Page       int
}

// ChunkID returns the content-derived identity of the chunk,
// stable across replays.
func (c *ChunkRecord) ChunkID() ID {
	return IDFromContent(c.Text)
}

// EmbeddingVector is the embedding produced for a single chunk.
// It is attached 1:1 to a ChunkRecord and consumed once by the index upload.
type EmbeddingVector struct {
	ChunkID ID
	Vector  []float32
	Model   string
}

// IndexedChunk pairs a chunk with its embedding for index upload and search.
type IndexedChunk struct {
	Chunk  ChunkRecord
	Vector EmbeddingVector
}

// DocumentTask is the per-document pipeline instance within a job.
// It is owned exclusively by its document orchestrator.
type DocumentTask struct {
	JobID      string
	BlobRef    string
	InstanceID ID
	Stage      Stage
	Attempts   int // attempts consumed in the current stage
	LastError  string
}

// InstanceIDFor derives the orchestration instance ID for a document within
// a job. Deterministic, so a restarted engine resumes the same journal.
func InstanceIDFor(jobID, blobRef string) ID {
	return IDFromContent(jobID + "\x00" + blobRef)
}

// EventKind classifies replay log entries.
type EventKind int

const (
	// EventStageEntered records a stage transition.
	EventStageEntered EventKind = iota + 1
	// EventActivityAttempt records a single failed attempt that will be retried.
	EventActivityAttempt
	// EventActivityCompleted records the terminal successful outcome of an
	// activity call, including its result payload.
	EventActivityCompleted
	// EventActivityFailed records the terminal failed outcome of an activity
	// call (permanent failure or retry exhaustion).
	EventActivityFailed
)

var eventNames = map[EventKind]string{
	EventStageEntered:      "stage-entered",
	EventActivityAttempt:   "activity-attempt",
	EventActivityCompleted: "activity-completed",
	EventActivityFailed:    "activity-failed",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// HistoryEvent is one append-only replay log entry for an orchestration
// instance. Events are totally ordered per instance by Seq.
type HistoryEvent struct {
	InstanceID ID
	Seq        uint64
	Kind       EventKind
	Stage      Stage
	Activity   ActivityKind // zero when Kind is EventStageEntered
	Call       uint32       // deterministic call index within the instance
	Attempt    int
	Payload    []byte // mus-encoded activity result for EventActivityCompleted
	Error      string
	Timestamp  time.Time
}

// JobStatusRecord is the externally queryable projection of a job.
type JobStatusRecord struct {
	JobID       string
	IndexName   string
	Prefixes    []string
	State       JobState
	Succeeded   int
	Failed      int
	Pending     int
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time // zero until the job is terminal
}

// DocumentStatusRecord is the externally queryable projection of a document
// task. LastStage records the stage a failed document was in when it failed.
type DocumentStatusRecord struct {
	JobID      string
	BlobRef    string
	InstanceID ID
	Stage      Stage
	LastStage  Stage
	Attempts   int
	Error      string
	UpdatedAt  time.Time
}

// SearchResult is a ranked chunk match from the search index.
type SearchResult struct {
	Chunk *IndexedChunk
	Score float32
}
