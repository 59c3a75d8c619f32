package server

import (
	"time"

	"github.com/poiesic/indexd/core"
)

// IndexRequest is the body of POST /api/index.
type IndexRequest struct {
	Prefixes  []string `json:"prefixes"`
	IndexName string   `json:"index_name,omitempty"`
}

// IndexResponse acknowledges an accepted indexing job.
type IndexResponse struct {
	JobID string `json:"job_id"`
}

// ErrorResponse carries a request failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JobStatus is the external projection of one job.
type JobStatus struct {
	JobID       string           `json:"job_id"`
	IndexName   string           `json:"index_name"`
	Prefixes    []string         `json:"prefixes"`
	State       string           `json:"state"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	Pending     int              `json:"pending"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Documents   []DocumentStatus `json:"documents,omitempty"`
}

// DocumentStatus is the external projection of one document task.
type DocumentStatus struct {
	BlobRef   string    `json:"blob_ref"`
	Stage     string    `json:"stage"`
	LastStage string    `json:"last_stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	BlobRef string  `json:"blob_ref,omitempty"`
	Text    string  `json:"text"`
	Seq     int     `json:"seq"`
	Page    int     `json:"page"`
	Score   float32 `json:"score"`
}

// SearchResponse is the body of GET /api/search.
type SearchResponse struct {
	Query string      `json:"query"`
	Index string      `json:"index"`
	Hits  []SearchHit `json:"hits"`
}

// BlobCreatedEvent is the body of POST /api/events/blob-created, the
// shape emitted by blob-store event notifications. Only PutBlob events
// trigger indexing.
type BlobCreatedEvent struct {
	API     string `json:"api"`
	Subject string `json:"subject"`
	URL     string `json:"url,omitempty"`
}

// EventResponse acknowledges a blob-created event.
type EventResponse struct {
	JobID   string `json:"job_id,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// HealthResponse is the body of GET /api/healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func toJobStatus(record *core.JobStatusRecord, docs []*core.DocumentStatusRecord) *JobStatus {
	status := &JobStatus{
		JobID:     record.JobID,
		IndexName: record.IndexName,
		Prefixes:  record.Prefixes,
		State:     record.State.String(),
		Succeeded: record.Succeeded,
		Failed:    record.Failed,
		Pending:   record.Pending,
		Error:     record.Error,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if !record.CompletedAt.IsZero() {
		completed := record.CompletedAt
		status.CompletedAt = &completed
	}
	for _, doc := range docs {
		ds := DocumentStatus{
			BlobRef:   doc.BlobRef,
			Stage:     doc.Stage.String(),
			Error:     doc.Error,
			UpdatedAt: doc.UpdatedAt,
		}
		if doc.Stage == core.StageFailed {
			ds.LastStage = doc.LastStage.String()
		}
		status.Documents = append(status.Documents, ds)
	}
	return status
}
