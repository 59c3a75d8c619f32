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

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/storage"
)

// Deterministic call indices within a document instance. The extract and
// chunk calls have fixed slots; embed calls occupy one slot per chunk
// sequence index and the index upload follows them. Identical across
// replays because the chunk activity is journaled before any embed runs.
const (
	callExtract = 1
	callChunk   = 2
	callEmbed0  = 3
)

func embedCall(seq int) uint32 {
	return uint32(callEmbed0 + seq)
}

func uploadCall(chunkCount int) uint32 {
	return uint32(callEmbed0 + chunkCount)
}

// documentRun drives one document through the stage machine, journaling
// every transition and activity outcome. A run resumed over an existing
// journal takes the same code path; journaled work short-circuits.
type documentRun struct {
	jobID     string
	blobRef   string
	indexName string

	journal *journal
	invoker *Invoker
	limiter *Limiter
	status  storage.StatusRepository
	clock   Clock
	logger  *slog.Logger
}

func newDocumentRun(ctx context.Context, eng *Engine, jobID, blobRef, indexName string) (*documentRun, error) {
	instanceID := core.InstanceIDFor(jobID, blobRef)
	j, err := loadJournal(ctx, eng.history, eng.clock, instanceID)
	if err != nil {
		return nil, err
	}
	return &documentRun{
		jobID:     jobID,
		blobRef:   blobRef,
		indexName: indexName,
		journal:   j,
		invoker:   eng.invoker,
		limiter:   eng.limiter,
		status:    eng.status,
		clock:     eng.clock,
		logger: eng.logger.With("job", jobID, "blob", blobRef,
			"instance", instanceID),
	}, nil
}

// run executes the pipeline for one document and reports whether it
// reached the indexed stage. The admission token is owned by run for its
// duration: it is surrendered while the embedding fan-out is in flight so
// the document's own chunk calls can use the capacity, then reacquired
// for the index upload. Context cancellation aborts without entering the
// failed stage, leaving the journal resumable.
func (r *documentRun) run(ctx context.Context, token *Token) (succeeded bool, err error) {
	held := token
	defer func() {
		if held != nil {
			held.Release()
		}
	}()

	if !r.journal.empty() {
		r.logger.Info("resuming document from journal")
	}

	if err := r.enterStage(ctx, core.StageListed, 0, ""); err != nil {
		return false, err
	}

	// Extract.
	if err := r.enterStage(ctx, core.StageExtracting, 0, ""); err != nil {
		return false, err
	}
	text, err := r.invoker.InvokeExtract(ctx, r.journal, callExtract, r.blobRef)
	if err != nil {
		return false, r.fail(ctx, core.StageExtracting, err)
	}
	if err := r.enterStage(ctx, core.StageExtracted, 0, ""); err != nil {
		return false, err
	}

	// Chunk.
	if err := r.enterStage(ctx, core.StageChunking, 0, ""); err != nil {
		return false, err
	}
	documentID := core.InstanceIDFor(r.jobID, r.blobRef)
	chunks, err := r.invoker.InvokeChunk(ctx, r.journal, callChunk, documentID, text)
	if err != nil {
		return false, r.fail(ctx, core.StageChunking, err)
	}
	if err := r.enterStage(ctx, core.StageChunked, 0, ""); err != nil {
		return false, err
	}

	// Embed fan-out.
	if err := r.enterStage(ctx, core.StageEmbedding, 0, ""); err != nil {
		return false, err
	}
	vectors, embedErr := r.embedChunks(ctx, &held, chunks)
	if embedErr != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, r.fail(ctx, core.StageEmbedding, embedErr)
	}
	if err := r.enterStage(ctx, core.StageEmbedded, 0, ""); err != nil {
		return false, err
	}

	// Index upload.
	if err := r.enterStage(ctx, core.StageIndexing, 0, ""); err != nil {
		return false, err
	}
	indexed := make([]core.IndexedChunk, len(chunks))
	for i, chunk := range chunks {
		indexed[i] = core.IndexedChunk{Chunk: chunk, Vector: vectors[i]}
	}
	if err := r.invoker.InvokeIndexUpload(ctx, r.journal, uploadCall(len(chunks)), r.indexName, indexed); err != nil {
		return false, r.fail(ctx, core.StageIndexing, err)
	}

	if err := r.enterStage(ctx, core.StageIndexed, 0, ""); err != nil {
		return false, err
	}
	r.logger.Info("document indexed", "chunks", len(chunks))
	return true, nil
}

// embedChunks runs the embedding fan-out. The admission token is released
// first and a fresh one reacquired after the fan-in, so a document never
// holds capacity while its chunk calls queue for the same limiter; with
// that scheme even a limiter of one makes progress. Every spawned embed
// runs to its own conclusion before the fan-in returns, so a sibling
// failure never leaves half-journaled work behind.
func (r *documentRun) embedChunks(ctx context.Context, held **Token, chunks []core.ChunkRecord) ([]core.EmbeddingVector, error) {
	(*held).Release()
	*held = nil

	vectors := make([]core.EmbeddingVector, len(chunks))
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk core.ChunkRecord) {
			defer wg.Done()
			token, err := r.limiter.Acquire(ctx)
			if err != nil {
				errs[i] = err
				return
			}
			defer token.Release()
			vectors[i], errs[i] = r.invoker.InvokeEmbed(ctx, r.journal, embedCall(chunk.Seq), chunk)
		}(i, chunk)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", chunks[i].Seq, err)
		}
	}

	token, err := r.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	*held = token
	return vectors, nil
}

// enterStage journals the transition and projects it into the status
// store. Replayed transitions only refresh the projection.
func (r *documentRun) enterStage(ctx context.Context, stage core.Stage, attempts int, errMsg string) error {
	if err := r.journal.recordStage(ctx, stage); err != nil {
		return err
	}
	return r.putStatus(ctx, stage, stage, attempts, errMsg)
}

// fail moves the document to the failed stage, recording where it was.
// Cancellation is passed through untouched so the instance can resume.
func (r *documentRun) fail(ctx context.Context, at core.Stage, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	r.logger.Warn("document failed", "stage", at, "err", cause)
	if err := r.journal.recordStage(ctx, core.StageFailed); err != nil {
		return err
	}
	if err := r.putStatusFailed(ctx, at, cause.Error()); err != nil {
		return err
	}
	return cause
}

func (r *documentRun) putStatus(ctx context.Context, stage, lastStage core.Stage, attempts int, errMsg string) error {
	return r.status.PutDocumentStatus(ctx, &core.DocumentStatusRecord{
		JobID:      r.jobID,
		BlobRef:    r.blobRef,
		InstanceID: r.journal.instanceID,
		Stage:      stage,
		LastStage:  lastStage,
		Attempts:   attempts,
		Error:      errMsg,
		UpdatedAt:  r.clock.Now(),
	})
}

func (r *documentRun) putStatusFailed(ctx context.Context, lastStage core.Stage, errMsg string) error {
	return r.status.PutDocumentStatus(ctx, &core.DocumentStatusRecord{
		JobID:      r.jobID,
		BlobRef:    r.blobRef,
		InstanceID: r.journal.instanceID,
		Stage:      core.StageFailed,
		LastStage:  lastStage,
		Error:      errMsg,
		UpdatedAt:  r.clock.Now(),
	})
}
