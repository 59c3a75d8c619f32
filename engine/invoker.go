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

	"github.com/poiesic/indexd/activity"
	"github.com/poiesic/indexd/core"
)

// Invoker executes activity calls with retry and durable logging. Each
// call is identified by a deterministic call index within its instance;
// a call whose terminal outcome is already journaled returns that outcome
// without executing the activity again, which makes replays idempotent.
type Invoker struct {
	activities *activity.Set
	policy     RetryPolicy
	clock      Clock
	logger     *slog.Logger
}

// NewInvoker creates an invoker over the given activity set.
func NewInvoker(activities *activity.Set, policy RetryPolicy, clock Clock) *Invoker {
	return &Invoker{
		activities: activities,
		policy:     policy,
		clock:      clock,
		logger:     slog.Default().With("component", "invoker"),
	}
}

// invoke runs one activity call to a terminal outcome. The journal absorbs
// retries: every failed-but-retryable attempt is logged before the backoff
// sleep, and the terminal outcome is logged before it is returned. Context
// cancellation aborts without a terminal event so a resumed run can retry.
func (inv *Invoker) invoke(ctx context.Context, j *journal, call uint32, kind core.ActivityKind, stage core.Stage,
	fn func(context.Context) ([]byte, error)) ([]byte, error) {

	if outcome := j.outcome(call); outcome != nil {
		switch outcome.Kind {
		case core.EventActivityCompleted:
			return outcome.Payload, nil
		default:
			return nil, core.Permanent(fmt.Errorf("%s call %d failed in prior run: %s",
				kind, call, outcome.Error))
		}
	}

	logger := inv.logger.With("instance", j.instanceID, "activity", kind, "call", call)

	for attempt := j.lastAttempt(call) + 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		payload, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug("activity succeeded after retry", "attempt", attempt)
			}
			if err := j.recordCompleted(ctx, call, kind, stage, attempt, payload); err != nil {
				return nil, err
			}
			return payload, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		errKind := core.KindOf(err)
		decision := inv.policy.Decide(attempt, errKind)
		if !decision.Retry {
			if errKind == core.ErrorKindTransient {
				err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
			}
			err = core.Permanent(err)
			logger.Warn("activity failed", "attempt", attempt, "kind", errKind, "err", err)
			if recErr := j.recordFailed(ctx, call, kind, stage, attempt, err); recErr != nil {
				return nil, recErr
			}
			return nil, err
		}

		logger.Debug("activity failed, will retry",
			"attempt", attempt, "backoff", decision.After, "err", err)
		if recErr := j.recordAttempt(ctx, call, kind, stage, attempt, err); recErr != nil {
			return nil, recErr
		}
		if err := inv.clock.Sleep(ctx, decision.After); err != nil {
			return nil, err
		}
	}
}

// InvokeExtract runs the text extraction activity for a blob.
func (inv *Invoker) InvokeExtract(ctx context.Context, j *journal, call uint32, blobRef string) (core.DocumentText, error) {
	payload, err := inv.invoke(ctx, j, call, core.ActivityExtract, core.StageExtracting,
		func(ctx context.Context) ([]byte, error) {
			text, err := inv.activities.Extractor.ExtractText(ctx, blobRef)
			if err != nil {
				return nil, err
			}
			buf := make([]byte, core.DocumentTextMUS.Size(text))
			core.DocumentTextMUS.Marshal(text, buf)
			return buf, nil
		})
	if err != nil {
		return core.DocumentText{}, err
	}
	text, _, err := core.DocumentTextMUS.Unmarshal(payload)
	if err != nil {
		return core.DocumentText{}, fmt.Errorf("decode extract result: %w", err)
	}
	return text, nil
}

// InvokeChunk runs the chunking activity and validates the returned
// sequence before journaling it.
func (inv *Invoker) InvokeChunk(ctx context.Context, j *journal, call uint32, documentID core.ID, text core.DocumentText) ([]core.ChunkRecord, error) {
	payload, err := inv.invoke(ctx, j, call, core.ActivityChunk, core.StageChunking,
		func(ctx context.Context) ([]byte, error) {
			chunks, err := inv.activities.Chunker.ChunkText(ctx, documentID, text)
			if err != nil {
				return nil, err
			}
			if err := core.ValidateChunkSequence(chunks); err != nil {
				return nil, core.Permanent(err)
			}
			buf := make([]byte, core.ChunkListMUS.Size(chunks))
			core.ChunkListMUS.Marshal(chunks, buf)
			return buf, nil
		})
	if err != nil {
		return nil, err
	}
	chunks, _, err := core.ChunkListMUS.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("decode chunk result: %w", err)
	}
	return chunks, nil
}

// InvokeEmbed runs the embedding activity for one chunk.
func (inv *Invoker) InvokeEmbed(ctx context.Context, j *journal, call uint32, chunk core.ChunkRecord) (core.EmbeddingVector, error) {
	payload, err := inv.invoke(ctx, j, call, core.ActivityEmbed, core.StageEmbedding,
		func(ctx context.Context) ([]byte, error) {
			raw, err := inv.activities.Embedder.EmbedText(ctx, chunk.Text)
			if err != nil {
				return nil, err
			}
			vector := core.EmbeddingVector{
				ChunkID: chunk.ChunkID(),
				Vector:  raw,
				Model:   inv.activities.Embedder.Model(),
			}
			buf := make([]byte, core.EmbeddingVectorMUS.Size(vector))
			core.EmbeddingVectorMUS.Marshal(vector, buf)
			return buf, nil
		})
	if err != nil {
		return core.EmbeddingVector{}, err
	}
	vector, _, err := core.EmbeddingVectorMUS.Unmarshal(payload)
	if err != nil {
		return core.EmbeddingVector{}, fmt.Errorf("decode embed result: %w", err)
	}
	return vector, nil
}

// InvokeIndexUpload runs the index upload activity for a document's full
// chunk set. The result carries no payload; the journal records only the
// outcome.
func (inv *Invoker) InvokeIndexUpload(ctx context.Context, j *journal, call uint32, indexName string, chunks []core.IndexedChunk) error {
	_, err := inv.invoke(ctx, j, call, core.ActivityIndexUpload, core.StageIndexing,
		func(ctx context.Context) ([]byte, error) {
			if err := inv.activities.Uploader.Upload(ctx, indexName, chunks); err != nil {
				return nil, err
			}
			return nil, nil
		})
	return err
}
