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

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/indexd/activity"
	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/storage"
)

// Engine orchestrates indexing jobs: it lists documents, drives each one
// through the durable document pipeline on a bounded worker pool, and
// projects progress into the status store.
type Engine struct {
	cfg        *Config
	activities *activity.Set
	status     storage.StatusRepository
	history    storage.HistoryRepository
	invoker    *Invoker
	limiter    *Limiter
	clock      Clock
	pool       *ants.Pool
	logger     *slog.Logger

	mu     sync.Mutex
	jobs   map[string]*jobHandle
	closed bool
	wg     sync.WaitGroup
}

type jobHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the engine's clock, used by tests to skip backoffs.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// New creates an engine over the given activities and repositories.
func New(cfg *Config, activities *activity.Set, status storage.StatusRepository, history storage.HistoryRepository, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := activities.Validate(); err != nil {
		return nil, err
	}

	eng := &Engine{
		cfg:        cfg,
		activities: activities,
		status:     status,
		history:    history,
		limiter:    NewLimiter(cfg.Parallelism),
		clock:      SystemClock(),
		logger:     slog.Default().With("component", "engine"),
		jobs:       make(map[string]*jobHandle),
	}
	for _, opt := range opts {
		opt(eng)
	}
	eng.invoker = NewInvoker(activities, NewRetryPolicy(cfg), eng.clock)

	pool, err := ants.NewPool(cfg.Parallelism)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	eng.pool = pool
	return eng, nil
}

// StartJob validates the request, registers the job as running and kicks
// off orchestration in the background. It returns the job ID immediately;
// progress is observed through GetStatus.
func (e *Engine) StartJob(ctx context.Context, prefixes []string, indexName string) (string, error) {
	if indexName == "" {
		indexName = e.cfg.IndexName
	}
	if err := core.ValidateJobRequest(prefixes, indexName); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	now := e.clock.Now()
	record := &core.JobStatusRecord{
		JobID:     jobID,
		IndexName: indexName,
		Prefixes:  prefixes,
		State:     core.JobStateRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.status.PutJobStatus(ctx, record); err != nil {
		return "", fmt.Errorf("register job: %w", err)
	}

	if err := e.launch(jobID, prefixes, indexName); err != nil {
		return "", err
	}
	e.logger.Info("job started", "job", jobID, "index", indexName, "prefixes", prefixes)
	return jobID, nil
}

// StartDocumentJob starts a single-document job, used by the blob-created
// event trigger. The blob reference is the sole listing result.
func (e *Engine) StartDocumentJob(ctx context.Context, blobRef, indexName string) (string, error) {
	if blobRef == "" {
		return "", fmt.Errorf("%w: blob reference required", core.ErrInvalidConfiguration)
	}
	return e.StartJob(ctx, []string{blobRef}, indexName)
}

// launch registers the job handle and spawns the orchestration goroutine.
func (e *Engine) launch(jobID string, prefixes []string, indexName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if _, running := e.jobs[jobID]; running {
		return nil
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	handle := &jobHandle{cancel: cancel, done: make(chan struct{})}
	e.jobs[jobID] = handle

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(handle.done)
		defer cancel()
		e.runJob(jobCtx, jobID, prefixes, indexName)
		e.mu.Lock()
		delete(e.jobs, jobID)
		e.mu.Unlock()
	}()
	return nil
}

// runJob drives one job end to end: list, fan out documents onto the
// worker pool, aggregate, and record the terminal state.
func (e *Engine) runJob(ctx context.Context, jobID string, prefixes []string, indexName string) {
	logger := e.logger.With("job", jobID)

	refs, err := e.listDocuments(ctx, prefixes)
	if err != nil {
		logger.Error("listing failed", "err", err)
		e.finishJob(jobID, indexName, prefixes, 0, 0, err)
		return
	}
	logger.Info("listing complete", "documents", len(refs))

	if len(refs) == 0 {
		// Nothing to do is success, not failure.
		e.finishJob(jobID, indexName, prefixes, 0, 0, nil)
		return
	}
	e.updateJobCounts(jobID, indexName, prefixes, 0, 0, len(refs))

	var (
		mu        sync.Mutex
		succeeded int
		failed    int
		docWG     sync.WaitGroup
	)
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		ref := ref
		docWG.Add(1)
		err := e.pool.Submit(func() {
			defer docWG.Done()
			ok := e.runDocument(ctx, jobID, ref, indexName)
			// Snapshot the tallies inside the critical section; sibling
			// workers keep writing them after the unlock.
			mu.Lock()
			if ok {
				succeeded++
			} else {
				failed++
			}
			s, f := succeeded, failed
			mu.Unlock()
			e.updateJobCounts(jobID, indexName, prefixes, s, f, len(refs)-(s+f))
		})
		if err != nil {
			docWG.Done()
			mu.Lock()
			failed++
			mu.Unlock()
			logger.Error("failed to submit document", "blob", ref, "err", err)
		}
	}
	docWG.Wait()

	if ctx.Err() != nil {
		e.finishCancelled(jobID, indexName, prefixes, succeeded, failed)
		return
	}
	var jobErr error
	if succeeded == 0 {
		jobErr = fmt.Errorf("no documents indexed: %d of %d failed", failed, len(refs))
	}
	e.finishJob(jobID, indexName, prefixes, succeeded, failed, jobErr)
	logger.Info("job finished", "succeeded", succeeded, "failed", failed)
}

// listDocuments pages through every prefix and deduplicates references.
// Transient listing failures are retried under the standard policy.
func (e *Engine) listDocuments(ctx context.Context, prefixes []string) ([]string, error) {
	policy := NewRetryPolicy(e.cfg)
	seen := make(map[string]bool)
	var refs []string
	for _, prefix := range prefixes {
		cursor := ""
		for {
			page, next, err := e.listPage(ctx, policy, prefix, cursor)
			if err != nil {
				return nil, fmt.Errorf("list prefix %q: %w", prefix, err)
			}
			for _, ref := range page {
				if !seen[ref] {
					seen[ref] = true
					refs = append(refs, ref)
				}
			}
			if next == "" {
				break
			}
			cursor = next
		}
	}
	return refs, nil
}

func (e *Engine) listPage(ctx context.Context, policy RetryPolicy, prefix, cursor string) ([]string, string, error) {
	for attempt := 1; ; attempt++ {
		page, next, err := e.activities.Lister.ListDocuments(ctx, prefix, cursor)
		if err == nil {
			return page, next, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, "", err
		}
		decision := policy.Decide(attempt, core.KindOf(err))
		if !decision.Retry {
			return nil, "", err
		}
		if err := e.clock.Sleep(ctx, decision.After); err != nil {
			return nil, "", err
		}
	}
}

// runDocument admits one document under the limiter and runs its
// pipeline. Returns true when the document reached the indexed stage.
func (e *Engine) runDocument(ctx context.Context, jobID, blobRef, indexName string) bool {
	token, err := e.limiter.Acquire(ctx)
	if err != nil {
		return false
	}
	// The run owns the token from here, including the release and
	// reacquire around the embedding fan-out.
	run, err := newDocumentRun(ctx, e, jobID, blobRef, indexName)
	if err != nil {
		token.Release()
		e.logger.Error("failed to load document journal", "job", jobID, "blob", blobRef, "err", err)
		return false
	}
	ok, err := run.run(ctx, token)
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Debug("document run ended with error", "job", jobID, "blob", blobRef, "err", err)
	}
	return ok
}

// updateJobCounts refreshes the running job projection.
func (e *Engine) updateJobCounts(jobID, indexName string, prefixes []string, succeeded, failed, pending int) {
	record := &core.JobStatusRecord{
		JobID:     jobID,
		IndexName: indexName,
		Prefixes:  prefixes,
		State:     core.JobStateRunning,
		Succeeded: succeeded,
		Failed:    failed,
		Pending:   pending,
		UpdatedAt: e.clock.Now(),
	}
	e.preserveCreatedAt(record)
	if err := e.status.PutJobStatus(context.Background(), record); err != nil {
		e.logger.Error("failed to update job status", "job", jobID, "err", err)
	}
}

// finishJob records the job's terminal state. A job fails only when it
// could not list at all or when not a single document succeeded.
func (e *Engine) finishJob(jobID, indexName string, prefixes []string, succeeded, failed int, jobErr error) {
	state := core.JobStateCompleted
	errMsg := ""
	if jobErr != nil {
		state = core.JobStateFailed
		errMsg = jobErr.Error()
	}
	now := e.clock.Now()
	record := &core.JobStatusRecord{
		JobID:       jobID,
		IndexName:   indexName,
		Prefixes:    prefixes,
		State:       state,
		Succeeded:   succeeded,
		Failed:      failed,
		Error:       errMsg,
		UpdatedAt:   now,
		CompletedAt: now,
	}
	e.preserveCreatedAt(record)
	if err := e.status.PutJobStatus(context.Background(), record); err != nil {
		e.logger.Error("failed to record job completion", "job", jobID, "err", err)
	}
}

func (e *Engine) finishCancelled(jobID, indexName string, prefixes []string, succeeded, failed int) {
	now := e.clock.Now()
	record := &core.JobStatusRecord{
		JobID:       jobID,
		IndexName:   indexName,
		Prefixes:    prefixes,
		State:       core.JobStateCancelled,
		Succeeded:   succeeded,
		Failed:      failed,
		Error:       core.ErrCancelled.Error(),
		UpdatedAt:   now,
		CompletedAt: now,
	}
	e.preserveCreatedAt(record)
	if err := e.status.PutJobStatus(context.Background(), record); err != nil {
		e.logger.Error("failed to record job cancellation", "job", jobID, "err", err)
	}
}

func (e *Engine) preserveCreatedAt(record *core.JobStatusRecord) {
	existing, err := e.status.GetJobStatus(context.Background(), record.JobID)
	if err == nil {
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = e.clock.Now()
	}
}

// GetStatus returns the job projection and its per-document statuses.
// Returns ErrJobNotFound for an unknown job ID.
func (e *Engine) GetStatus(ctx context.Context, jobID string) (*core.JobStatusRecord, []*core.DocumentStatusRecord, error) {
	job, err := e.status.GetJobStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, nil, err
	}
	docs, err := e.status.GetDocumentStatuses(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, docs, nil
}

// DefaultIndexName returns the index used when a request does not name one.
func (e *Engine) DefaultIndexName() string {
	return e.cfg.IndexName
}

// ListStatuses returns every known job, newest first.
func (e *Engine) ListStatuses(ctx context.Context) ([]*core.JobStatusRecord, error) {
	return e.status.ListJobStatuses(ctx)
}

// CancelJob stops a running job. In-flight documents are interrupted;
// their journals remain resumable. Returns ErrJobNotFound for unknown
// jobs and ErrJobTerminal for jobs that already finished.
func (e *Engine) CancelJob(ctx context.Context, jobID string) error {
	record, err := e.status.GetJobStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return err
	}
	if record.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, jobID, record.State)
	}

	e.mu.Lock()
	handle, running := e.jobs[jobID]
	e.mu.Unlock()
	if running {
		handle.cancel()
		<-handle.done
		return nil
	}

	// Not in memory (crashed before recovery): mark it cancelled directly.
	e.finishCancelled(jobID, record.IndexName, record.Prefixes, record.Succeeded, record.Failed)
	return nil
}

// Recover relaunches every non-terminal job found in the status store.
// Document journals make the relaunch idempotent: completed work replays
// from history instead of re-executing.
func (e *Engine) Recover(ctx context.Context) error {
	jobIDs, err := e.status.ListNonTerminalJobs(ctx)
	if err != nil {
		return fmt.Errorf("list non-terminal jobs: %w", err)
	}
	for _, jobID := range jobIDs {
		record, err := e.status.GetJobStatus(ctx, jobID)
		if err != nil {
			return fmt.Errorf("load job %s: %w", jobID, err)
		}
		if err := e.launch(jobID, record.Prefixes, record.IndexName); err != nil {
			return err
		}
		e.logger.Info("recovered job", "job", jobID)
	}
	return nil
}

// Close cancels every running job, waits for the orchestration goroutines
// to drain and releases the worker pool.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, handle := range e.jobs {
		handle.cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.pool.Release()
	return nil
}
