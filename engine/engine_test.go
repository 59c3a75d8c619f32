package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/indexd/activity"
	"github.com/poiesic/indexd/activity/mock"
	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/storage"
	"github.com/poiesic/indexd/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	eng       *Engine
	lister    *mock.MockLister
	extractor *mock.MockExtractor
	chunker   *mock.MockChunker
	embedder  *mock.MockEmbedder
	uploader  *mock.MockUploader
	status    storage.StatusRepository
	history   storage.HistoryRepository
}

func newTestEngine(t *testing.T, refs []string, opts ...ConfigOption) *testEnv {
	t.Helper()
	status, history, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	env := &testEnv{
		lister:    mock.NewMockLister(refs...),
		extractor: mock.NewMockExtractor(),
		chunker:   mock.NewMockChunker(),
		embedder:  mock.NewMockEmbedder(),
		uploader:  mock.NewMockUploader(),
		status:    status,
		history:   history,
	}
	set := &activity.Set{
		Lister:    env.lister,
		Extractor: env.extractor,
		Chunker:   env.chunker,
		Embedder:  env.embedder,
		Uploader:  env.uploader,
	}

	cfg := NewConfig(append([]ConfigOption{
		WithRetryBaseDelay(time.Millisecond),
		WithRetryMaxDelay(10 * time.Millisecond),
	}, opts...)...)
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	eng, err := New(cfg, set, status, history, WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	env.eng = eng
	return env
}

func waitForJob(t *testing.T, eng *Engine, jobID string) *core.JobStatusRecord {
	t.Helper()
	var record *core.JobStatusRecord
	require.Eventually(t, func() bool {
		job, _, err := eng.GetStatus(context.Background(), jobID)
		if err != nil {
			return false
		}
		record = job
		return job.State.Terminal()
	}, 10*time.Second, 5*time.Millisecond, "job %s never reached a terminal state", jobID)
	return record
}

func TestEngine_JobCompletes(t *testing.T) {
	env := newTestEngine(t, []string{"docs/a.txt", "docs/b.txt"})

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateCompleted, job.State)
	assert.Equal(t, 2, job.Succeeded)
	assert.Zero(t, job.Failed)
	assert.Zero(t, job.Pending)
	assert.False(t, job.CompletedAt.IsZero())
	// Persisted timestamps come from the injected clock, not the wall clock.
	clockBase := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Less(t, job.UpdatedAt.Sub(clockBase), time.Second)
	assert.GreaterOrEqual(t, job.UpdatedAt.Sub(clockBase), time.Duration(0))

	assert.Equal(t, 2, env.uploader.UploadCount())

	_, docs, err := env.eng.GetStatus(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, doc := range docs {
		assert.Equal(t, core.StageIndexed, doc.Stage, "document %s", doc.BlobRef)
	}
}

func TestEngine_EmptyListingCompletes(t *testing.T) {
	env := newTestEngine(t, nil)

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateCompleted, job.State)
	assert.Zero(t, job.Succeeded)
	assert.Zero(t, job.Failed)
	assert.Zero(t, env.uploader.UploadCount())
}

func TestEngine_PartialFailureStillCompletes(t *testing.T) {
	refs := make([]string, 0, 10)
	for i := 0; i < 7; i++ {
		refs = append(refs, fmt.Sprintf("docs/good-%d.txt", i))
	}
	for i := 0; i < 3; i++ {
		refs = append(refs, fmt.Sprintf("docs/bad-%d.txt", i))
	}
	env := newTestEngine(t, refs)
	env.extractor.ExtractFunc = func(ctx context.Context, blobRef string) (core.DocumentText, error) {
		if strings.Contains(blobRef, "bad") {
			return core.DocumentText{}, core.Permanent(errors.New("corrupt document"))
		}
		return core.DocumentText{BlobRef: blobRef, Pages: []string{"text of " + blobRef}}, nil
	}

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateCompleted, job.State,
		"a job with any successful document completes")
	assert.Equal(t, 7, job.Succeeded)
	assert.Equal(t, 3, job.Failed)
	assert.Equal(t, 7, env.uploader.UploadCount())

	_, docs, err := env.eng.GetStatus(context.Background(), jobID)
	require.NoError(t, err)
	failedDocs := 0
	for _, doc := range docs {
		if doc.Stage == core.StageFailed {
			failedDocs++
			assert.Equal(t, core.StageExtracting, doc.LastStage)
			assert.NotEmpty(t, doc.Error)
		}
	}
	assert.Equal(t, 3, failedDocs)
}

func TestEngine_ConcurrentCountAggregation(t *testing.T) {
	// Many documents finishing close together exercise the tally updates
	// racing between pool workers.
	refs := make([]string, 0, 32)
	for i := 0; i < 16; i++ {
		refs = append(refs, fmt.Sprintf("docs/good-%d.txt", i))
		refs = append(refs, fmt.Sprintf("docs/bad-%d.txt", i))
	}
	env := newTestEngine(t, refs, WithParallelism(8))
	env.extractor.ExtractFunc = func(ctx context.Context, blobRef string) (core.DocumentText, error) {
		if strings.Contains(blobRef, "bad") {
			return core.DocumentText{}, core.Permanent(errors.New("corrupt document"))
		}
		return core.DocumentText{BlobRef: blobRef, Pages: []string{"text of " + blobRef}}, nil
	}

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateCompleted, job.State)
	assert.Equal(t, 16, job.Succeeded)
	assert.Equal(t, 16, job.Failed)
	assert.Zero(t, job.Pending)
	assert.Equal(t, 16, env.uploader.UploadCount())
}

func TestEngine_AllDocumentsFailedFailsJob(t *testing.T) {
	env := newTestEngine(t, []string{"docs/a.txt", "docs/b.txt"})
	env.extractor.ExtractFunc = func(ctx context.Context, blobRef string) (core.DocumentText, error) {
		return core.DocumentText{}, core.Permanent(errors.New("corrupt document"))
	}

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateFailed, job.State)
	assert.Zero(t, job.Succeeded)
	assert.Equal(t, 2, job.Failed)
	assert.NotEmpty(t, job.Error)
	assert.Zero(t, env.uploader.UploadCount())
}

func TestEngine_GetStatusUnknownJob(t *testing.T) {
	env := newTestEngine(t, nil)

	_, _, err := env.eng.GetStatus(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestEngine_StartJobValidatesRequest(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := env.eng.StartJob(ctx, nil, "idx")
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = env.eng.StartJob(ctx, []string{"docs/"}, "   ")
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestEngine_StartJobDefaultsIndexName(t *testing.T) {
	env := newTestEngine(t, []string{"docs/a.txt"}, WithIndexName("default-index"))

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, "default-index", job.IndexName)
	assert.Len(t, env.uploader.Uploads("default-index"), 1)
}

func TestEngine_EmbeddingConcurrencyBounded(t *testing.T) {
	const parallelism = 3
	refs := make([]string, 6)
	for i := range refs {
		refs[i] = fmt.Sprintf("docs/doc-%d.txt", i)
	}
	env := newTestEngine(t, refs, WithParallelism(parallelism))
	env.extractor.ExtractFunc = func(ctx context.Context, blobRef string) (core.DocumentText, error) {
		// Four pages, so four chunks and four embed calls per document.
		return core.DocumentText{
			BlobRef: blobRef,
			Pages:   []string{blobRef + "/1", blobRef + "/2", blobRef + "/3", blobRef + "/4"},
		}, nil
	}

	var current, peak atomic.Int64
	env.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		return []float32{1, 0}, nil
	}

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateCompleted, job.State)
	assert.LessOrEqual(t, peak.Load(), int64(parallelism),
		"embedding fan-out must stay within the shared limiter capacity")
}

func TestEngine_ChunkEmbedFailureFailsDocument(t *testing.T) {
	env := newTestEngine(t, []string{"docs/a.txt"})
	env.extractor.ExtractFunc = func(ctx context.Context, blobRef string) (core.DocumentText, error) {
		return core.DocumentText{
			BlobRef: blobRef,
			Pages:   []string{"p0", "p1", "p2", "p3", "p4"},
		}, nil
	}

	var embedded atomic.Int64
	env.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if text == "p3" {
			return nil, core.Permanent(errors.New("embedding rejected"))
		}
		embedded.Add(1)
		return []float32{1, 0}, nil
	}

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateFailed, job.State)
	assert.Zero(t, env.uploader.UploadCount(), "index upload must not run after a chunk failure")
	assert.Equal(t, int64(4), embedded.Load(), "sibling embeds run to completion")

	_, docs, err := env.eng.GetStatus(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, core.StageFailed, docs[0].Stage)
	assert.Equal(t, core.StageEmbedding, docs[0].LastStage)
}

func TestEngine_TransientFailuresAreRetried(t *testing.T) {
	env := newTestEngine(t, []string{"docs/a.txt"}, WithMaxRetryAttempts(4))

	var calls atomic.Int64
	env.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if calls.Add(1) < 3 {
			return nil, core.Transient(errors.New("throttled"))
		}
		return []float32{1, 0}, nil
	}

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateCompleted, job.State)
	assert.Equal(t, int64(3), calls.Load())
}

func TestEngine_RetryExhaustionFailsDocument(t *testing.T) {
	env := newTestEngine(t, []string{"docs/a.txt"}, WithMaxRetryAttempts(2))

	var calls atomic.Int64
	env.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		calls.Add(1)
		return nil, core.Transient(errors.New("still throttled"))
	}

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateFailed, job.State)
	assert.Equal(t, int64(2), calls.Load(), "attempt budget includes the first attempt")
}

func TestEngine_CancelJob(t *testing.T) {
	env := newTestEngine(t, []string{"docs/a.txt"})
	env.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, _, err := env.eng.GetStatus(context.Background(), jobID)
		return err == nil && job.State == core.JobStateRunning
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, env.eng.CancelJob(context.Background(), jobID))

	job, _, err := env.eng.GetStatus(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateCancelled, job.State)

	// Cancelling a terminal job is rejected.
	err = env.eng.CancelJob(context.Background(), jobID)
	assert.ErrorIs(t, err, ErrJobTerminal)
}

func TestEngine_CancelUnknownJob(t *testing.T) {
	env := newTestEngine(t, nil)

	err := env.eng.CancelJob(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestEngine_ListingPagination(t *testing.T) {
	refs := make([]string, 25)
	for i := range refs {
		refs[i] = fmt.Sprintf("docs/doc-%02d.txt", i)
	}
	env := newTestEngine(t, refs)
	env.lister.PageSize = 7

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateCompleted, job.State)
	assert.Equal(t, 25, job.Succeeded)
	assert.GreaterOrEqual(t, env.lister.CallCount(), 4, "25 refs at page size 7 need at least 4 pages")
}

func TestEngine_ListingFailureFailsJob(t *testing.T) {
	env := newTestEngine(t, nil, WithMaxRetryAttempts(2))
	env.lister.ListFunc = func(ctx context.Context, prefix, cursor string) ([]string, string, error) {
		return nil, "", core.Transient(errors.New("store unreachable"))
	}

	jobID, err := env.eng.StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateFailed, job.State)
	assert.NotEmpty(t, job.Error)
}

func TestEngine_StartDocumentJob(t *testing.T) {
	env := newTestEngine(t, []string{"incoming/new.txt"})

	jobID, err := env.eng.StartDocumentJob(context.Background(), "incoming/new.txt", "idx")
	require.NoError(t, err)

	job := waitForJob(t, env.eng, jobID)
	assert.Equal(t, core.JobStateCompleted, job.State)
	assert.Equal(t, 1, job.Succeeded)
}
