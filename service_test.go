package indexd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/indexd/activity/mock"
	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSourceFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, contents := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	}
	return dir
}

func newTestService(t *testing.T, files map[string]string) *Service {
	t.Helper()
	sourceDir := writeSourceFiles(t, files)
	service, err := NewService("", sourceDir,
		WithInMemoryStorage(),
		WithEmbedder(mock.NewMockEmbedder()),
		WithEngineOptions(
			engine.WithRetryBaseDelay(time.Millisecond),
			engine.WithRetryMaxDelay(10*time.Millisecond),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { service.Close() })
	return service
}

func waitForJob(t *testing.T, service *Service, jobID string) *core.JobStatusRecord {
	t.Helper()
	var record *core.JobStatusRecord
	require.Eventually(t, func() bool {
		job, _, err := service.Engine().GetStatus(context.Background(), jobID)
		if err != nil {
			return false
		}
		record = job
		return job.State.Terminal()
	}, 10*time.Second, 5*time.Millisecond)
	return record
}

func TestService_EndToEnd(t *testing.T) {
	service := newTestService(t, map[string]string{
		"reports/q1.txt": "Revenue grew twelve percent in the first quarter.",
		"reports/q2.txt": "Churn dropped below two percent in the second quarter.",
	})
	ctx := context.Background()

	jobID, err := service.Engine().StartJob(ctx, []string{"reports/"}, "reports-index")
	require.NoError(t, err)

	job := waitForJob(t, service, jobID)
	assert.Equal(t, core.JobStateCompleted, job.State)
	assert.Equal(t, 2, job.Succeeded)
	assert.Zero(t, job.Failed)

	results, err := service.Searcher().FindSimilar(ctx, "reports-index",
		"Revenue grew twelve percent in the first quarter.", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Chunk.Chunk.Text, "Revenue grew")
}

func TestService_MixedDocumentOutcomes(t *testing.T) {
	service := newTestService(t, map[string]string{
		"docs/readable.txt": "plain text document",
		"docs/image.png":    "\x89PNG not text",
	})
	ctx := context.Background()

	jobID, err := service.Engine().StartJob(ctx, []string{"docs/"}, "idx")
	require.NoError(t, err)

	job := waitForJob(t, service, jobID)
	assert.Equal(t, core.JobStateCompleted, job.State,
		"one indexed document is enough for the job to complete")
	assert.Equal(t, 1, job.Succeeded)
	assert.Equal(t, 1, job.Failed)

	_, docs, err := service.Engine().GetStatus(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	byRef := map[string]core.Stage{}
	for _, doc := range docs {
		byRef[doc.BlobRef] = doc.Stage
	}
	assert.Equal(t, core.StageIndexed, byRef["docs/readable.txt"])
	assert.Equal(t, core.StageFailed, byRef["docs/image.png"])
}

func TestService_ReopenAndRecover(t *testing.T) {
	sourceDir := writeSourceFiles(t, map[string]string{
		"docs/a.txt": "some document text",
	})
	dataPath := filepath.Join(t.TempDir(), "indexd-data")

	service, err := NewService(dataPath, sourceDir,
		WithEmbedder(mock.NewMockEmbedder()))
	require.NoError(t, err)

	jobID, err := service.Engine().StartJob(context.Background(), []string{"docs/"}, "idx")
	require.NoError(t, err)
	waitForJob(t, service, jobID)
	require.NoError(t, service.Close())

	// Reopening sees the finished job; recovery finds nothing to resume.
	reopened, err := NewService(dataPath, sourceDir,
		WithEmbedder(mock.NewMockEmbedder()))
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	require.NoError(t, reopened.Recover(context.Background()))
	job, _, err := reopened.Engine().GetStatus(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateCompleted, job.State)
}

func TestService_HTTPServerWiring(t *testing.T) {
	service := newTestService(t, map[string]string{"docs/a.txt": "text"})

	srv, err := service.NewServer()
	require.NoError(t, err)
	assert.NotNil(t, srv.Handler())
}
