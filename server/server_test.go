package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/indexd/activity"
	"github.com/poiesic/indexd/activity/mock"
	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/engine"
	"github.com/poiesic/indexd/search"
	"github.com/poiesic/indexd/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, refs ...string) (*Server, *mock.MockUploader) {
	t.Helper()
	return newTestServerWithConfig(t, nil, refs...)
}

func newTestServerWithConfig(t *testing.T, cfgOpts []engine.ConfigOption, refs ...string) (*Server, *mock.MockUploader) {
	t.Helper()
	status, history, index, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := mock.NewMockEmbedder()
	uploader, err := search.NewUploader(index)
	require.NoError(t, err)
	recording := mock.NewMockUploader()
	recording.UploadFunc = uploader.Upload

	set := &activity.Set{
		Lister:    mock.NewMockLister(refs...),
		Extractor: mock.NewMockExtractor(),
		Chunker:   mock.NewMockChunker(),
		Embedder:  embedder,
		Uploader:  recording,
	}
	cfg := engine.NewConfig(append([]engine.ConfigOption{
		engine.WithRetryBaseDelay(time.Millisecond),
		engine.WithRetryMaxDelay(10 * time.Millisecond),
	}, cfgOpts...)...)
	eng, err := engine.New(cfg, set, status, history)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	searcher, err := search.NewSearcher(index, embedder)
	require.NoError(t, err)

	srv, err := New(eng, searcher)
	require.NoError(t, err)
	return srv, recording
}

func doJSON(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func waitForTerminalJob(t *testing.T, srv *Server, jobID string) JobStatus {
	t.Helper()
	var status JobStatus
	require.Eventually(t, func() bool {
		rec := doJSON(t, srv, http.MethodGet, "/api/status?id="+jobID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		return status.State != core.JobStateRunning.String()
	}, 10*time.Second, 5*time.Millisecond)
	return status
}

func TestServer_IndexAccepted(t *testing.T) {
	srv, uploader := newTestServer(t, "docs/a.txt", "docs/b.txt")

	rec := doJSON(t, srv, http.MethodPost, "/api/index",
		`{"prefixes": ["docs/"], "index_name": "idx"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)

	status := waitForTerminalJob(t, srv, resp.JobID)
	assert.Equal(t, core.JobStateCompleted.String(), status.State)
	assert.Equal(t, 2, status.Succeeded)
	assert.Len(t, status.Documents, 2)
	assert.Equal(t, 2, uploader.UploadCount())
}

func TestServer_IndexRejectsInvalidRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/index", `{"prefixes": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/index", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_StatusUnknownJob(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/status?id=nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StatusListsAllJobs(t *testing.T) {
	srv, _ := newTestServer(t, "docs/a.txt")

	rec := doJSON(t, srv, http.MethodPost, "/api/index", `{"prefixes": ["docs/"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	waitForTerminalJob(t, srv, resp.JobID)

	rec = doJSON(t, srv, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses []JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, resp.JobID, statuses[0].JobID)
}

func TestServer_SearchRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, "docs/report.txt")

	rec := doJSON(t, srv, http.MethodPost, "/api/index",
		`{"prefixes": ["docs/"], "index_name": "idx"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	status := waitForTerminalJob(t, srv, resp.JobID)
	require.Equal(t, core.JobStateCompleted.String(), status.State)

	// The mock extractor produces "contents of <ref>" as the sole page.
	rec = doJSON(t, srv, http.MethodGet,
		"/api/search?q=contents+of+docs%2Freport.txt&index_name=idx", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var searchResp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &searchResp))
	require.NotEmpty(t, searchResp.Hits)
	assert.Equal(t, "contents of docs/report.txt", searchResp.Hits[0].Text)
}

func TestServer_SearchDefaultsToConfiguredIndex(t *testing.T) {
	srv, _ := newTestServerWithConfig(t,
		[]engine.ConfigOption{engine.WithIndexName("corp-docs")}, "docs/report.txt")

	// No index_name on either request: both the job and the search must
	// land on the configured default, not a hardcoded one.
	rec := doJSON(t, srv, http.MethodPost, "/api/index", `{"prefixes": ["docs/"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	status := waitForTerminalJob(t, srv, resp.JobID)
	require.Equal(t, core.JobStateCompleted.String(), status.State)

	rec = doJSON(t, srv, http.MethodGet, "/api/search?q=contents+of+docs%2Freport.txt", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var searchResp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &searchResp))
	assert.Equal(t, "corp-docs", searchResp.Index)
	require.NotEmpty(t, searchResp.Hits)
}

func TestServer_SearchUnknownIndex(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/search?q=anything&index_name=missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SearchEmptyQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/search?index_name=idx", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_BlobCreatedTriggersIndexing(t *testing.T) {
	srv, _ := newTestServer(t, "incoming/new.txt")

	rec := doJSON(t, srv, http.MethodPost, "/api/events/blob-created",
		`{"api": "PutBlob", "subject": "/blobServices/default/containers/source/blobs/incoming/new.txt"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp EventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)

	status := waitForTerminalJob(t, srv, resp.JobID)
	assert.Equal(t, core.JobStateCompleted.String(), status.State)
	assert.Equal(t, 1, status.Succeeded)
}

func TestServer_BlobCreatedSkipsOtherAPIs(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/events/blob-created",
		`{"api": "DeleteBlob", "subject": "/containers/source/blobs/gone.txt"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Skipped)
	assert.Empty(t, resp.JobID)
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestBlobRefFromSubject(t *testing.T) {
	assert.Equal(t, "docs/a.txt",
		blobRefFromSubject("/blobServices/default/containers/source/blobs/docs/a.txt"))
	assert.Empty(t, blobRefFromSubject("/no/blob/marker"))
}

func TestServer_ShutdownGraceful(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}
