package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/poiesic/indexd/core"
)

// MockLister is a test double for activity.Lister backed by a fixed,
// sorted list of blob references. It allows custom behavior injection
// via function fields.
type MockLister struct {
	// Refs are the blob references the lister serves, in order.
	Refs []string

	// PageSize bounds each returned page. Zero means everything in one page.
	PageSize int

	// ListFunc is called by ListDocuments if set.
	ListFunc func(ctx context.Context, prefix, cursor string) ([]string, string, error)

	mu        sync.Mutex
	callCount int
}

// NewMockLister creates a lister serving the given references.
func NewMockLister(refs ...string) *MockLister {
	return &MockLister{Refs: refs}
}

// ListDocuments returns the next page of references after the cursor.
func (m *MockLister) ListDocuments(ctx context.Context, prefix, cursor string) ([]string, string, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.ListFunc != nil {
		return m.ListFunc(ctx, prefix, cursor)
	}

	var page []string
	for _, ref := range m.Refs {
		if len(ref) < len(prefix) || ref[:len(prefix)] != prefix {
			continue
		}
		if ref <= cursor {
			continue
		}
		page = append(page, ref)
		if m.PageSize > 0 && len(page) == m.PageSize {
			return page, ref, nil
		}
	}
	return page, "", nil
}

// CallCount returns the number of times ListDocuments was called.
func (m *MockLister) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// MockExtractor is a test double for activity.Extractor. By default every
// blob extracts to a single deterministic page derived from its reference.
type MockExtractor struct {
	// ExtractFunc is called by ExtractText if set.
	ExtractFunc func(ctx context.Context, blobRef string) (core.DocumentText, error)

	mu        sync.Mutex
	callCount int
}

// NewMockExtractor creates an extractor with default deterministic behavior.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

// ExtractText returns deterministic text for the blob reference.
func (m *MockExtractor) ExtractText(ctx context.Context, blobRef string) (core.DocumentText, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, blobRef)
	}

	return core.DocumentText{
		BlobRef: blobRef,
		Pages:   []string{"contents of " + blobRef},
	}, nil
}

// CallCount returns the number of times ExtractText was called.
func (m *MockExtractor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// MockChunker is a test double for activity.Chunker. By default it emits
// one chunk per page with contiguous sequence indices.
type MockChunker struct {
	// ChunkFunc is called by ChunkText if set.
	ChunkFunc func(ctx context.Context, documentID core.ID, text core.DocumentText) ([]core.ChunkRecord, error)

	mu        sync.Mutex
	callCount int
}

// NewMockChunker creates a chunker with default one-chunk-per-page behavior.
func NewMockChunker() *MockChunker {
	return &MockChunker{}
}

// ChunkText returns one chunk record per page of the document.
func (m *MockChunker) ChunkText(ctx context.Context, documentID core.ID, text core.DocumentText) ([]core.ChunkRecord, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.ChunkFunc != nil {
		return m.ChunkFunc(ctx, documentID, text)
	}

	records := make([]core.ChunkRecord, len(text.Pages))
	offset := 0
	for i, page := range text.Pages {
		records[i] = core.ChunkRecord{
			DocumentID: documentID,
			Seq:        i,
			Text:       page,
			StartByte:  offset,
			EndByte:    offset + len(page),
			Page:       i,
		}
		offset += len(page)
	}
	return records, nil
}

// CallCount returns the number of times ChunkText was called.
func (m *MockChunker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// MockEmbedder is a test double for activity.Embedder producing
// deterministic vectors from a text hash.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// Dim is the vector dimensionality. Zero means the default of 16.
	Dim int

	mu        sync.Mutex
	callCount int
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// EmbedText generates a deterministic embedding based on the text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}

	dim := m.Dim
	if dim == 0 {
		dim = 16
	}
	return deterministicVector(text, dim), nil
}

// Model returns a fixed test model identifier.
func (m *MockEmbedder) Model() string {
	return "mock-embedding-model"
}

// CallCount returns the number of times EmbedText was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// MockUploader is a test double for activity.IndexUploader recording
// every upload it receives.
type MockUploader struct {
	// UploadFunc is called by Upload if set.
	UploadFunc func(ctx context.Context, indexName string, chunks []core.IndexedChunk) error

	mu      sync.Mutex
	uploads map[string][][]core.IndexedChunk
}

// NewMockUploader creates an uploader that records uploads in memory.
func NewMockUploader() *MockUploader {
	return &MockUploader{uploads: make(map[string][][]core.IndexedChunk)}
}

// Upload records the chunk set under the index name.
func (m *MockUploader) Upload(ctx context.Context, indexName string, chunks []core.IndexedChunk) error {
	if m.UploadFunc != nil {
		if err := m.UploadFunc(ctx, indexName, chunks); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[indexName] = append(m.uploads[indexName], chunks)
	return nil
}

// Uploads returns every recorded upload for the index, in call order.
func (m *MockUploader) Uploads(indexName string) [][]core.IndexedChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads[indexName]
}

// UploadCount returns the total number of Upload calls across all indexes.
func (m *MockUploader) UploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, uploads := range m.uploads {
		count += len(uploads)
	}
	return count
}

// deterministicVector creates a deterministic embedding vector from text.
// It uses FNV hash so the same text always produces the same vector.
func deterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000) / 1000.0
	}

	// Normalize to a unit vector so self-similarity is exactly 1.
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}
	return vector
}
