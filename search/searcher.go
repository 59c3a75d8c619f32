package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/indexd/activity"
	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/storage"
)

// similarityThreshold is the minimum cosine similarity for a chunk to be
// considered a semantic match.
const similarityThreshold = 0.60

// Searcher answers semantic queries over an uploaded search index.
type Searcher struct {
	index    storage.IndexRepository
	embedder activity.Embedder
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(index storage.IndexRepository, embedder activity.Embedder, opts ...Option) (*Searcher, error) {
	if index == nil {
		return nil, ErrIndexRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		index:    index,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FindSimilar searches the named index for chunks similar to the query.
// Returns up to maxHits results, ranked by relevance score. Chunks whose
// text contains every significant query word get a verbatim boost on top
// of their similarity score.
func (s *Searcher) FindSimilar(ctx context.Context, indexName, query string, maxHits int) ([]*core.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxHits <= 0 {
		maxHits = 10
	}

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	matches, err := s.index.FindSimilar(ctx, indexName, embedding, similarityThreshold, maxHits)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, indexName)
		}
		s.logger.Error("error querying index", "index", indexName, "err", err)
		return nil, err
	}

	results := make([]*core.SearchResult, 0, len(matches))
	for _, match := range matches {
		score := match.Score
		if containsAllQueryWords(match.Chunk.Chunk.Text, query) {
			score += 0.3
		}
		results = append(results, &core.SearchResult{
			Chunk: match.Chunk,
			Score: score,
		})
	}

	// The boost can reorder, so sort again.
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}

	s.logger.Debug("search complete", "index", indexName, "hits", len(results))
	return results, nil
}
