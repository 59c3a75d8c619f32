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

package indexd

import (
	"context"
	"log/slog"

	"github.com/poiesic/indexd/activity"
	"github.com/poiesic/indexd/activity/local"
	"github.com/poiesic/indexd/activity/openai"
	"github.com/poiesic/indexd/activity/splitter"
	"github.com/poiesic/indexd/engine"
	"github.com/poiesic/indexd/search"
	"github.com/poiesic/indexd/server"
	"github.com/poiesic/indexd/storage"
	"github.com/poiesic/indexd/storage/badger"
)

// Service wires the storage backend, activities, orchestration engine
// and searcher into one indexing service.
type Service struct {
	backend  *badger.Backend
	status   storage.StatusRepository
	history  storage.HistoryRepository
	index    storage.IndexRepository
	engine   *engine.Engine
	searcher *search.Searcher
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	embeddingConfig *openai.Config
	engineOptions   []engine.ConfigOption
	embedder        activity.Embedder
	inMemory        bool
}

// WithEmbeddingConfig sets the connection settings for the embedding
// service.
func WithEmbeddingConfig(config *openai.Config) ServiceOption {
	return func(o *serviceOptions) {
		o.embeddingConfig = config
	}
}

// WithEngineOptions forwards configuration to the orchestration engine.
func WithEngineOptions(opts ...engine.ConfigOption) ServiceOption {
	return func(o *serviceOptions) {
		o.engineOptions = append(o.engineOptions, opts...)
	}
}

// WithEmbedder replaces the embedding activity, used by tests.
func WithEmbedder(embedder activity.Embedder) ServiceOption {
	return func(o *serviceOptions) {
		o.embedder = embedder
	}
}

// WithInMemoryStorage keeps all state in memory instead of on disk.
func WithInMemoryStorage() ServiceOption {
	return func(o *serviceOptions) {
		o.inMemory = true
	}
}

// NewService creates a service storing state under dataPath and indexing
// documents from the sourceDir directory tree.
func NewService(dataPath, sourceDir string, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{
		embeddingConfig: &openai.Config{
			Host:  "http://localhost:11434/v1",
			Model: "embeddinggemma",
		},
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(dataPath, options.inMemory)
	if err != nil {
		return nil, err
	}
	status := badger.NewStatusRepository(backend)
	history := badger.NewHistoryRepository(backend)
	index := badger.NewIndexRepository(backend)

	container, err := local.NewContainer(sourceDir)
	if err != nil {
		backend.Close()
		return nil, err
	}
	chunker, err := splitter.NewChunker()
	if err != nil {
		backend.Close()
		return nil, err
	}
	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(options.embeddingConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}
	uploader, err := search.NewUploader(index)
	if err != nil {
		backend.Close()
		return nil, err
	}

	set := &activity.Set{
		Lister:    container,
		Extractor: container,
		Chunker:   chunker,
		Embedder:  embedder,
		Uploader:  uploader,
	}
	cfg := engine.NewConfig(options.engineOptions...)
	eng, err := engine.New(cfg, set, status, history)
	if err != nil {
		backend.Close()
		return nil, err
	}
	searcher, err := search.NewSearcher(index, embedder)
	if err != nil {
		eng.Close()
		backend.Close()
		return nil, err
	}

	return &Service{
		backend:  backend,
		status:   status,
		history:  history,
		index:    index,
		engine:   eng,
		searcher: searcher,
		logger:   slog.Default(),
	}, nil
}

// Engine returns the orchestration engine.
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// Searcher returns the query-side searcher.
func (s *Service) Searcher() *search.Searcher {
	return s.searcher
}

// NewServer creates an HTTP server over the service.
func (s *Service) NewServer(opts ...server.Option) (*server.Server, error) {
	return server.New(s.engine, s.searcher, opts...)
}

// Recover relaunches jobs that were running when the service last
// stopped.
func (s *Service) Recover(ctx context.Context) error {
	return s.engine.Recover(ctx)
}

// Close stops the engine and releases storage.
func (s *Service) Close() error {
	if err := s.engine.Close(); err != nil {
		s.logger.Error("error closing engine", "err", err)
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}
