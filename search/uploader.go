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

package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/storage"
)

// Uploader implements the index upload activity against the local index
// repository. The target index is created on first use.
type Uploader struct {
	index  storage.IndexRepository
	logger *slog.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

// NewUploader creates an uploader over the index repository.
func NewUploader(index storage.IndexRepository) (*Uploader, error) {
	if index == nil {
		return nil, ErrIndexRepositoryRequired
	}
	return &Uploader{
		index:   index,
		logger:  slog.Default().With("component", "uploader"),
		ensured: make(map[string]bool),
	}, nil
}

// Upload upserts a document's chunk set into the named index, creating
// the index if this is its first use. Storage failures are transient.
func (u *Uploader) Upload(ctx context.Context, indexName string, chunks []core.IndexedChunk) error {
	if indexName == "" {
		return core.Permanent(core.ErrEmptyIndexName)
	}

	if err := u.ensureIndex(ctx, indexName); err != nil {
		return core.Transient(fmt.Errorf("ensure index %s: %w", indexName, err))
	}
	if err := u.index.UpsertChunks(ctx, indexName, chunks); err != nil {
		return core.Transient(fmt.Errorf("upsert %d chunks into %s: %w", len(chunks), indexName, err))
	}

	u.logger.Debug("uploaded chunks", "index", indexName, "count", len(chunks))
	return nil
}

func (u *Uploader) ensureIndex(ctx context.Context, indexName string) error {
	u.mu.Lock()
	done := u.ensured[indexName]
	u.mu.Unlock()
	if done {
		return nil
	}
	if err := u.index.EnsureIndex(ctx, indexName); err != nil {
		return err
	}
	u.mu.Lock()
	u.ensured[indexName] = true
	u.mu.Unlock()
	return nil
}
