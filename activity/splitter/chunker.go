// Copyright 2025 The Poiesic Authors
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

package splitter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/indexd/core"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 128
)

// Chunker splits extracted document text into overlapping chunks using
// recursive character splitting. Splitting happens per page so every chunk
// carries the page it came from.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
	logger   *slog.Logger
}

// Option configures a Chunker.
type Option func(*config) error

type config struct {
	chunkSize    int
	chunkOverlap int
}

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *config) error {
		if size <= 0 {
			return fmt.Errorf("chunk size must be positive, got %d", size)
		}
		c.chunkSize = size
		return nil
	}
}

// WithChunkOverlap sets the character overlap between adjacent chunks.
func WithChunkOverlap(overlap int) Option {
	return func(c *config) error {
		if overlap < 0 {
			return fmt.Errorf("chunk overlap must be non-negative, got %d", overlap)
		}
		c.chunkOverlap = overlap
		return nil
	}
}

// NewChunker creates a chunker with the given options.
func NewChunker(opts ...Option) (*Chunker, error) {
	cfg := &config{
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.chunkOverlap >= cfg.chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			cfg.chunkOverlap, cfg.chunkSize)
	}

	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.chunkSize),
			textsplitter.WithChunkOverlap(cfg.chunkOverlap),
		),
		logger: slog.Default().With("component", "chunker"),
	}, nil
}

// ChunkText splits the document's pages into chunk records. Sequence
// indices are contiguous from zero across the whole document; byte offsets
// are relative to the concatenation of the pages.
func (c *Chunker) ChunkText(ctx context.Context, documentID core.ID, text core.DocumentText) ([]core.ChunkRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []core.ChunkRecord
	pageStart := 0
	for pageNum, page := range text.Pages {
		pieces, err := c.splitter.SplitText(page)
		if err != nil {
			// Splitting is deterministic: the same text fails the same
			// way on every attempt.
			return nil, core.Permanent(fmt.Errorf("split page %d of %s: %w", pageNum, text.BlobRef, err))
		}

		searchFrom := 0
		for _, piece := range pieces {
			if piece == "" {
				continue
			}
			offset := strings.Index(page[searchFrom:], piece)
			if offset < 0 {
				// The splitter trims whitespace, so a piece may not match
				// verbatim past overlap boundaries. Anchor at the search
				// position rather than dropping the chunk.
				offset = 0
			}
			start := searchFrom + offset
			records = append(records, core.ChunkRecord{
				DocumentID: documentID,
				Seq:        len(records),
				Text:       piece,
				StartByte:  pageStart + start,
				EndByte:    pageStart + start + len(piece),
				Page:       pageNum,
			})
			// Advance past the non-overlapping head of this piece so the
			// next search lands after it even with overlapping chunks.
			searchFrom = start + 1
		}
		pageStart += len(page)
	}

	c.logger.Debug("chunked document",
		"blob", text.BlobRef, "pages", len(text.Pages), "chunks", len(records))
	return records, nil
}
