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

package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/poiesic/indexd/activity"
	"github.com/poiesic/indexd/core"
)

const defaultPageSize = 100

// Container exposes a directory tree as a flat blob container. Blob
// references are slash-separated paths relative to the container root,
// mirroring the naming of cloud blob stores.
type Container struct {
	root     string
	pageSize int
	logger   *slog.Logger
}

// Option configures a Container.
type Option func(*Container) error

// WithPageSize sets the maximum number of references returned per
// listing page.
func WithPageSize(size int) Option {
	return func(c *Container) error {
		if size <= 0 {
			return fmt.Errorf("page size must be positive, got %d", size)
		}
		c.pageSize = size
		return nil
	}
}

// NewContainer creates a container rooted at dir. The directory must exist.
func NewContainer(dir string, opts ...Option) (*Container, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("container root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("container root %s is not a directory", dir)
	}

	c := &Container{
		root:     dir,
		pageSize: defaultPageSize,
		logger:   slog.Default().With("component", "local-container"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ListDocuments returns one page of blob references under the prefix in
// lexicographic order. The cursor is the last reference of the previous
// page; listing resumes strictly after it.
func (c *Container) ListDocuments(ctx context.Context, prefix, cursor string) ([]string, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	var refs []string
	err := filepath.WalkDir(c.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			return err
		}
		ref := filepath.ToSlash(rel)
		if strings.HasPrefix(ref, prefix) && ref > cursor {
			refs = append(refs, ref)
		}
		return nil
	})
	if err != nil {
		// Directory walks fail on transient filesystem conditions too;
		// let the caller retry.
		return nil, "", core.Transient(fmt.Errorf("list %s: %w", prefix, err))
	}

	sort.Strings(refs)
	if len(refs) > c.pageSize {
		refs = refs[:c.pageSize]
	}

	next := ""
	if len(refs) == c.pageSize {
		next = refs[len(refs)-1]
	}

	c.logger.Debug("listed documents", "prefix", prefix, "count", len(refs), "more", next != "")
	return refs, next, nil
}

// ExtractText reads the blob and splits it into pages on form-feed
// boundaries. Only plain-text content types are supported; anything else
// fails permanently.
func (c *Container) ExtractText(ctx context.Context, blobRef string) (core.DocumentText, error) {
	if err := ctx.Err(); err != nil {
		return core.DocumentText{}, err
	}

	if !supportedContentType(blobRef) {
		return core.DocumentText{}, core.Permanent(
			fmt.Errorf("%w: %s", activity.ErrUnsupportedContentType, path.Ext(blobRef)))
	}

	data, err := os.ReadFile(filepath.Join(c.root, filepath.FromSlash(blobRef)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return core.DocumentText{}, core.Permanent(
				fmt.Errorf("%w: %s", activity.ErrBlobNotFound, blobRef))
		}
		return core.DocumentText{}, core.Transient(fmt.Errorf("read %s: %w", blobRef, err))
	}

	return core.DocumentText{
		BlobRef: blobRef,
		Pages:   splitPages(string(data)),
	}, nil
}

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".text": true,
	".html": true,
	".json": true,
}

func supportedContentType(blobRef string) bool {
	return textExtensions[strings.ToLower(path.Ext(blobRef))]
}

// splitPages splits document text on form-feed characters, the page
// separator emitted by text renderings of paginated formats. A document
// without form feeds is a single page.
func splitPages(text string) []string {
	pages := strings.Split(text, "\f")
	trimmed := make([]string, 0, len(pages))
	for _, page := range pages {
		page = strings.TrimRight(page, "\n")
		if page != "" {
			trimmed = append(trimmed, page)
		}
	}
	if len(trimmed) == 0 {
		return []string{""}
	}
	return trimmed
}
