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

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/engine"
	"github.com/poiesic/indexd/search"
)

// Server exposes the indexing engine and searcher over HTTP.
type Server struct {
	echo     *echo.Echo
	engine   *engine.Engine
	searcher *search.Searcher
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a server over the engine and searcher.
func New(eng *engine.Engine, searcher *search.Searcher, opts ...Option) (*Server, error) {
	if eng == nil {
		return nil, ErrEngineRequired
	}
	if searcher == nil {
		return nil, ErrSearcherRequired
	}

	s := &Server{
		engine:   eng,
		searcher: searcher,
		logger:   slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	api := e.Group("/api")
	api.POST("/index", s.handleIndex)
	api.GET("/status", s.handleStatus)
	api.GET("/search", s.handleSearch)
	api.POST("/events/blob-created", s.handleBlobCreated)
	api.GET("/healthz", s.handleHealthz)

	s.echo = e
	return s, nil
}

// Start begins serving on the address, blocking until shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	err := s.echo.Start(addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// handleIndex accepts an indexing job. The job runs in the background;
// the response carries the ID to poll.
func (s *Server) handleIndex(c echo.Context) error {
	var req IndexRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed request body"})
	}

	jobID, err := s.engine.StartJob(c.Request().Context(), req.Prefixes, req.IndexName)
	if err != nil {
		if errors.Is(err, core.ErrInvalidConfiguration) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
		s.logger.Error("failed to start job", "err", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to start job"})
	}

	return c.JSON(http.StatusAccepted, IndexResponse{JobID: jobID})
}

// handleStatus returns one job (?id=) or, without an ID, every known job.
func (s *Server) handleStatus(c echo.Context) error {
	jobID := c.QueryParam("id")
	if jobID == "" {
		records, err := s.engine.ListStatuses(c.Request().Context())
		if err != nil {
			s.logger.Error("failed to list jobs", "err", err)
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list jobs"})
		}
		statuses := make([]*JobStatus, 0, len(records))
		for _, record := range records {
			statuses = append(statuses, toJobStatus(record, nil))
		}
		return c.JSON(http.StatusOK, statuses)
	}

	job, docs, err := s.engine.GetStatus(c.Request().Context(), jobID)
	if err != nil {
		if errors.Is(err, engine.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		}
		s.logger.Error("failed to get job status", "job", jobID, "err", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to get job status"})
	}
	return c.JSON(http.StatusOK, toJobStatus(job, docs))
}

// handleSearch answers a semantic query against an index.
func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	indexName := c.QueryParam("index_name")
	if indexName == "" {
		indexName = s.engine.DefaultIndexName()
	}
	maxHits := 10
	if raw := c.QueryParam("max_hits"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "max_hits must be a positive integer"})
		}
		maxHits = parsed
	}

	results, err := s.searcher.FindSimilar(c.Request().Context(), indexName, query, maxHits)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrEmptyQuery):
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		case errors.Is(err, search.ErrUnknownIndex):
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		default:
			s.logger.Error("search failed", "index", indexName, "err", err)
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "search failed"})
		}
	}

	resp := SearchResponse{Query: query, Index: indexName, Hits: make([]SearchHit, 0, len(results))}
	for _, result := range results {
		resp.Hits = append(resp.Hits, SearchHit{
			Text:  result.Chunk.Chunk.Text,
			Seq:   result.Chunk.Chunk.Seq,
			Page:  result.Chunk.Chunk.Page,
			Score: result.Score,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// handleBlobCreated reacts to a blob-store creation event by indexing the
// single new blob. Events other than PutBlob are acknowledged and skipped.
func (s *Server) handleBlobCreated(c echo.Context) error {
	var event BlobCreatedEvent
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed event body"})
	}

	if event.API != "PutBlob" {
		return c.JSON(http.StatusOK, EventResponse{Skipped: true, Reason: "not a PutBlob event"})
	}
	blobRef := blobRefFromSubject(event.Subject)
	if blobRef == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "event subject carries no blob path"})
	}

	jobID, err := s.engine.StartDocumentJob(c.Request().Context(), blobRef, "")
	if err != nil {
		s.logger.Error("failed to start document job", "blob", blobRef, "err", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to start document job"})
	}
	return c.JSON(http.StatusAccepted, EventResponse{JobID: jobID})
}

// handleHealthz reports liveness by probing the status store.
func (s *Server) handleHealthz(c echo.Context) error {
	if _, err := s.engine.ListStatuses(c.Request().Context()); err != nil {
		s.logger.Error("health probe failed", "err", err)
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// blobRefFromSubject extracts the blob path from an event subject of the
// form ".../containers/<name>/blobs/<path>".
func blobRefFromSubject(subject string) string {
	const marker = "/blobs/"
	idx := strings.Index(subject, marker)
	if idx < 0 {
		return ""
	}
	return subject[idx+len(marker):]
}
