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

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/indexd"
	"github.com/poiesic/indexd/activity/openai"
	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/engine"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "indexd",
		Usage: "Durable document indexing pipeline with semantic search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the indexing service with its HTTP API",
				Action: serveCommand,
				Flags: append(serviceFlags(),
					&cli.StringFlag{
						Name:  "listen",
						Usage: "HTTP listen address",
						Value: ":8080",
					},
				),
			},
			{
				Name:   "index",
				Usage:  "Index documents under the given prefixes and wait for completion",
				Action: indexCommand,
				Flags: append(serviceFlags(),
					&cli.StringSliceFlag{
						Name:    "prefix",
						Aliases: []string{"p"},
						Usage:   "Blob prefix to index (repeatable)",
						Value:   cli.NewStringSlice(""),
					},
					&cli.StringFlag{
						Name:  "index-name",
						Usage: "Target search index",
						Value: "default-index",
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Query a search index",
				Action:    searchCommand,
				ArgsUsage: "QUERY...",
				Flags: append(serviceFlags(),
					&cli.StringFlag{
						Name:  "index-name",
						Usage: "Search index to query",
						Value: "default-index",
					},
					&cli.IntFlag{
						Name:  "max-hits",
						Usage: "Maximum number of results",
						Value: 10,
					},
				),
			},
			{
				Name:      "status",
				Usage:     "Show job status, or all jobs when no ID is given",
				Action:    statusCommand,
				ArgsUsage: "[JOB-ID]",
				Flags:     serviceFlags(),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// serviceFlags are shared by every command that opens the service.
func serviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data",
			Aliases: []string{"d"},
			Usage:   "Path to the BadgerDB state directory",
			Value:   "./indexd_db",
		},
		&cli.StringFlag{
			Name:    "source",
			Aliases: []string{"s"},
			Usage:   "Source directory documents are listed from",
			Value:   "./source",
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.IntFlag{
			Name:  "parallelism",
			Usage: "Shared concurrency budget for documents and chunk embeddings",
			Value: 20,
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Maximum attempts per activity call",
			Value: 5,
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Base delay for exponential backoff",
			Value: 1 * time.Second,
		},
	}
}

func openService(c *cli.Context) (*indexd.Service, error) {
	return indexd.NewService(c.String("data"), c.String("source"),
		indexd.WithEmbeddingConfig(&openai.Config{
			Host:  c.String("embedding-host"),
			Model: c.String("embedding-model"),
		}),
		indexd.WithEngineOptions(
			engine.WithParallelism(c.Int("parallelism")),
			engine.WithMaxRetryAttempts(c.Int("max-retries")),
			engine.WithRetryBaseDelay(c.Duration("retry-delay")),
		),
	)
}

func serveCommand(c *cli.Context) error {
	service, err := openService(c)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer service.Close()

	if err := service.Recover(context.Background()); err != nil {
		return fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}

	srv, err := service.NewServer()
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Shut down cleanly on SIGINT/SIGTERM so running jobs can be resumed
	// by the next start.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(c.String("listen"))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}

func indexCommand(c *cli.Context) error {
	ctx := context.Background()

	service, err := openService(c)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer service.Close()

	prefixes := c.StringSlice("prefix")
	jobID, err := service.Engine().StartJob(ctx, prefixes, c.String("index-name"))
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Job: %s\n", jobID)
	fmt.Fprintf(os.Stderr, "Prefixes: %s\n", strings.Join(prefixes, ", "))
	fmt.Fprintf(os.Stderr, "Index: %s\n", c.String("index-name"))
	fmt.Fprintln(os.Stderr)

	job, err := pollJob(ctx, service, jobID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Job %s: %d succeeded, %d failed\n",
		job.State, job.Succeeded, job.Failed)
	if job.State == core.JobStateFailed {
		return fmt.Errorf("indexing failed: %s", job.Error)
	}
	return nil
}

// pollJob waits for the job to reach a terminal state, reporting document
// progress along the way.
func pollJob(ctx context.Context, service *indexd.Service, jobID string) (*core.JobStatusRecord, error) {
	tracker := newProgressTracker(os.Stderr)
	started := false

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		job, _, err := service.Engine().GetStatus(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll job: %w", err)
		}

		done := job.Succeeded + job.Failed
		total := done + job.Pending
		if !started && total > 0 {
			tracker.Start(total)
			started = true
		}
		if started {
			tracker.Update(done)
		}

		if job.State.Terminal() {
			if started {
				tracker.Finish()
				fmt.Fprintf(os.Stderr, "Elapsed: %s\n", tracker.Elapsed().Round(time.Millisecond))
			}
			return job, nil
		}
	}
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("a query is required")
	}
	query := strings.Join(c.Args().Slice(), " ")

	service, err := openService(c)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer service.Close()

	results, err := service.Searcher().FindSimilar(context.Background(),
		c.String("index-name"), query, c.Int("max-hits"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: %q (page %d, chunk %d)[%0.3f]\n",
			i, hit.Chunk.Chunk.Text, hit.Chunk.Chunk.Page, hit.Chunk.Chunk.Seq, hit.Score)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	ctx := context.Background()

	service, err := openService(c)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer service.Close()

	if c.NArg() == 0 {
		jobs, err := service.Engine().ListStatuses(ctx)
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}
		for _, job := range jobs {
			fmt.Printf("%s  %-10s  succeeded=%d failed=%d pending=%d  index=%s\n",
				job.JobID, job.State, job.Succeeded, job.Failed, job.Pending, job.IndexName)
		}
		return nil
	}

	jobID := c.Args().First()
	job, docs, err := service.Engine().GetStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job status: %w", err)
	}

	fmt.Printf("Job:       %s\n", job.JobID)
	fmt.Printf("State:     %s\n", job.State)
	fmt.Printf("Index:     %s\n", job.IndexName)
	fmt.Printf("Prefixes:  %s\n", strings.Join(job.Prefixes, ", "))
	fmt.Printf("Documents: %d succeeded, %d failed, %d pending\n",
		job.Succeeded, job.Failed, job.Pending)
	if job.Error != "" {
		fmt.Printf("Error:     %s\n", job.Error)
	}
	for _, doc := range docs {
		line := fmt.Sprintf("  %s  %s", doc.BlobRef, doc.Stage)
		if doc.Stage == core.StageFailed {
			line += fmt.Sprintf(" (in %s: %s)", doc.LastStage, doc.Error)
		}
		fmt.Println(line)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
