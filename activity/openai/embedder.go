package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/indexd/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Config holds the connection settings for an OpenAI-compatible
// embedding service.
type Config struct {
	// Host is the base URL of the embedding API.
	Host string

	// Model is the embedding model identifier.
	Model string

	// Token authenticates against the API. Local OpenAI-compatible
	// services accept any non-empty value.
	Token string
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: embedding host required", core.ErrInvalidConfiguration)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: embedding model required", core.ErrInvalidConfiguration)
	}
	return nil
}

// Embedder implements the embedding activity against OpenAI-compatible
// embedding APIs.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

// NewEmbedder creates an embedder from the provided configuration.
func NewEmbedder(config *Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	token := config.Token
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		model:    config.Model,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

// EmbedText generates a vector embedding for a single text string.
// API failures are transient: embedding services rate-limit and recover.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding", "length", len(text))

	vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, core.Transient(err)
	}

	if len(vectors) == 0 {
		e.logger.Warn("embedder returned empty result")
		return []float32{}, nil
	}

	return vectors[0], nil
}

// Model returns the embedding model identifier.
func (e *Embedder) Model() string {
	return e.model
}
