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

package engine

import (
	"fmt"
	"time"

	"github.com/poiesic/indexd/core"
)

// Config holds the orchestration engine's tunables.
type Config struct {
	// Parallelism caps concurrent work units: admitted documents and
	// in-flight chunk embeddings share this budget.
	// Default: 20
	Parallelism int

	// MaxRetryAttempts is the total number of attempts per activity call,
	// including the first. After the last transient failure the error
	// becomes permanent.
	// Default: 5
	MaxRetryAttempts int

	// RetryBaseDelay is the backoff before the second attempt; it doubles
	// per subsequent attempt.
	// Default: 1s
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the exponential backoff.
	// Default: 30s
	RetryMaxDelay time.Duration

	// IndexName is the search index jobs upload into when the request
	// does not name one.
	// Default: "default-index"
	IndexName string

	// SourceContainer names the blob container documents are listed from.
	// Default: "source"
	SourceContainer string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithParallelism sets the shared concurrency budget.
func WithParallelism(n int) ConfigOption {
	return func(c *Config) {
		c.Parallelism = n
	}
}

// WithMaxRetryAttempts sets the per-activity attempt cap.
func WithMaxRetryAttempts(n int) ConfigOption {
	return func(c *Config) {
		c.MaxRetryAttempts = n
	}
}

// WithRetryBaseDelay sets the initial retry backoff.
func WithRetryBaseDelay(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RetryBaseDelay = d
	}
}

// WithRetryMaxDelay sets the backoff ceiling.
func WithRetryMaxDelay(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RetryMaxDelay = d
	}
}

// WithIndexName sets the default target index.
func WithIndexName(name string) ConfigOption {
	return func(c *Config) {
		c.IndexName = name
	}
}

// WithSourceContainer sets the source container name.
func WithSourceContainer(name string) ConfigOption {
	return func(c *Config) {
		c.SourceContainer = name
	}
}

// DefaultConfig returns a Config with the stock settings.
func DefaultConfig() *Config {
	return &Config{
		Parallelism:      20,
		MaxRetryAttempts: 5,
		RetryBaseDelay:   time.Second,
		RetryMaxDelay:    30 * time.Second,
		IndexName:        "default-index",
		SourceContainer:  "source",
	}
}

// NewConfig creates a Config with the default values and applies the
// provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Parallelism <= 0 {
		return fmt.Errorf("%w: parallelism must be positive, got %d",
			core.ErrInvalidConfiguration, c.Parallelism)
	}
	if c.MaxRetryAttempts <= 0 {
		return fmt.Errorf("%w: max retry attempts must be positive, got %d",
			core.ErrInvalidConfiguration, c.MaxRetryAttempts)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("%w: retry base delay must be positive",
			core.ErrInvalidConfiguration)
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("%w: retry max delay must be at least the base delay",
			core.ErrInvalidConfiguration)
	}
	if c.IndexName == "" {
		return fmt.Errorf("%w: %v", core.ErrInvalidConfiguration, core.ErrEmptyIndexName)
	}
	if c.SourceContainer == "" {
		return fmt.Errorf("%w: source container required", core.ErrInvalidConfiguration)
	}
	return nil
}
