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


package core

import (
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrInvalidConfiguration indicates bad job parameters, rejected
	// synchronously before any orchestration starts.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmptyIndexName indicates the target index name is missing.
	ErrEmptyIndexName = errors.New("index name cannot be empty")

	// ErrEmptyPrefixList indicates the document source selector is missing.
	ErrEmptyPrefixList = errors.New("prefix list cannot be empty")

	// ErrInvalidChunkSequence indicates chunk sequence indices are not
	// unique and contiguous for a document.
	ErrInvalidChunkSequence = errors.New("chunk sequence must be contiguous")

	// ErrInvalidStageTransition indicates an attempted backwards or otherwise
	// illegal stage transition.
	ErrInvalidStageTransition = errors.New("invalid stage transition")

	// ErrCancelled indicates the owning job was cancelled.
	ErrCancelled = errors.New("job cancelled")
)

// ErrorKind classifies activity failures for the retry policy.
type ErrorKind int

const (
	// ErrorKindTransient marks retryable failures: timeouts, rate limiting,
	// transient network errors.
	ErrorKindTransient ErrorKind = iota + 1
	// ErrorKindPermanent marks non-retryable failures: malformed input,
	// unsupported format, validation failures.
	ErrorKindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransient:
		return "transient"
	case ErrorKindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// classifiedError wraps an error with an explicit retry classification.
type classifiedError struct {
	kind ErrorKind
	err  error
}

func (e *classifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

// Transient marks an error as retryable. Returns nil for a nil error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{kind: ErrorKindTransient, err: err}
}

// Permanent marks an error as non-retryable. Returns nil for a nil error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{kind: ErrorKindPermanent, err: err}
}

// KindOf returns the retry classification of an error. Errors without an
// explicit classification are treated as transient, which matches how the
// pipeline's external calls fail most often (timeouts, throttling).
func KindOf(err error) ErrorKind {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind
	}
	return ErrorKindTransient
}

// IsPermanent reports whether the error is classified as non-retryable.
func IsPermanent(err error) bool {
	return err != nil && KindOf(err) == ErrorKindPermanent
}
