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
	"fmt"
	"strings"
)

// ValidateJobRequest validates the parameters of a job start request.
//
// Validation rules:
//   - indexName must not be empty or whitespace
//   - prefixes must contain at least one entry
//
// Violations are reported as ErrInvalidConfiguration so callers can reject
// the request synchronously without entering orchestration.
func ValidateJobRequest(prefixes []string, indexName string) error {
	if strings.TrimSpace(indexName) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, ErrEmptyIndexName)
	}
	if len(prefixes) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, ErrEmptyPrefixList)
	}
	return nil
}

// ValidateChunkSequence enforces the chunk record invariant: sequence indices
// are unique and contiguous per document, starting at zero.
func ValidateChunkSequence(chunks []ChunkRecord) error {
	for i, chunk := range chunks {
		if chunk.Seq != i {
			return fmt.Errorf("%w: chunk %d has sequence %d", ErrInvalidChunkSequence, i, chunk.Seq)
		}
	}
	return nil
}
