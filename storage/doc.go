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


// Package storage provides the storage abstraction layer for indexd.
//
// This package defines repository interfaces that decouple storage
// implementation from the orchestration engine. It allows for different
// storage backends (BadgerDB, in-memory, etc.) to be used interchangeably.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - StatusRepository: the queryable projection of job and document state
//   - HistoryRepository: the append-only replay log of orchestration instances
//   - IndexRepository: uploaded chunk embeddings and vector similarity search
//
// Public constructors in backend packages return these interfaces to prevent
// accidental coupling to BadgerDB specifics and to let tests substitute mock
// implementations without modification.
//
// # Durability contract
//
// All repositories must provide atomic per-record writes: a reader never
// observes a partially written record. The engine's crash recovery depends on
// this - a history event is either fully present in the log or absent.
//
// # Usage
//
// Create repositories over a shared backend:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	status := badger.NewStatusRepository(backend)
//	history := badger.NewHistoryRepository(backend)
//
// Use in tests with in-memory storage:
//
//	status, history, index, backend, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
