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


package storage

import (
	"github.com/poiesic/indexd/core"
)

// MarshalHistoryEvent serializes a HistoryEvent to bytes.
func MarshalHistoryEvent(event *core.HistoryEvent) []byte {
	buf := make([]byte, core.HistoryEventMUS.Size(*event))
	core.HistoryEventMUS.Marshal(*event, buf)
	return buf
}

// UnmarshalHistoryEvent deserializes a HistoryEvent from bytes.
func UnmarshalHistoryEvent(data []byte) (*core.HistoryEvent, error) {
	event, _, err := core.HistoryEventMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// MarshalJobStatusRecord serializes a JobStatusRecord to bytes.
func MarshalJobStatusRecord(record *core.JobStatusRecord) []byte {
	buf := make([]byte, core.JobStatusRecordMUS.Size(*record))
	core.JobStatusRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalJobStatusRecord deserializes a JobStatusRecord from bytes.
func UnmarshalJobStatusRecord(data []byte) (*core.JobStatusRecord, error) {
	record, _, err := core.JobStatusRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarshalDocumentStatusRecord serializes a DocumentStatusRecord to bytes.
func MarshalDocumentStatusRecord(record *core.DocumentStatusRecord) []byte {
	buf := make([]byte, core.DocumentStatusRecordMUS.Size(*record))
	core.DocumentStatusRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalDocumentStatusRecord deserializes a DocumentStatusRecord from bytes.
func UnmarshalDocumentStatusRecord(data []byte) (*core.DocumentStatusRecord, error) {
	record, _, err := core.DocumentStatusRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarshalIndexedChunk serializes an IndexedChunk to bytes.
func MarshalIndexedChunk(chunk *core.IndexedChunk) []byte {
	buf := make([]byte, core.IndexedChunkMUS.Size(*chunk))
	core.IndexedChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalIndexedChunk deserializes an IndexedChunk from bytes.
func UnmarshalIndexedChunk(data []byte) (*core.IndexedChunk, error) {
	chunk, _, err := core.IndexedChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}
