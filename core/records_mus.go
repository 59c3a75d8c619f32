package core

import (
	"errors"
	"math"
	"time"

	"github.com/mus-format/mus-go/varint"
)

// Serializers for the durable record types, in the MUS format. The record
// shapes form a small closed set, so the serializers are maintained by hand
// against the mus-go primitives instead of being generated.

var (
	// IDMUS serializes ID values.
	IDMUS = idMUS{}
	// DocumentTextMUS serializes DocumentText values.
	DocumentTextMUS = documentTextMUS{}
	// ChunkRecordMUS serializes ChunkRecord values.
	ChunkRecordMUS = chunkRecordMUS{}
	// ChunkListMUS serializes []ChunkRecord values.
	ChunkListMUS = chunkListMUS{}
	// EmbeddingVectorMUS serializes EmbeddingVector values.
	EmbeddingVectorMUS = embeddingVectorMUS{}
	// IndexedChunkMUS serializes IndexedChunk values.
	IndexedChunkMUS = indexedChunkMUS{}
	// HistoryEventMUS serializes HistoryEvent values.
	HistoryEventMUS = historyEventMUS{}
	// JobStatusRecordMUS serializes JobStatusRecord values.
	JobStatusRecordMUS = jobStatusRecordMUS{}
	// DocumentStatusRecordMUS serializes DocumentStatusRecord values.
	DocumentStatusRecordMUS = documentStatusRecordMUS{}
)

var errTruncatedRecord = errors.New("truncated record")

// -- primitive helpers --------------------------------------------------------

func marshalString(v string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	n += copy(bs[n:], v)
	return
}

func unmarshalString(bs []byte) (v string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 || len(bs) < n+length {
		err = errTruncatedRecord
		return
	}
	v = string(bs[n : n+length])
	n += length
	return
}

func sizeString(v string) int {
	return varint.Int.Size(len(v)) + len(v)
}

func marshalBytes(v []byte, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	n += copy(bs[n:], v)
	return
}

func unmarshalBytes(bs []byte) (v []byte, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 || len(bs) < n+length {
		err = errTruncatedRecord
		return
	}
	if length > 0 {
		v = make([]byte, length)
		copy(v, bs[n:n+length])
	}
	n += length
	return
}

func sizeBytes(v []byte) int {
	return varint.Int.Size(len(v)) + len(v)
}

func marshalFloat32s(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	return
}

func unmarshalFloat32s(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 {
		err = errTruncatedRecord
		return
	}
	if length > 0 {
		v = make([]float32, length)
	}
	var (
		bits uint32
		m    int
	)
	for i := 0; i < length; i++ {
		bits, m, err = varint.Uint32.Unmarshal(bs[n:])
		if err != nil {
			return
		}
		v[i] = math.Float32frombits(bits)
		n += m
	}
	return
}

func sizeFloat32s(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	return
}

func marshalStrings(v []string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, s := range v {
		n += marshalString(s, bs[n:])
	}
	return
}

func unmarshalStrings(bs []byte) (v []string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 {
		err = errTruncatedRecord
		return
	}
	if length > 0 {
		v = make([]string, length)
	}
	var m int
	for i := 0; i < length; i++ {
		v[i], m, err = unmarshalString(bs[n:])
		if err != nil {
			return
		}
		n += m
	}
	return
}

func sizeStrings(v []string) (size int) {
	size = varint.Int.Size(len(v))
	for _, s := range v {
		size += sizeString(s)
	}
	return
}

// Timestamps are stored as microseconds since the Unix epoch.

func marshalTime(v time.Time, bs []byte) int {
	return varint.Int64.Marshal(v.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (v time.Time, n int, err error) {
	micro, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return
	}
	v = time.UnixMicro(micro).UTC()
	return
}

func sizeTime(v time.Time) int {
	return varint.Int64.Size(v.UnixMicro())
}

// -- ID -----------------------------------------------------------------------

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	raw, n, err := varint.Uint64.Unmarshal(bs)
	return ID(raw), n, err
}

func (idMUS) Size(v ID) int {
	return varint.Uint64.Size(uint64(v))
}

// -- DocumentText -------------------------------------------------------------

type documentTextMUS struct{}

func (documentTextMUS) Marshal(v DocumentText, bs []byte) (n int) {
	n = marshalString(v.BlobRef, bs)
	n += marshalStrings(v.Pages, bs[n:])
	return
}

func (documentTextMUS) Unmarshal(bs []byte) (v DocumentText, n int, err error) {
	var m int
	if v.BlobRef, n, err = unmarshalString(bs); err != nil {
		return
	}
	if v.Pages, m, err = unmarshalStrings(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (documentTextMUS) Size(v DocumentText) int {
	return sizeString(v.BlobRef) + sizeStrings(v.Pages)
}

// -- ChunkRecord --------------------------------------------------------------

type chunkRecordMUS struct{}

func (chunkRecordMUS) Marshal(v ChunkRecord, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.DocumentID), bs)
	n += varint.Int.Marshal(v.Seq, bs[n:])
	n += marshalString(v.Text, bs[n:])
	n += varint.Int.Marshal(v.StartByte, bs[n:])
	n += varint.Int.Marshal(v.EndByte, bs[n:])
	n += varint.Int.Marshal(v.Page, bs[n:])
	return
}

func (chunkRecordMUS) Unmarshal(bs []byte) (v ChunkRecord, n int, err error) {
	var (
		raw uint64
		m   int
	)
	if raw, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.DocumentID = ID(raw)
	if v.Seq, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Text, m, err = unmarshalString(bs[n:]); err != nil {
		return
	}
	n += m
	if v.StartByte, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.EndByte, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Page, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (chunkRecordMUS) Size(v ChunkRecord) int {
	return varint.Uint64.Size(uint64(v.DocumentID)) +
		varint.Int.Size(v.Seq) +
		sizeString(v.Text) +
		varint.Int.Size(v.StartByte) +
		varint.Int.Size(v.EndByte) +
		varint.Int.Size(v.Page)
}

// -- []ChunkRecord ------------------------------------------------------------

type chunkListMUS struct{}

func (chunkListMUS) Marshal(v []ChunkRecord, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, chunk := range v {
		n += ChunkRecordMUS.Marshal(chunk, bs[n:])
	}
	return
}

func (chunkListMUS) Unmarshal(bs []byte) (v []ChunkRecord, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 {
		err = errTruncatedRecord
		return
	}
	if length > 0 {
		v = make([]ChunkRecord, length)
	}
	var m int
	for i := 0; i < length; i++ {
		if v[i], m, err = ChunkRecordMUS.Unmarshal(bs[n:]); err != nil {
			return
		}
		n += m
	}
	return
}

func (chunkListMUS) Size(v []ChunkRecord) (size int) {
	size = varint.Int.Size(len(v))
	for _, chunk := range v {
		size += ChunkRecordMUS.Size(chunk)
	}
	return
}

// -- EmbeddingVector ----------------------------------------------------------

type embeddingVectorMUS struct{}

func (embeddingVectorMUS) Marshal(v EmbeddingVector, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.ChunkID), bs)
	n += marshalFloat32s(v.Vector, bs[n:])
	n += marshalString(v.Model, bs[n:])
	return
}

func (embeddingVectorMUS) Unmarshal(bs []byte) (v EmbeddingVector, n int, err error) {
	var (
		raw uint64
		m   int
	)
	if raw, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.ChunkID = ID(raw)
	if v.Vector, m, err = unmarshalFloat32s(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Model, m, err = unmarshalString(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (embeddingVectorMUS) Size(v EmbeddingVector) int {
	return varint.Uint64.Size(uint64(v.ChunkID)) +
		sizeFloat32s(v.Vector) +
		sizeString(v.Model)
}

// -- IndexedChunk -------------------------------------------------------------

type indexedChunkMUS struct{}

func (indexedChunkMUS) Marshal(v IndexedChunk, bs []byte) (n int) {
	n = ChunkRecordMUS.Marshal(v.Chunk, bs)
	n += EmbeddingVectorMUS.Marshal(v.Vector, bs[n:])
	return
}

func (indexedChunkMUS) Unmarshal(bs []byte) (v IndexedChunk, n int, err error) {
	var m int
	if v.Chunk, n, err = ChunkRecordMUS.Unmarshal(bs); err != nil {
		return
	}
	if v.Vector, m, err = EmbeddingVectorMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (indexedChunkMUS) Size(v IndexedChunk) int {
	return ChunkRecordMUS.Size(v.Chunk) + EmbeddingVectorMUS.Size(v.Vector)
}

// -- HistoryEvent -------------------------------------------------------------

type historyEventMUS struct{}

func (historyEventMUS) Marshal(v HistoryEvent, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.InstanceID), bs)
	n += varint.Uint64.Marshal(v.Seq, bs[n:])
	n += varint.Int.Marshal(int(v.Kind), bs[n:])
	n += varint.Int.Marshal(int(v.Stage), bs[n:])
	n += varint.Int.Marshal(int(v.Activity), bs[n:])
	n += varint.Uint32.Marshal(v.Call, bs[n:])
	n += varint.Int.Marshal(v.Attempt, bs[n:])
	n += marshalBytes(v.Payload, bs[n:])
	n += marshalString(v.Error, bs[n:])
	n += marshalTime(v.Timestamp, bs[n:])
	return
}

func (historyEventMUS) Unmarshal(bs []byte) (v HistoryEvent, n int, err error) {
	var (
		raw  uint64
		code int
		m    int
	)
	if raw, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.InstanceID = ID(raw)
	if v.Seq, m, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if code, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.Kind = EventKind(code)
	n += m
	if code, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.Stage = Stage(code)
	n += m
	if code, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.Activity = ActivityKind(code)
	n += m
	if v.Call, m, err = varint.Uint32.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Attempt, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Payload, m, err = unmarshalBytes(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Error, m, err = unmarshalString(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Timestamp, m, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (historyEventMUS) Size(v HistoryEvent) int {
	return varint.Uint64.Size(uint64(v.InstanceID)) +
		varint.Uint64.Size(v.Seq) +
		varint.Int.Size(int(v.Kind)) +
		varint.Int.Size(int(v.Stage)) +
		varint.Int.Size(int(v.Activity)) +
		varint.Uint32.Size(v.Call) +
		varint.Int.Size(v.Attempt) +
		sizeBytes(v.Payload) +
		sizeString(v.Error) +
		sizeTime(v.Timestamp)
}

// -- JobStatusRecord ----------------------------------------------------------

type jobStatusRecordMUS struct{}

func (jobStatusRecordMUS) Marshal(v JobStatusRecord, bs []byte) (n int) {
	n = marshalString(v.JobID, bs)
	n += marshalString(v.IndexName, bs[n:])
	n += marshalStrings(v.Prefixes, bs[n:])
	n += varint.Int.Marshal(int(v.State), bs[n:])
	n += varint.Int.Marshal(v.Succeeded, bs[n:])
	n += varint.Int.Marshal(v.Failed, bs[n:])
	n += varint.Int.Marshal(v.Pending, bs[n:])
	n += marshalString(v.Error, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	n += marshalTime(v.CompletedAt, bs[n:])
	return
}

func (jobStatusRecordMUS) Unmarshal(bs []byte) (v JobStatusRecord, n int, err error) {
	var (
		code int
		m    int
	)
	if v.JobID, n, err = unmarshalString(bs); err != nil {
		return
	}
	if v.IndexName, m, err = unmarshalString(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Prefixes, m, err = unmarshalStrings(bs[n:]); err != nil {
		return
	}
	n += m
	if code, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.State = JobState(code)
	n += m
	if v.Succeeded, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Failed, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Pending, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Error, m, err = unmarshalString(bs[n:]); err != nil {
		return
	}
	n += m
	if v.CreatedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += m
	if v.UpdatedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += m
	if v.CompletedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (jobStatusRecordMUS) Size(v JobStatusRecord) int {
	return sizeString(v.JobID) +
		sizeString(v.IndexName) +
		sizeStrings(v.Prefixes) +
		varint.Int.Size(int(v.State)) +
		varint.Int.Size(v.Succeeded) +
		varint.Int.Size(v.Failed) +
		varint.Int.Size(v.Pending) +
		sizeString(v.Error) +
		sizeTime(v.CreatedAt) +
		sizeTime(v.UpdatedAt) +
		sizeTime(v.CompletedAt)
}

// -- DocumentStatusRecord -----------------------------------------------------

type documentStatusRecordMUS struct{}

func (documentStatusRecordMUS) Marshal(v DocumentStatusRecord, bs []byte) (n int) {
	n = marshalString(v.JobID, bs)
	n += marshalString(v.BlobRef, bs[n:])
	n += varint.Uint64.Marshal(uint64(v.InstanceID), bs[n:])
	n += varint.Int.Marshal(int(v.Stage), bs[n:])
	n += varint.Int.Marshal(int(v.LastStage), bs[n:])
	n += varint.Int.Marshal(v.Attempts, bs[n:])
	n += marshalString(v.Error, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (documentStatusRecordMUS) Unmarshal(bs []byte) (v DocumentStatusRecord, n int, err error) {
	var (
		raw  uint64
		code int
		m    int
	)
	if v.JobID, n, err = unmarshalString(bs); err != nil {
		return
	}
	if v.BlobRef, m, err = unmarshalString(bs[n:]); err != nil {
		return
	}
	n += m
	if raw, m, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.InstanceID = ID(raw)
	n += m
	if code, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.Stage = Stage(code)
	n += m
	if code, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.LastStage = Stage(code)
	n += m
	if v.Attempts, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Error, m, err = unmarshalString(bs[n:]); err != nil {
		return
	}
	n += m
	if v.UpdatedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (documentStatusRecordMUS) Size(v DocumentStatusRecord) int {
	return sizeString(v.JobID) +
		sizeString(v.BlobRef) +
		varint.Uint64.Size(uint64(v.InstanceID)) +
		varint.Int.Size(int(v.Stage)) +
		varint.Int.Size(int(v.LastStage)) +
		varint.Int.Size(v.Attempts) +
		sizeString(v.Error) +
		sizeTime(v.UpdatedAt)
}
