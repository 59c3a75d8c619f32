package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/indexd/core"
)

// Key prefixes for different data types
const (
	jobStatusPrefix = "jobsta"
	docStatusPrefix = "docsta"
	historyPrefix   = "hisrec"
	indexMetaPrefix = "idxmet"
	indexRecPrefix  = "idxrec"
)

// makeJobStatusKey generates a key for a job status record.
func makeJobStatusKey(jobID string) []byte {
	return []byte(fmt.Sprintf("%s:%s", jobStatusPrefix, jobID))
}

// makeDocStatusKey generates a composite key for a document status record.
// Format: prefix:jobID:blobRef, so a prefix scan over a job returns its
// documents ordered by blob reference.
func makeDocStatusKey(jobID, blobRef string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", docStatusPrefix, jobID, blobRef))
}

// makeDocStatusScanPrefix generates the scan prefix for a job's documents.
func makeDocStatusScanPrefix(jobID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", docStatusPrefix, jobID))
}

// makeHistoryKey generates a composite key for a history event.
// Format: prefix:instanceID:seq with fixed-width BigEndian numbers so
// lexicographic iteration yields sequence order.
func makeHistoryKey(instanceID core.ID, seq uint64) []byte {
	prefix := historyPrefix + ":"
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(instanceID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeHistoryScanPrefix generates the scan prefix for an instance's history.
func makeHistoryScanPrefix(instanceID core.ID) []byte {
	prefix := historyPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(instanceID))
	return buf
}

// makeIndexMetaKey generates the existence marker key for a named index.
func makeIndexMetaKey(index string) []byte {
	return []byte(fmt.Sprintf("%s:%s", indexMetaPrefix, index))
}

// makeIndexChunkKey generates a composite key for an indexed chunk.
// Format: prefix:index:documentID:seq.
func makeIndexChunkKey(index string, documentID core.ID, seq int) []byte {
	prefix := fmt.Sprintf("%s:%s:", indexRecPrefix, index)
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(seq))
	return buf
}

// makeIndexDocScanPrefix generates the scan prefix for one document's chunks
// in a named index.
func makeIndexDocScanPrefix(index string, documentID core.ID) []byte {
	prefix := fmt.Sprintf("%s:%s:", indexRecPrefix, index)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	return buf
}

// makeIndexScanPrefix generates the scan prefix for all chunks in a named index.
func makeIndexScanPrefix(index string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", indexRecPrefix, index))
}
