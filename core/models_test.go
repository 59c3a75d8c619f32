package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent_Deterministic(t *testing.T) {
	id1 := IDFromContent("documents/report.txt")
	id2 := IDFromContent("documents/report.txt")
	id3 := IDFromContent("documents/other.txt")

	assert.Equal(t, id1, id2, "same content should produce same ID")
	assert.NotEqual(t, id1, id3, "different content should produce different IDs")
}

func TestInstanceIDFor_DistinguishesJobs(t *testing.T) {
	a := InstanceIDFor("job-1", "docs/a.txt")
	b := InstanceIDFor("job-2", "docs/a.txt")
	c := InstanceIDFor("job-1", "docs/a.txt")

	assert.NotEqual(t, a, b, "same blob in different jobs gets different instances")
	assert.Equal(t, a, c)
}

func TestStage_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Stage
		to   Stage
		want bool
	}{
		{"listed to extracting", StageListed, StageExtracting, true},
		{"extracting to extracted", StageExtracting, StageExtracted, true},
		{"indexing to indexed", StageIndexing, StageIndexed, true},
		{"any to failed", StageChunking, StageFailed, true},
		{"listed to failed", StageListed, StageFailed, true},
		{"skip a stage", StageListed, StageExtracted, false},
		{"backwards", StageChunked, StageExtracting, false},
		{"from terminal success", StageIndexed, StageFailed, false},
		{"from terminal failure", StageFailed, StageListed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestStage_Terminal(t *testing.T) {
	assert.True(t, StageIndexed.Terminal())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageListed.Terminal())
	assert.False(t, StageEmbedding.Terminal())
}

func TestStage_OrderIsMonotonic(t *testing.T) {
	// Walking the happy path covers every stage exactly once.
	stage := StageListed
	visited := []Stage{stage}
	for !stage.Terminal() {
		next := stage + 1
		require.True(t, stage.CanTransition(next))
		stage = next
		visited = append(visited, stage)
	}
	assert.Len(t, visited, 9)
	assert.Equal(t, StageIndexed, stage)
}

func TestJobState_Terminal(t *testing.T) {
	assert.False(t, JobStateRunning.Terminal())
	assert.True(t, JobStateCompleted.Terminal())
	assert.True(t, JobStateFailed.Terminal())
	assert.True(t, JobStateCancelled.Terminal())
}

func TestChunkRecord_ChunkID(t *testing.T) {
	a := ChunkRecord{DocumentID: 1, Seq: 0, Text: "alpha"}
	b := ChunkRecord{DocumentID: 2, Seq: 5, Text: "alpha"}

	assert.Equal(t, a.ChunkID(), b.ChunkID(), "chunk ID derives from text content only")
}
