package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJobRequest(t *testing.T) {
	tests := []struct {
		name      string
		prefixes  []string
		indexName string
		wantErr   error
	}{
		{"valid", []string{"a/"}, "idx1", nil},
		{"multiple prefixes", []string{"a/", "b/"}, "idx1", nil},
		{"empty index name", []string{"a/"}, "", ErrEmptyIndexName},
		{"whitespace index name", []string{"a/"}, "   ", ErrEmptyIndexName},
		{"empty prefix list", []string{}, "idx1", ErrEmptyPrefixList},
		{"nil prefix list", nil, "idx1", ErrEmptyPrefixList},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJobRequest(tt.prefixes, tt.indexName)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateChunkSequence(t *testing.T) {
	valid := []ChunkRecord{{Seq: 0}, {Seq: 1}, {Seq: 2}}
	require.NoError(t, ValidateChunkSequence(valid))

	require.NoError(t, ValidateChunkSequence(nil), "empty chunk list is valid")

	gap := []ChunkRecord{{Seq: 0}, {Seq: 2}}
	err := ValidateChunkSequence(gap)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidChunkSequence)

	duplicate := []ChunkRecord{{Seq: 0}, {Seq: 0}}
	assert.ErrorIs(t, ValidateChunkSequence(duplicate), ErrInvalidChunkSequence)

	offset := []ChunkRecord{{Seq: 1}, {Seq: 2}}
	assert.ErrorIs(t, ValidateChunkSequence(offset), ErrInvalidChunkSequence)
}

func TestErrorClassification(t *testing.T) {
	base := assert.AnError

	assert.Equal(t, ErrorKindTransient, KindOf(Transient(base)))
	assert.Equal(t, ErrorKindPermanent, KindOf(Permanent(base)))
	assert.Equal(t, ErrorKindTransient, KindOf(base), "unclassified errors default to transient")

	assert.True(t, IsPermanent(Permanent(base)))
	assert.False(t, IsPermanent(Transient(base)))
	assert.False(t, IsPermanent(nil))

	assert.Nil(t, Transient(nil))
	assert.Nil(t, Permanent(nil))

	// Classification survives wrapping.
	wrapped := Permanent(base)
	assert.ErrorIs(t, wrapped, base)
}
