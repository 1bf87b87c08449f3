package clob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTokenBatches_EvenSplit(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	batches := splitTokenBatches(ids, 2)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"c", "d"}, batches[1])
}

func TestSplitTokenBatches_RemainderGetsShortLastBatch(t *testing.T) {
	ids := []string{"a", "b", "c"}
	batches := splitTokenBatches(ids, 2)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"c"}, batches[1])
}

func TestSplitTokenBatches_NonPositiveSizeFallsBackToDefault(t *testing.T) {
	ids := make([]string, booksBatchSize+1)
	for i := range ids {
		ids[i] = "tok"
	}
	batches := splitTokenBatches(ids, 0)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], booksBatchSize)
	assert.Len(t, batches[1], 1)
}
