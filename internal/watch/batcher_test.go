package watch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatcherReturnsFullBatchAtSizeThreshold(t *testing.T) {
	b := NewBatcher[string](3)

	_, full := b.Push("a")
	require.False(t, full)
	_, full = b.Push("b")
	require.False(t, full)
	batch, full := b.Push("c")
	require.True(t, full)
	require.Equal(t, []string{"a", "b", "c"}, batch)
	require.Equal(t, 0, b.Len())
}

func TestBatcherFlushReturnsPartialBatch(t *testing.T) {
	b := NewBatcher[string](10)
	b.Push("a")
	b.Push("b")

	batch, ok := b.Flush()
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, batch)

	_, ok = b.Flush()
	require.False(t, ok)
}

func TestBatcherSizeFloorsAtOne(t *testing.T) {
	b := NewBatcher[string](0)
	batch, full := b.Push("a")
	require.True(t, full)
	require.Equal(t, []string{"a"}, batch)
}
