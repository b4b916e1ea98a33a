package embedding

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDense struct {
	dim       int
	calls     int
	lastBatch []string
}

func (f *fakeDense) Embed(_ context.Context, texts []string, _ Task) ([][]float32, error) {
	f.calls++
	f.lastBatch = texts
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		for j := range v {
			v[j] = float32(len(t))
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeDense) Dimension() int         { return f.dim }
func (f *fakeDense) MaxSequenceLength() int { return 8192 }

func TestManagerEmbedDenseChunksLargeBatches(t *testing.T) {
	dense := &fakeDense{dim: 4}
	mgr := NewManager(dense, nil)

	texts := make([]string, MaxBatchSize+10)
	for i := range texts {
		texts[i] = "x"
	}

	vecs, err := mgr.EmbedDense(context.Background(), texts, TaskPassage)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	require.GreaterOrEqual(t, dense.calls, 2, "should have chunked into multiple calls")
}

func TestManagerEmbedSparseNilWhenUnset(t *testing.T) {
	mgr := NewManager(&fakeDense{dim: 4}, nil)
	vecs, err := mgr.EmbedSparse(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Nil(t, vecs)
}

func TestEmbedLongTextShortTextSingleCall(t *testing.T) {
	dense := &fakeDense{dim: 3}
	vec, err := EmbedLongText(context.Background(), dense, "short", TaskPassage)
	require.NoError(t, err)
	require.Len(t, vec, 3)
	require.Equal(t, 1, dense.calls)
}

func TestEmbedLongTextLongTextAverages(t *testing.T) {
	dense := &fakeDense{dim: 2}
	text := strings.Repeat("word ", 2000)
	vec, err := EmbedLongText(context.Background(), dense, text, TaskPassage)
	require.NoError(t, err)
	require.Len(t, vec, 2)
	require.Equal(t, 1, dense.calls, "chunks should be embedded in a single batch call")
}
