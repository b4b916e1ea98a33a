package embedding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkTextNoInfiniteLoop(t *testing.T) {
	text := strings.Repeat("x", 5000)
	chunks := ChunkText(text, 1000, 200)
	require.LessOrEqual(t, len(chunks), 20, "likely infinite loop producing too many chunks")
}

func TestChunkTextSentenceBoundary(t *testing.T) {
	text := strings.Repeat("Hello world. ", 200)
	chunks := ChunkText(text, 1000, 200)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestChunkTextShortTextReturnsSingleChunk(t *testing.T) {
	chunks := ChunkText("short text", 1500, 200)
	require.Equal(t, []string{"short text"}, chunks)
}

func TestAverageEmbeddingsSingleVector(t *testing.T) {
	v := []float32{1, 2, 3}
	require.Equal(t, v, AverageEmbeddings([][]float32{v}))
}

func TestAverageEmbeddingsMultipleVectors(t *testing.T) {
	avg := AverageEmbeddings([][]float32{{1, 1}, {3, 3}})
	require.Equal(t, []float32{2, 2}, avg)
}

func TestAverageEmbeddingsEmpty(t *testing.T) {
	require.Nil(t, AverageEmbeddings(nil))
}
