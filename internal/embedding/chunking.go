package embedding

import (
	"context"
	"strings"
	"unicode"
)

const (
	// DefaultMaxChunkSize is a conservative character budget for entity
	// content that may exceed an embedding model's context window.
	DefaultMaxChunkSize = 1500
	// DefaultChunkOverlap is the overlap between consecutive chunks.
	DefaultChunkOverlap = 200
)

// ChunkText splits text into smaller pieces suitable for embedding,
// preferring sentence boundaries and falling back to word boundaries,
// grounded on the teacher's pkg/embedder.ChunkText.
func ChunkText(text string, maxChunkSize, overlap int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= maxChunkSize {
		overlap = maxChunkSize / 4
	}

	if len(text) <= maxChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	textLen := len(text)
	lastEnd := -1

	for start < textLen {
		end := start + maxChunkSize
		if end > textLen {
			end = textLen
		}

		if end < textLen {
			if bp := findSentenceBreak(text, start, end); bp > start {
				end = bp
			} else if bp := findWordBreak(text, start, end); bp > start {
				end = bp
			}
		}

		if end == lastEnd {
			end = start + maxChunkSize
			if end > textLen {
				end = textLen
			}
		}
		lastEnd = end

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= textLen {
			break
		}

		newStart := end - overlap
		if newStart <= start {
			newStart = end
		}
		start = newStart
	}

	return chunks
}

func findSentenceBreak(text string, start, end int) int {
	for i := end - 1; i > start; i-- {
		if i >= len(text) {
			continue
		}
		ch := text[i]
		if ch == '.' || ch == '!' || ch == '?' {
			if i+1 >= len(text) || unicode.IsSpace(rune(text[i+1])) {
				return i + 1
			}
		}
	}
	return -1
}

func findWordBreak(text string, start, end int) int {
	for i := end - 1; i > start; i-- {
		if i >= len(text) {
			continue
		}
		if unicode.IsSpace(rune(text[i])) {
			return i + 1
		}
	}
	return -1
}

// AverageEmbeddings combines multiple chunk embeddings into one vector.
func AverageEmbeddings(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	if len(vecs) == 1 {
		return vecs[0]
	}
	dim := len(vecs[0])
	result := make([]float32, dim)
	for _, v := range vecs {
		for i, f := range v {
			result[i] += f
		}
	}
	count := float32(len(vecs))
	for i := range result {
		result[i] /= count
	}
	return result
}

// EmbedLongText chunks text as needed and returns a single averaged dense
// vector, for entities whose content exceeds the model's context window.
func EmbedLongText(ctx context.Context, dense DenseProvider, text string, task Task) ([]float32, error) {
	if len(text) <= DefaultMaxChunkSize {
		vecs, err := dense.Embed(ctx, []string{text}, task)
		if err != nil || len(vecs) == 0 {
			return nil, err
		}
		return vecs[0], nil
	}

	chunks := ChunkText(text, DefaultMaxChunkSize, DefaultChunkOverlap)
	if len(chunks) == 0 {
		vecs, err := dense.Embed(ctx, []string{text}, task)
		if err != nil || len(vecs) == 0 {
			return nil, err
		}
		return vecs[0], nil
	}

	vecs, err := dense.Embed(ctx, chunks, task)
	if err != nil {
		return nil, err
	}
	var nonNil [][]float32
	for _, v := range vecs {
		if v != nil {
			nonNil = append(nonNil, v)
		}
	}
	return AverageEmbeddings(nonNil), nil
}
