package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/madeindigio/codesearch/internal/llm"
)

// LLMReranker implements Reranker as a single scoring-style completion
// against the same any-llm-go client the orchestrator uses (§4.8's
// "kept on the same client... rather than introducing a second model SDK").
type LLMReranker struct {
	Client *llm.Client
}

var _ Reranker = (*LLMReranker)(nil)

const rerankSystemPrompt = `You are a relevance scorer for a code search engine. Given a query and a
numbered list of code entity documents, respond with a JSON array of
objects {"index": int, "score": float} with score in [0,1], one entry per
document, ordered by descending relevance. Respond with JSON only.`

// Rerank scores documents against query and returns up to topK in
// descending score order. Empty input yields empty output, never an error
// (§4.7 boundary behavior).
func (r *LLMReranker) Rerank(ctx context.Context, query string, documents []Document, topK int) ([]RankedDocument, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if topK > len(documents) {
		topK = len(documents)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nDocuments:\n", query)
	for i, d := range documents {
		fmt.Fprintf(&b, "[%d] %s\n", i, truncate(d.Content, 2000))
	}

	text, _, err := r.Client.Complete(ctx, rerankSystemPrompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("search: rerank completion: %w", err)
	}

	var scored []struct {
		Index int     `json:"index"`
		Score float32 `json:"score"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &scored); err != nil {
		return nil, fmt.Errorf("search: parse rerank response: %w", err)
	}

	out := make([]RankedDocument, 0, len(scored))
	for _, s := range scored {
		if s.Index < 0 || s.Index >= len(documents) {
			continue
		}
		out = append(out, RankedDocument{EntityID: documents[s.Index].EntityID, Score: s.Score})
	}

	sortRankedDescending(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func sortRankedDescending(docs []RankedDocument) {
	for i := 1; i < len(docs); i++ {
		for j := i; j > 0 && docs[j].Score > docs[j-1].Score; j-- {
			docs[j], docs[j-1] = docs[j-1], docs[j]
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// extractJSON trims any leading/trailing prose a chat model adds around the
// JSON array it was asked to return.
func extractJSON(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
