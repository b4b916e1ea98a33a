package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strings"
)

// HashingSparseProvider implements SparseProvider with a feature-hashing
// bag-of-words vectorizer. No sparse/lexical-embedding library appears
// anywhere in the retrieval pack (see DESIGN.md); this is the one ambient
// piece of the embedding layer built on the standard library rather than a
// third-party dependency.
type HashingSparseProvider struct {
	buckets uint32
}

// NewHashingSparseProvider creates a sparse provider hashing terms into the
// given number of buckets (feature_index range).
func NewHashingSparseProvider(buckets uint32) *HashingSparseProvider {
	if buckets == 0 {
		buckets = 1 << 18
	}
	return &HashingSparseProvider{buckets: buckets}
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return tokenPattern.FindAllString(lower, -1)
}

func (p *HashingSparseProvider) EmbedSparse(_ context.Context, texts []string) ([]*SparseVector, error) {
	out := make([]*SparseVector, len(texts))
	for i, t := range texts {
		out[i] = p.vectorize(t)
	}
	return out, nil
}

func (p *HashingSparseProvider) vectorize(text string) *SparseVector {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return &SparseVector{}
	}

	counts := make(map[uint32]float32, len(tokens))
	for _, tok := range tokens {
		idx := p.hash(tok)
		counts[idx]++
	}

	// log-scaled term frequency, a common hashing-vectorizer weighting.
	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	weights := make([]float32, len(indices))
	for i, idx := range indices {
		weights[i] = float32(1 + math.Log(float64(counts[idx])))
	}

	return &SparseVector{Indices: indices, Weights: weights}
}

func (p *HashingSparseProvider) hash(term string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(term))
	return h.Sum32() % p.buckets
}
