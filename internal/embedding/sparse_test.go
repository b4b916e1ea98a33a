package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashingSparseProviderDeterministic(t *testing.T) {
	p := NewHashingSparseProvider(0)
	ctx := context.Background()

	a, err := p.EmbedSparse(ctx, []string{"func ParseQuery(x int) string"})
	require.NoError(t, err)
	b, err := p.EmbedSparse(ctx, []string{"func ParseQuery(x int) string"})
	require.NoError(t, err)

	require.Equal(t, a[0].Indices, b[0].Indices)
	require.Equal(t, a[0].Weights, b[0].Weights)
}

func TestHashingSparseProviderEmptyText(t *testing.T) {
	p := NewHashingSparseProvider(0)
	vecs, err := p.EmbedSparse(context.Background(), []string{""})
	require.NoError(t, err)
	require.Empty(t, vecs[0].Indices)
}

func TestHashingSparseProviderRepeatedTermsWeightHigher(t *testing.T) {
	p := NewHashingSparseProvider(1 << 10)
	vecs, err := p.EmbedSparse(context.Background(), []string{"token token token other"})
	require.NoError(t, err)

	v := vecs[0]
	require.Len(t, v.Indices, 2)

	tokenIdx := p.hash("token")
	otherIdx := p.hash("other")

	weightOf := func(idx uint32) float32 {
		for i, ix := range v.Indices {
			if ix == idx {
				return v.Weights[i]
			}
		}
		t.Fatalf("index %d not found", idx)
		return 0
	}

	require.Greater(t, weightOf(tokenIdx), weightOf(otherIdx))
}
