package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madeindigio/codesearch/internal/entity"
)

func TestClampBoundaries(t *testing.T) {
	require.Equal(t, 1, clamp(0, minTopK, maxTopK))
	require.Equal(t, 1000, clamp(5000, minTopK, maxTopK))
	require.Equal(t, 10, clamp(50, minGraphDepth, maxGraphDepth))
	require.Equal(t, 1, clamp(0, minGraphDepth, maxGraphDepth))
}

func TestMergeByEntityKeepsBothSourcesAndHigherScore(t *testing.T) {
	a := &entity.Entity{ID: "e1"}
	semantic := []Result{{Entity: a, SemanticScore: 0.9, Sources: []string{"semantic"}}}
	fulltext := []Result{{Entity: a, FullTextScore: 0.8, Sources: []string{"fulltext"}}}

	merged := mergeByEntity(semantic, fulltext)
	require.Len(t, merged, 1)
	require.Equal(t, float32(0.9), merged[0].SemanticScore)
	require.Equal(t, float32(0.8), merged[0].FullTextScore)
	require.ElementsMatch(t, []string{"semantic", "fulltext"}, merged[0].Sources)
}

func TestMergeByEntityKeepsDisjointHits(t *testing.T) {
	a := &entity.Entity{ID: "e1"}
	b := &entity.Entity{ID: "e2"}
	merged := mergeByEntity(
		[]Result{{Entity: a, SemanticScore: 0.5, Sources: []string{"semantic"}}},
		[]Result{{Entity: b, FullTextScore: 0.5, Sources: []string{"fulltext"}}},
	)
	require.Len(t, merged, 2)
}

func TestRerankContentConcatenatesFields(t *testing.T) {
	e := &entity.Entity{
		EntityType:    entity.TypeFunction,
		Name:          "compute_sum",
		QualifiedName: "pkg.compute_sum",
		DocSummary:    "adds two numbers",
		Content:       "func compute_sum() {}",
	}
	content := rerankContent(e)
	require.Contains(t, content, "function")
	require.Contains(t, content, "compute_sum")
	require.Contains(t, content, "pkg.compute_sum")
	require.Contains(t, content, "adds two numbers")
}

func TestGraphQueryRejectsUnknownType(t *testing.T) {
	c := &Core{}
	_, err := c.GraphQuery(nil, GraphQueryRequest{QueryType: "drop_database"})
	require.Error(t, err)
}
