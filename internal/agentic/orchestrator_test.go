package agentic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/llm"
	"github.com/madeindigio/codesearch/internal/search"
)

func TestIsSimpleLookup(t *testing.T) {
	require.True(t, IsSimpleLookup("Find the compute_sum function"))
	require.False(t, IsSimpleLookup("Find the callers of compute_sum"))
	require.False(t, IsSimpleLookup("What implements the Shape interface"))
	require.False(t, IsSimpleLookup("Refactor the billing module"))
}

func TestBuildPromptSplitsSystemAndUser(t *testing.T) {
	system, user := BuildPrompt("find compute_sum")
	require.NotEmpty(t, system)
	require.Contains(t, user, "find compute_sum")
}

func TestPassesQualityGateRequiresScoreAndDiversity(t *testing.T) {
	gate := QualityGateConfig{Enabled: true, MinTop5AvgScore: 0.5, MinEntityTypeDiversity: 2, MinFilePathDiversity: 2}

	low := []search.Result{{Entity: &entity.Entity{EntityType: entity.TypeFunction, FilePath: "a.go"}, SemanticScore: 0.1}}
	require.False(t, passesQualityGate(low, gate))

	diverse := []search.Result{
		{Entity: &entity.Entity{EntityType: entity.TypeFunction, FilePath: "a.go"}, SemanticScore: 0.9},
		{Entity: &entity.Entity{EntityType: entity.TypeStruct, FilePath: "b.go"}, SemanticScore: 0.8},
	}
	require.True(t, passesQualityGate(diverse, gate))
}

func TestPassesQualityGateRejectsEmptyResults(t *testing.T) {
	require.False(t, passesQualityGate(nil, QualityGateConfig{Enabled: true}))
}

func TestCostTrackerAccumulatesAndPricesKnownModel(t *testing.T) {
	c := NewCostTracker("gpt-4o-mini")
	c.Record(llm.Usage{PromptTokens: 1000, CompletionTokens: 500})
	c.Record(llm.Usage{PromptTokens: 1000, CompletionTokens: 500, CacheReadTokens: 200})

	require.Equal(t, 2000, c.PromptTokens)
	require.Equal(t, 1000, c.CompletionTokens)
	require.Equal(t, 200, c.CacheReadTokens)
	require.Greater(t, c.EstimatedCostUSD, 0.0)
}
