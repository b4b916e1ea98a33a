package agentic

import "github.com/madeindigio/codesearch/internal/llm"

// modelPricePerMillionTokens is a small static per-model price table, the
// same shape as the original's estimated_cost_usd calculation
// (crates/agentic-search/src/types.rs). Prices are USD per million tokens,
// input/output split; unknown models fall back to a conservative default.
var modelPricePerMillionTokens = map[string][2]float64{
	"gpt-4o":                  {2.50, 10.00},
	"gpt-4o-mini":             {0.15, 0.60},
	"claude-3-5-sonnet-latest": {3.00, 15.00},
	"claude-3-5-haiku-latest":  {0.80, 4.00},
}

var defaultModelPrice = [2]float64{1.00, 3.00}

// CostTracker accumulates token usage across an orchestrator run's
// iterations, distinguishing cache-read and cache-creation tokens (§4.8
// "Cost accounting").
type CostTracker struct {
	PromptTokens        int
	CompletionTokens     int
	CacheReadTokens      int
	CacheCreationTokens  int
	EstimatedCostUSD     float64

	model string
}

// NewCostTracker builds a tracker priced against model.
func NewCostTracker(model string) *CostTracker {
	return &CostTracker{model: model}
}

// Record adds one completion's usage to the running total and updates the
// estimated cost.
func (c *CostTracker) Record(u llm.Usage) {
	c.PromptTokens += u.PromptTokens
	c.CompletionTokens += u.CompletionTokens
	c.CacheReadTokens += u.CacheReadTokens
	c.CacheCreationTokens += u.CacheCreationTokens

	price, ok := modelPricePerMillionTokens[c.model]
	if !ok {
		price = defaultModelPrice
	}
	c.EstimatedCostUSD += float64(u.PromptTokens) / 1_000_000 * price[0]
	c.EstimatedCostUSD += float64(u.CompletionTokens) / 1_000_000 * price[1]
}
