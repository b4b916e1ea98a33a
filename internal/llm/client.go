// Package llm wraps github.com/mozilla-ai/any-llm-go behind a narrow
// completion contract shared by the agentic orchestrator and the search
// reranker, grounded on MrWong99-glyphoxa's pkg/provider/llm/anyllm adapter
// but trimmed to the request shape those two callers actually need (no
// streaming, no tool calls).
package llm

import (
	"fmt"

	anyllm "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"context"
)

// Usage mirrors the provider's token accounting, split the way
// crates/agentic-search/src/types.rs's TokenUsage does so
// internal/agentic.CostTracker can distinguish cache reads from cache
// creation. Complete fills only PromptTokens and CompletionTokens; the two
// cache fields are always zero.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CacheReadTokens  int
	CacheCreationTokens int
}

// Client issues single-turn completions against one configured model.
type Client struct {
	backend anyllm.Provider
	model   string
}

// New builds a Client for providerName ("openai", "anthropic", "gemini",
// "ollama") and model, reading credentials from the provider's default
// environment variable unless opts override it.
func New(providerName, model string, opts ...anyllm.Option) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("llm: model must not be empty")
	}
	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: create %q backend: %w", providerName, err)
	}
	return &Client{backend: backend, model: model}, nil
}

func createBackend(providerName string, opts ...anyllm.Option) (anyllm.Provider, error) {
	switch providerName {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama", providerName)
	}
}

// Complete issues one completion with an optional cacheable system prompt
// and a dynamic user prompt (§4.8 "split into cacheable system and dynamic
// user parts").
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	var messages []anyllm.Message
	if systemPrompt != "" {
		messages = append(messages, anyllm.Message{Role: anyllm.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, anyllm.Message{Role: anyllm.RoleUser, Content: userPrompt})

	resp, err := c.backend.Completion(ctx, anyllm.CompletionParams{Model: c.model, Messages: messages})
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("llm: empty choices in response")
	}

	usage := Usage{}
	if resp.Usage != nil {
		usage.PromptTokens = resp.Usage.PromptTokens
		usage.CompletionTokens = resp.Usage.CompletionTokens
		// any-llm-go's Usage type does not currently surface cache-read /
		// cache-creation token counts through a provider-agnostic field;
		// until it does, these degrade to zero rather than guess at a
		// provider-specific shape (§4.8 cost accounting).
	}
	return resp.Choices[0].Message.ContentString(), usage, nil
}
