package embedding

import "fmt"

// Config holds the settings needed to build a Manager. Priority when more
// than one backend is configured: GGUF (local) > Ollama > OpenAI, mirroring
// the teacher's pkg/embedder.Config priority chain.
type Config struct {
	GGUFServerURL string
	GGUFModelPath string

	OllamaURL   string
	OllamaModel string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	// QueryInstruction is prepended to query-task texts for instruction-tuned
	// code embedding models (§4.4). Empty disables prefixing.
	QueryInstruction string

	// SparseEnabled turns on the hashing sparse provider for hybrid search.
	SparseEnabled bool
	SparseBuckets uint32
}

// NewManagerFromConfig builds a Manager, selecting the dense provider by
// priority (GGUF > Ollama > OpenAI) and attaching the hashing sparse
// provider when enabled.
func NewManagerFromConfig(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedding: configuration is required")
	}

	dense, err := newDenseProvider(cfg)
	if err != nil {
		return nil, err
	}

	var sparse SparseProvider
	if cfg.SparseEnabled {
		sparse = NewHashingSparseProvider(cfg.SparseBuckets)
	}

	return NewManager(dense, sparse), nil
}

func newDenseProvider(cfg *Config) (DenseProvider, error) {
	switch {
	case cfg.GGUFServerURL != "":
		return NewGGUFProvider(cfg.GGUFServerURL, cfg.GGUFModelPath, cfg.QueryInstruction)
	case cfg.OllamaURL != "":
		if cfg.OllamaModel == "" {
			return nil, fmt.Errorf("embedding: ollama URL provided but model is missing")
		}
		return NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, cfg.QueryInstruction)
	case cfg.OpenAIKey != "":
		model := cfg.OpenAIModel
		if model == "" {
			model = "text-embedding-3-large"
		}
		return NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL, model, cfg.QueryInstruction)
	default:
		return nil, fmt.Errorf("embedding: no valid provider configuration found, set one of gguf-server-url, ollama-url, or openai-api-key")
	}
}

// ProviderKind reports which backend NewManagerFromConfig would select,
// for status/health reporting.
func ProviderKind(cfg *Config) string {
	if cfg == nil {
		return "none"
	}
	switch {
	case cfg.GGUFServerURL != "":
		return "gguf"
	case cfg.OllamaURL != "":
		return "ollama"
	case cfg.OpenAIKey != "":
		return "openai"
	default:
		return "none"
	}
}
