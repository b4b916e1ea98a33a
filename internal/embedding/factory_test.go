package embedding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProviderKindPriorityGGUFOverOllamaOverOpenAI(t *testing.T) {
	cfg := &Config{
		GGUFServerURL: "http://localhost:8080",
		OllamaURL:     "http://localhost:11434",
		OpenAIKey:     "sk-test",
	}
	require.Equal(t, "gguf", ProviderKind(cfg))

	cfg.GGUFServerURL = ""
	require.Equal(t, "ollama", ProviderKind(cfg))

	cfg.OllamaURL = ""
	require.Equal(t, "openai", ProviderKind(cfg))

	cfg.OpenAIKey = ""
	require.Equal(t, "none", ProviderKind(cfg))
}

func TestNewManagerFromConfigRequiresABackend(t *testing.T) {
	_, err := NewManagerFromConfig(&Config{})
	require.Error(t, err)
}

func TestNewManagerFromConfigNilConfig(t *testing.T) {
	_, err := NewManagerFromConfig(nil)
	require.Error(t, err)
}

func TestNewManagerFromConfigOllamaMissingModel(t *testing.T) {
	_, err := NewManagerFromConfig(&Config{OllamaURL: "http://localhost:11434"})
	require.Error(t, err)
}

func TestNewManagerFromConfigAttachesSparseWhenEnabled(t *testing.T) {
	mgr, err := NewManagerFromConfig(&Config{
		OpenAIKey:     "sk-test",
		SparseEnabled: true,
	})
	require.NoError(t, err)
	require.NotNil(t, mgr.Sparse)
}
