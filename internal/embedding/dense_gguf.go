package embedding

import "fmt"

// NewGGUFProvider builds a dense provider over a local GGUF model served by
// a llama.cpp server instance. The teacher loads GGUF models in-process via
// cgo bindings (internal/llama, github.com/madeindigio/go-llama.cpp); that
// binding only resolves against a local replace directive on the teacher's
// development machine and cannot be vendored here (see DESIGN.md). llama.cpp's
// server exposes an OpenAI-compatible embeddings endpoint, so local GGUF
// inference is reached over HTTP, as Ollama is, but through OpenAIProvider
// pointed at the local server's base URL. The "model" name is whatever the
// server was launched with; llama.cpp ignores it.
func NewGGUFProvider(serverBaseURL, modelPath, queryInstruction string) (*OpenAIProvider, error) {
	if serverBaseURL == "" {
		return nil, fmt.Errorf("embedding: gguf server base URL is required")
	}
	return NewOpenAIProvider("gguf-local", serverBaseURL, modelPath, queryInstruction)
}
