package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaProvider is a DenseProvider backed by a local or remote Ollama
// server, grounded on the teacher's pkg/embedder.OllamaEmbedder.
type OllamaProvider struct {
	client    *ollama.LLM
	model     string
	dimension int
	maxSeqLen int
	queryInstruction string
}

// NewOllamaProvider builds an Ollama-backed dense provider.
// queryInstruction, when non-empty, is prepended to query-task texts —
// instruction-tuned code embedding models (e.g. jina-embeddings-v2-base-code)
// expect a task prefix on queries but not on passages (§4.4).
func NewOllamaProvider(url, model, queryInstruction string) (*OllamaProvider, error) {
	if url == "" {
		return nil, fmt.Errorf("ollama URL is required")
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model name is required")
	}

	client, err := ollama.New(ollama.WithServerURL(url), ollama.WithModel(model))
	if err != nil {
		return nil, &ModelLoadError{Cause: err}
	}

	return &OllamaProvider{
		client:           client,
		model:            model,
		dimension:        dimensionForOllamaModel(model),
		maxSeqLen:        8192,
		queryInstruction: queryInstruction,
	}, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	prepared := applyTask(texts, task, p.queryInstruction)

	embedder, err := embeddings.NewEmbedder(p.client)
	if err != nil {
		return nil, &InferenceError{Cause: err}
	}
	vecs, err := embedder.EmbedDocuments(ctx, prepared)
	if err != nil {
		return nil, &InferenceError{Cause: err}
	}

	return toFloat32Batch(vecs), nil
}

func (p *OllamaProvider) Dimension() int         { return p.dimension }
func (p *OllamaProvider) MaxSequenceLength() int { return p.maxSeqLen }

func applyTask(texts []string, task Task, instruction string) []string {
	if task != TaskQuery || instruction == "" {
		return texts
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = instruction + t
	}
	return out
}

func toFloat32Batch(vecs [][]float64) [][]float32 {
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		out[i] = make([]float32, len(v))
		for j, f := range v {
			out[i][j] = float32(f)
		}
	}
	return out
}

func dimensionForOllamaModel(model string) int {
	switch model {
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	case "jina/jina-embeddings-v2-base-code":
		return 768
	default:
		return 768
	}
}
