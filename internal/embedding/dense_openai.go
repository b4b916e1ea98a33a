package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIProvider is a DenseProvider backed by OpenAI or an OpenAI-compatible
// endpoint, grounded on the teacher's pkg/embedder.OpenAIEmbedder.
type OpenAIProvider struct {
	client           *openai.LLM
	model            string
	dimension        int
	queryInstruction string
}

func NewOpenAIProvider(apiKey, baseURL, model, queryInstruction string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: OpenAI API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("embedding: OpenAI model name is required")
	}

	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, &ModelLoadError{Cause: err}
	}

	return &OpenAIProvider{
		client:           client,
		model:            model,
		dimension:        dimensionForOpenAIModel(model),
		queryInstruction: queryInstruction,
	}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
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

func (p *OpenAIProvider) Dimension() int         { return p.dimension }
func (p *OpenAIProvider) MaxSequenceLength() int { return 8191 }

func dimensionForOpenAIModel(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small":
		return 1536
	case "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}
