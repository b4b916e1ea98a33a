// Package embedding implements the embedding layer (C5): dense and sparse
// provider abstractions, batched request shaping and query-vs-passage task
// modes, grounded on the teacher's pkg/embedder.
package embedding

import "context"

// Task distinguishes how a text is meant to be embedded — queries may get a
// model-specific instruction prefix, passages are embedded as-is (§4.4).
type Task int

const (
	TaskPassage Task = iota
	TaskQuery
)

// DenseProvider is the dense embedding contract. A nil entry in the Embed
// result indicates the corresponding text exceeded the model's window and
// was skipped (not an error, per §4.4/§7).
type DenseProvider interface {
	Embed(ctx context.Context, texts []string, task Task) ([][]float32, error)
	Dimension() int
	MaxSequenceLength() int
}

// SparseVector is an ordered sequence of (feature_index, weight) pairs.
type SparseVector struct {
	Indices []uint32
	Weights []float32
}

// SparseProvider is the sparse embedding contract (§4.4). A nil entry
// indicates the text was skipped.
type SparseProvider interface {
	EmbedSparse(ctx context.Context, texts []string) ([]*SparseVector, error)
}

// MaxBatchSize is the ceiling enforced by the batching contract (§4.4): no
// single provider call made by the manager carries more texts than this;
// larger inputs are split into consecutive MaxBatchSize-sized calls rather
// than truncated or rejected.
const MaxBatchSize = 256

// Manager wraps a DenseProvider and SparseProvider pair and enforces the
// batching contract uniformly regardless of which concrete provider is
// configured.
type Manager struct {
	Dense  DenseProvider
	Sparse SparseProvider
}

// NewManager builds a Manager from already-constructed providers.
func NewManager(dense DenseProvider, sparse SparseProvider) *Manager {
	return &Manager{Dense: dense, Sparse: sparse}
}

// EmbedDense chunks texts into MaxBatchSize-sized calls and concatenates the
// results, preserving input order.
func (m *Manager) EmbedDense(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	if len(texts) > MaxBatchSize {
		return chunkedDense(ctx, m.Dense, texts, task)
	}
	return m.Dense.Embed(ctx, texts, task)
}

func chunkedDense(ctx context.Context, p DenseProvider, texts []string, task Task) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.Embed(ctx, texts[start:end], task)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// EmbedSparse mirrors EmbedDense's batching for the sparse provider.
func (m *Manager) EmbedSparse(ctx context.Context, texts []string) ([]*SparseVector, error) {
	if m.Sparse == nil {
		return nil, nil
	}
	if len(texts) <= MaxBatchSize {
		return m.Sparse.EmbedSparse(ctx, texts)
	}
	out := make([]*SparseVector, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := m.Sparse.EmbedSparse(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}
