package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/madeindigio/codesearch/internal/embedding"
	"github.com/madeindigio/codesearch/internal/entity"
)

// runEmbedStage starts p.Cfg.EmbedWorkers workers that embed each Batch's
// entity content (dense, and sparse when configured) and forward the result
// as an EmbeddedBatch. Embedding is I/O-bound on the embedding endpoint,
// hence the separate worker count from extraction (§4.3).
func runEmbedStage(ctx context.Context, p *Pipeline, batchCh <-chan Batch, embeddedCh chan<- EmbeddedBatch, errs *errCollector) *sync.WaitGroup {
	var wg sync.WaitGroup
	workers := p.Cfg.EmbedWorkers
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batchCh {
				select {
				case <-ctx.Done():
					return
				default:
				}

				texts := make([]string, len(batch.Entities))
				for i, e := range batch.Entities {
					texts[i] = entityEmbeddingText(e)
				}

				dense, err := p.Embedder.EmbedDense(ctx, texts, embedding.TaskPassage)
				if err != nil {
					errs.add(fmt.Errorf("pipeline: embed dense: %w", err))
					continue
				}
				sparse, err := p.Embedder.EmbedSparse(ctx, texts)
				if err != nil {
					errs.add(fmt.Errorf("pipeline: embed sparse: %w", err))
					continue
				}

				select {
				case <-ctx.Done():
					return
				case embeddedCh <- EmbeddedBatch{Batch: batch, Dense: dense, Sparse: sparse}:
				}
			}
		}()
	}
	return &wg
}

// entityEmbeddingText builds the text embedded for one entity: its
// documentation summary (if any) followed by its source content, so the
// dense vector captures both intent and implementation.
func entityEmbeddingText(e *entity.Entity) string {
	if e.DocSummary == "" {
		return e.Content
	}
	if e.Content == "" {
		return e.DocSummary
	}
	return e.DocSummary + "\n\n" + e.Content
}
