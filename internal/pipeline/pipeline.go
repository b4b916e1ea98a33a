// Package pipeline implements the indexing pipeline (C4): discover, extract,
// embed, store and snapshot stages connected by bounded channels, grounded on
// the teacher's internal/indexer.Indexer worker-pool shape (one tree-sitter
// parser per extraction worker). Re-indexing is not gated on content hash
// and no progress is tracked: every file a run is given is re-extracted,
// re-embedded and re-stored.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/madeindigio/codesearch/internal/embedding"
	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/lang"
	"github.com/madeindigio/codesearch/internal/store"
)

// BatchSize is the entity count at which the resolve step flushes a Batch to
// the embed/store/snapshot stages. Files are never split across batches, so
// a Batch can hold more than BatchSize entities. It is independent of
// embedding.MaxBatchSize.
const BatchSize = 64

// Config controls stage parallelism and queue depth (§4.3 "queue depths are
// configured").
type Config struct {
	ExtractWorkers int
	EmbedWorkers   int
	StoreWorkers   int
	QueueDepth     int
}

// DefaultConfig uses four extraction workers, two embedding workers and one
// store worker, with a modest queue depth.
func DefaultConfig() Config {
	return Config{ExtractWorkers: 4, EmbedWorkers: 2, StoreWorkers: 1, QueueDepth: 16}
}

// Batch is what travels between the embed/store/snapshot stages: entities
// plus enough context to write them, enqueue their outbox records, and
// assemble per-file snapshots (§4.3 "batch carriers").
type Batch struct {
	RepositoryID string
	CommitHash   string
	CollectionID string
	Entities      []*entity.Entity
	Relationships []*entity.Relationship
	// FileIndices maps a file path to the positions of its entities within
	// Entities, so the snapshot stage can assemble per-file entity id sets.
	FileIndices map[string][]int
}

// EmbeddedBatch is a Batch after the embed stage, carrying one dense and
// (optionally) one sparse vector per entity, same order as Entities.
type EmbeddedBatch struct {
	Batch
	Dense  [][]float32
	Sparse []*embedding.SparseVector
}

// Pipeline wires the extraction engine, embedding manager and relational
// store into the five-stage flow.
type Pipeline struct {
	Registry   *lang.Registry
	Embedder   *embedding.Manager
	Relational store.RelationalStore
	Cfg        Config
	Logger     *slog.Logger
}

// New builds a Pipeline with the given collaborators and config.
func New(registry *lang.Registry, embedder *embedding.Manager, relational store.RelationalStore, cfg Config) *Pipeline {
	logger := slog.Default()
	return &Pipeline{Registry: registry, Embedder: embedder, Relational: relational, Cfg: cfg, Logger: logger}
}

// Run performs a full index of rootPath: discover every file the registry
// recognizes, extract, resolve cross-file qualified names, embed, store and
// snapshot.
func (p *Pipeline) Run(ctx context.Context, repositoryID, rootPath, commitHash, collectionID string) error {
	paths, err := Discover(rootPath, p.Registry)
	if err != nil {
		return fmt.Errorf("pipeline: discover: %w", err)
	}
	return p.index(ctx, repositoryID, rootPath, commitHash, collectionID, paths)
}

// RunIncremental re-indexes exactly the given changed paths (relative to
// rootPath), skipping discovery (§4.3 "Incremental mode").
func (p *Pipeline) RunIncremental(ctx context.Context, repositoryID, rootPath, commitHash, collectionID string, changedPaths []string) error {
	return p.index(ctx, repositoryID, rootPath, commitHash, collectionID, changedPaths)
}

func (p *Pipeline) index(ctx context.Context, repositoryID, rootPath, commitHash, collectionID string, relPaths []string) error {
	pathCh := make(chan string, p.Cfg.QueueDepth)
	extractedCh := make(chan *fileExtraction, p.Cfg.QueueDepth)
	batchCh := make(chan Batch, p.Cfg.QueueDepth)
	embeddedCh := make(chan EmbeddedBatch, p.Cfg.QueueDepth)

	errs := newErrCollector()

	go func() {
		defer close(pathCh)
		for _, rel := range relPaths {
			select {
			case <-ctx.Done():
				return
			case pathCh <- rel:
			}
		}
	}()

	extractDone := runExtractStage(ctx, p, repositoryID, rootPath, pathCh, extractedCh, errs)

	go func() {
		extractDone.Wait()
		close(extractedCh)
	}()

	resolveDone := make(chan struct{})
	go func() {
		defer close(resolveDone)
		defer close(batchCh)
		resolveAndBatch(ctx, repositoryID, commitHash, collectionID, extractedCh, batchCh)
	}()

	embedDone := runEmbedStage(ctx, p, batchCh, embeddedCh, errs)
	go func() {
		embedDone.Wait()
		close(embeddedCh)
	}()

	storeDone := runStoreAndSnapshotStage(ctx, p, embeddedCh, errs)
	storeDone.Wait()
	<-resolveDone

	return errs.err()
}

func readFile(rootPath, relPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(rootPath, relPath))
}
