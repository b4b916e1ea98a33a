// Package outbox implements the outbox processor (C7): it claims committed
// mutations the relational store couldn't apply directly to the vector and
// graph projections, applies them, and retries with a bounded ceiling before
// dead-lettering, grounded on the teacher's polling-loop shape in
// internal/indexer/watcher_manager.go (shutdown flag checked before each
// batch, sleep-then-repeat).
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/store"
)

// Config controls the processor's poll cadence and retry ceiling (§6
// outbox.* options).
type Config struct {
	PollInterval         time.Duration
	EntriesPerPoll        int
	MaxRetries            int
	MaxEmbeddingDim       int
	MaxCachedCollections  int
}

// DefaultConfig is the processor's standalone default. The daemon builds its
// Config from the outbox.* options instead, whose defaults differ (100
// entries per poll, 128 cached collections).
func DefaultConfig() Config {
	return Config{
		PollInterval:         500 * time.Millisecond,
		EntriesPerPoll:       64,
		MaxRetries:           5,
		MaxEmbeddingDim:      4096,
		MaxCachedCollections: 32,
	}
}

// vectorPayload and graphPayload mirror the payload shapes the pipeline
// writes (internal/pipeline/store_snapshot.go); duplicated here rather than
// imported to keep outbox from depending on pipeline.
type vectorPayload struct {
	Collection string      `json:"collection"`
	Point      store.Point `json:"point"`
}

type graphPayload struct {
	Node  store.GraphNode   `json:"node"`
	Edges []store.GraphEdge `json:"edges,omitempty"`
}

type deletePayload struct {
	EntityID     string `json:"entity_id"`
	RepositoryID string `json:"repository_id"`
	Collection   string `json:"collection,omitempty"`
}

// Processor applies outbox records to the vector and graph stores.
type Processor struct {
	Relational store.RelationalStore
	Vector     store.VectorStore
	Graph      store.GraphStore
	Cfg        Config
	Logger     *slog.Logger

	collections *collectionLRU
	shutdown    atomic.Bool
}

// New builds a Processor. The dimension used for collections created on
// demand is passed to Run, not here.
func New(relational store.RelationalStore, vector store.VectorStore, graph store.GraphStore, cfg Config) *Processor {
	return &Processor{
		Relational:  relational,
		Vector:      vector,
		Graph:       graph,
		Cfg:         cfg,
		Logger:      slog.Default(),
		collections: newCollectionLRU(cfg.MaxCachedCollections),
	}
}

// Shutdown requests the run loop stop after finishing its current batch
// (§4.6 "an in-flight batch is never interrupted").
func (p *Processor) Shutdown() { p.shutdown.Store(true) }

// Run drives the claim/apply/retry loop for one target store until Shutdown
// is called or ctx is canceled.
func (p *Processor) Run(ctx context.Context, target entity.OutboxTarget, denseDimension int) error {
	for {
		if p.shutdown.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := p.runOnce(ctx, target, denseDimension)
		if err != nil {
			p.Logger.Error("outbox: batch failed", "target", target, "error", err)
		}

		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Cfg.PollInterval):
			}
		}
	}
}

// runOnce claims and applies a single batch, returning how many rows it
// processed (zero means the queue was empty).
func (p *Processor) runOnce(ctx context.Context, target entity.OutboxTarget, denseDimension int) (int, error) {
	records, err := p.Relational.ClaimOutbox(ctx, target, p.Cfg.EntriesPerPoll)
	if err != nil {
		return 0, fmt.Errorf("claim outbox: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	for _, r := range records {
		applyErr := p.apply(ctx, r, denseDimension)
		if applyErr == nil {
			if err := p.Relational.MarkOutboxProcessed(ctx, r.ID); err != nil {
				p.Logger.Error("outbox: mark processed failed", "id", r.ID, "error", err)
			}
			continue
		}

		if err := p.Relational.MarkOutboxFailed(ctx, r.ID, applyErr, p.Cfg.MaxRetries); err != nil {
			p.Logger.Error("outbox: mark failed failed", "id", r.ID, "error", err)
			continue
		}
		if r.RetryCount+1 >= p.Cfg.MaxRetries {
			p.Logger.Warn("outbox: record dead-lettered", "id", r.ID, "target", target, "entity_id", r.EntityID, "error", applyErr)
		}
	}
	return len(records), nil
}

func (p *Processor) apply(ctx context.Context, r *entity.OutboxRecord, denseDimension int) error {
	switch r.Target {
	case entity.TargetVector:
		return p.applyVector(ctx, r, denseDimension)
	case entity.TargetGraph:
		return p.applyGraph(ctx, r)
	default:
		return fmt.Errorf("outbox: unknown target %q", r.Target)
	}
}

func (p *Processor) applyVector(ctx context.Context, r *entity.OutboxRecord, denseDimension int) error {
	if r.Op == entity.OpDelete {
		var del deletePayload
		if err := json.Unmarshal(r.Payload, &del); err != nil {
			return fmt.Errorf("unmarshal delete payload: %w", err)
		}
		if del.Collection == "" {
			return nil
		}
		return p.Vector.Delete(ctx, del.Collection, []uint64{store.PointIDFromEntityID(del.EntityID)})
	}

	var vp vectorPayload
	if err := json.Unmarshal(r.Payload, &vp); err != nil {
		return fmt.Errorf("unmarshal vector payload: %w", err)
	}
	if !p.collections.seen(vp.Collection) {
		if err := p.Vector.EnsureCollection(ctx, vp.Collection, denseDimension); err != nil {
			return fmt.Errorf("ensure collection %s: %w", vp.Collection, err)
		}
		p.collections.mark(vp.Collection)
	}
	return p.Vector.Upsert(ctx, vp.Collection, []store.Point{vp.Point})
}

func (p *Processor) applyGraph(ctx context.Context, r *entity.OutboxRecord) error {
	if r.Op == entity.OpDelete {
		var del deletePayload
		if err := json.Unmarshal(r.Payload, &del); err != nil {
			return fmt.Errorf("unmarshal delete payload: %w", err)
		}
		return p.Graph.DeleteNodesByFile(ctx, del.RepositoryID, []string{del.EntityID})
	}

	var gp graphPayload
	if err := json.Unmarshal(r.Payload, &gp); err != nil {
		return fmt.Errorf("unmarshal graph payload: %w", err)
	}
	if err := p.Graph.UpsertNodes(ctx, []store.GraphNode{gp.Node}); err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	if len(gp.Edges) > 0 {
		if err := p.Graph.UpsertEdges(ctx, gp.Edges); err != nil {
			return fmt.Errorf("upsert edges: %w", err)
		}
	}
	return nil
}

// DeadLetterCount reports how many records for target currently sit in the
// dead state, surfaced by GET /health (§6, original_source/crates/outbox-processor).
func (p *Processor) DeadLetterCount(ctx context.Context, target entity.OutboxTarget) (int, error) {
	return p.Relational.CountOutboxByStatus(ctx, target, entity.OutboxDead)
}
