package watch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/pipeline"
	"github.com/madeindigio/codesearch/internal/store"
)

// deletePayload is the outbox payload shape for a vector/graph delete,
// matching internal/pipeline's tombstone payload and internal/outbox's
// decoder (entity_id, repository_id, optional collection).
type deletePayload struct {
	EntityID     string `json:"entity_id"`
	RepositoryID string `json:"repository_id"`
	Collection   string `json:"collection,omitempty"`
}

// PipelineHandler is the production Handler: changed paths go through the
// indexing pipeline's incremental mode, deleted paths are removed from the
// relational store directly and their vector/graph counterparts torn down
// via the outbox (C7), the same path §4.3's tombstone step uses.
type PipelineHandler struct {
	Pipeline   *pipeline.Pipeline
	Relational store.RelationalStore
}

// NewPipelineHandler builds a PipelineHandler.
func NewPipelineHandler(p *pipeline.Pipeline, relational store.RelationalStore) *PipelineHandler {
	return &PipelineHandler{Pipeline: p, Relational: relational}
}

// HandleChanges re-indexes changedPaths via the pipeline's incremental
// mode. Watch-triggered reindexing has no commit hash to record.
func (h *PipelineHandler) HandleChanges(ctx context.Context, repositoryID, rootPath, collectionID string, changedPaths []string) error {
	if len(changedPaths) == 0 {
		return nil
	}
	return h.Pipeline.RunIncremental(ctx, repositoryID, rootPath, "", collectionID, changedPaths)
}

// HandleDeletes removes every entity belonging to each deleted path from
// the relational store, then enqueues matching vector/graph deletes so the
// outbox processor tears down their replicas (§4.3 tombstone step).
func (h *PipelineHandler) HandleDeletes(ctx context.Context, repositoryID, collectionID string, deletedPaths []string) error {
	var outbox []*entity.OutboxRecord
	for _, path := range deletedPaths {
		ids, err := h.Relational.DeleteEntitiesByFile(ctx, repositoryID, path)
		if err != nil {
			return fmt.Errorf("watch: delete entities for %q: %w", path, err)
		}
		for _, id := range ids {
			vPayload, _ := json.Marshal(deletePayload{EntityID: id, RepositoryID: repositoryID, Collection: collectionID})
			gPayload, _ := json.Marshal(deletePayload{EntityID: id, RepositoryID: repositoryID})
			outbox = append(outbox,
				&entity.OutboxRecord{Target: entity.TargetVector, Op: entity.OpDelete, EntityID: id, Payload: vPayload},
				&entity.OutboxRecord{Target: entity.TargetGraph, Op: entity.OpDelete, EntityID: id, Payload: gPayload},
			)
		}
	}
	if len(outbox) == 0 {
		return nil
	}
	return h.Relational.EnqueueOutbox(ctx, outbox)
}
