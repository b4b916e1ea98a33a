package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/store"
)

// vectorOutboxPayload is what an outbox record targeting Vector carries: the
// already-computed point so the outbox processor (C7) never has to
// recompute an embedding to replicate a mutation.
type vectorOutboxPayload struct {
	Collection string              `json:"collection"`
	Point      store.Point         `json:"point"`
}

// graphOutboxPayload is what an outbox record targeting Graph carries for
// one entity: its node plus any outgoing edges resolved so far.
type graphOutboxPayload struct {
	Node  store.GraphNode   `json:"node"`
	Edges []store.GraphEdge `json:"edges,omitempty"`
}

// runStoreAndSnapshotStage persists each EmbeddedBatch transactionally
// (entities + outbox records in one relational transaction, §4.3
// atomicity), then assembles and writes the per-file snapshot.
func runStoreAndSnapshotStage(ctx context.Context, p *Pipeline, embeddedCh <-chan EmbeddedBatch, errs *errCollector) *sync.WaitGroup {
	var wg sync.WaitGroup
	workers := p.Cfg.StoreWorkers
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range embeddedCh {
				if err := p.storeBatch(ctx, batch); err != nil {
					errs.add(fmt.Errorf("pipeline: store batch: %w", err))
					// The batch's file snapshots are intentionally left
					// untouched on failure (§4.3), so the next run that
					// indexes these files diffs against the last snapshot
					// actually stored.
					continue
				}
				if err := p.snapshotBatch(ctx, batch); err != nil {
					errs.add(fmt.Errorf("pipeline: snapshot batch: %w", err))
				}
			}
		}()
	}
	return &wg
}

func (p *Pipeline) storeBatch(ctx context.Context, batch EmbeddedBatch) error {
	outbox := make([]*entity.OutboxRecord, 0, 2*len(batch.Entities))

	relationshipsByEntity := make(map[string][]store.GraphEdge, len(batch.Entities))
	for _, rel := range batch.Relationships {
		if rel.TargetID == "" || !entity.AllowedRelationshipKinds[rel.Kind] {
			continue
		}
		relationshipsByEntity[rel.SourceID] = append(relationshipsByEntity[rel.SourceID], store.GraphEdge{
			SourceID: rel.SourceID, TargetID: rel.TargetID, Kind: rel.Kind,
		})
	}

	for i, e := range batch.Entities {
		var sparse *store.SparseVector
		if i < len(batch.Sparse) && batch.Sparse[i] != nil {
			sparse = &store.SparseVector{Indices: batch.Sparse[i].Indices, Weights: batch.Sparse[i].Weights}
		}
		var dense []float32
		if i < len(batch.Dense) {
			dense = batch.Dense[i]
		}
		if dense == nil {
			// §4.4: a nil embedding means the text was skipped (too long /
			// provider declined); the entity row is still stored, but
			// neither a vector nor a graph projection is enqueued for it.
			continue
		}

		vp := vectorOutboxPayload{
			Collection: batch.CollectionID,
			Point: store.Point{
				ID:     store.PointIDFromEntityID(e.ID),
				Dense:  dense,
				Sparse: sparse,
				Payload: map[string]any{
					"entity_id":      e.ID,
					"repository_id":  e.RepositoryID,
					"qualified_name": e.QualifiedName,
					"entity_type":    string(e.EntityType),
					"file_path":      e.FilePath,
				},
			},
		}
		vJSON, err := json.Marshal(vp)
		if err != nil {
			return fmt.Errorf("marshal vector payload: %w", err)
		}
		outbox = append(outbox, &entity.OutboxRecord{
			Target: entity.TargetVector, Op: entity.OpInsert, EntityID: e.ID, Payload: vJSON,
		})

		gp := graphOutboxPayload{
			Node: store.GraphNode{
				EntityID: e.ID, Kind: e.EntityType, Qualified: e.QualifiedName, Repository: e.RepositoryID,
			},
			Edges: relationshipsByEntity[e.ID],
		}
		gJSON, err := json.Marshal(gp)
		if err != nil {
			return fmt.Errorf("marshal graph payload: %w", err)
		}
		outbox = append(outbox, &entity.OutboxRecord{
			Target: entity.TargetGraph, Op: entity.OpInsert, EntityID: e.ID, Payload: gJSON,
		})
	}

	return p.Relational.UpsertEntitiesWithOutbox(ctx, batch.Entities, outbox)
}

// snapshotBatch assembles, per file in the batch, the set of entity ids it
// produced and writes the new file snapshot, tombstoning entity ids that
// were in the previous snapshot but are absent from this one.
func (p *Pipeline) snapshotBatch(ctx context.Context, batch EmbeddedBatch) error {
	for filePath, indices := range batch.FileIndices {
		newIDs := make([]string, len(indices))
		for i, idx := range indices {
			newIDs[i] = batch.Entities[idx].ID
		}

		prev, err := p.Relational.GetSnapshot(ctx, batch.RepositoryID, filePath)
		if err != nil {
			return fmt.Errorf("get snapshot for %s: %w", filePath, err)
		}

		if prev != nil {
			stale := diffIDs(prev.EntityIDs, newIDs)
			if err := p.tombstone(ctx, batch.RepositoryID, batch.CollectionID, stale); err != nil {
				return fmt.Errorf("tombstone stale entities in %s: %w", filePath, err)
			}
		}

		contentHash := ""
		if len(indices) > 0 {
			contentHash = batch.Entities[indices[0]].ContentHash
		}
		snap := &entity.Snapshot{
			RepositoryID: batch.RepositoryID,
			FilePath:     filePath,
			ContentHash:  contentHash,
			CommitHash:   batch.CommitHash,
			EntityIDs:    newIDs,
			UpdatedAt:    time.Now(),
		}
		if err := p.Relational.UpsertSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("upsert snapshot for %s: %w", filePath, err)
		}
	}
	return nil
}

// tombstone enqueues Delete outbox records for entity ids that disappeared
// between snapshots (§3 "File snapshot" lifecycle).
func (p *Pipeline) tombstone(ctx context.Context, repositoryID, collectionID string, staleIDs []string) error {
	if len(staleIDs) == 0 {
		return nil
	}
	outbox := make([]*entity.OutboxRecord, 0, 2*len(staleIDs))
	for _, id := range staleIDs {
		vPayload, _ := json.Marshal(deletePayload{EntityID: id, RepositoryID: repositoryID, Collection: collectionID})
		gPayload, _ := json.Marshal(deletePayload{EntityID: id, RepositoryID: repositoryID})
		outbox = append(outbox,
			&entity.OutboxRecord{Target: entity.TargetVector, Op: entity.OpDelete, EntityID: id, Payload: vPayload},
			&entity.OutboxRecord{Target: entity.TargetGraph, Op: entity.OpDelete, EntityID: id, Payload: gPayload},
		)
	}
	return p.Relational.EnqueueOutbox(ctx, outbox)
}

// deletePayload mirrors internal/outbox's delete payload shape; kept
// independent to avoid an import cycle between pipeline and outbox.
type deletePayload struct {
	EntityID     string `json:"entity_id"`
	RepositoryID string `json:"repository_id"`
	Collection   string `json:"collection,omitempty"`
}

func diffIDs(old, current []string) []string {
	currentSet := make(map[string]bool, len(current))
	for _, id := range current {
		currentSet[id] = true
	}
	var stale []string
	for _, id := range old {
		if !currentSet[id] {
			stale = append(stale, id)
		}
	}
	return stale
}
