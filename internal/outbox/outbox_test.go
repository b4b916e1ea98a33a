package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/store"
)

type fakeVector struct {
	ensured  []string
	upserted []store.Point
	deleted  [][]uint64
}

var _ store.VectorStore = (*fakeVector)(nil)

func (f *fakeVector) Connect(context.Context) error { return nil }
func (f *fakeVector) Close() error                  { return nil }
func (f *fakeVector) Ping(context.Context) error    { return nil }

func (f *fakeVector) EnsureCollection(_ context.Context, name string, _ int) error {
	f.ensured = append(f.ensured, name)
	return nil
}

func (f *fakeVector) Upsert(_ context.Context, _ string, points []store.Point) error {
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeVector) Search(context.Context, string, []float32, *store.SparseVector, int, float32, store.PayloadFilter) ([]store.ScoredPoint, error) {
	return nil, nil
}

func (f *fakeVector) Delete(_ context.Context, _ string, ids []uint64) error {
	f.deleted = append(f.deleted, ids)
	return nil
}

type fakeGraph struct {
	nodes        []store.GraphNode
	edges        []store.GraphEdge
	deletedFiles []string
}

var _ store.GraphStore = (*fakeGraph)(nil)

func (f *fakeGraph) Connect(context.Context) error        { return nil }
func (f *fakeGraph) Close() error                          { return nil }
func (f *fakeGraph) Ping(context.Context) error            { return nil }
func (f *fakeGraph) InitializeSchema(context.Context) error { return nil }

func (f *fakeGraph) UpsertNodes(_ context.Context, nodes []store.GraphNode) error {
	f.nodes = append(f.nodes, nodes...)
	return nil
}

func (f *fakeGraph) UpsertEdges(_ context.Context, edges []store.GraphEdge) error {
	f.edges = append(f.edges, edges...)
	return nil
}

func (f *fakeGraph) DeleteNodesByFile(_ context.Context, repositoryID string, entityIDs []string) error {
	f.deletedFiles = append(f.deletedFiles, repositoryID)
	_ = entityIDs
	return nil
}

func (f *fakeGraph) Pattern(context.Context, string, string, []entity.RelationshipKind, int) ([]store.GraphPathNode, error) {
	return nil, nil
}

func (f *fakeGraph) ReverseReachability(context.Context, string, int) ([]store.GraphPathNode, error) {
	return nil, nil
}

type fakeRelationalOutbox struct {
	claims    []*entity.OutboxRecord
	processed []int64
	failed    []int64
	deadCount int
}

var _ store.RelationalStore = (*fakeRelationalOutbox)(nil)

func (f *fakeRelationalOutbox) Connect(context.Context) error        { return nil }
func (f *fakeRelationalOutbox) Close() error                          { return nil }
func (f *fakeRelationalOutbox) Ping(context.Context) error            { return nil }
func (f *fakeRelationalOutbox) InitializeSchema(context.Context) error { return nil }

func (f *fakeRelationalOutbox) UpsertRepository(context.Context, *entity.Repository) error { return nil }
func (f *fakeRelationalOutbox) GetRepository(context.Context, string) (*entity.Repository, error) {
	return nil, nil
}
func (f *fakeRelationalOutbox) ListRepositories(context.Context) ([]*entity.Repository, error) {
	return nil, nil
}

func (f *fakeRelationalOutbox) UpsertEntity(context.Context, *entity.Entity) error   { return nil }
func (f *fakeRelationalOutbox) UpsertEntities(context.Context, []*entity.Entity) error { return nil }
func (f *fakeRelationalOutbox) UpsertEntitiesWithOutbox(context.Context, []*entity.Entity, []*entity.OutboxRecord) error {
	return nil
}
func (f *fakeRelationalOutbox) GetEntity(context.Context, string) (*entity.Entity, error) {
	return nil, nil
}
func (f *fakeRelationalOutbox) GetEntities(context.Context, []string) ([]*entity.Entity, error) {
	return nil, nil
}
func (f *fakeRelationalOutbox) DeleteEntitiesByFile(context.Context, string, string) ([]string, error) {
	return nil, nil
}
func (f *fakeRelationalOutbox) SearchFullText(context.Context, string, string, int) ([]*entity.Entity, error) {
	return nil, nil
}

func (f *fakeRelationalOutbox) GetSnapshot(context.Context, string, string) (*entity.Snapshot, error) {
	return nil, nil
}
func (f *fakeRelationalOutbox) UpsertSnapshot(context.Context, *entity.Snapshot) error { return nil }
func (f *fakeRelationalOutbox) ListSnapshots(context.Context, string) ([]*entity.Snapshot, error) {
	return nil, nil
}

func (f *fakeRelationalOutbox) EnqueueOutbox(context.Context, []*entity.OutboxRecord) error { return nil }

func (f *fakeRelationalOutbox) ClaimOutbox(_ context.Context, _ entity.OutboxTarget, limit int) ([]*entity.OutboxRecord, error) {
	if len(f.claims) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(f.claims) {
		n = len(f.claims)
	}
	claimed := f.claims[:n]
	f.claims = f.claims[n:]
	return claimed, nil
}

func (f *fakeRelationalOutbox) MarkOutboxProcessed(_ context.Context, id int64) error {
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeRelationalOutbox) MarkOutboxFailed(_ context.Context, id int64, _ error, _ int) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRelationalOutbox) CountOutboxByStatus(context.Context, entity.OutboxTarget, entity.OutboxStatus) (int, error) {
	return f.deadCount, nil
}

func TestApplyVectorInsertEnsuresCollectionOnce(t *testing.T) {
	vec := &fakeVector{}
	p := New(&fakeRelationalOutbox{}, vec, &fakeGraph{}, DefaultConfig())

	payload, _ := json.Marshal(vectorPayload{Collection: "repo-1", Point: store.Point{ID: 42, Dense: []float32{0.1}}})
	r := &entity.OutboxRecord{Target: entity.TargetVector, Op: entity.OpInsert, Payload: payload}

	require.NoError(t, p.applyVector(context.Background(), r, 128))
	require.NoError(t, p.applyVector(context.Background(), r, 128))

	require.Equal(t, []string{"repo-1"}, vec.ensured) // only ensured once, LRU remembers it
	require.Len(t, vec.upserted, 2)
}

func TestApplyVectorDeleteUsesPointIDHash(t *testing.T) {
	vec := &fakeVector{}
	p := New(&fakeRelationalOutbox{}, vec, &fakeGraph{}, DefaultConfig())

	payload, _ := json.Marshal(deletePayload{EntityID: "entity-1", RepositoryID: "repo-1", Collection: "repo-1"})
	r := &entity.OutboxRecord{Target: entity.TargetVector, Op: entity.OpDelete, EntityID: "entity-1", Payload: payload}

	require.NoError(t, p.applyVector(context.Background(), r, 128))
	require.Len(t, vec.deleted, 1)
	require.Equal(t, []uint64{store.PointIDFromEntityID("entity-1")}, vec.deleted[0])
}

func TestApplyGraphDeleteScopesToRepository(t *testing.T) {
	graph := &fakeGraph{}
	p := New(&fakeRelationalOutbox{}, &fakeVector{}, graph, DefaultConfig())

	payload, _ := json.Marshal(deletePayload{EntityID: "entity-1", RepositoryID: "repo-7"})
	r := &entity.OutboxRecord{Target: entity.TargetGraph, Op: entity.OpDelete, EntityID: "entity-1", Payload: payload}

	require.NoError(t, p.applyGraph(context.Background(), r))
	require.Equal(t, []string{"repo-7"}, graph.deletedFiles)
}

func TestRunOnceMarksProcessedAndFailed(t *testing.T) {
	goodPayload, _ := json.Marshal(vectorPayload{Collection: "c1", Point: store.Point{ID: 1, Dense: []float32{0.1}}})
	badPayload := []byte(`not json`)

	rel := &fakeRelationalOutbox{
		claims: []*entity.OutboxRecord{
			{ID: 1, Target: entity.TargetVector, Op: entity.OpInsert, Payload: goodPayload},
			{ID: 2, Target: entity.TargetVector, Op: entity.OpInsert, Payload: badPayload},
		},
	}
	p := New(rel, &fakeVector{}, &fakeGraph{}, DefaultConfig())

	n, err := p.runOnce(context.Background(), entity.TargetVector, 128)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []int64{1}, rel.processed)
	require.Equal(t, []int64{2}, rel.failed)
}

func TestDeadLetterCountDelegatesToRelationalStore(t *testing.T) {
	rel := &fakeRelationalOutbox{deadCount: 3}
	p := New(rel, &fakeVector{}, &fakeGraph{}, DefaultConfig())

	n, err := p.DeadLetterCount(context.Background(), entity.TargetVector)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestCollectionLRUEvictsLeastRecentlyUsed(t *testing.T) {
	lru := newCollectionLRU(2)
	lru.mark("a")
	lru.mark("b")
	require.True(t, lru.seen("a")) // refreshes a's recency
	lru.mark("c")                  // evicts b, the least recently used

	require.True(t, lru.seen("a"))
	require.False(t, lru.seen("b"))
	require.True(t, lru.seen("c"))
}
