package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madeindigio/codesearch/internal/embedding"
	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/store"
)

// fakeRelational is an in-memory store.RelationalStore used to exercise the
// store/snapshot stage without a database, mirroring the pack's
// hand-written fake-store convention (e.g. the teacher's mock storage used
// in unit tests).
type fakeRelational struct {
	mu        sync.Mutex
	entities  map[string]*entity.Entity
	snapshots map[string]*entity.Snapshot
	outbox    []*entity.OutboxRecord
}

func newFakeRelational() *fakeRelational {
	return &fakeRelational{
		entities:  make(map[string]*entity.Entity),
		snapshots: make(map[string]*entity.Snapshot),
	}
}

var _ store.RelationalStore = (*fakeRelational)(nil)

func (f *fakeRelational) Connect(context.Context) error        { return nil }
func (f *fakeRelational) Close() error                          { return nil }
func (f *fakeRelational) Ping(context.Context) error            { return nil }
func (f *fakeRelational) InitializeSchema(context.Context) error { return nil }

func (f *fakeRelational) UpsertRepository(context.Context, *entity.Repository) error { return nil }
func (f *fakeRelational) GetRepository(context.Context, string) (*entity.Repository, error) {
	return nil, nil
}
func (f *fakeRelational) ListRepositories(context.Context) ([]*entity.Repository, error) {
	return nil, nil
}

func (f *fakeRelational) UpsertEntity(ctx context.Context, e *entity.Entity) error {
	return f.UpsertEntities(ctx, []*entity.Entity{e})
}

func (f *fakeRelational) UpsertEntities(_ context.Context, entities []*entity.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entities {
		f.entities[e.ID] = e
	}
	return nil
}

func (f *fakeRelational) UpsertEntitiesWithOutbox(ctx context.Context, entities []*entity.Entity, outbox []*entity.OutboxRecord) error {
	if err := f.UpsertEntities(ctx, entities); err != nil {
		return err
	}
	return f.EnqueueOutbox(ctx, outbox)
}

func (f *fakeRelational) GetEntity(_ context.Context, id string) (*entity.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entities[id], nil
}

func (f *fakeRelational) GetEntities(ctx context.Context, ids []string) ([]*entity.Entity, error) {
	var out []*entity.Entity
	for _, id := range ids {
		if e, _ := f.GetEntity(ctx, id); e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRelational) DeleteEntitiesByFile(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakeRelational) SearchFullText(context.Context, string, string, int) ([]*entity.Entity, error) {
	return nil, nil
}

func (f *fakeRelational) GetSnapshot(_ context.Context, repositoryID, filePath string) (*entity.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[repositoryID+"\x00"+filePath], nil
}

func (f *fakeRelational) UpsertSnapshot(_ context.Context, snap *entity.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snap.RepositoryID+"\x00"+snap.FilePath] = snap
	return nil
}

func (f *fakeRelational) ListSnapshots(context.Context, string) ([]*entity.Snapshot, error) {
	return nil, nil
}

func (f *fakeRelational) EnqueueOutbox(_ context.Context, records []*entity.OutboxRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbox = append(f.outbox, records...)
	return nil
}

func (f *fakeRelational) ClaimOutbox(context.Context, entity.OutboxTarget, int) ([]*entity.OutboxRecord, error) {
	return nil, nil
}
func (f *fakeRelational) MarkOutboxProcessed(context.Context, int64) error { return nil }
func (f *fakeRelational) MarkOutboxFailed(context.Context, int64, error, int) error {
	return nil
}
func (f *fakeRelational) CountOutboxByStatus(context.Context, entity.OutboxTarget, entity.OutboxStatus) (int, error) {
	return 0, nil
}

func TestResolveAndBatchAssignsTargetIDAcrossFiles(t *testing.T) {
	mod := &entity.Entity{ID: "mod-id", Name: "pkg", QualifiedName: "pkg", EntityType: entity.TypeModule}
	def := &entity.Entity{ID: "callee-id", Name: "Callee", QualifiedName: "pkg.Callee"}
	caller := &entity.Entity{ID: "caller-id", Name: "Caller", QualifiedName: "pkg2.Caller"}
	callRel := &entity.Relationship{SourceID: "caller-id", TargetQualifiedName: "Callee", Kind: entity.RelCalls}
	importRel := &entity.Relationship{
		SourceID: "caller-id", TargetQualifiedName: "Callee", Kind: entity.RelImports,
		ImportSourceModule: "pkg", ImportSymbol: "Callee",
	}

	extractedCh := make(chan *fileExtraction, 2)
	extractedCh <- &fileExtraction{FilePath: "a.go", Entities: []*entity.Entity{mod, def}}
	extractedCh <- &fileExtraction{
		FilePath:      "b.go",
		Entities:      []*entity.Entity{caller},
		Relationships: []*entity.Relationship{callRel, importRel},
	}
	close(extractedCh)

	batchCh := make(chan Batch, 4)
	resolveAndBatch(context.Background(), "repo", "commit", "collection", extractedCh, batchCh)
	close(batchCh)

	var all []Batch
	for b := range batchCh {
		all = append(all, b)
	}
	require.Len(t, all, 1)
	require.Equal(t, "callee-id", callRel.TargetID)
}

func TestSnapshotBatchTombstonesStaleEntities(t *testing.T) {
	rel := newFakeRelational()
	rel.snapshots["repo\x00a.go"] = &entity.Snapshot{
		RepositoryID: "repo", FilePath: "a.go", EntityIDs: []string{"old-1", "old-2"},
	}

	p := &Pipeline{Relational: rel, Cfg: DefaultConfig()}
	newEntity := &entity.Entity{ID: "new-1", ContentHash: "h1"}
	batch := EmbeddedBatch{
		Batch: Batch{
			RepositoryID: "repo",
			CommitHash:   "c1",
			Entities:     []*entity.Entity{newEntity},
			FileIndices:  map[string][]int{"a.go": {0}},
		},
		Dense: [][]float32{{0.1, 0.2}},
	}

	require.NoError(t, p.snapshotBatch(context.Background(), batch))

	snap := rel.snapshots["repo\x00a.go"]
	require.Equal(t, []string{"new-1"}, snap.EntityIDs)

	var deleteCount int
	for _, r := range rel.outbox {
		if r.Op == entity.OpDelete {
			deleteCount++
		}
	}
	require.Equal(t, 4, deleteCount) // 2 stale ids x 2 targets (vector + graph)
}

func TestStoreBatchSkipsEntitiesWithNilDense(t *testing.T) {
	rel := newFakeRelational()
	p := &Pipeline{Relational: rel, Cfg: DefaultConfig()}

	e1 := &entity.Entity{ID: "e1", RepositoryID: "repo"}
	e2 := &entity.Entity{ID: "e2", RepositoryID: "repo"}
	batch := EmbeddedBatch{
		Batch: Batch{RepositoryID: "repo", Entities: []*entity.Entity{e1, e2}},
		Dense: [][]float32{{0.1}, nil},
	}

	require.NoError(t, p.storeBatch(context.Background(), batch))
	require.Len(t, rel.entities, 2) // entity rows are stored regardless
	require.Len(t, rel.outbox, 2)   // only e1 gets vector+graph outbox records
}

func TestEntityEmbeddingText(t *testing.T) {
	require.Equal(t, "doc\n\ncode", entityEmbeddingText(&entity.Entity{DocSummary: "doc", Content: "code"}))
	require.Equal(t, "code", entityEmbeddingText(&entity.Entity{Content: "code"}))
	require.Equal(t, "doc", entityEmbeddingText(&entity.Entity{DocSummary: "doc"}))
}

var _ embedding.DenseProvider = (*fakeDenseForPipeline)(nil)

type fakeDenseForPipeline struct{}

func (fakeDenseForPipeline) Embed(_ context.Context, texts []string, _ embedding.Task) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}
func (fakeDenseForPipeline) Dimension() int         { return 1 }
func (fakeDenseForPipeline) MaxSequenceLength() int { return 8192 }
