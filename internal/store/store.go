// Package store defines the persistence interfaces (C6): a relational store
// of record, a vector store, and a graph store, each behind an abstract
// contract so the pipeline, outbox, and search layers depend on behavior
// rather than a concrete backend. Grounded on the teacher's internal/storage
// Storage interface, split into three narrower interfaces matching the
// spec's three-backend persistence design instead of the teacher's single
// do-everything interface.
package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/madeindigio/codesearch/internal/entity"
)

// PointIDFromEntityID derives a deterministic vector-store point id from an
// entity id. Qdrant point ids are numeric or UUID; entity ids are hex SHA-256
// strings, so this is the bridge between the two (no library in the pack
// offers one, and the mapping only needs to be stable, not cryptographic).
func PointIDFromEntityID(entityID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(entityID))
	return h.Sum64()
}

// Kind of storage error, used to let callers branch on failure class
// without string-matching error messages (§7).
type Kind int

const (
	KindUnknown Kind = iota
	KindConnectionFailed
	KindCollectionNotFound
	KindBatchSizeExceeded
	KindInvalidDimensions
	KindTimeout
	KindBackendError
	KindSerializationError
	KindInvalidConfig
)

// Error is the uniform storage error type across all three backends.
type Error struct {
	Kind     Kind
	Message  string
	Expected int
	Actual   int
	Cause    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidDimensions:
		return fmt.Sprintf("store: invalid dimensions: expected %d, got %d", e.Expected, e.Actual)
	default:
		if e.Cause != nil {
			return fmt.Sprintf("store: %s: %v", e.Message, e.Cause)
		}
		return fmt.Sprintf("store: %s", e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewConnectionFailedError wraps a backend connection failure.
func NewConnectionFailedError(cause error) error {
	return &Error{Kind: KindConnectionFailed, Message: "connection failed", Cause: cause}
}

// NewCollectionNotFoundError reports a missing vector-store collection.
func NewCollectionNotFoundError(name string) error {
	return &Error{Kind: KindCollectionNotFound, Message: fmt.Sprintf("collection %q not found", name)}
}

// NewBatchSizeExceededError reports a request over a backend's batch ceiling.
func NewBatchSizeExceededError(n, max int) error {
	return &Error{Kind: KindBatchSizeExceeded, Message: fmt.Sprintf("batch size %d exceeds max %d", n, max)}
}

// NewInvalidDimensionsError reports a vector whose length doesn't match a
// collection's configured dense dimension.
func NewInvalidDimensionsError(expected, actual int) error {
	return &Error{Kind: KindInvalidDimensions, Expected: expected, Actual: actual}
}

// NewTimeoutError wraps a backend operation that exceeded its deadline.
func NewTimeoutError(cause error) error {
	return &Error{Kind: KindTimeout, Message: "operation timed out", Cause: cause}
}

// NewBackendError wraps an otherwise-uncategorized backend failure.
func NewBackendError(cause error) error {
	return &Error{Kind: KindBackendError, Message: "backend error", Cause: cause}
}

// NewSerializationError wraps a payload marshal/unmarshal failure.
func NewSerializationError(cause error) error {
	return &Error{Kind: KindSerializationError, Message: "serialization error", Cause: cause}
}

// NewInvalidConfigError reports a store misconfiguration caught before any
// connection attempt.
func NewInvalidConfigError(message string) error {
	return &Error{Kind: KindInvalidConfig, Message: message}
}

// KindOf extracts the Kind from any error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// RelationalStore is the source of record (§4.5): repositories, entities,
// file snapshots, and the outbox table.
type RelationalStore interface {
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error
	InitializeSchema(ctx context.Context) error

	UpsertRepository(ctx context.Context, repo *entity.Repository) error
	GetRepository(ctx context.Context, id string) (*entity.Repository, error)
	ListRepositories(ctx context.Context) ([]*entity.Repository, error)

	UpsertEntity(ctx context.Context, e *entity.Entity) error
	UpsertEntities(ctx context.Context, entities []*entity.Entity) error
	// UpsertEntitiesWithOutbox writes entity rows and outbox records in a
	// single transaction (§4.3 atomicity): failure rolls back both, so a
	// retried batch never leaves entities stored without their replication
	// records enqueued.
	UpsertEntitiesWithOutbox(ctx context.Context, entities []*entity.Entity, outbox []*entity.OutboxRecord) error
	GetEntity(ctx context.Context, id string) (*entity.Entity, error)
	GetEntities(ctx context.Context, ids []string) ([]*entity.Entity, error)
	DeleteEntitiesByFile(ctx context.Context, repositoryID, filePath string) ([]string, error)
	SearchFullText(ctx context.Context, repositoryID, query string, limit int) ([]*entity.Entity, error)

	GetSnapshot(ctx context.Context, repositoryID, filePath string) (*entity.Snapshot, error)
	UpsertSnapshot(ctx context.Context, snap *entity.Snapshot) error
	ListSnapshots(ctx context.Context, repositoryID string) ([]*entity.Snapshot, error)

	EnqueueOutbox(ctx context.Context, records []*entity.OutboxRecord) error
	ClaimOutbox(ctx context.Context, target entity.OutboxTarget, limit int) ([]*entity.OutboxRecord, error)
	MarkOutboxProcessed(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryErr error, deadLetterCeiling int) error
	CountOutboxByStatus(ctx context.Context, target entity.OutboxTarget, status entity.OutboxStatus) (int, error)
}

// Point is a single vector-store record: an internal id, a dense vector,
// an optional sparse vector, and a payload referring back to an entity.
type Point struct {
	ID       uint64
	Dense    []float32
	Sparse   *SparseVector
	Payload  map[string]any
}

// SparseVector mirrors embedding.SparseVector without importing the
// embedding package, keeping store free of an embedding-layer dependency.
type SparseVector struct {
	Indices []uint32
	Weights []float32
}

// ScoredPoint is a vector-store search hit.
type ScoredPoint struct {
	Point
	Score float32
}

// PayloadFilter restricts a k-NN search to points whose payload matches
// the given key/value equality constraints.
type PayloadFilter map[string]any

// VectorStore holds named collections of points (§4.5).
type VectorStore interface {
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error

	EnsureCollection(ctx context.Context, name string, denseDimension int) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Search(ctx context.Context, collection string, dense []float32, sparse *SparseVector, limit int, scoreThreshold float32, filter PayloadFilter) ([]ScoredPoint, error)
	Delete(ctx context.Context, collection string, ids []uint64) error
}

// GraphNode is a graph-store node labeled with an entity kind.
type GraphNode struct {
	EntityID   string
	Kind       entity.Type
	Qualified  string
	Repository string
}

// GraphEdge is a directed, kind-labeled relationship between two nodes.
type GraphEdge struct {
	SourceID string
	TargetID string
	Kind     entity.RelationshipKind
}

// GraphPathNode is one hop in a reverse-reachability result.
type GraphPathNode struct {
	EntityID string
	Depth    int
	Kind     entity.RelationshipKind
}

// GraphStore holds nodes and directed, kind-labeled edges (§4.5).
type GraphStore interface {
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error
	InitializeSchema(ctx context.Context) error

	UpsertNodes(ctx context.Context, nodes []GraphNode) error
	UpsertEdges(ctx context.Context, edges []GraphEdge) error
	DeleteNodesByFile(ctx context.Context, repositoryID string, entityIDs []string) error

	// Pattern queries a cypher-like match parameterized by repository id and
	// a qualified name, bounded by the given relationship kinds and depth.
	Pattern(ctx context.Context, repositoryID, qualifiedName string, kinds []entity.RelationshipKind, maxDepth int) ([]GraphPathNode, error)

	// ReverseReachability finds every node that can reach entityID within
	// maxDepth hops, following edges against their direction.
	ReverseReachability(ctx context.Context, entityID string, maxDepth int) ([]GraphPathNode, error)
}
