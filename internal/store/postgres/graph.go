package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/store"
)

// GraphStore implements the graph store (§4.5) as adjacency tables in the
// same PostgreSQL instance, following the recursive-CTE reachability queries
// in MrWong99-glyphoxa's knowledge_graph.go. Pattern and ReverseReachability
// interpolate only a fixed kind-filter fragment into SQL text — relationship
// kinds (checked against the whitelist first), the depth bound, entity ids
// and qualified names are always bound parameters, never interpolated.
type GraphStore struct {
	pool *pgxpool.Pool
}

var _ store.GraphStore = (*GraphStore)(nil)

// NewGraphStore wraps an already-connected pool, shared with RelationalStore
// so the entities table and the graph tables live in one database; each
// GraphStore write runs in its own transaction.
func NewGraphStore(pool *pgxpool.Pool) *GraphStore {
	return &GraphStore{pool: pool}
}

func (g *GraphStore) Connect(_ context.Context) error { return nil }
func (g *GraphStore) Close() error                    { return nil }

func (g *GraphStore) Ping(ctx context.Context) error {
	if err := g.pool.Ping(ctx); err != nil {
		return store.NewConnectionFailedError(err)
	}
	return nil
}

func (g *GraphStore) InitializeSchema(ctx context.Context) error {
	if err := Migrate(ctx, g.pool); err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

func (g *GraphStore) UpsertNodes(ctx context.Context, nodes []store.GraphNode) error {
	if len(nodes) == 0 {
		return nil
	}
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return store.NewBackendError(err)
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO graph_nodes (entity_id, repository_id, entity_kind, qualified_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entity_id) DO UPDATE SET
		    entity_kind    = EXCLUDED.entity_kind,
		    qualified_name = EXCLUDED.qualified_name`
	for _, n := range nodes {
		if _, err := tx.Exec(ctx, q, n.EntityID, n.Repository, string(n.Kind), n.Qualified); err != nil {
			return store.NewBackendError(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

func (g *GraphStore) UpsertEdges(ctx context.Context, edges []store.GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return store.NewBackendError(err)
	}
	defer tx.Rollback(ctx)

	for _, e := range edges {
		if !entity.AllowedRelationshipKinds[e.Kind] {
			return store.NewInvalidConfigError(fmt.Sprintf("relationship kind %q is not in the allowed whitelist", e.Kind))
		}
	}

	const q = `
		INSERT INTO graph_edges (source_id, target_id, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_id, target_id, kind) DO NOTHING`
	for _, e := range edges {
		if _, err := tx.Exec(ctx, q, e.SourceID, e.TargetID, string(e.Kind)); err != nil {
			return store.NewBackendError(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

func (g *GraphStore) DeleteNodesByFile(ctx context.Context, repositoryID string, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	const q = `DELETE FROM graph_nodes WHERE repository_id = $1 AND entity_id = ANY($2::text[])`
	if _, err := g.pool.Exec(ctx, q, repositoryID, entityIDs); err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

// Pattern walks outgoing edges of the given kinds from the node identified
// by (repositoryID, qualifiedName), up to maxDepth hops, tracking visited
// node ids in a text array to prevent cycles — the same shape as
// MrWong99-glyphoxa's Neighbors query.
func (g *GraphStore) Pattern(ctx context.Context, repositoryID, qualifiedName string, kinds []entity.RelationshipKind, maxDepth int) ([]store.GraphPathNode, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 10 {
		maxDepth = 10
	}
	kindFilter, kindArgs, err := whitelistedKindFilter("rel.kind", kinds)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		WITH RECURSIVE walk AS (
		    SELECT n.entity_id AS id,
		           ARRAY[n.entity_id] AS visited,
		           0 AS depth,
		           NULL::text AS via_kind
		    FROM   graph_nodes n
		    WHERE  n.repository_id = $1 AND n.qualified_name = $2

		    UNION ALL

		    SELECT rel.target_id,
		           w.visited || rel.target_id,
		           w.depth + 1,
		           rel.kind
		    FROM   walk w
		    JOIN   graph_edges rel ON rel.source_id = w.id
		    WHERE  w.depth < $3
		      AND  NOT (rel.target_id = ANY(w.visited))%s
		)
		SELECT DISTINCT ON (id) id, depth, via_kind
		FROM   walk
		WHERE  depth > 0
		ORDER  BY id, depth`, kindFilter)

	args := append([]any{repositoryID, qualifiedName, maxDepth}, kindArgs...)
	rows, err := g.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, store.NewBackendError(err)
	}
	defer rows.Close()

	var out []store.GraphPathNode
	for rows.Next() {
		var (
			n       store.GraphPathNode
			viaKind *string
		)
		if err := rows.Scan(&n.EntityID, &n.Depth, &viaKind); err != nil {
			return nil, store.NewBackendError(err)
		}
		if viaKind != nil {
			n.Kind = entity.RelationshipKind(*viaKind)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ReverseReachability finds every node that can reach entityID within
// maxDepth hops by walking edges backward (target -> source).
func (g *GraphStore) ReverseReachability(ctx context.Context, entityID string, maxDepth int) ([]store.GraphPathNode, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 10 {
		maxDepth = 10
	}

	const q = `
		WITH RECURSIVE walk AS (
		    SELECT $1::text AS id,
		           ARRAY[$1::text] AS visited,
		           0 AS depth,
		           NULL::text AS via_kind

		    UNION ALL

		    SELECT rel.source_id,
		           w.visited || rel.source_id,
		           w.depth + 1,
		           rel.kind
		    FROM   walk w
		    JOIN   graph_edges rel ON rel.target_id = w.id
		    WHERE  w.depth < $2
		      AND  NOT (rel.source_id = ANY(w.visited))
		)
		SELECT DISTINCT ON (id) id, depth, via_kind
		FROM   walk
		WHERE  depth > 0
		ORDER  BY id, depth`

	rows, err := g.pool.Query(ctx, q, entityID, maxDepth)
	if err != nil {
		return nil, store.NewBackendError(err)
	}
	defer rows.Close()

	var out []store.GraphPathNode
	for rows.Next() {
		var (
			n       store.GraphPathNode
			viaKind *string
		)
		if err := rows.Scan(&n.EntityID, &n.Depth, &viaKind); err != nil {
			return nil, store.NewBackendError(err)
		}
		if viaKind != nil {
			n.Kind = entity.RelationshipKind(*viaKind)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// whitelistedKindFilter builds a "AND col = ANY($n::text[])" fragment from a
// caller-supplied kind list, rejecting anything outside the allowed
// relationship whitelist before it ever reaches SQL text (§4.5).
func whitelistedKindFilter(column string, kinds []entity.RelationshipKind) (string, []any, error) {
	if len(kinds) == 0 {
		return "", nil, nil
	}
	values := make([]string, 0, len(kinds))
	for _, k := range kinds {
		if !entity.AllowedRelationshipKinds[k] {
			return "", nil, store.NewInvalidConfigError(fmt.Sprintf("relationship kind %q is not in the allowed whitelist", k))
		}
		values = append(values, string(k))
	}
	return fmt.Sprintf(" AND %s = ANY($4::text[])", column), []any{values}, nil
}
