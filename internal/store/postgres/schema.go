// Package postgres implements the relational store (C6, source of record)
// and the adjacency-table graph store over a single PostgreSQL pool,
// grounded on the teacher's internal/storage/migrations versioned-migration
// pattern translated from SurrealQL DDL to Postgres DDL, and on
// MrWong99-glyphoxa's pgx recursive-CTE graph traversal style.
//
// No graph-database driver appears anywhere in the retrieval pack, so the
// graph store (§4.5) is implemented as adjacency tables in the same
// PostgreSQL instance instead of a dedicated graph engine — see DESIGN.md.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlRepositories = `
CREATE TABLE IF NOT EXISTS repositories (
    id              TEXT         PRIMARY KEY,
    path            TEXT         NOT NULL,
    default_branch  TEXT         NOT NULL DEFAULT '',
    last_commit     TEXT         NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlEntities = `
CREATE TABLE IF NOT EXISTS entities (
    id              TEXT         PRIMARY KEY,
    repository_id   TEXT         NOT NULL REFERENCES repositories (id) ON DELETE CASCADE,
    name            TEXT         NOT NULL,
    qualified_name  TEXT         NOT NULL,
    parent_scope    TEXT         NOT NULL DEFAULT '',
    entity_type     TEXT         NOT NULL,
    visibility      TEXT         NOT NULL DEFAULT '',
    language        TEXT         NOT NULL,
    file_path       TEXT         NOT NULL,
    line_start      INTEGER      NOT NULL DEFAULT 0,
    line_end        INTEGER      NOT NULL DEFAULT 0,
    content         TEXT         NOT NULL DEFAULT '',
    doc_summary     TEXT         NOT NULL DEFAULT '',
    signature       JSONB        NOT NULL DEFAULT '{}',
    metadata        JSONB        NOT NULL DEFAULT '{}',
    content_hash    TEXT         NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_repo_file
    ON entities (repository_id, file_path);

CREATE INDEX IF NOT EXISTS idx_entities_qualified_name
    ON entities (repository_id, qualified_name);

CREATE INDEX IF NOT EXISTS idx_entities_fts
    ON entities USING GIN (to_tsvector('english', name || ' ' || qualified_name || ' ' || coalesce(doc_summary, '')));
`

const ddlSnapshots = `
CREATE TABLE IF NOT EXISTS file_snapshots (
    repository_id  TEXT         NOT NULL REFERENCES repositories (id) ON DELETE CASCADE,
    file_path      TEXT         NOT NULL,
    content_hash   TEXT         NOT NULL,
    commit_hash    TEXT         NOT NULL DEFAULT '',
    entity_ids     TEXT[]       NOT NULL DEFAULT '{}',
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (repository_id, file_path)
);
`

const ddlOutbox = `
CREATE TABLE IF NOT EXISTS outbox (
    id            BIGSERIAL    PRIMARY KEY,
    target        TEXT         NOT NULL,
    op            TEXT         NOT NULL,
    entity_id     TEXT         NOT NULL,
    payload       JSONB        NOT NULL DEFAULT '{}',
    status        TEXT         NOT NULL DEFAULT 'pending',
    retry_count   INTEGER      NOT NULL DEFAULT 0,
    last_error    TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    processed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_claim
    ON outbox (target, status, id);

CREATE INDEX IF NOT EXISTS idx_outbox_entity_hash
    ON outbox ((hashtext(entity_id)));
`

const ddlGraphNodes = `
CREATE TABLE IF NOT EXISTS graph_nodes (
    entity_id       TEXT         PRIMARY KEY,
    repository_id   TEXT         NOT NULL,
    entity_kind     TEXT         NOT NULL,
    qualified_name  TEXT         NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_repo
    ON graph_nodes (repository_id);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_qname
    ON graph_nodes (repository_id, qualified_name);
`

const ddlGraphEdges = `
CREATE TABLE IF NOT EXISTS graph_edges (
    source_id  TEXT  NOT NULL REFERENCES graph_nodes (entity_id) ON DELETE CASCADE,
    target_id  TEXT  NOT NULL REFERENCES graph_nodes (entity_id) ON DELETE CASCADE,
    kind       TEXT  NOT NULL,
    PRIMARY KEY (source_id, target_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_graph_edges_source
    ON graph_edges (source_id);

CREATE INDEX IF NOT EXISTS idx_graph_edges_target
    ON graph_edges (target_id);

CREATE INDEX IF NOT EXISTS idx_graph_edges_kind
    ON graph_edges (kind);
`

// Migrate creates every table this package needs. It is idempotent
// (IF NOT EXISTS throughout) and safe to call on every process start,
// matching the teacher's migration philosophy without carrying over its
// version-tracking machinery — Postgres DDL here is additive-only and the
// teacher's per-element existence probing (built for SurrealDB, which lacks
// IF NOT EXISTS on DEFINE statements) has no work left to do.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlRepositories,
		ddlEntities,
		ddlSnapshots,
		ddlOutbox,
		ddlGraphNodes,
		ddlGraphEdges,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
