package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/store"
)

// RelationalStore is the PostgreSQL-backed source of record: repositories,
// entities, file snapshots and the outbox table all live in one pool,
// grounded on MrWong99-glyphoxa's pkg/memory/postgres.Store shape.
type RelationalStore struct {
	dsn  string
	pool *pgxpool.Pool
}

var _ store.RelationalStore = (*RelationalStore)(nil)

// New builds a RelationalStore that connects lazily on Connect.
func New(dsn string) *RelationalStore {
	return &RelationalStore{dsn: dsn}
}

func (s *RelationalStore) Connect(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(s.dsn)
	if err != nil {
		return store.NewInvalidConfigError(fmt.Sprintf("parse dsn: %v", err))
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return store.NewConnectionFailedError(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return store.NewConnectionFailedError(err)
	}
	s.pool = pool
	return nil
}

// Pool exposes the underlying connection pool so a GraphStore can share it
// instead of opening a second pool against the same database.
func (s *RelationalStore) Pool() *pgxpool.Pool { return s.pool }

func (s *RelationalStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *RelationalStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return store.NewConnectionFailedError(err)
	}
	return nil
}

func (s *RelationalStore) InitializeSchema(ctx context.Context) error {
	if err := Migrate(ctx, s.pool); err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

func (s *RelationalStore) UpsertRepository(ctx context.Context, repo *entity.Repository) error {
	const q = `
		INSERT INTO repositories (id, path, default_branch, last_commit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE SET
		    path           = EXCLUDED.path,
		    default_branch = EXCLUDED.default_branch,
		    last_commit    = EXCLUDED.last_commit,
		    updated_at     = now()`
	_, err := s.pool.Exec(ctx, q, repo.ID, repo.Path, repo.DefaultBranch, repo.LastCommit)
	if err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

func (s *RelationalStore) GetRepository(ctx context.Context, id string) (*entity.Repository, error) {
	const q = `
		SELECT id, path, default_branch, last_commit, created_at, updated_at
		FROM   repositories WHERE id = $1`
	row := s.pool.QueryRow(ctx, q, id)
	var r entity.Repository
	if err := row.Scan(&r.ID, &r.Path, &r.DefaultBranch, &r.LastCommit, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, store.NewBackendError(err)
	}
	return &r, nil
}

func (s *RelationalStore) ListRepositories(ctx context.Context) ([]*entity.Repository, error) {
	const q = `
		SELECT id, path, default_branch, last_commit, created_at, updated_at
		FROM   repositories ORDER BY path`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, store.NewBackendError(err)
	}
	defer rows.Close()

	var out []*entity.Repository
	for rows.Next() {
		var r entity.Repository
		if err := rows.Scan(&r.ID, &r.Path, &r.DefaultBranch, &r.LastCommit, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, store.NewBackendError(err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *RelationalStore) UpsertEntity(ctx context.Context, e *entity.Entity) error {
	return s.UpsertEntities(ctx, []*entity.Entity{e})
}

func (s *RelationalStore) UpsertEntities(ctx context.Context, entities []*entity.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.NewBackendError(err)
	}
	defer tx.Rollback(ctx)

	if err := upsertEntitiesTx(ctx, tx, entities); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

// UpsertEntitiesWithOutbox writes entities and their outbox records in one
// transaction, matching the pipeline's §4.3 atomicity requirement.
func (s *RelationalStore) UpsertEntitiesWithOutbox(ctx context.Context, entities []*entity.Entity, outbox []*entity.OutboxRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.NewBackendError(err)
	}
	defer tx.Rollback(ctx)

	if len(entities) > 0 {
		if err := upsertEntitiesTx(ctx, tx, entities); err != nil {
			return err
		}
	}
	if len(outbox) > 0 {
		if err := enqueueOutboxTx(ctx, tx, outbox); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

func upsertEntitiesTx(ctx context.Context, tx pgx.Tx, entities []*entity.Entity) error {
	const q = `
		INSERT INTO entities
		    (id, repository_id, name, qualified_name, parent_scope, entity_type,
		     visibility, language, file_path, line_start, line_end, content,
		     doc_summary, signature, metadata, content_hash, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
		ON CONFLICT (id) DO UPDATE SET
		    name           = EXCLUDED.name,
		    qualified_name = EXCLUDED.qualified_name,
		    parent_scope   = EXCLUDED.parent_scope,
		    entity_type    = EXCLUDED.entity_type,
		    visibility     = EXCLUDED.visibility,
		    language       = EXCLUDED.language,
		    file_path      = EXCLUDED.file_path,
		    line_start     = EXCLUDED.line_start,
		    line_end       = EXCLUDED.line_end,
		    content        = EXCLUDED.content,
		    doc_summary    = EXCLUDED.doc_summary,
		    signature      = EXCLUDED.signature,
		    metadata       = EXCLUDED.metadata,
		    content_hash   = EXCLUDED.content_hash,
		    updated_at     = now()`

	for _, e := range entities {
		sigJSON, err := json.Marshal(e.Signature)
		if err != nil {
			return store.NewSerializationError(err)
		}
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return store.NewSerializationError(err)
		}
		_, err = tx.Exec(ctx, q,
			e.ID, e.RepositoryID, e.Name, e.QualifiedName, e.ParentScope, string(e.EntityType),
			string(e.Visibility), string(e.Language), e.FilePath, e.LineRange.Start, e.LineRange.End,
			e.Content, e.DocSummary, sigJSON, metaJSON, e.ContentHash,
		)
		if err != nil {
			return store.NewBackendError(err)
		}
	}
	return nil
}

func (s *RelationalStore) scanEntity(row pgx.CollectableRow) (entity.Entity, error) {
	var (
		e                    entity.Entity
		entityType, vis, lang string
		sigJSON, metaJSON    []byte
	)
	if err := row.Scan(
		&e.ID, &e.RepositoryID, &e.Name, &e.QualifiedName, &e.ParentScope, &entityType,
		&vis, &lang, &e.FilePath, &e.LineRange.Start, &e.LineRange.End, &e.Content,
		&e.DocSummary, &sigJSON, &metaJSON, &e.ContentHash, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return entity.Entity{}, err
	}
	e.EntityType = entity.Type(entityType)
	e.Visibility = entity.Visibility(vis)
	e.Language = entity.Language(lang)
	if len(sigJSON) > 0 && string(sigJSON) != "null" {
		var sig entity.Signature
		if err := json.Unmarshal(sigJSON, &sig); err != nil {
			return entity.Entity{}, err
		}
		e.Signature = &sig
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
			return entity.Entity{}, err
		}
	}
	return e, nil
}

const entityColumns = `id, repository_id, name, qualified_name, parent_scope, entity_type,
		     visibility, language, file_path, line_start, line_end, content,
		     doc_summary, signature, metadata, content_hash, created_at, updated_at`

func (s *RelationalStore) GetEntity(ctx context.Context, id string) (*entity.Entity, error) {
	entities, err := s.GetEntities(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return entities[0], nil
}

func (s *RelationalStore) GetEntities(ctx context.Context, ids []string) ([]*entity.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT %s FROM entities WHERE id = ANY($1::text[])`, entityColumns)
	rows, err := s.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, store.NewBackendError(err)
	}
	defer rows.Close()

	var out []*entity.Entity
	for rows.Next() {
		e, err := s.scanEntity(rows)
		if err != nil {
			return nil, store.NewBackendError(err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *RelationalStore) DeleteEntitiesByFile(ctx context.Context, repositoryID, filePath string) ([]string, error) {
	const q = `DELETE FROM entities WHERE repository_id = $1 AND file_path = $2 RETURNING id`
	rows, err := s.pool.Query(ctx, q, repositoryID, filePath)
	if err != nil {
		return nil, store.NewBackendError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, store.NewBackendError(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SearchFullText runs a tokenized text-index search over name, qualified
// name and documentation, per §4.5.
func (s *RelationalStore) SearchFullText(ctx context.Context, repositoryID, query string, limit int) ([]*entity.Entity, error) {
	if limit <= 0 {
		limit = 20
	}
	q := fmt.Sprintf(`
		SELECT %s FROM entities
		WHERE repository_id = $1
		  AND to_tsvector('english', name || ' ' || qualified_name || ' ' || coalesce(doc_summary, ''))
		      @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(
		    to_tsvector('english', name || ' ' || qualified_name || ' ' || coalesce(doc_summary, '')),
		    plainto_tsquery('english', $2)
		) DESC
		LIMIT $3`, entityColumns)

	rows, err := s.pool.Query(ctx, q, repositoryID, query, limit)
	if err != nil {
		return nil, store.NewBackendError(err)
	}
	defer rows.Close()

	var out []*entity.Entity
	for rows.Next() {
		e, err := s.scanEntity(rows)
		if err != nil {
			return nil, store.NewBackendError(err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *RelationalStore) GetSnapshot(ctx context.Context, repositoryID, filePath string) (*entity.Snapshot, error) {
	const q = `
		SELECT repository_id, file_path, content_hash, commit_hash, entity_ids, updated_at
		FROM   file_snapshots WHERE repository_id = $1 AND file_path = $2`
	row := s.pool.QueryRow(ctx, q, repositoryID, filePath)
	var snap entity.Snapshot
	if err := row.Scan(&snap.RepositoryID, &snap.FilePath, &snap.ContentHash, &snap.CommitHash, &snap.EntityIDs, &snap.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, store.NewBackendError(err)
	}
	return &snap, nil
}

func (s *RelationalStore) UpsertSnapshot(ctx context.Context, snap *entity.Snapshot) error {
	const q = `
		INSERT INTO file_snapshots (repository_id, file_path, content_hash, commit_hash, entity_ids, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (repository_id, file_path) DO UPDATE SET
		    content_hash = EXCLUDED.content_hash,
		    commit_hash  = EXCLUDED.commit_hash,
		    entity_ids   = EXCLUDED.entity_ids,
		    updated_at   = now()`
	_, err := s.pool.Exec(ctx, q, snap.RepositoryID, snap.FilePath, snap.ContentHash, snap.CommitHash, snap.EntityIDs)
	if err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

func (s *RelationalStore) ListSnapshots(ctx context.Context, repositoryID string) ([]*entity.Snapshot, error) {
	const q = `
		SELECT repository_id, file_path, content_hash, commit_hash, entity_ids, updated_at
		FROM   file_snapshots WHERE repository_id = $1`
	rows, err := s.pool.Query(ctx, q, repositoryID)
	if err != nil {
		return nil, store.NewBackendError(err)
	}
	defer rows.Close()

	var out []*entity.Snapshot
	for rows.Next() {
		var snap entity.Snapshot
		if err := rows.Scan(&snap.RepositoryID, &snap.FilePath, &snap.ContentHash, &snap.CommitHash, &snap.EntityIDs, &snap.UpdatedAt); err != nil {
			return nil, store.NewBackendError(err)
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

func (s *RelationalStore) EnqueueOutbox(ctx context.Context, records []*entity.OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.NewBackendError(err)
	}
	defer tx.Rollback(ctx)

	if err := enqueueOutboxTx(ctx, tx, records); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

func enqueueOutboxTx(ctx context.Context, tx pgx.Tx, records []*entity.OutboxRecord) error {
	const q = `
		INSERT INTO outbox (target, op, entity_id, payload, status, created_at)
		VALUES ($1, $2, $3, $4, 'pending', now())`
	for _, r := range records {
		if _, err := tx.Exec(ctx, q, string(r.Target), string(r.Op), r.EntityID, r.Payload); err != nil {
			return store.NewBackendError(err)
		}
	}
	return nil
}

// ClaimOutbox claims up to limit pending rows for target, row-locking them
// within a single transaction (§4.6 step 1) so concurrent outbox workers
// never double-process a row. FOR UPDATE SKIP LOCKED lets other workers
// move past rows already claimed instead of blocking on them.
func (s *RelationalStore) ClaimOutbox(ctx context.Context, target entity.OutboxTarget, limit int) ([]*entity.OutboxRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, store.NewBackendError(err)
	}
	defer tx.Rollback(ctx)

	// Claim and flip to 'claimed' in the same transaction: FOR UPDATE SKIP
	// LOCKED only keeps concurrent claimants from racing on the same rows
	// while this transaction is open, so the status must also change before
	// commit or a claim issued immediately after would see 'pending' again.
	const q = `
		UPDATE outbox SET status = 'claimed'
		WHERE id IN (
		    SELECT id FROM outbox
		    WHERE target = $1 AND status = 'pending'
		    ORDER BY id
		    LIMIT $2
		    FOR UPDATE SKIP LOCKED
		)
		RETURNING id, target, op, entity_id, payload, retry_count, last_error, status, created_at, processed_at`
	rows, err := tx.Query(ctx, q, string(target), limit)
	if err != nil {
		return nil, store.NewBackendError(err)
	}

	var out []*entity.OutboxRecord
	for rows.Next() {
		var (
			r                  entity.OutboxRecord
			targetStr, opStr   string
			statusStr          string
		)
		if err := rows.Scan(&r.ID, &targetStr, &opStr, &r.EntityID, &r.Payload, &r.RetryCount, &r.LastError, &statusStr, &r.CreatedAt, &r.ProcessedAt); err != nil {
			rows.Close()
			return nil, store.NewBackendError(err)
		}
		r.Target = entity.OutboxTarget(targetStr)
		r.Op = entity.OutboxOp(opStr)
		r.Status = entity.OutboxStatus(statusStr)
		out = append(out, &r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, store.NewBackendError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, store.NewBackendError(err)
	}
	return out, nil
}

func (s *RelationalStore) MarkOutboxProcessed(ctx context.Context, id int64) error {
	const q = `UPDATE outbox SET status = 'processed', processed_at = now() WHERE id = $1`
	_, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

// CountOutboxByStatus reports how many outbox rows for target currently sit
// in status, used for the dead-letter gauge in GET /health.
func (s *RelationalStore) CountOutboxByStatus(ctx context.Context, target entity.OutboxTarget, status entity.OutboxStatus) (int, error) {
	const q = `SELECT count(*) FROM outbox WHERE target = $1 AND status = $2`
	var n int
	if err := s.pool.QueryRow(ctx, q, string(target), string(status)).Scan(&n); err != nil {
		return 0, store.NewBackendError(err)
	}
	return n, nil
}

func (s *RelationalStore) MarkOutboxFailed(ctx context.Context, id int64, retryErr error, deadLetterCeiling int) error {
	msg := ""
	if retryErr != nil {
		msg = retryErr.Error()
	}
	const q = `
		UPDATE outbox
		SET    retry_count = retry_count + 1,
		       last_error  = $2,
		       status      = CASE WHEN retry_count + 1 >= $3 THEN 'dead' ELSE 'pending' END
		WHERE  id = $1`
	_, err := s.pool.Exec(ctx, q, id, msg, deadLetterCeiling)
	if err != nil {
		return store.NewBackendError(err)
	}
	return nil
}

