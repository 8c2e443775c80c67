package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"paperwhisper/internal/models"
	"paperwhisper/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// pgvector refuses HNSW indexes on wider vectors; those collections fall
// back to exact scans.
const maxIndexedDimension = 2000

type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore keeps one table per collection in Postgres with pgvector. The
// collection's dimension is recorded in vector_collections by the first
// caller of EnsureCollection and never changes afterwards.
type PgStore struct {
	db   DBTX
	name string
	dim  int
}

func NewPgStore(db DBTX, collection string) *PgStore {
	return &PgStore{db: db, name: collection}
}

func (s *PgStore) table() string {
	return pgx.Identifier{"chunks_" + s.name}.Sanitize()
}

func (s *PgStore) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", util.ErrConfig, dim)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return pgError("begin ensure collection", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// One lock for all collections: CREATE EXTENSION is not safe to race.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('vector_collections'))`); err != nil {
		return pgError("lock collection", err)
	}
	if _, err := tx.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return pgError("create vector extension", err)
	}
	if _, err := tx.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vector_collections (
  name TEXT PRIMARY KEY,
  dimension INT NOT NULL,
  metric TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return pgError("create collection registry", err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO vector_collections (name, dimension, metric)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO NOTHING`, s.name, dim, MetricIP); err != nil {
		return pgError("register collection", err)
	}
	var bound int
	if err := tx.QueryRow(ctx, `SELECT dimension FROM vector_collections WHERE name = $1`, s.name).Scan(&bound); err != nil {
		return pgError("read collection dimension", err)
	}
	if bound != dim {
		return fmt.Errorf("%w: collection %s has dimension %d, embedder produces %d",
			util.ErrDimensionMismatch, s.name, bound, dim)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  seq BIGSERIAL,
  chunk_id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL,
  text TEXT NOT NULL,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  embedding vector(%d) NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table(), dim)); err != nil {
		return pgError("create collection table", err)
	}
	docIdx := pgx.Identifier{"chunks_" + s.name + "_document_idx"}.Sanitize()
	if _, err := tx.Exec(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`, docIdx, s.table())); err != nil {
		return pgError("create document index", err)
	}
	if dim <= maxIndexedDimension {
		vecIdx := pgx.Identifier{"chunks_" + s.name + "_embedding_idx"}.Sanitize()
		if _, err := tx.Exec(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_ip_ops)`, vecIdx, s.table())); err != nil {
			return pgError("create vector index", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return pgError("commit ensure collection", err)
	}
	s.dim = dim
	return nil
}

// Insert upserts records by chunk id in one transaction.
func (s *PgStore) Insert(ctx context.Context, records []Record) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}
	if err := s.checkDimensions(records); err != nil {
		return nil, err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, pgError("begin insert", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	ids, err := s.insertTx(ctx, tx, records)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, pgError("commit insert", err)
	}
	return ids, nil
}

// ReplaceDocument deletes the document's rows and inserts records in the
// same transaction, so readers see either the old or the new chunks.
func (s *PgStore) ReplaceDocument(ctx context.Context, documentID string, records []Record) ([]string, error) {
	if err := s.checkDimensions(records); err != nil {
		return nil, err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, pgError("begin replace", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.table()), documentID); err != nil {
		return nil, pgError("delete document vectors", err)
	}
	ids := []string{}
	if len(records) > 0 {
		if ids, err = s.insertTx(ctx, tx, records); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, pgError("commit replace", err)
	}
	return ids, nil
}

func (s *PgStore) checkDimensions(records []Record) error {
	if s.dim == 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Vector) != s.dim {
			return fmt.Errorf("%w: chunk %s has %d dimensions, collection has %d",
				util.ErrDimensionMismatch, r.ChunkID, len(r.Vector), s.dim)
		}
	}
	return nil
}

func (s *PgStore) insertTx(ctx context.Context, tx pgx.Tx, records []Record) ([]string, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (chunk_id, document_id, text, metadata, embedding)
VALUES ($1, $2, $3, $4, $5::vector)
ON CONFLICT (chunk_id)
DO UPDATE SET
  document_id = EXCLUDED.document_id,
  text = EXCLUDED.text,
  metadata = EXCLUDED.metadata,
  embedding = EXCLUDED.embedding`, s.table())

	batch := &pgx.Batch{}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata for %s: %w", r.ChunkID, err)
		}
		batch.Queue(query, r.ChunkID, r.DocumentID, r.Text, meta, pgvector.NewVector(r.Vector))
		ids = append(ids, r.ChunkID)
	}
	br := tx.SendBatch(ctx, batch)
	for _, id := range ids {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return nil, pgError("insert chunk "+id, err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, pgError("close insert batch", err)
	}
	return ids, nil
}

func (s *PgStore) Search(ctx context.Context, query []float32, topK int, documentID string) ([]models.RetrievalResult, error) {
	if topK <= 0 {
		return []models.RetrievalResult{}, nil
	}
	if s.dim > 0 && len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			util.ErrDimensionMismatch, len(query), s.dim)
	}
	// <#> is the negative inner product, so ascending distance is descending score.
	sql := fmt.Sprintf(`
SELECT chunk_id, document_id, text, metadata, -(embedding <#> $1::vector) AS score
FROM %s
WHERE ($2 = '' OR document_id = $2)
ORDER BY embedding <#> $1::vector, seq
LIMIT $3`, s.table())

	rows, err := s.db.Query(ctx, sql, pgvector.NewVector(query), documentID, topK)
	if err != nil {
		return nil, pgError("query vector search", err)
	}
	defer rows.Close()

	results := make([]models.RetrievalResult, 0, topK)
	for rows.Next() {
		var (
			r    models.RetrievalResult
			meta []byte
		)
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Text, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", r.ChunkID, err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("iterate search results", err)
	}
	return results, nil
}

func (s *PgStore) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.table()), documentID)
	if err != nil {
		var pgErr *pgconn.PgError
		// Nothing was ever indexed.
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			return 0, nil
		}
		return 0, pgError("delete document vectors", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Collection: s.name, Metric: MetricIP}
	err := s.db.QueryRow(ctx, `SELECT dimension, metric FROM vector_collections WHERE name = $1`, s.name).
		Scan(&st.Dimension, &st.Metric)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == "42P01") {
			return st, nil
		}
		return st, pgError("read collection", err)
	}
	if err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table())).Scan(&st.Rows); err != nil {
		return st, pgError("count collection rows", err)
	}
	return st, nil
}

// pgError marks connection loss and timeouts as transient.
func pgError(op string, err error) error {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return util.Transient(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
