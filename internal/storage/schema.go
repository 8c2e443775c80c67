package storage

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS papers (
  paper_id TEXT PRIMARY KEY,
  filename TEXT NOT NULL,
  title TEXT,
  status TEXT NOT NULL,
  progress INT NOT NULL DEFAULT 0,
  step TEXT,
  fail_reason TEXT,
  chunk_count INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS documents (
  document_id TEXT PRIMARY KEY REFERENCES papers(paper_id) ON DELETE CASCADE,
  metadata JSONB NOT NULL,
  sections JSONB NOT NULL,
  full_text TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS summaries (
  document_id TEXT PRIMARY KEY REFERENCES papers(paper_id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  content JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS translations (
  document_id TEXT NOT NULL REFERENCES papers(paper_id) ON DELETE CASCADE,
  target_language TEXT NOT NULL,
  status TEXT NOT NULL,
  content JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (document_id, target_language)
)`,
	`CREATE TABLE IF NOT EXISTS llm_calls (
  call_id UUID PRIMARY KEY,
  operation TEXT NOT NULL,
  provider_name TEXT NOT NULL,
  model TEXT NOT NULL,
  status TEXT NOT NULL,
  error_type TEXT,
  duration_ms BIGINT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS llm_calls_created_idx ON llm_calls (created_at)`,
}

// Migrate creates the relational schema. Vector tables are created by the
// vector store itself.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
