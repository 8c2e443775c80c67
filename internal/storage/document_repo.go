package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"paperwhisper/internal/models"
	"paperwhisper/internal/util"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Save(ctx context.Context, doc models.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	sections := doc.Sections
	if sections == nil {
		sections = []models.Section{}
	}
	secs, err := json.Marshal(sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO documents (document_id, metadata, sections, full_text, created_at)
VALUES ($1, $2::jsonb, $3::jsonb, $4, $5)
ON CONFLICT (document_id)
DO UPDATE SET metadata = EXCLUDED.metadata, sections = EXCLUDED.sections,
  full_text = EXCLUDED.full_text, created_at = EXCLUDED.created_at`,
		doc.DocumentID, string(meta), string(secs), doc.FullText, doc.CreatedAt)
	if err != nil {
		return wrap("save document", err)
	}
	return nil
}

func (r *DocumentRepo) Load(ctx context.Context, documentID string) (models.Document, error) {
	var (
		doc        models.Document
		meta, secs []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
SELECT document_id, metadata, sections, full_text, created_at FROM documents WHERE document_id=$1`, documentID).
		Scan(&doc.DocumentID, &meta, &secs, &doc.FullText, &doc.CreatedAt)
	if notFound(err) {
		return models.Document{}, fmt.Errorf("%w: %s has not been parsed", util.ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return models.Document{}, wrap("load document", err)
	}
	if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
		return models.Document{}, fmt.Errorf("decode metadata: %w", err)
	}
	if err := json.Unmarshal(secs, &doc.Sections); err != nil {
		return models.Document{}, fmt.Errorf("decode sections: %w", err)
	}
	return doc, nil
}
