package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"paperwhisper/internal/models"
	"paperwhisper/internal/util"
)

type SummaryRepo struct {
	db *DB
}

func NewSummaryRepo(db *DB) *SummaryRepo {
	return &SummaryRepo{db: db}
}

func (r *SummaryRepo) Save(ctx context.Context, s models.PaperSummary) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO summaries (document_id, status, content) VALUES ($1, $2, $3::jsonb)
ON CONFLICT (document_id) DO UPDATE SET status = EXCLUDED.status, content = EXCLUDED.content, updated_at = NOW()`,
		s.DocumentID, s.Status, string(b))
	if err != nil {
		return wrap("save summary", err)
	}
	return nil
}

// MarkProcessing records that a summary run started without discarding a
// previous result's content.
func (r *SummaryRepo) MarkProcessing(ctx context.Context, documentID string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO summaries (document_id, status, content) VALUES ($1, 'processing', jsonb_build_object('document_id', $1::text, 'status', 'processing'))
ON CONFLICT (document_id) DO UPDATE SET status = 'processing', updated_at = NOW()`, documentID)
	if err != nil {
		return wrap("mark summary processing", err)
	}
	return nil
}

func (r *SummaryRepo) Get(ctx context.Context, documentID string) (models.PaperSummary, error) {
	var (
		status models.TaskStatus
		b      []byte
	)
	err := r.db.Pool.QueryRow(ctx, `SELECT status, content FROM summaries WHERE document_id=$1`, documentID).Scan(&status, &b)
	if notFound(err) {
		return models.PaperSummary{}, fmt.Errorf("%w: no summary for %s", util.ErrNotFound, documentID)
	}
	if err != nil {
		return models.PaperSummary{}, wrap("get summary", err)
	}
	var s models.PaperSummary
	if err := json.Unmarshal(b, &s); err != nil {
		return models.PaperSummary{}, fmt.Errorf("decode summary: %w", err)
	}
	s.Status = status
	return s, nil
}
