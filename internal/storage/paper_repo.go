package storage

import (
	"context"
	"fmt"

	"paperwhisper/internal/models"
	"paperwhisper/internal/util"
)

type PaperRepo struct {
	db *DB
}

func NewPaperRepo(db *DB) *PaperRepo {
	return &PaperRepo{db: db}
}

const paperColumns = `paper_id, filename, COALESCE(title,''), status, progress, COALESCE(step,''),
       COALESCE(fail_reason,''), chunk_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaper(row rowScanner) (models.Paper, error) {
	var p models.Paper
	err := row.Scan(&p.PaperID, &p.Filename, &p.Title, &p.Status, &p.Progress, &p.Step,
		&p.FailReason, &p.ChunkCount, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Upsert registers a paper, resetting its processing state on re-upload.
func (r *PaperRepo) Upsert(ctx context.Context, p models.Paper) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO papers (paper_id, filename, title, status, progress, step, fail_reason, chunk_count)
VALUES ($1, $2, NULLIF($3,''), $4, $5, NULLIF($6,''), NULLIF($7,''), $8)
ON CONFLICT (paper_id)
DO UPDATE SET
  filename = EXCLUDED.filename,
  title = COALESCE(EXCLUDED.title, papers.title),
  status = EXCLUDED.status,
  progress = EXCLUDED.progress,
  step = EXCLUDED.step,
  fail_reason = EXCLUDED.fail_reason,
  chunk_count = EXCLUDED.chunk_count,
  updated_at = NOW()`,
		p.PaperID, p.Filename, p.Title, p.Status, p.Progress, p.Step, p.FailReason, p.ChunkCount,
	)
	if err != nil {
		return wrap("upsert paper", err)
	}
	return nil
}

func (r *PaperRepo) UpdateStatus(ctx context.Context, paperID string, status models.TaskStatus, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE papers
SET status=$2, fail_reason=NULLIF($3,''), progress = CASE WHEN $2 = 'completed' THEN 100 ELSE progress END, updated_at=NOW()
WHERE paper_id=$1`, paperID, status, failReason)
	if err != nil {
		return wrap("update paper status", err)
	}
	return nil
}

func (r *PaperRepo) UpdateProgress(ctx context.Context, paperID string, progress int, step string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE papers SET status='processing', progress=$2, step=NULLIF($3,''), updated_at=NOW() WHERE paper_id=$1`,
		paperID, progress, step)
	if err != nil {
		return wrap("update paper progress", err)
	}
	return nil
}

func (r *PaperRepo) SetIndexed(ctx context.Context, paperID, title string, chunkCount int) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE papers SET title=COALESCE(NULLIF($2,''), title), chunk_count=$3, updated_at=NOW() WHERE paper_id=$1`,
		paperID, title, chunkCount)
	if err != nil {
		return wrap("set paper indexed", err)
	}
	return nil
}

func (r *PaperRepo) Get(ctx context.Context, paperID string) (models.Paper, error) {
	p, err := scanPaper(r.db.Pool.QueryRow(ctx, `SELECT `+paperColumns+` FROM papers WHERE paper_id=$1`, paperID))
	if notFound(err) {
		return models.Paper{}, fmt.Errorf("%w: paper %s", util.ErrDocumentNotFound, paperID)
	}
	if err != nil {
		return models.Paper{}, wrap("get paper", err)
	}
	return p, nil
}

func (r *PaperRepo) List(ctx context.Context) ([]models.Paper, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+paperColumns+` FROM papers ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrap("list papers", err)
	}
	defer rows.Close()

	out := make([]models.Paper, 0)
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate papers", err)
	}
	return out, nil
}

// Delete removes the paper row; documents, summaries and translations go
// with it.
func (r *PaperRepo) Delete(ctx context.Context, paperID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM papers WHERE paper_id=$1`, paperID)
	if err != nil {
		return wrap("delete paper", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: paper %s", util.ErrDocumentNotFound, paperID)
	}
	return nil
}
