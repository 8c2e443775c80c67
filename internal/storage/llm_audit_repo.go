package storage

import (
	"context"

	"paperwhisper/internal/providers"

	"github.com/google/uuid"
)

// LLMAuditRepo keeps one row per provider call. It satisfies
// providers.Auditor.
type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) RecordCall(ctx context.Context, rec providers.CallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls (call_id, operation, provider_name, model, status, error_type, duration_ms)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7)`,
		uuid.New(), rec.Operation, rec.Provider, rec.Model, rec.Status, string(rec.ErrorType), rec.Duration.Milliseconds())
	if err != nil {
		return wrap("insert llm call", err)
	}
	return nil
}

var _ providers.Auditor = (*LLMAuditRepo)(nil)
