package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"paperwhisper/internal/models"
	"paperwhisper/internal/util"
)

type TranslationRepo struct {
	db *DB
}

func NewTranslationRepo(db *DB) *TranslationRepo {
	return &TranslationRepo{db: db}
}

func (r *TranslationRepo) Save(ctx context.Context, t models.Translation) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode translation: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO translations (document_id, target_language, status, content) VALUES ($1, $2, $3, $4::jsonb)
ON CONFLICT (document_id, target_language)
DO UPDATE SET status = EXCLUDED.status, content = EXCLUDED.content, updated_at = NOW()`,
		t.DocumentID, t.TargetLanguage, t.Status, string(b))
	if err != nil {
		return wrap("save translation", err)
	}
	return nil
}

func (r *TranslationRepo) Get(ctx context.Context, documentID, targetLanguage string) (models.Translation, error) {
	var b []byte
	err := r.db.Pool.QueryRow(ctx, `
SELECT content FROM translations WHERE document_id=$1 AND target_language=$2`, documentID, targetLanguage).Scan(&b)
	if notFound(err) {
		return models.Translation{}, fmt.Errorf("%w: no %s translation for %s", util.ErrNotFound, targetLanguage, documentID)
	}
	if err != nil {
		return models.Translation{}, wrap("get translation", err)
	}
	var t models.Translation
	if err := json.Unmarshal(b, &t); err != nil {
		return models.Translation{}, fmt.Errorf("decode translation: %w", err)
	}
	return t, nil
}
