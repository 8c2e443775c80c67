package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"paperwhisper/internal/models"
	"paperwhisper/internal/providers"
	"paperwhisper/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("PW_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("PW_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func newPaper(t *testing.T, db *DB) models.Paper {
	t.Helper()
	ctx := context.Background()
	p := models.Paper{PaperID: "test-" + uuid.NewString()[:8], Filename: "p.pdf", Status: models.StatusPending}
	require.NoError(t, NewPaperRepo(db).Upsert(ctx, p))
	t.Cleanup(func() { _ = NewPaperRepo(db).Delete(context.Background(), p.PaperID) })
	return p
}

func TestNewDBBadDSNIsConfigError(t *testing.T) {
	_, err := NewDB(context.Background(), "postgres://%zz")
	require.Error(t, err)
	require.Equal(t, util.KindConfig, util.Kind(err))
}

func TestPaperRepoLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewPaperRepo(db)
	p := newPaper(t, db)

	require.NoError(t, repo.UpdateProgress(ctx, p.PaperID, 50, "vectorize"))
	got, err := repo.Get(ctx, p.PaperID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, got.Status)
	require.Equal(t, 50, got.Progress)
	require.Equal(t, "vectorize", got.Step)

	require.NoError(t, repo.SetIndexed(ctx, p.PaperID, "Attention", 12))
	require.NoError(t, repo.UpdateStatus(ctx, p.PaperID, models.StatusCompleted, ""))
	got, err = repo.Get(ctx, p.PaperID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.Equal(t, 100, got.Progress)
	require.Equal(t, "Attention", got.Title)
	require.Equal(t, 12, got.ChunkCount)

	// Re-upload resets processing state but keeps the title.
	require.NoError(t, repo.Upsert(ctx, models.Paper{PaperID: p.PaperID, Filename: "p2.pdf", Status: models.StatusPending}))
	got, err = repo.Get(ctx, p.PaperID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, got.Status)
	require.Equal(t, 0, got.Progress)
	require.Equal(t, "Attention", got.Title)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	found := false
	for _, l := range list {
		found = found || l.PaperID == p.PaperID
	}
	require.True(t, found)

	require.NoError(t, repo.Delete(ctx, p.PaperID))
	_, err = repo.Get(ctx, p.PaperID)
	require.ErrorIs(t, err, util.ErrDocumentNotFound)
	require.ErrorIs(t, repo.Delete(ctx, p.PaperID), util.ErrDocumentNotFound)
}

func TestDocumentRepoSaveLoad(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	p := newPaper(t, db)
	repo := NewDocumentRepo(db)

	_, err := repo.Load(ctx, p.PaperID)
	require.ErrorIs(t, err, util.ErrDocumentNotFound)

	doc := models.Document{
		DocumentID: p.PaperID,
		Metadata:   models.Metadata{Title: "Attention", Authors: []string{"A. Author"}},
		Sections:   []models.Section{{ID: "s1", Title: "Intro", Level: 1, Content: "body"}},
		FullText:   "# Intro\n\nbody",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.Save(ctx, doc))
	require.NoError(t, repo.Save(ctx, doc))

	got, err := repo.Load(ctx, p.PaperID)
	require.NoError(t, err)
	require.Equal(t, "Attention", got.Metadata.Title)
	require.Len(t, got.Sections, 1)
	require.Equal(t, "Intro", got.Sections[0].Title)
}

func TestSummaryRepoKeepsContentWhileProcessing(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	p := newPaper(t, db)
	repo := NewSummaryRepo(db)

	_, err := repo.Get(ctx, p.PaperID)
	require.ErrorIs(t, err, util.ErrNotFound)

	require.NoError(t, repo.MarkProcessing(ctx, p.PaperID))
	got, err := repo.Get(ctx, p.PaperID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, got.Status)

	require.NoError(t, repo.Save(ctx, models.PaperSummary{
		DocumentID:     p.PaperID,
		OverallSummary: "short",
		KeyPoints:      []string{"a", "b"},
		Status:         models.StatusCompleted,
	}))
	require.NoError(t, repo.MarkProcessing(ctx, p.PaperID))
	got, err = repo.Get(ctx, p.PaperID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, got.Status)
	require.Equal(t, "short", got.OverallSummary)
}

func TestTranslationRepoKeyedByLanguage(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	p := newPaper(t, db)
	repo := NewTranslationRepo(db)

	for _, lang := range []string{"French", "Chinese"} {
		require.NoError(t, repo.Save(ctx, models.Translation{
			DocumentID:     p.PaperID,
			SourceLanguage: "English",
			TargetLanguage: lang,
			Segments:       []models.TranslationSegment{{Original: "hello", Translated: lang + " hello"}},
			Status:         models.StatusCompleted,
		}))
	}
	got, err := repo.Get(ctx, p.PaperID, "French")
	require.NoError(t, err)
	require.Equal(t, "French hello", got.Segments[0].Translated)

	_, err = repo.Get(ctx, p.PaperID, "German")
	require.ErrorIs(t, err, util.ErrNotFound)
}

func TestLLMAuditRepoRecordCall(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	op := "test-" + uuid.NewString()[:8]
	t.Cleanup(func() { _, _ = db.Pool.Exec(context.Background(), `DELETE FROM llm_calls WHERE operation=$1`, op) })

	repo := NewLLMAuditRepo(db)
	require.NoError(t, repo.RecordCall(ctx, providers.CallRecord{
		Operation: op, Provider: "mock", Model: "mock-chat", Status: "error",
		ErrorType: providers.ErrorRate, Duration: 1500 * time.Millisecond,
	}))

	var (
		n  int
		ms int64
	)
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT COUNT(*), MAX(duration_ms) FROM llm_calls WHERE operation=$1`, op).Scan(&n, &ms))
	require.Equal(t, 1, n)
	require.EqualValues(t, 1500, ms)
}
