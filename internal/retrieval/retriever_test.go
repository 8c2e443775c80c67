package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"paperwhisper/internal/models"
	"paperwhisper/internal/textproc"
	"paperwhisper/internal/util"
	"paperwhisper/internal/vector"

	"github.com/stretchr/testify/require"
)

type staticEmbedder []float32

func (s staticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s, nil
}

type flakyStore struct {
	vector.Store
	failures int
	calls    int
	topK     int
}

func (f *flakyStore) Search(ctx context.Context, q []float32, topK int, doc string) ([]models.RetrievalResult, error) {
	f.calls++
	f.topK = topK
	if f.calls <= f.failures {
		return nil, util.Transient(errors.New("connection reset"))
	}
	return f.Store.Search(ctx, q, topK, doc)
}

func seeded(t *testing.T) vector.Store {
	ctx := context.Background()
	s := vector.NewMemoryStore("t")
	require.NoError(t, s.EnsureCollection(ctx, 2))
	_, err := s.Insert(ctx, []vector.Record{
		{ChunkID: "p_chunk_0", DocumentID: "p", Text: "alpha", Vector: []float32{1, 0}},
		{ChunkID: "p_chunk_1", DocumentID: "p", Text: "beta", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)
	return s
}

func TestRetrieve_DefaultTopKAndRetry(t *testing.T) {
	store := &flakyStore{Store: seeded(t), failures: 2}
	r := New(staticEmbedder{1, 0}, store, util.RetryPolicy{MaxAttempts: 3}, nil, "memory")

	got, err := r.Retrieve(context.Background(), "alpha?", "p", 0)
	require.NoError(t, err)
	require.Equal(t, DefaultTopK, store.topK)
	require.Equal(t, 3, store.calls)
	require.Equal(t, "p_chunk_0", got[0].ChunkID)
}

func TestRetrieve_NoMatchIsEmpty(t *testing.T) {
	r := New(staticEmbedder{1, 0}, seeded(t), util.RetryPolicy{MaxAttempts: 1}, nil, "memory")
	got, err := r.Retrieve(context.Background(), "q", "other-doc", 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestRetrieve_GivesUpAfterAttempts(t *testing.T) {
	store := &flakyStore{Store: seeded(t), failures: 5}
	r := New(staticEmbedder{1, 0}, store, util.RetryPolicy{MaxAttempts: 2}, nil, "memory")
	_, err := r.Retrieve(context.Background(), "q", "p", 3)
	require.ErrorIs(t, err, util.ErrTransient)
	require.Equal(t, 2, store.calls)
}

// keywordEmbedder puts weight on the first axis when the text mentions a
// method.
type keywordEmbedder struct{}

func (keywordEmbedder) vector(text string) []float32 {
	v := []float32{0, 0.1}
	if strings.Contains(strings.ToLower(text), "method") {
		v[0] = 1
	}
	return v
}

func (k keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return k.vector(text), nil
}

func TestRetrieve_SectionChunksFindMethod(t *testing.T) {
	ctx := context.Background()
	doc := models.Document{
		DocumentID: "P1",
		Sections: []models.Section{
			{ID: "section_0", Title: "Introduction", Level: 1, Order: 0, Content: "This paper studies attention in long documents."},
			{ID: "section_1", Title: "Method", Level: 1, Order: 1, Content: "Our method trains a sparse transformer with gradient descent."},
		},
	}
	chunks := textproc.ChunkDocument(doc, textproc.NewChunker(textproc.HeuristicCounter{}, 800, 100))
	require.Len(t, chunks, 2)

	store := vector.NewMemoryStore("t")
	require.NoError(t, store.EnsureCollection(ctx, 2))
	var emb keywordEmbedder
	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vector.Record{ChunkID: c.ChunkID, DocumentID: c.DocumentID, Text: c.Text, Metadata: c.Metadata, Vector: emb.vector(c.Text)}
	}
	_, err := store.Insert(ctx, records)
	require.NoError(t, err)

	r := New(emb, store, util.RetryPolicy{MaxAttempts: 1}, nil, "memory")
	got, err := r.Retrieve(ctx, "what method is used?", "P1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Method", got[0].Metadata.SectionTitle)
	require.Equal(t, "P1_chunk_1", got[0].ChunkID)
}
