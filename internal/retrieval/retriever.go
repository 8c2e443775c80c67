package retrieval

import (
	"context"
	"fmt"
	"time"

	"paperwhisper/internal/metrics"
	"paperwhisper/internal/models"
	"paperwhisper/internal/util"
	"paperwhisper/internal/vector"
)

const DefaultTopK = 5

type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever finds the chunks of a document most similar to a question.
type Retriever struct {
	embedder QueryEmbedder
	store    vector.Store
	policy   util.RetryPolicy
	metrics  *metrics.Recorder
	backend  string
}

func New(embedder QueryEmbedder, store vector.Store, policy util.RetryPolicy, rec *metrics.Recorder, backend string) *Retriever {
	return &Retriever{embedder: embedder, store: store, policy: policy, metrics: rec, backend: backend}
}

// Retrieve returns up to topK results for query, best first. No match is an
// empty slice, not an error. documentID "" searches every document.
func (r *Retriever) Retrieve(ctx context.Context, query, documentID string, topK int) ([]models.RetrievalResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	qv, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	start := time.Now()
	results, err := util.Retry(ctx, r.policy, func(ctx context.Context) ([]models.RetrievalResult, error) {
		return r.store.Search(ctx, qv, topK, documentID)
	})
	r.metrics.ObserveSearch(r.backend, metrics.Outcome(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}
	if results == nil {
		results = []models.RetrievalResult{}
	}
	return results, nil
}
