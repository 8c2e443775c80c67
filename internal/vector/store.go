// Package vector stores chunk embeddings and answers nearest-neighbour
// queries scored by inner product.
package vector

import (
	"context"
	"fmt"
	"strings"

	"paperwhisper/internal/models"
	"paperwhisper/internal/util"
)

const MetricIP = "IP"

// Record is one chunk and its embedding.
type Record struct {
	ChunkID    string
	DocumentID string
	Text       string
	Metadata   models.ChunkMetadata
	Vector     []float32
}

type Stats struct {
	Collection string `json:"collection"`
	Dimension  int    `json:"dimension"`
	Metric     string `json:"metric"`
	Rows       int64  `json:"rows"`
}

// Store is implemented by PgStore and MemoryStore. Search returns results
// ordered by score descending, ties in insertion order. An empty documentID
// searches the whole collection.
type Store interface {
	EnsureCollection(ctx context.Context, dim int) error
	Insert(ctx context.Context, records []Record) ([]string, error)
	Search(ctx context.Context, query []float32, topK int, documentID string) ([]models.RetrievalResult, error)
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
	// ReplaceDocument atomically drops the document's records and inserts
	// records in their place.
	ReplaceDocument(ctx context.Context, documentID string, records []Record) ([]string, error)
	Stats(ctx context.Context) (Stats, error)
}

// Open returns the Store for backend ("pgvector" or "memory").
func Open(backend string, db DBTX, collection string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "pgvector", "postgres":
		if db == nil {
			return nil, fmt.Errorf("%w: pgvector backend needs a database", util.ErrConfig)
		}
		return NewPgStore(db, collection), nil
	case "memory":
		return NewMemoryStore(collection), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", util.ErrConfig, backend)
	}
}

// Shared reports whether backend is visible across processes.
func Shared(backend string) bool {
	return strings.ToLower(strings.TrimSpace(backend)) != "memory"
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
