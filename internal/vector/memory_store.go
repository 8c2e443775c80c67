package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"paperwhisper/internal/models"
	"paperwhisper/internal/util"
)

// MemoryStore is a brute-force in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	name    string
	dim     int
	seq     int64
	records map[string]memRecord
}

type memRecord struct {
	Record
	seq int64
}

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name, records: make(map[string]memRecord)}
}

func (s *MemoryStore) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", util.ErrConfig, dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim == 0 {
		s.dim = dim
		return nil
	}
	if s.dim != dim {
		return fmt.Errorf("%w: collection %s has dimension %d, embedder produces %d",
			util.ErrDimensionMismatch, s.name, s.dim, dim)
	}
	return nil
}

func (s *MemoryStore) Insert(ctx context.Context, records []Record) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(records); err != nil {
		return nil, err
	}
	return s.insertLocked(records), nil
}

// ReplaceDocument swaps the document's records under one lock.
func (s *MemoryStore) ReplaceDocument(ctx context.Context, documentID string, records []Record) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(records); err != nil {
		return nil, err
	}
	s.deleteLocked(documentID)
	return s.insertLocked(records), nil
}

func (s *MemoryStore) checkLocked(records []Record) error {
	if s.dim == 0 {
		return fmt.Errorf("%w: collection %s not initialised", util.ErrConfig, s.name)
	}
	for _, r := range records {
		if len(r.Vector) != s.dim {
			return fmt.Errorf("%w: chunk %s has %d dimensions, collection has %d",
				util.ErrDimensionMismatch, r.ChunkID, len(r.Vector), s.dim)
		}
	}
	return nil
}

func (s *MemoryStore) insertLocked(records []Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		s.seq++
		seq := s.seq
		if old, ok := s.records[r.ChunkID]; ok {
			seq = old.seq
		}
		s.records[r.ChunkID] = memRecord{Record: r, seq: seq}
		ids = append(ids, r.ChunkID)
	}
	return ids
}

func (s *MemoryStore) Search(ctx context.Context, query []float32, topK int, documentID string) ([]models.RetrievalResult, error) {
	if topK <= 0 {
		return []models.RetrievalResult{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dim != 0 && len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			util.ErrDimensionMismatch, len(query), s.dim)
	}
	type hit struct {
		rec   memRecord
		score float64
	}
	hits := make([]hit, 0, len(s.records))
	for _, r := range s.records {
		if documentID != "" && r.DocumentID != documentID {
			continue
		}
		hits = append(hits, hit{rec: r, score: dot(query, r.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].rec.seq < hits[j].rec.seq
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]models.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.RetrievalResult{
			ChunkID:    h.rec.ChunkID,
			DocumentID: h.rec.DocumentID,
			Text:       h.rec.Text,
			Score:      h.score,
			Metadata:   h.rec.Metadata,
		})
	}
	return out, nil
}

func (s *MemoryStore) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(documentID), nil
}

func (s *MemoryStore) deleteLocked(documentID string) int64 {
	var n int64
	for id, r := range s.records {
		if r.DocumentID == documentID {
			delete(s.records, id)
			n++
		}
	}
	return n
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Collection: s.name, Dimension: s.dim, Metric: MetricIP, Rows: int64(len(s.records))}, nil
}
