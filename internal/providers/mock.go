package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"sync/atomic"
)

// MockProvider is a deterministic offline provider for local runs and tests.
// Embeddings are unit vectors derived from the input text.
type MockProvider struct {
	dim   int
	calls atomic.Int64
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Info() ProviderInfo {
	return ProviderInfo{Name: "mock", Model: "mock", Key: "mock"}
}

// Calls reports how many chat requests were served.
func (m *MockProvider) Calls() int64 {
	return m.calls.Load()
}

func (m *MockProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, 0, len(inputs))
	for _, input := range inputs {
		vectors = append(vectors, deterministicVector(input, m.dim))
	}
	return vectors, nil
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.calls.Add(1)
	return mockReply(req), nil
}

func (m *MockProvider) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	words := strings.SplitAfter(mockReply(req), " ")
	return &sliceStream{ctx: ctx, parts: words}, nil
}

func mockReply(req ChatRequest) string {
	switch req.Operation {
	case "key_points":
		return `["The paper states a clear research question.", "The method is evaluated on public benchmarks.", "Results improve on prior baselines."]`
	case "translate":
		last := ""
		if n := len(req.Messages); n > 0 {
			last = req.Messages[n-1].Content
		}
		return fmt.Sprintf("[translated] %d chars", len([]rune(last)))
	case "section_summary", "overall_summary", "methodology", "contributions":
		return "Mock " + strings.ReplaceAll(req.Operation, "_", " ") + "."
	default:
		return "Mock answer grounded in the provided paper excerpts."
	}
}

type sliceStream struct {
	ctx   context.Context
	parts []string
	pos   int
}

func (s *sliceStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.parts) {
		return "", io.EOF
	}
	p := s.parts[s.pos]
	s.pos++
	return p, nil
}

func (s *sliceStream) Close() error { return nil }

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251), byte(i/251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
