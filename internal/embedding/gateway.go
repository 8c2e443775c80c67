// Package embedding turns text into fixed-dimension vectors through the
// configured embedding provider.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"paperwhisper/internal/logging"
	"paperwhisper/internal/providers"
	"paperwhisper/internal/util"

	"go.uber.org/zap"
)

const (
	DefaultBatchSize = 100
	DefaultDimension = 1536
)

// Known output dimensions. The gateway never asks the provider.
var modelDimensions = map[string]int{
	"text-embedding-v3":      1024,
	"text-embedding-v2":      1536,
	"text-embedding-v1":      1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"bge-m3":                 1024,
	"mxbai-embed-large":      1024,
}

// DimensionFor returns the output dimension of model. override wins when
// positive; it is also used for the mock provider.
func DimensionFor(model string, override int) int {
	if override > 0 {
		return override
	}
	if d, ok := modelDimensions[strings.ToLower(strings.TrimSpace(model))]; ok {
		return d
	}
	return DefaultDimension
}

type Gateway struct {
	embedder providers.Embedder
	dim      int
	policy   util.RetryPolicy
	logger   *zap.Logger
}

type Option func(*Gateway)

func WithRetryPolicy(p util.RetryPolicy) Option {
	return func(g *Gateway) { g.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = logging.OrNop(l) }
}

// NewGateway wraps e. A positive dimOverride pins the dimension for models
// missing from the table; zero uses the table.
func NewGateway(e providers.Embedder, dimOverride int, opts ...Option) *Gateway {
	g := &Gateway{
		embedder: e,
		policy:   util.DefaultRetryPolicy(),
		logger:   zap.NewNop(),
	}
	g.dim = DimensionFor(e.Info().Model, dimOverride)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Dimension() int { return g.dim }

func (g *Gateway) Model() string { return g.embedder.Info().Model }

func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := g.EmbedBatch(ctx, []string{text}, 1)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in order, batchSize at a time. Each batch is
// retried on transient errors; a batch that still fails aborts the call and
// nothing from earlier batches is returned.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch := texts[start:end]
		vecs, err := util.Retry(ctx, g.policy, func(ctx context.Context) ([][]float32, error) {
			return g.embedder.Embed(ctx, batch)
		})
		if err != nil {
			g.logger.Warn("embedding batch failed",
				zap.Int("start", start), zap.Int("end", end), zap.Error(err))
			return nil, fmt.Errorf("embed batch [%d:%d) of %d texts: %w", start, end, len(texts), err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embed batch [%d:%d): provider returned %d vectors: %w",
				start, end, len(vecs), util.ErrPermanent)
		}
		for i, v := range vecs {
			if len(v) != g.dim {
				return nil, fmt.Errorf("%w: text %d has %d dimensions, %s expects %d",
					util.ErrDimensionMismatch, start+i, len(v), g.Model(), g.dim)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}
