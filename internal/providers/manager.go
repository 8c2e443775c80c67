package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paperwhisper/internal/config"
	"paperwhisper/internal/logging"
	"paperwhisper/internal/metrics"
	"paperwhisper/internal/util"

	"go.uber.org/zap"
)

type chatConstructor func(ref ProviderRef, cfg config.Config) (ChatModel, error)

type embedConstructor func(ref ProviderRef, cfg config.Config) (Embedder, error)

func compatibleChat(ref ProviderRef, cfg config.Config) (ChatModel, error) {
	return NewOpenAICompatible(ref, cfg)
}

func compatibleEmbed(ref ProviderRef, cfg config.Config) (Embedder, error) {
	o, err := NewOpenAICompatible(ref, cfg)
	if err != nil {
		return nil, err
	}
	return compatibleEmbedder{o}, nil
}

var chatRegistry = map[string]chatConstructor{
	"openai":   compatibleChat,
	"qwen":     compatibleChat,
	"deepseek": compatibleChat,
	"groq":     compatibleChat,
	"mock": func(_ ProviderRef, cfg config.Config) (ChatModel, error) {
		return NewMockProvider(cfg.EmbedDim), nil
	},
}

var embedRegistry = map[string]embedConstructor{
	"openai": compatibleEmbed,
	"qwen":   compatibleEmbed,
	"ollama": func(ref ProviderRef, cfg config.Config) (Embedder, error) {
		return NewOllamaEmbedder(ref, cfg), nil
	},
	"mock": func(_ ProviderRef, cfg config.Config) (Embedder, error) {
		return NewMockProvider(cfg.EmbedDim), nil
	},
}

type compatibleEmbedder struct {
	*OpenAICompatible
}

func (e compatibleEmbedder) Info() ProviderInfo { return e.EmbedInfo() }

func NewChatModel(ref ProviderRef, cfg config.Config) (ChatModel, error) {
	ctor, ok := chatRegistry[strings.ToLower(ref.Name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q does not support chat", util.ErrUnknownProvider, ref.Raw)
	}
	return ctor(ref, cfg)
}

func NewEmbedder(ref ProviderRef, cfg config.Config) (Embedder, error) {
	ctor, ok := embedRegistry[strings.ToLower(ref.Name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q does not support embeddings", util.ErrUnknownProvider, ref.Raw)
	}
	return ctor(ref, cfg)
}

// CallRecord describes one finished provider call for the audit log.
type CallRecord struct {
	Operation string
	Provider  string
	Model     string
	Status    string
	ErrorType ErrorType
	Duration  time.Duration
}

type Auditor interface {
	RecordCall(ctx context.Context, rec CallRecord) error
}

type Options struct {
	Metrics *metrics.Recorder
	Auditor Auditor
	Logger  *zap.Logger
}

// Manager builds the configured chat failover chain and embedder.
type Manager struct {
	chat  ChatModel
	embed Embedder
	refs  []ProviderRef
}

func NewManager(cfg config.Config, opts Options) (*Manager, error) {
	logger := logging.OrNop(opts.Logger)
	refs := ParseProviderList(cfg.LLMProviders)
	chain := make([]ChatModel, 0, len(refs))
	for _, ref := range refs {
		m, err := NewChatModel(ref, cfg)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", ref.Raw, err)
		}
		chain = append(chain, &instrumentedChat{ChatModel: m, opts: opts})
	}
	embedRef := ParseProviderRef(cfg.EmbedProvider)
	if embedRef.Name == "" {
		embedRef = ProviderRef{Raw: "mock", Name: "mock"}
	}
	e, err := NewEmbedder(embedRef, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider %s: %w", embedRef.Raw, err)
	}
	m := &Manager{
		embed: &instrumentedEmbedder{Embedder: e, opts: opts},
		refs:  refs,
	}
	if len(chain) == 1 {
		m.chat = chain[0]
	} else {
		m.chat = &failoverChat{models: chain, logger: logger}
	}
	return m, nil
}

func (m *Manager) Chat() ChatModel { return m.chat }

func (m *Manager) Embedder() Embedder { return m.embed }

func (m *Manager) LLMRefs() []ProviderRef { return m.refs }

// failoverChat tries providers in order, moving on when a provider is out
// of quota, rate limited, unreachable or misconfigured. Streams only fail
// over before the first increment has been produced.
type failoverChat struct {
	models []ChatModel
	logger *zap.Logger
}

func (f *failoverChat) Info() ProviderInfo { return f.models[0].Info() }

func (f *failoverChat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	var lastErr error
	for _, m := range f.models {
		out, err := m.Chat(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !shouldFailover(err) || ctx.Err() != nil {
			return "", err
		}
		f.logger.Warn("chat provider failed, trying next", zap.String("provider", m.Info().Name), zap.Error(err))
	}
	return "", lastErr
}

func (f *failoverChat) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	var lastErr error
	for _, m := range f.models {
		s, err := m.ChatStream(ctx, req)
		if err == nil {
			return s, nil
		}
		lastErr = err
		if !shouldFailover(err) || ctx.Err() != nil {
			return nil, err
		}
		f.logger.Warn("chat stream provider failed, trying next", zap.String("provider", m.Info().Name), zap.Error(err))
	}
	return nil, lastErr
}

type instrumentedChat struct {
	ChatModel
	opts Options
}

func (c *instrumentedChat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	start := time.Now()
	out, err := c.ChatModel.Chat(ctx, req)
	c.opts.observe(ctx, c.Info(), operationOr(req.Operation, "chat"), err, time.Since(start))
	return out, err
}

func (c *instrumentedChat) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	start := time.Now()
	s, err := c.ChatModel.ChatStream(ctx, req)
	c.opts.observe(ctx, c.Info(), operationOr(req.Operation, "chat")+"_stream", err, time.Since(start))
	return s, err
}

type instrumentedEmbedder struct {
	Embedder
	opts Options
}

func (e *instrumentedEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	start := time.Now()
	out, err := e.Embedder.Embed(ctx, inputs)
	e.opts.observe(ctx, e.Info(), "embed", err, time.Since(start))
	return out, err
}

func (o Options) observe(ctx context.Context, info ProviderInfo, op string, err error, d time.Duration) {
	o.Metrics.ObserveProvider(info.Name, op, metrics.Outcome(err), d)
	if o.Auditor == nil || errors.Is(err, context.Canceled) {
		return
	}
	rec := CallRecord{Operation: op, Provider: info.Name, Model: info.Model, Status: "ok", Duration: d}
	if err != nil {
		rec.Status = "failed"
		rec.ErrorType = ClassifyError(err)
	}
	// The audit row is best effort and must not outlive or fail the call.
	if auditErr := o.Auditor.RecordCall(context.WithoutCancel(ctx), rec); auditErr != nil && o.Logger != nil {
		o.Logger.Warn("record provider call", zap.Error(auditErr))
	}
}

func operationOr(op, fallback string) string {
	if op == "" {
		return fallback
	}
	return op
}
