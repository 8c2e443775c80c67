package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"paperwhisper/internal/config"
	"paperwhisper/internal/util"
)

// OllamaEmbedder supports local, free embeddings via Ollama.
// Example model: nomic-embed-text (Nomic Embed v1.5 family).
type OllamaEmbedder struct {
	alias   string
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaEmbedder(ref ProviderRef, cfg config.Config) *OllamaEmbedder {
	s := cfg.Providers["ollama"]
	baseURL := firstNonEmpty(s.BaseURL, "http://localhost:11434")
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OllamaEmbedder{
		alias:   ref.KeyAlias,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   firstNonEmpty(cfg.EmbedModel, resolveOllamaEmbedModel(ref.KeyAlias), s.EmbedModel),
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *OllamaEmbedder) Info() ProviderInfo {
	return ProviderInfo{Name: "ollama", Model: o.model, Key: o.alias}
}

func (o *OllamaEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, 0, len(inputs))
	for _, text := range inputs {
		payload, err := json.Marshal(map[string]any{"model": o.model, "prompt": text})
		if err != nil {
			return nil, fmt.Errorf("encode ollama request: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build ollama request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(httpReq)
		if err != nil {
			return nil, requestError(ctx, "ollama", "embedding", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, statusError("ollama", resp.StatusCode, body)
		}
		var parsed struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("decode ollama embedding response: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return nil, util.Transient(fmt.Errorf("ollama returned empty embedding"))
		}
		out = append(out, parsed.Embedding)
	}
	return out, nil
}

func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		if v := strings.TrimSpace(os.Getenv("PW_OLLAMA_EMBED_MODEL_" + sanitizeEnvToken(alias))); v != "" {
			return v
		}
		switch strings.ToLower(alias) {
		case "nomic":
			return "nomic-embed-text"
		case "bge":
			return "bge-m3"
		}
		// ollama:mxbai-embed-large names the model directly.
		if strings.ContainsAny(alias, "-/.") {
			return alias
		}
	}
	return "nomic-embed-text"
}

func sanitizeEnvToken(s string) string {
	s = strings.ToUpper(s)
	return strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(s)
}
