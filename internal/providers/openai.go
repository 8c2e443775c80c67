package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"paperwhisper/internal/config"
	"paperwhisper/internal/util"
)

type preset struct {
	baseURL    string
	chatModel  string
	embedModel string
}

// Providers speaking the OpenAI chat/embeddings wire format.
var compatiblePresets = map[string]preset{
	"openai":   {baseURL: "https://api.openai.com/v1", chatModel: "gpt-4o-mini", embedModel: "text-embedding-3-small"},
	"qwen":     {baseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", chatModel: "qwen-max", embedModel: "text-embedding-v3"},
	"deepseek": {baseURL: "https://api.deepseek.com/v1", chatModel: "deepseek-chat"},
	"groq":     {baseURL: "https://api.groq.com/openai/v1", chatModel: "llama-3.1-8b-instant"},
}

// OpenAICompatible is a chat and embedding client for any provider exposing
// the OpenAI REST API. Each instance carries its own endpoint and credentials.
type OpenAICompatible struct {
	name       string
	keyName    string
	apiKey     string
	baseURL    string
	chatModel  string
	embedModel string
	client     *http.Client

	// streamClient has no overall deadline; streams are bounded by the
	// header timeout and an idle timeout between frames instead.
	streamClient *http.Client
	timeout      time.Duration
}

func NewOpenAICompatible(ref ProviderRef, cfg config.Config) (*OpenAICompatible, error) {
	name := strings.ToLower(ref.Name)
	p, ok := compatiblePresets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", util.ErrUnknownProvider, ref.Name)
	}
	s := cfg.Providers[name]
	apiKey := cfg.ProviderKey(name, ref.KeyAlias)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s key missing for alias %q", util.ErrMissingCredentials, name, ref.KeyAlias)
	}
	o := &OpenAICompatible{
		name:       name,
		keyName:    ref.KeyAlias,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(firstNonEmpty(s.BaseURL, p.baseURL), "/"),
		chatModel:  firstNonEmpty(s.ChatModel, p.chatModel),
		embedModel: firstNonEmpty(cfg.EmbedModel, s.EmbedModel, p.embedModel),
		timeout:    cfg.RequestTimeout,
	}
	if o.timeout <= 0 {
		o.timeout = 60 * time.Second
	}
	o.client = &http.Client{Timeout: o.timeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = o.timeout
	o.streamClient = &http.Client{Transport: transport}
	return o, nil
}

func (o *OpenAICompatible) Info() ProviderInfo {
	return ProviderInfo{Name: o.name, Model: o.chatModel, Key: o.keyName}
}

// EmbedInfo reports the embedding model, which differs from the chat model.
func (o *OpenAICompatible) EmbedInfo() ProviderInfo {
	return ProviderInfo{Name: o.name, Model: o.embedModel, Key: o.keyName}
}

func (o *OpenAICompatible) Chat(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := o.post(ctx, o.client, "/chat/completions", o.chatPayload(req, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", requestError(ctx, o.name, "chat", err)
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode %s chat response: %w", o.name, err)
	}
	if len(parsed.Choices) == 0 {
		return "", util.Transient(fmt.Errorf("%s returned empty choices", o.name))
	}
	return parsed.Choices[0].Message.Content, nil
}

func (o *OpenAICompatible) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := o.post(ctx, o.streamClient, "/chat/completions", o.chatPayload(req, true))
	if err != nil {
		cancel()
		return nil, err
	}
	return &sseStream{
		provider: o.name,
		body:     resp.Body,
		reader:   bufio.NewReader(resp.Body),
		idle:     o.timeout,
		idleStop: time.AfterFunc(o.timeout, cancel),
		cancel:   cancel,
	}, nil
}

func (o *OpenAICompatible) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if o.embedModel == "" {
		return nil, fmt.Errorf("%w: %s has no embedding model", util.ErrUnknownProvider, o.name)
	}
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	resp, err := o.post(ctx, o.client, "/embeddings", map[string]any{"model": o.embedModel, "input": inputs})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestError(ctx, o.name, "embedding", err)
	}
	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode %s embedding response: %w", o.name, err)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, util.Transient(fmt.Errorf("%s returned %d embeddings for %d inputs", o.name, len(parsed.Data), len(inputs)))
	}
	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		out = append(out, d.Embedding)
	}
	return out, nil
}

func (o *OpenAICompatible) chatPayload(req ChatRequest, stream bool) map[string]any {
	payload := map[string]any{
		"model":       o.chatModel,
		"messages":    req.Messages,
		"temperature": req.Temperature,
		"stream":      stream,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	return payload
}

func (o *OpenAICompatible) post(ctx context.Context, client *http.Client, path string, payload any) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", o.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", o.name, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, requestError(ctx, o.name, strings.TrimPrefix(path, "/"), err)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, statusError(o.name, resp.StatusCode, body)
	}
	return resp, nil
}

// sseStream reads "data: {...}" frames of an OpenAI streaming response.
// The request is canceled when no line arrives within idle.
type sseStream struct {
	provider string
	body     io.ReadCloser
	reader   *bufio.Reader
	done     bool
	idle     time.Duration
	idleStop *time.Timer
	cancel   context.CancelFunc
}

func (s *sseStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				s.done = true
				return "", io.EOF
			}
			if !s.idleStop.Stop() {
				return "", util.Transient(fmt.Errorf("%s stream idle for %s: %v", s.provider, s.idle, err))
			}
			return "", util.Transient(fmt.Errorf("%s stream read: %w", s.provider, err))
		}
		s.idleStop.Reset(s.idle)
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}
		var frame struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			return "", fmt.Errorf("decode %s stream frame: %w", s.provider, err)
		}
		if len(frame.Choices) == 0 || frame.Choices[0].Delta.Content == "" {
			continue
		}
		return frame.Choices[0].Delta.Content, nil
	}
}

func (s *sseStream) Close() error {
	s.idleStop.Stop()
	err := s.body.Close()
	s.cancel()
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
