// Package rag answers questions about a paper from its retrieved excerpts
// and the session history.
package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"paperwhisper/internal/logging"
	"paperwhisper/internal/metrics"
	"paperwhisper/internal/models"
	"paperwhisper/internal/providers"
	"paperwhisper/internal/session"
	"paperwhisper/internal/util"

	"go.uber.org/zap"
)

const answerTemperature = 0.7

type Retriever interface {
	Retrieve(ctx context.Context, query, documentID string, topK int) ([]models.RetrievalResult, error)
}

type Request struct {
	DocumentID string `json:"paper_id"`
	Question   string `json:"question"`
	SessionID  string `json:"session_id,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
}

type Response struct {
	SessionID string                   `json:"session_id"`
	Answer    string                   `json:"answer"`
	Sources   []models.RetrievalResult `json:"sources"`
}

type Engine struct {
	retriever Retriever
	sessions  *session.Manager
	chat      providers.ChatModel
	topK      int
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

func NewEngine(r Retriever, sessions *session.Manager, chat providers.ChatModel, topK int, rec *metrics.Recorder, logger *zap.Logger) *Engine {
	return &Engine{
		retriever: r,
		sessions:  sessions,
		chat:      chat,
		topK:      topK,
		metrics:   rec,
		logger:    logging.OrNop(logger),
	}
}

// prepared is everything resolved before the model is called.
type prepared struct {
	session *models.Session
	sources []models.RetrievalResult
	history []models.Message
}

func (e *Engine) prepare(ctx context.Context, req Request) (prepared, error) {
	if strings.TrimSpace(req.Question) == "" {
		return prepared{}, fmt.Errorf("%w: question is empty", util.ErrPermanent)
	}
	if req.DocumentID == "" {
		return prepared{}, fmt.Errorf("%w: paper id is empty", util.ErrPermanent)
	}
	s, err := e.sessions.Resolve(ctx, req.SessionID, req.DocumentID)
	if err != nil {
		return prepared{}, fmt.Errorf("resolve session: %w", err)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = e.topK
	}
	sources, err := e.retriever.Retrieve(ctx, req.Question, req.DocumentID, topK)
	if err != nil {
		return prepared{session: s}, fmt.Errorf("retrieve: %w", err)
	}
	return prepared{
		session: s,
		sources: sources,
		history: recentPairs(s.Messages, historyPairs),
	}, nil
}

// Answer runs one blocking question/answer turn. Generation is not retried.
func (e *Engine) Answer(ctx context.Context, req Request) (resp Response, err error) {
	defer func() { e.metrics.IncChat("blocking", metrics.Outcome(err)) }()

	p, err := e.prepare(ctx, req)
	resp = newResponse(p, req)
	if err != nil {
		return resp, err
	}
	if len(p.sources) == 0 {
		e.logger.Info("no relevant chunks", zap.String("paper_id", req.DocumentID))
		resp.Answer = NoResultsAnswer
		return resp, e.commit(ctx, p, req, NoResultsAnswer)
	}

	answer, err := e.chat.Chat(ctx, providers.ChatRequest{
		Operation:   "rag_answer",
		Messages:    buildMessages(req.Question, p.sources, p.history),
		Temperature: answerTemperature,
	})
	if err != nil {
		return resp, fmt.Errorf("generate answer: %w", err)
	}
	resp.Answer = answer
	resp.Sources = p.sources
	return resp, e.commit(ctx, p, req, answer)
}

// AnswerStream delivers the answer incrementally through onDelta. History is
// written once, after the stream ends cleanly; cancellation or an onDelta
// error leaves the session untouched.
func (e *Engine) AnswerStream(ctx context.Context, req Request, onDelta func(string) error) (resp Response, err error) {
	defer func() { e.metrics.IncChat("stream", metrics.Outcome(err)) }()

	p, err := e.prepare(ctx, req)
	resp = newResponse(p, req)
	if err != nil {
		return resp, err
	}
	if len(p.sources) == 0 {
		if err := onDelta(NoResultsAnswer); err != nil {
			return resp, err
		}
		resp.Answer = NoResultsAnswer
		return resp, e.commit(ctx, p, req, NoResultsAnswer)
	}

	stream, err := e.chat.ChatStream(ctx, providers.ChatRequest{
		Operation:   "rag_answer",
		Messages:    buildMessages(req.Question, p.sources, p.history),
		Temperature: answerTemperature,
	})
	if err != nil {
		return resp, fmt.Errorf("open answer stream: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return resp, fmt.Errorf("read answer stream: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return resp, err
		}
		sb.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return resp, err
		}
	}
	if err := ctx.Err(); err != nil {
		return resp, err
	}
	resp.Answer = sb.String()
	resp.Sources = p.sources
	return resp, e.commit(ctx, p, req, resp.Answer)
}

func (e *Engine) commit(ctx context.Context, p prepared, req Request, answer string) error {
	if err := e.sessions.AppendExchange(ctx, p.session.SessionID, req.DocumentID, req.Question, answer); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func newResponse(p prepared, req Request) Response {
	resp := Response{SessionID: req.SessionID, Sources: []models.RetrievalResult{}}
	if p.session != nil {
		resp.SessionID = p.session.SessionID
	}
	return resp
}

func recentPairs(msgs []models.Message, pairs int) []models.Message {
	if n := 2 * pairs; len(msgs) > n {
		return msgs[len(msgs)-n:]
	}
	return msgs
}
