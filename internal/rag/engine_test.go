package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"paperwhisper/internal/models"
	"paperwhisper/internal/providers"
	"paperwhisper/internal/session"
	"paperwhisper/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	results []models.RetrievalResult
	topK    int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query, documentID string, topK int) ([]models.RetrievalResult, error) {
	f.topK = topK
	return f.results, nil
}

type capturingChat struct {
	*providers.MockProvider
	last providers.ChatRequest
}

func (c *capturingChat) Chat(ctx context.Context, req providers.ChatRequest) (string, error) {
	c.last = req
	return c.MockProvider.Chat(ctx, req)
}

func (c *capturingChat) ChatStream(ctx context.Context, req providers.ChatRequest) (providers.Stream, error) {
	c.last = req
	return c.MockProvider.ChatStream(ctx, req)
}

func hits() []models.RetrievalResult {
	return []models.RetrievalResult{
		{ChunkID: "p_chunk_0", DocumentID: "p", Text: "We propose a sparse attention model.", Score: 0.91234,
			Metadata: models.ChunkMetadata{SectionTitle: "Method"}},
		{ChunkID: "p_chunk_3", DocumentID: "p", Text: "Results improve BLEU by 2 points.", Score: 0.5,
			Metadata: models.ChunkMetadata{SectionTitle: "Results"}},
	}
}

func newEngine(results []models.RetrievalResult) (*Engine, *capturingChat, *session.Manager, *fakeRetriever) {
	chat := &capturingChat{MockProvider: providers.NewMockProvider(8)}
	sessions := session.NewManager(session.NewMemoryStore(), 10)
	r := &fakeRetriever{results: results}
	return NewEngine(r, sessions, chat, 5, nil, nil), chat, sessions, r
}

func TestAnswer_NoResultsSkipsModel(t *testing.T) {
	ctx := context.Background()
	e, chat, sessions, _ := newEngine(nil)

	resp, err := e.Answer(ctx, Request{DocumentID: "p", Question: "What is the dataset?"})
	require.NoError(t, err)
	assert.Equal(t, NoResultsAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.NotNil(t, resp.Sources)
	assert.EqualValues(t, 0, chat.Calls())

	s, err := sessions.Get(ctx, resp.SessionID, "p")
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, NoResultsAnswer, s.Messages[1].Content)
}

func TestAnswer_BuildsPromptAndRecordsHistory(t *testing.T) {
	ctx := context.Background()
	e, chat, sessions, r := newEngine(hits())

	resp, err := e.Answer(ctx, Request{DocumentID: "p", Question: "What do they propose?"})
	require.NoError(t, err)
	assert.Equal(t, 5, r.topK)
	assert.Len(t, resp.Sources, 2)
	assert.EqualValues(t, 1, chat.Calls())
	assert.InDelta(t, 0.7, chat.last.Temperature, 1e-9)

	msgs := chat.last.Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
	user := msgs[1].Content
	assert.Contains(t, user, "[Excerpt 1] (section: Method, relevance: 0.912)\nWe propose a sparse attention model.")
	assert.Contains(t, user, "\n---\n\n[Excerpt 2] (section: Results, relevance: 0.500)")
	assert.Contains(t, user, "Question: What do they propose?")

	s, err := sessions.Get(ctx, resp.SessionID, "p")
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, resp.Answer, s.Messages[1].Content)
}

func TestAnswer_ReplaysLastThreePairs(t *testing.T) {
	ctx := context.Background()
	e, chat, sessions, _ := newEngine(hits())
	s, err := sessions.Create(ctx, "p")
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		require.NoError(t, sessions.AppendExchange(ctx, s.SessionID, "p", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}

	_, err = e.Answer(ctx, Request{DocumentID: "p", Question: "next", SessionID: s.SessionID})
	require.NoError(t, err)
	msgs := chat.last.Messages
	require.Len(t, msgs, 8)
	assert.Equal(t, "q3", msgs[1].Content)
	assert.Equal(t, "a5", msgs[6].Content)
}

func TestAnswer_SessionErrors(t *testing.T) {
	ctx := context.Background()
	e, _, sessions, _ := newEngine(hits())
	s, err := sessions.Create(ctx, "other")
	require.NoError(t, err)

	resp, err := e.Answer(ctx, Request{DocumentID: "p", Question: "q", SessionID: s.SessionID})
	require.ErrorIs(t, err, util.ErrSessionMismatch)
	assert.Equal(t, s.SessionID, resp.SessionID)

	_, err = e.Answer(ctx, Request{DocumentID: "p", Question: "q", SessionID: "nope"})
	require.ErrorIs(t, err, util.ErrSessionNotFound)

	_, err = e.Answer(ctx, Request{DocumentID: "p", Question: "  "})
	require.ErrorIs(t, err, util.ErrPermanent)
}

func TestAnswerStream_CommitsAccumulatedAnswer(t *testing.T) {
	ctx := context.Background()
	e, _, sessions, _ := newEngine(hits())

	var deltas []string
	resp, err := e.AnswerStream(ctx, Request{DocumentID: "p", Question: "q"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Greater(t, len(deltas), 1)
	assert.Equal(t, strings.Join(deltas, ""), resp.Answer)

	s, err := sessions.Get(ctx, resp.SessionID, "p")
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, resp.Answer, s.Messages[1].Content)
}

func TestAnswerStream_AbortLeavesHistoryUntouched(t *testing.T) {
	ctx := context.Background()
	e, _, sessions, _ := newEngine(hits())
	s, err := sessions.Create(ctx, "p")
	require.NoError(t, err)

	stop := errors.New("client went away")
	n := 0
	_, err = e.AnswerStream(ctx, Request{DocumentID: "p", Question: "q", SessionID: s.SessionID}, func(string) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)

	got, err := sessions.Get(ctx, s.SessionID, "p")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestAnswerStream_CanceledContext(t *testing.T) {
	e, _, sessions, _ := newEngine(hits())
	s, err := sessions.Create(context.Background(), "p")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = e.AnswerStream(ctx, Request{DocumentID: "p", Question: "q", SessionID: s.SessionID}, func(string) error {
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	got, err := sessions.Get(context.Background(), s.SessionID, "p")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestAnswerStream_NoResults(t *testing.T) {
	e, chat, _, _ := newEngine(nil)
	var got string
	resp, err := e.AnswerStream(context.Background(), Request{DocumentID: "p", Question: "q"}, func(d string) error {
		got += d
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, NoResultsAnswer, got)
	assert.Equal(t, NoResultsAnswer, resp.Answer)
	assert.EqualValues(t, 0, chat.Calls())
}
