package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"paperwhisper/internal/models"
	"paperwhisper/internal/rag"
	"paperwhisper/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const snippetRunes = 240

type source struct {
	ChunkID string  `json:"chunk_id"`
	Section string  `json:"section,omitempty"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

type chatResponse struct {
	SessionID string   `json:"session_id"`
	Answer    string   `json:"answer"`
	Sources   []source `json:"sources"`
}

func toSources(results []models.RetrievalResult, question string) []source {
	out := make([]source, 0, len(results))
	for _, r := range results {
		out = append(out, source{
			ChunkID: r.ChunkID,
			Section: r.Metadata.SectionTitle,
			Score:   r.Score,
			Snippet: util.EvidenceSnippet(r.Text, question, snippetRunes),
		})
	}
	return out
}

func (s *Server) decodeChat(r *http.Request) (rag.Request, error) {
	var req rag.Request
	if err := decodeJSON(r, &req); err != nil {
		return req, err
	}
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.Question = strings.TrimSpace(req.Question)
	if req.DocumentID == "" || req.Question == "" {
		return req, badRequest("paper_id and question are required")
	}
	if err := s.requireCompleted(r, req.DocumentID); err != nil {
		return req, err
	}
	return req, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeChat(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp, err := s.engine.Answer(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: resp.SessionID,
		Answer:    resp.Answer,
		Sources:   toSources(resp.Sources, req.Question),
	})
}

// sseWriter sends server-sent events. Headers are written with the first
// event so errors raised before any output can still be plain JSON.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (e *sseWriter) send(event string, v any) error {
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(e.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", b); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// handleChatStream streams answer deltas as data frames and finishes with a
// done event carrying the session id and sources, or an error event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, r, fmt.Errorf("streaming unsupported by response writer"))
		return
	}
	req, err := s.decodeChat(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	sse := &sseWriter{w: w, flusher: flusher}
	resp, err := s.engine.AnswerStream(r.Context(), req, func(delta string) error {
		return sse.send("", map[string]string{"delta": delta})
	})
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Debug("chat stream aborted by client", zap.String("paper_id", req.DocumentID))
			return
		}
		if !sse.started {
			s.fail(w, r, err)
			return
		}
		s.logger.Warn("chat stream failed", zap.String("paper_id", req.DocumentID), zap.Error(err))
		_ = sse.send("error", toAPIError(statusFor(err), err))
		return
	}
	_ = sse.send("done", chatResponse{
		SessionID: resp.SessionID,
		Answer:    resp.Answer,
		Sources:   toSources(resp.Sources, req.Question),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaperID string `json:"paper_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.PaperID) == "" {
		s.fail(w, r, badRequest("paper_id is required"))
		return
	}
	if _, err := s.papers.Get(r.Context(), req.PaperID); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.sessions.Create(r.Context(), req.PaperID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleGetSession checks the optional paper_id query parameter against the
// session's document.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("paper_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "deleted": true})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Clear(r.Context(), id, r.URL.Query().Get("paper_id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "cleared": true})
}
