// Package api serves the PaperWhisper HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"paperwhisper/internal/config"
	"paperwhisper/internal/logging"
	"paperwhisper/internal/metrics"
	"paperwhisper/internal/models"
	"paperwhisper/internal/rag"
	"paperwhisper/internal/session"
	"paperwhisper/internal/util"
	"paperwhisper/internal/vector"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"
)

type PaperRepository interface {
	Upsert(ctx context.Context, p models.Paper) error
	Get(ctx context.Context, paperID string) (models.Paper, error)
	List(ctx context.Context) ([]models.Paper, error)
	Delete(ctx context.Context, paperID string) error
}

type SummaryReader interface {
	Get(ctx context.Context, documentID string) (models.PaperSummary, error)
}

type TranslationReader interface {
	Get(ctx context.Context, documentID, targetLanguage string) (models.Translation, error)
}

type Answerer interface {
	Answer(ctx context.Context, req rag.Request) (rag.Response, error)
	AnswerStream(ctx context.Context, req rag.Request, onDelta func(string) error) (rag.Response, error)
}

// Workflows is the part of the Temporal client the API uses.
type Workflows interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

type Deps struct {
	Papers       PaperRepository
	Summaries    SummaryReader
	Translations TranslationReader
	Vectors      vector.Store
	Sessions     *session.Manager
	Engine       Answerer
	Workflows    Workflows
	Metrics      *metrics.Recorder
	Logger       *zap.Logger
}

type Server struct {
	cfg          config.Config
	papers       PaperRepository
	summaries    SummaryReader
	translations TranslationReader
	vectors      vector.Store
	sessions     *session.Manager
	engine       Answerer
	temporal     Workflows
	metrics      *metrics.Recorder
	logger       *zap.Logger
	fetcher      *http.Client
}

func NewServer(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:          cfg,
		papers:       deps.Papers,
		summaries:    deps.Summaries,
		translations: deps.Translations,
		vectors:      deps.Vectors,
		sessions:     deps.Sessions,
		engine:       deps.Engine,
		temporal:     deps.Workflows,
		metrics:      deps.Metrics,
		logger:       logging.OrNop(deps.Logger),
		fetcher:      &http.Client{Timeout: fetchTimeout(cfg)},
	}
}

func fetchTimeout(cfg config.Config) time.Duration {
	if cfg.FetchTimeout > 0 {
		return cfg.FetchTimeout
	}
	return 2 * time.Minute
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// Streaming and uploads run without the request timeout.
	r.Post("/chat/stream", s.handleChatStream)
	r.Post("/papers", s.handleUpload)
	r.Post("/papers/url", s.handleIngestURL)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout()))

		r.Get("/papers", s.handleListPapers)
		r.Get("/papers/{id}", s.handleGetPaper)
		r.Get("/papers/{id}/status", s.handlePaperStatus)
		r.Delete("/papers/{id}", s.handleDeletePaper)
		r.Post("/papers/{id}/summary", s.handleStartSummary)
		r.Get("/papers/{id}/summary", s.handleGetSummary)
		r.Post("/papers/{id}/translation", s.handleStartTranslation)
		r.Get("/papers/{id}/translation", s.handleGetTranslation)

		r.Post("/chat", s.handleChat)

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Delete("/sessions/{id}/messages", s.handleClearSession)

		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *Server) requestTimeout() time.Duration {
	// Answers wait on the provider, so allow a little more than one call.
	if s.cfg.RequestTimeout > 0 {
		return s.cfg.RequestTimeout + 30*time.Second
	}
	return 90 * time.Second
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.vectors.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid json: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail writes err with the status its class maps to.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeErr(w, status, err)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": toAPIError(code, err)})
}

// requestError is a client mistake caught by the handlers.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func statusFor(err error) int {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}
	switch util.Kind(err) {
	case util.KindNotFound:
		return http.StatusNotFound
	case util.KindConflict:
		return http.StatusConflict
	case util.KindPermanent:
		return http.StatusUnprocessableEntity
	case util.KindTransient:
		return http.StatusBadGateway
	case util.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toAPIError(status int, err error) apiError {
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}
	switch {
	case status >= 500:
		switch {
		case status == http.StatusBadGateway:
			return apiError{Code: "PW-LLM-5020", Message: "Upstream provider unavailable. Retry shortly."}
		case status == http.StatusServiceUnavailable:
			return apiError{Code: "PW-API-5030", Message: "Request was canceled before it finished."}
		case util.Kind(err) == util.KindConfig:
			return apiError{Code: "PW-CFG-5001", Message: "Service is misconfigured. Check provider and vector store settings."}
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{Code: "PW-DB-5001", Message: "Database schema is not initialized. Run migrations and retry."}
		default:
			return apiError{Code: "PW-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusNotFound:
		return apiError{Code: "PW-API-4004", Message: clientMessage(err, "Requested resource was not found.")}
	case status == http.StatusConflict:
		return apiError{Code: "PW-API-4009", Message: clientMessage(err, "Operation conflicts with current state.")}
	case status == http.StatusUnprocessableEntity:
		return apiError{Code: "PW-API-4022", Message: clientMessage(err, "Request could not be processed.")}
	case status == http.StatusMethodNotAllowed:
		return apiError{Code: "PW-API-4005", Message: "This endpoint does not support the requested method."}
	default:
		return apiError{Code: "PW-API-4001", Message: clientMessage(err, "Invalid request. Check inputs and retry.")}
	}
}

func clientMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
