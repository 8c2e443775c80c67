package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	pathpkg "path"
	"path/filepath"
	"strings"

	"paperwhisper/internal/models"
	"paperwhisper/internal/paper"
	"paperwhisper/internal/translate"
	"paperwhisper/internal/util"
	"paperwhisper/internal/workflows"

	"github.com/go-chi/chi/v5"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxUploadBytes = 128 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.fail(w, r, badRequest("parse multipart: %v", err))
		return
	}
	fh, ok := uploadedFile(r.MultipartForm)
	if !ok {
		s.fail(w, r, badRequest("no file provided"))
		return
	}
	if !paper.Supported(fh.Filename) {
		s.fail(w, r, badRequest("unsupported file type %q, expected one of %s",
			filepath.Ext(fh.Filename), strings.Join(paper.SupportedExtensions, " ")))
		return
	}
	if err := util.EnsureDir(s.cfg.DataInRoot); err != nil {
		s.fail(w, r, err)
		return
	}
	paperID, path, err := saveUploadedFile(s.cfg.DataInRoot, fh)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.startIngest(w, r, paperID, filepath.Base(fh.Filename), path)
}

// handleIngestURL downloads a paper, for example an arXiv link, and ingests
// it the same way as an upload.
func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		s.fail(w, r, badRequest("url must be an absolute http or https URL"))
		return
	}
	if err := util.EnsureDir(s.cfg.DataInRoot); err != nil {
		s.fail(w, r, err)
		return
	}
	paperID, path, filename, err := s.download(r.Context(), arxivPDF(u))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.startIngest(w, r, paperID, filename, path)
}

func (s *Server) startIngest(w http.ResponseWriter, r *http.Request, paperID, filename, path string) {
	if err := s.papers.Upsert(r.Context(), models.Paper{
		PaperID:  paperID,
		Filename: filename,
		Status:   models.StatusPending,
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    workflows.IngestWorkflowID(paperID),
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflows.PaperIngestWorkflow, workflows.PaperIngestInput{
		PaperID:   paperID,
		Filename:  filename,
		PaperPath: path,
	})
	if err != nil {
		s.fail(w, r, util.Transient(fmt.Errorf("start ingest workflow: %w", err)))
		return
	}
	s.logger.Info("paper accepted", zap.String("paper_id", paperID), zap.String("filename", filename))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"paper_id":    paperID,
		"filename":    filename,
		"status":      models.StatusPending,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

// arxivPDF points arXiv abstract pages at the PDF.
func arxivPDF(u *url.URL) *url.URL {
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if host != "arxiv.org" || !strings.HasPrefix(u.Path, "/abs/") {
		return u
	}
	out := *u
	out.Path = "/pdf/" + strings.TrimPrefix(u.Path, "/abs/")
	return &out
}

// download fetches u into DataInRoot. Network failures and 5xx/429
// responses are transient; other statuses are permanent.
func (s *Server) download(ctx context.Context, u *url.URL) (paperID, path, filename string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", "", "", badRequest("invalid url: %v", err)
	}
	resp, err := s.fetcher.Do(req)
	if err != nil {
		return "", "", "", util.Transient(fmt.Errorf("fetch %s: %w", u.Redacted(), err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("fetch %s: status %d", u.Redacted(), resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", "", "", util.Transient(err)
		}
		return "", "", "", fmt.Errorf("%w: %v", util.ErrPermanent, err)
	}

	filename = pathpkg.Base(u.Path)
	if filename == "/" || filename == "." {
		filename = u.Hostname()
	}
	if !paper.Supported(filename) {
		if !strings.Contains(resp.Header.Get("Content-Type"), "pdf") {
			return "", "", "", badRequest("url did not return a PDF (content type %q)", resp.Header.Get("Content-Type"))
		}
		filename += ".pdf"
	}
	body := http.MaxBytesReader(nil, resp.Body, maxUploadBytes)
	paperID, path, err = saveStream(s.cfg.DataInRoot, body, filepath.Ext(filename))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", "", "", badRequest("paper exceeds %d bytes", maxUploadBytes)
		}
		return "", "", "", util.Transient(err)
	}
	return paperID, path, filename, nil
}

func (s *Server) handleListPapers(w http.ResponseWriter, r *http.Request) {
	papers, err := s.papers.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"papers": papers})
}

func (s *Server) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	p, err := s.papers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handlePaperStatus prefers the live workflow state and falls back to the
// stored paper row once the workflow is gone.
func (s *Server) handlePaperStatus(w http.ResponseWriter, r *http.Request) {
	paperID := chi.URLParam(r, "id")
	resp, err := s.temporal.QueryWorkflow(r.Context(), workflows.IngestWorkflowID(paperID), "", workflows.QueryGetPaperStatus)
	if err == nil {
		var st workflows.PaperStatus
		if err := resp.Get(&st); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
		return
	}
	p, err := s.papers.Get(r.Context(), paperID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows.PaperStatus{
		PaperID:     p.PaperID,
		Filename:    p.Filename,
		Status:      p.Status,
		Progress:    p.Progress,
		CurrentStep: p.Step,
		Steps:       map[string]string{},
		ChunkCount:  p.ChunkCount,
		FailReason:  p.FailReason,
	})
}

// handleDeletePaper removes the vectors, the paper row (documents, summaries
// and translations cascade) and the local files.
func (s *Server) handleDeletePaper(w http.ResponseWriter, r *http.Request) {
	paperID := chi.URLParam(r, "id")
	p, err := s.papers.Get(r.Context(), paperID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var removed int64
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		n, err := s.vectors.DeleteByDocument(ctx, paperID)
		removed = n
		return err
	})
	g.Go(func() error {
		return s.papers.Delete(ctx, paperID)
	})
	g.Go(func() error {
		if dir, err := util.SafeJoin(s.cfg.DataOutRoot, paperID); err == nil {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("remove artifacts: %w", err)
			}
		}
		if path, err := util.SafeJoin(s.cfg.DataInRoot, paperID+strings.ToLower(filepath.Ext(p.Filename))); err == nil {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove upload: %w", err)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("paper deleted", zap.String("paper_id", paperID), zap.Int64("vectors", removed))
	writeJSON(w, http.StatusOK, map[string]any{"paper_id": paperID, "deleted": true, "vectors_removed": removed})
}

func (s *Server) handleStartSummary(w http.ResponseWriter, r *http.Request) {
	paperID := chi.URLParam(r, "id")
	if err := s.requireCompleted(r, paperID); err != nil {
		s.fail(w, r, err)
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       workflows.SummaryWorkflowID(paperID),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.SummaryWorkflow, workflows.SummaryInput{PaperID: paperID})
	if err != nil {
		s.fail(w, r, startError("summary", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"paper_id": paperID, "workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	paperID := chi.URLParam(r, "id")
	sum, err := s.summaries.Get(r.Context(), paperID)
	if err == nil {
		writeJSON(w, http.StatusOK, sum)
		return
	}
	if util.Kind(err) != util.KindNotFound {
		s.fail(w, r, err)
		return
	}
	s.writeJobStatus(w, r, workflows.SummaryWorkflowID(paperID), err)
}

func (s *Server) handleStartTranslation(w http.ResponseWriter, r *http.Request) {
	paperID := chi.URLParam(r, "id")
	var req struct {
		SourceLanguage string `json:"source_language"`
		TargetLanguage string `json:"target_language"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	target := targetLanguage(req.TargetLanguage)
	if err := s.requireCompleted(r, paperID); err != nil {
		s.fail(w, r, err)
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       workflows.TranslationWorkflowID(paperID, target),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.TranslationWorkflow, workflows.TranslationInput{
		PaperID:        paperID,
		SourceLanguage: strings.TrimSpace(req.SourceLanguage),
		TargetLanguage: target,
	})
	if err != nil {
		s.fail(w, r, startError("translation", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"paper_id":        paperID,
		"target_language": target,
		"workflow_id":     we.GetID(),
		"run_id":          we.GetRunID(),
	})
}

func (s *Server) handleGetTranslation(w http.ResponseWriter, r *http.Request) {
	paperID := chi.URLParam(r, "id")
	target := targetLanguage(r.URL.Query().Get("target_language"))
	tr, err := s.translations.Get(r.Context(), paperID, target)
	if err == nil {
		writeJSON(w, http.StatusOK, tr)
		return
	}
	if util.Kind(err) != util.KindNotFound {
		s.fail(w, r, err)
		return
	}
	s.writeJobStatus(w, r, workflows.TranslationWorkflowID(paperID, target), err)
}

// writeJobStatus reports a running job, or notFound when no run exists.
func (s *Server) writeJobStatus(w http.ResponseWriter, r *http.Request, workflowID string, notFound error) {
	resp, err := s.temporal.QueryWorkflow(r.Context(), workflowID, "", workflows.QueryGetJobStatus)
	if err != nil {
		s.fail(w, r, notFound)
		return
	}
	var st workflows.JobStatus
	if err := resp.Get(&st); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) requireCompleted(r *http.Request, paperID string) error {
	p, err := s.papers.Get(r.Context(), paperID)
	if err != nil {
		return err
	}
	if p.Status != models.StatusCompleted {
		return fmt.Errorf("%w: paper %s is %s", util.ErrConflict, paperID, p.Status)
	}
	return nil
}

func startError(job string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "already started") {
		return fmt.Errorf("%w: %s is already running", util.ErrConflict, job)
	}
	return util.Transient(fmt.Errorf("start %s workflow: %w", job, err))
}

func targetLanguage(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return translate.DefaultTarget
}

// saveUploadedFile stores the upload under its content hash, which is also
// the paper id, so re-uploading the same file reuses the paper.
func saveUploadedFile(dstDir string, fh *multipart.FileHeader) (paperID, path string, err error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	return saveStream(dstDir, src, filepath.Ext(fh.Filename))
}

func saveStream(dstDir string, src io.Reader, ext string) (paperID, path string, err error) {
	tmp, err := os.CreateTemp(dstDir, "upload-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	paperID, err = util.SHA256HexFromReader(io.TeeReader(src, tmp))
	if err != nil {
		return "", "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", err
	}

	finalPath := filepath.Join(dstDir, paperID+strings.ToLower(ext))
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", "", fmt.Errorf("atomic move upload: %w", err)
	}
	return paperID, finalPath, nil
}

func uploadedFile(form *multipart.Form) (*multipart.FileHeader, bool) {
	if files := form.File["file"]; len(files) > 0 {
		return files[0], true
	}
	for _, v := range form.File {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}
