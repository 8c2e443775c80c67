package activities

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"paperwhisper/internal/config"
	"paperwhisper/internal/embedding"
	"paperwhisper/internal/logging"
	"paperwhisper/internal/metrics"
	"paperwhisper/internal/models"
	"paperwhisper/internal/paper"
	"paperwhisper/internal/providers"
	"paperwhisper/internal/summarize"
	"paperwhisper/internal/textproc"
	"paperwhisper/internal/translate"
	"paperwhisper/internal/util"
	"paperwhisper/internal/vector"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"
)

type PaperStore interface {
	UpdateStatus(ctx context.Context, paperID string, status models.TaskStatus, failReason string) error
	UpdateProgress(ctx context.Context, paperID string, progress int, step string) error
	SetIndexed(ctx context.Context, paperID, title string, chunkCount int) error
}

type DocumentStore interface {
	Save(ctx context.Context, doc models.Document) error
	Load(ctx context.Context, documentID string) (models.Document, error)
}

type SummaryStore interface {
	MarkProcessing(ctx context.Context, documentID string) error
	Save(ctx context.Context, s models.PaperSummary) error
}

type TranslationStore interface {
	Save(ctx context.Context, t models.Translation) error
}

// Deps are the services the activities run against. The storage repos,
// the embedding gateway and the provider manager's chat model in production.
type Deps struct {
	Papers       PaperStore
	Documents    DocumentStore
	Summaries    SummaryStore
	Translations TranslationStore
	Embeddings   *embedding.Gateway
	Vectors      vector.Store
	Chat         providers.ChatModel
	Metrics      *metrics.Recorder
	Logger       *zap.Logger
}

type Activities struct {
	cfg     config.Config
	deps    Deps
	chunker *textproc.Chunker
	logger  *zap.Logger
}

func New(cfg config.Config, deps Deps) *Activities {
	return &Activities{
		cfg:     cfg,
		deps:    deps,
		chunker: textproc.NewChunker(textproc.NewTokenCounter(), cfg.ChunkSize, cfg.ChunkOverlap),
		logger:  logging.OrNop(deps.Logger),
	}
}

func (a *Activities) UpdatePaperStatusActivity(ctx context.Context, in UpdatePaperStatusInput) error {
	var err error
	if in.Status == models.StatusProcessing {
		err = a.deps.Papers.UpdateProgress(ctx, in.PaperID, in.Progress, in.Step)
	} else {
		err = a.deps.Papers.UpdateStatus(ctx, in.PaperID, in.Status, in.FailReason)
	}
	return appError(err)
}

func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	text, err := paper.ExtractText(in.PaperPath)
	if err != nil {
		activity.GetLogger(ctx).Warn("text extraction failed", "path", in.PaperPath, "error", err)
		return ExtractTextOutput{}, appError(err)
	}
	return ExtractTextOutput{Text: text}, nil
}

// ParseDocumentActivity parses the extracted text and stores the document.
func (a *Activities) ParseDocumentActivity(ctx context.Context, in ParseDocumentInput) (ParseDocumentOutput, error) {
	doc := paper.Parse(in.PaperID, in.Text)
	if err := a.deps.Documents.Save(ctx, doc); err != nil {
		return ParseDocumentOutput{}, appError(err)
	}
	return ParseDocumentOutput{Title: doc.Metadata.Title, SectionCount: len(doc.Sections)}, nil
}

// VectorizeActivity chunks the stored document, embeds every chunk and
// replaces the document's vectors in the collection.
func (a *Activities) VectorizeActivity(ctx context.Context, in VectorizeInput) (VectorizeOutput, error) {
	doc, err := a.deps.Documents.Load(ctx, in.PaperID)
	if err != nil {
		return VectorizeOutput{}, appError(fmt.Errorf("load document: %w", err))
	}
	chunks := textproc.ChunkDocument(doc, a.chunker)
	if len(chunks) == 0 {
		return VectorizeOutput{}, appError(util.ErrNoExtractableText)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	activity.RecordHeartbeat(ctx, "embedding")
	vecs, err := a.deps.Embeddings.EmbedBatch(ctx, texts, a.cfg.EmbedBatchSize)
	if err != nil {
		return VectorizeOutput{}, appError(fmt.Errorf("embed chunks: %w", err))
	}

	dim := a.deps.Embeddings.Dimension()
	if err := a.deps.Vectors.EnsureCollection(ctx, dim); err != nil {
		return VectorizeOutput{}, appError(fmt.Errorf("ensure collection: %w", err))
	}
	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vector.Record{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Text:       c.Text,
			Metadata:   c.Metadata,
			Vector:     vecs[i],
		}
	}
	if _, err := a.deps.Vectors.ReplaceDocument(ctx, doc.DocumentID, records); err != nil {
		return VectorizeOutput{}, appError(fmt.Errorf("replace vectors: %w", err))
	}
	a.deps.Metrics.AddChunksIndexed(len(records))

	if err := a.deps.Papers.SetIndexed(ctx, doc.DocumentID, doc.Metadata.Title, len(records)); err != nil {
		return VectorizeOutput{}, appError(fmt.Errorf("mark indexed: %w", err))
	}
	a.logger.Info("paper vectorized",
		zap.String("paper_id", doc.DocumentID), zap.Int("chunks", len(records)), zap.Int("dimension", dim))
	return VectorizeOutput{ChunkCount: len(records), Dimension: dim, Model: a.deps.Embeddings.Model()}, nil
}

// WriteArtifactsActivity writes document.json and chunks.jsonl under
// DATA_OUT/{paper}.
func (a *Activities) WriteArtifactsActivity(ctx context.Context, in WriteArtifactsInput) (WriteArtifactsOutput, error) {
	doc, err := a.deps.Documents.Load(ctx, in.PaperID)
	if err != nil {
		return WriteArtifactsOutput{}, appError(err)
	}
	dir, err := a.paperDir(in.PaperID)
	if err != nil {
		return WriteArtifactsOutput{}, appError(err)
	}
	if err := util.WriteJSONAtomic(filepath.Join(dir, "document.json"), doc); err != nil {
		return WriteArtifactsOutput{}, err
	}
	chunks := textproc.ChunkDocument(doc, a.chunker)
	if err := util.WriteJSONLinesAtomic(filepath.Join(dir, "chunks.jsonl"), chunks); err != nil {
		return WriteArtifactsOutput{}, err
	}
	return WriteArtifactsOutput{Dir: dir}, nil
}

// SummarizeActivity stores whatever the summarizer produced. Transient
// failures are returned so the run is retried; other failures leave a
// partial summary marked failed.
func (a *Activities) SummarizeActivity(ctx context.Context, in SummarizeInput) (JobOutput, error) {
	doc, err := a.deps.Documents.Load(ctx, in.PaperID)
	if err != nil {
		return JobOutput{}, appError(err)
	}
	if err := a.deps.Summaries.MarkProcessing(ctx, in.PaperID); err != nil {
		return JobOutput{}, appError(err)
	}

	s := summarize.New(a.deps.Chat, a.cfg.SummaryBatchPause, a.logger).OnProgress(func(done, total int) {
		activity.RecordHeartbeat(ctx, done, total)
	})
	summary, runErr := s.Summarize(ctx, doc)
	if err := a.deps.Summaries.Save(ctx, *summary); err != nil {
		return JobOutput{}, appError(err)
	}
	if dir, err := a.paperDir(in.PaperID); err == nil {
		if err := util.WriteJSONAtomic(filepath.Join(dir, "summary.json"), summary); err != nil {
			a.logger.Warn("write summary artifact", zap.String("paper_id", in.PaperID), zap.Error(err))
		}
	}
	a.deps.Metrics.IncJob("summary", string(summary.Status))

	if runErr != nil && util.Retryable(runErr) {
		return JobOutput{}, appError(runErr)
	}
	return JobOutput{Status: summary.Status, FailReason: summary.FailReason, Items: len(summary.SectionSummaries)}, nil
}

func (a *Activities) TranslateActivity(ctx context.Context, in TranslateInput) (JobOutput, error) {
	doc, err := a.deps.Documents.Load(ctx, in.PaperID)
	if err != nil {
		return JobOutput{}, appError(err)
	}
	opts := translate.Options{SourceLanguage: in.SourceLanguage, TargetLanguage: in.TargetLanguage}
	t := translate.New(a.deps.Chat, a.cfg.TranslateStepPause, a.cfg.TranslateChunkPause, a.logger).OnProgress(func(n int) {
		activity.RecordHeartbeat(ctx, n)
	})
	tr, runErr := t.Translate(ctx, doc, opts)
	if err := a.deps.Translations.Save(ctx, *tr); err != nil {
		return JobOutput{}, appError(err)
	}
	if dir, err := a.paperDir(in.PaperID); err == nil {
		name := "translation_" + languageSlug(tr.TargetLanguage) + ".md"
		if err := util.WriteTextAtomic(filepath.Join(dir, name), translate.Markdown(tr)); err != nil {
			a.logger.Warn("write translation artifact", zap.String("paper_id", in.PaperID), zap.Error(err))
		}
	}
	a.deps.Metrics.IncJob("translation", string(tr.Status))

	if runErr != nil && util.Retryable(runErr) {
		return JobOutput{}, appError(runErr)
	}
	return JobOutput{Status: tr.Status, FailReason: tr.FailReason, Items: len(tr.Segments)}, nil
}

func (a *Activities) paperDir(paperID string) (string, error) {
	dir, err := util.SafeJoin(a.cfg.DataOutRoot, paperID)
	if err != nil {
		return "", fmt.Errorf("artifact dir for %s: %w", paperID, err)
	}
	if err := util.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

func languageSlug(lang string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return '-'
	}, strings.TrimSpace(lang))
}
