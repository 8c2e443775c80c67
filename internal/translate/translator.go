// Package translate renders a parsed paper into another language section by
// section, splitting long sections into paragraphs translated with context.
package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"paperwhisper/internal/logging"
	"paperwhisper/internal/models"
	"paperwhisper/internal/providers"
	"paperwhisper/internal/textproc"

	"go.uber.org/zap"
)

const (
	maxSectionChars = 3000
	contextChars    = 200
	temperature     = 0.3

	DefaultSource = "English"
	DefaultTarget = "Chinese"
)

const systemPrompt = "You are a professional translator of academic papers."

const textTemplate = `Translate the following %s academic text into %s.

Requirements:
1. Keep the academic register and rigor.
2. Translate technical terms accurately and consistently.
3. Write fluent text that follows the academic conventions of the target language.
4. Preserve formulas, citations and special markup.
5. Return only the translation, with no explanations.

Text:
%s

Translation:`

const contextTemplate = `Translate the current %s text into %s. It is part of a paper; the surrounding text is given for context only.

Previous text:
%s

Current text:
%s

Following text:
%s

Keep terminology consistent with the context. Return only the translation of the current text.`

type Options struct {
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.SourceLanguage) == "" {
		o.SourceLanguage = DefaultSource
	}
	if strings.TrimSpace(o.TargetLanguage) == "" {
		o.TargetLanguage = DefaultTarget
	}
	return o
}

// Progress is called after every translated segment.
type Progress func(segments int)

type Translator struct {
	chat           providers.ChatModel
	sectionPause   time.Duration
	paragraphPause time.Duration
	logger         *zap.Logger
	progress       Progress
	now            func() time.Time
}

func New(chat providers.ChatModel, sectionPause, paragraphPause time.Duration, logger *zap.Logger) *Translator {
	return &Translator{
		chat:           chat,
		sectionPause:   sectionPause,
		paragraphPause: paragraphPause,
		logger:         logging.OrNop(logger),
		now:            time.Now,
	}
}

func (t *Translator) OnProgress(p Progress) *Translator {
	t.progress = p
	return t
}

// Translate returns the translation even on failure: segments finished
// before the error are kept and the status is failed.
func (t *Translator) Translate(ctx context.Context, doc models.Document, opts Options) (*models.Translation, error) {
	opts = opts.withDefaults()
	out := &models.Translation{
		DocumentID:     doc.DocumentID,
		SourceLanguage: opts.SourceLanguage,
		TargetLanguage: opts.TargetLanguage,
		Segments:       []models.TranslationSegment{},
		Status:         models.StatusProcessing,
		CreatedAt:      t.now().UTC(),
	}

	var err error
	if len(doc.Sections) == 0 {
		err = t.translateParagraphs(ctx, out, doc.FullText, "", opts)
	} else {
		err = t.translateSections(ctx, out, doc.Sections, opts)
	}
	if err != nil {
		out.Status = models.StatusFailed
		out.FailReason = err.Error()
		t.logger.Warn("translation failed",
			zap.String("paper_id", doc.DocumentID), zap.Int("segments", len(out.Segments)), zap.Error(err))
		return out, err
	}
	out.Status = models.StatusCompleted
	return out, nil
}

func (t *Translator) translateSections(ctx context.Context, out *models.Translation, sections []models.Section, opts Options) error {
	for i, sec := range sections {
		if strings.TrimSpace(sec.Content) == "" {
			continue
		}
		if i > 0 {
			if err := sleep(ctx, t.sectionPause); err != nil {
				return err
			}
		}
		if len([]rune(sec.Content)) > maxSectionChars {
			if err := t.translateParagraphs(ctx, out, sec.Content, sec.Title, opts); err != nil {
				return err
			}
			continue
		}
		translated, err := t.TranslateText(ctx, sec.Content, opts)
		if err != nil {
			return fmt.Errorf("section %q: %w", sec.Title, err)
		}
		t.add(out, models.TranslationSegment{Original: sec.Content, Translated: translated, SectionTitle: sec.Title})
	}
	return nil
}

func (t *Translator) translateParagraphs(ctx context.Context, out *models.Translation, text, title string, opts Options) error {
	paras := textproc.Paragraphs(text)
	for i, para := range paras {
		if i > 0 {
			if err := sleep(ctx, t.paragraphPause); err != nil {
				return err
			}
		}
		var prev, next string
		if i > 0 {
			prev = lastRunes(paras[i-1], contextChars)
		}
		if i < len(paras)-1 {
			next = firstRunes(paras[i+1], contextChars)
		}
		translated, err := t.translateWithContext(ctx, para, prev, next, opts)
		if err != nil {
			return fmt.Errorf("paragraph %d of %q: %w", i+1, title, err)
		}
		t.add(out, models.TranslationSegment{Original: para, Translated: translated, SectionTitle: title})
	}
	return nil
}

// TranslateText translates one self-contained text, such as an abstract.
func (t *Translator) TranslateText(ctx context.Context, text string, opts Options) (string, error) {
	opts = opts.withDefaults()
	return t.ask(ctx, fmt.Sprintf(textTemplate, opts.SourceLanguage, opts.TargetLanguage, text))
}

func (t *Translator) translateWithContext(ctx context.Context, text, prev, next string, opts Options) (string, error) {
	if prev == "" && next == "" {
		return t.TranslateText(ctx, text, opts)
	}
	return t.ask(ctx, fmt.Sprintf(contextTemplate, opts.SourceLanguage, opts.TargetLanguage,
		orNone(prev), text, orNone(next)))
}

func (t *Translator) ask(ctx context.Context, prompt string) (string, error) {
	reply, err := t.chat.Chat(ctx, providers.ChatRequest{
		Operation: "translate",
		Messages: []providers.Message{
			{Role: models.RoleSystem, Content: systemPrompt},
			{Role: models.RoleUser, Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (t *Translator) add(out *models.Translation, seg models.TranslationSegment) {
	out.Segments = append(out.Segments, seg)
	if t.progress != nil {
		t.progress(len(out.Segments))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Markdown renders tr as readable text, one heading per section.
func Markdown(tr *models.Translation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!-- %s -> %s, %s -->\n", tr.SourceLanguage, tr.TargetLanguage, tr.Status)
	section := "\x00"
	for _, seg := range tr.Segments {
		if seg.SectionTitle != section {
			section = seg.SectionTitle
			if section != "" {
				fmt.Fprintf(&b, "\n## %s\n", section)
			}
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(seg.Translated))
		b.WriteString("\n")
	}
	return b.String()
}
