// Package summarize produces a structured paper summary with a map-reduce
// pass over the document's sections.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"paperwhisper/internal/logging"
	"paperwhisper/internal/models"
	"paperwhisper/internal/providers"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minSectionChars   = 100
	maxContentRunes   = 4000
	truncationMarker  = "...(content truncated)"
	mapBatchSize      = 3
	overallMaxTokens  = 1500
	maxKeyPoints      = 8
	DefaultBatchPause = time.Second
)

var (
	methodKeywords       = []string{"method", "approach", "algorithm", "方法"}
	contributionKeywords = []string{"conclusion", "contribution", "结论", "贡献"}

	listMarker = regexp.MustCompile(`^[\d\-\*\+\.]+\s*`)
)

// Progress is called after each map batch with the number of section
// summaries finished so far.
type Progress func(done, total int)

type Summarizer struct {
	chat     providers.ChatModel
	pause    time.Duration
	logger   *zap.Logger
	progress Progress
	now      func() time.Time
}

func New(chat providers.ChatModel, batchPause time.Duration, logger *zap.Logger) *Summarizer {
	if batchPause < 0 {
		batchPause = 0
	}
	return &Summarizer{chat: chat, pause: batchPause, logger: logging.OrNop(logger), now: time.Now}
}

func (s *Summarizer) OnProgress(p Progress) *Summarizer {
	s.progress = p
	return s
}

// Summarize always returns a summary. When the map or reduce stage fails the
// summary carries whatever was produced, status failed, and the error is
// returned alongside it.
func (s *Summarizer) Summarize(ctx context.Context, doc models.Document) (*models.PaperSummary, error) {
	out := &models.PaperSummary{
		DocumentID:       doc.DocumentID,
		KeyPoints:        []string{},
		SectionSummaries: []models.SectionSummary{},
		Status:           models.StatusProcessing,
		CreatedAt:        s.now().UTC(),
	}

	sections, err := s.mapSections(ctx, doc.Sections)
	out.SectionSummaries = sections
	if err != nil {
		return s.fail(out, fmt.Errorf("summarize sections: %w", err))
	}

	overall, err := s.reduce(ctx, doc.Metadata.Title, sections)
	if err != nil {
		return s.fail(out, fmt.Errorf("overall summary: %w", err))
	}
	out.OverallSummary = overall

	out.KeyPoints = s.keyPoints(ctx, overall)
	if content := joinMatching(doc.Sections, methodKeywords, ""); content != "" {
		out.Methodology = s.extract(ctx, "methodology", methodologyTemplate, content)
	}
	if content := joinMatching(doc.Sections, contributionKeywords, doc.Metadata.Abstract); content != "" {
		out.Contributions = s.extract(ctx, "contributions", contributionsTemplate, content)
	}
	out.Status = models.StatusCompleted
	return out, nil
}

func (s *Summarizer) fail(out *models.PaperSummary, err error) (*models.PaperSummary, error) {
	out.Status = models.StatusFailed
	out.FailReason = err.Error()
	s.logger.Warn("summary failed", zap.String("paper_id", out.DocumentID), zap.Error(err))
	return out, err
}

// mapSections summarizes eligible sections a batch at a time. Results are
// stored by section index so the output follows document order.
func (s *Summarizer) mapSections(ctx context.Context, sections []models.Section) ([]models.SectionSummary, error) {
	eligible := make([]models.Section, 0, len(sections))
	for _, sec := range sections {
		if len([]rune(sec.Content)) >= minSectionChars {
			eligible = append(eligible, sec)
		}
	}
	results := make([]string, len(eligible))
	var mapErr error
	for start := 0; start < len(eligible); start += mapBatchSize {
		if start > 0 && s.pause > 0 {
			select {
			case <-ctx.Done():
				mapErr = ctx.Err()
			case <-time.After(s.pause):
			}
			if mapErr != nil {
				break
			}
		}
		end := min(start+mapBatchSize, len(eligible))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				sec := eligible[i]
				summary, err := s.ask(gctx, "section_summary", fmt.Sprintf(sectionTemplate, sec.Title, truncate(sec.Content)), 0.5, 0)
				if err != nil {
					return fmt.Errorf("section %q: %w", sec.Title, err)
				}
				results[i] = summary
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			mapErr = err
			break
		}
		if s.progress != nil {
			s.progress(end, len(eligible))
		}
	}

	out := make([]models.SectionSummary, 0, len(eligible))
	for i, sec := range eligible {
		if results[i] == "" {
			continue
		}
		out = append(out, models.SectionSummary{SectionTitle: sec.Title, Summary: results[i]})
	}
	return out, mapErr
}

func (s *Summarizer) reduce(ctx context.Context, title string, sections []models.SectionSummary) (string, error) {
	if title == "" {
		title = "Untitled"
	}
	labeled := make([]string, 0, len(sections))
	for i, sec := range sections {
		labeled = append(labeled, fmt.Sprintf("Section %d: %s", i+1, sec.Summary))
	}
	prompt := fmt.Sprintf(overallTemplate, title, strings.Join(labeled, "\n\n"))
	return s.ask(ctx, "overall_summary", prompt, 0.5, overallMaxTokens)
}

// keyPoints never fails: an unusable reply yields no key points.
func (s *Summarizer) keyPoints(ctx context.Context, summary string) []string {
	reply, err := s.ask(ctx, "key_points", fmt.Sprintf(keyPointsTemplate, summary), 0.3, 0)
	if err != nil {
		s.logger.Warn("extract key points", zap.Error(err))
		return []string{}
	}
	return ParseKeyPoints(reply)
}

func (s *Summarizer) extract(ctx context.Context, op, template, content string) string {
	reply, err := s.ask(ctx, op, fmt.Sprintf(template, truncate(content)), 0.5, 0)
	if err != nil {
		s.logger.Warn("extract "+op, zap.Error(err))
		return ""
	}
	return reply
}

func (s *Summarizer) ask(ctx context.Context, op, prompt string, temperature float64, maxTokens int) (string, error) {
	reply, err := s.chat.Chat(ctx, providers.ChatRequest{
		Operation: op,
		Messages: []providers.Message{
			{Role: models.RoleSystem, Content: analystPrompt},
			{Role: models.RoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// ParseKeyPoints reads a JSON string list, falling back to one point per
// line with list markers removed. At most eight points are kept.
func ParseKeyPoints(reply string) []string {
	reply = strings.TrimSpace(reply)
	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(reply, "```json"), "```"), "```"))

	var points []string
	var list []string
	if err := json.Unmarshal([]byte(body), &list); err == nil {
		for _, p := range list {
			if p = strings.TrimSpace(p); p != "" {
				points = append(points, p)
			}
		}
	} else {
		for _, line := range strings.Split(reply, "\n") {
			line = strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
			if line == "" || strings.HasPrefix(line, "```") {
				continue
			}
			points = append(points, line)
		}
	}
	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}
	if points == nil {
		points = []string{}
	}
	return points
}

func joinMatching(sections []models.Section, keywords []string, prefix string) string {
	var sb strings.Builder
	if prefix != "" {
		sb.WriteString(prefix)
		sb.WriteString("\n\n")
	}
	for _, sec := range sections {
		title := strings.ToLower(sec.Title)
		for _, kw := range keywords {
			if strings.Contains(title, kw) {
				sb.WriteString(sec.Content)
				sb.WriteString("\n\n")
				break
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func truncate(content string) string {
	r := []rune(content)
	if len(r) <= maxContentRunes {
		return content
	}
	return string(r[:maxContentRunes]) + truncationMarker
}
