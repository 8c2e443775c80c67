package paper

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"paperwhisper/internal/models"
	"paperwhisper/internal/textproc"
)

const (
	titleScanLines  = 20
	maxAbstractLen  = 2000
	authorScanChars = 2000
	keywordScanLen  = 3000
)

var (
	reHeading  = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
	reAbstract = regexp.MustCompile(`(?is)(?:^|\n)#{1,3}\s*(?:abstract|摘要)\s*\n(.*?)(?:\n#{1,3}\s|\z)`)
	reAuthors  = regexp.MustCompile(`(?im)^(?:authors?|作者)\s*[:：]\s*(.+)$`)
	reKeywords = regexp.MustCompile(`(?im)^(?:keywords?|key words|关键词)\s*[:：]\s*(.+)$`)

	reAuthorSep  = regexp.MustCompile(`[,;，；]|\s+and\s+`)
	reKeywordSep = regexp.MustCompile(`[,;·，；]`)
	reBlankLines = regexp.MustCompile(`\n\s*\n`)
)

// Parse builds a document from extracted text. Markdown headings become
// sections in order; text without headings yields a document with no
// sections and only FullText.
func Parse(documentID, text string) models.Document {
	text = textproc.Clean(text)
	return models.Document{
		DocumentID: documentID,
		Metadata:   ParseMetadata(text),
		Sections:   ParseSections(text),
		FullText:   text,
		CreatedAt:  time.Now().UTC(),
	}
}

func ParseSections(text string) []models.Section {
	var (
		sections []models.Section
		cur      *models.Section
		body     strings.Builder
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Content = strings.TrimSpace(body.String())
		sections = append(sections, *cur)
		body.Reset()
	}
	for _, line := range strings.Split(text, "\n") {
		if m := reHeading.FindStringSubmatch(line); m != nil {
			flush()
			order := len(sections)
			cur = &models.Section{
				ID:    fmt.Sprintf("section_%d", order),
				Title: strings.TrimSpace(m[2]),
				Level: len(m[1]),
				Order: order,
			}
			continue
		}
		if cur != nil {
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	flush()
	return sections
}

func ParseMetadata(text string) models.Metadata {
	md := models.Metadata{Authors: []string{}, Keywords: []string{}}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i >= titleScanLines {
			break
		}
		if strings.HasPrefix(line, "# ") {
			md.Title = strings.TrimSpace(line[2:])
			break
		}
	}
	if md.Title == "" {
		md.Title = firstLineTitle(lines)
	}

	if m := reAbstract.FindStringSubmatch(text); m != nil {
		abs := reBlankLines.ReplaceAllString(strings.TrimSpace(m[1]), "\n")
		md.Abstract = truncateRunes(abs, maxAbstractLen)
	}
	if m := reAuthors.FindStringSubmatch(prefix(text, authorScanChars)); m != nil {
		md.Authors = splitList(reAuthorSep, m[1])
	}
	if m := reKeywords.FindStringSubmatch(prefix(text, keywordScanLen)); m != nil {
		md.Keywords = splitList(reKeywordSep, m[1])
	}
	return md
}

// firstLineTitle guesses a title for heading-less PDF text: the first
// non-empty line, if it is short enough to be one.
func firstLineTitle(lines []string) string {
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if len([]rune(l)) <= 200 {
			return l
		}
		return ""
	}
	return ""
}

func splitList(sep *regexp.Regexp, s string) []string {
	parts := sep.Split(s, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
