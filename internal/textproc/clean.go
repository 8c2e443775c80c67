package textproc

import (
	"regexp"
	"strings"
)

var (
	reBlankRuns  = regexp.MustCompile(`\n\s*\n\s*\n+`)
	rePageOfN    = regexp.MustCompile(`(?i)page\s+\d+\s+of\s+\d+`)
	rePageFrac   = regexp.MustCompile(`(?m)^[ \t]*\d+[ \t]*/[ \t]*\d+[ \t]*$`)
	reSpaceRuns  = regexp.MustCompile(` +`)
	reParagraphs = regexp.MustCompile(`\n[ \t]*\n`)
)

// Clean normalizes extracted text before chunking. It collapses three or more
// blank lines into one, drops page counters ("Page 3 of 12", a bare "3 / 12"
// line), squeezes repeated spaces and trims the result.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = reBlankRuns.ReplaceAllString(text, "\n\n")
	text = rePageOfN.ReplaceAllString(text, "")
	text = rePageFrac.ReplaceAllString(text, "")
	text = reSpaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Paragraphs splits text on blank lines and drops empty paragraphs.
func Paragraphs(text string) []string {
	parts := reParagraphs.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
