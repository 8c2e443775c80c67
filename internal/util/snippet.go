package util

import (
	"sort"
	"strings"
	"unicode"
)

const defaultSnippetRunes = 420

// Snippet returns text cleaned for display and cut to maxRunes.
func Snippet(text string, maxRunes int) string {
	return clip(displayClean(text), maxRunes)
}

// EvidenceSnippet picks the sentence (or two) of a retrieved chunk that best
// match the question, for citation display next to an answer.
func EvidenceSnippet(chunk, question string, maxRunes int) string {
	chunk = displayClean(chunk)
	if chunk == "" {
		return ""
	}
	terms := queryTerms(question)
	sentences := sentences(chunk)
	if len(terms) == 0 || len(sentences) < 2 {
		return Snippet(chunk, maxRunes)
	}

	type scored struct {
		idx   int
		score int
	}
	list := make([]scored, 0, len(sentences))
	for i, s := range sentences {
		low := strings.ToLower(s)
		n := 0
		for _, t := range terms {
			if strings.Contains(low, t) {
				n++
			}
		}
		list = append(list, scored{idx: i, score: n})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })
	if list[0].score == 0 {
		return Snippet(chunk, maxRunes)
	}
	picked := []int{list[0].idx}
	if list[1].score > 0 {
		picked = append(picked, list[1].idx)
		sort.Ints(picked)
	}
	parts := make([]string, 0, len(picked))
	for _, i := range picked {
		parts = append(parts, sentences[i])
	}
	return clip(strings.Join(parts, " "), maxRunes)
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func sentences(s string) []string {
	out := make([]string, 0, 8)
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(r)
		if isTerminator(r) {
			if x := strings.TrimSpace(b.String()); x != "" {
				out = append(out, x)
			}
			b.Reset()
		}
	}
	if rest := strings.TrimSpace(b.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "what": {}, "how": {}, "why": {},
	"which": {}, "that": {}, "this": {}, "these": {}, "those": {}, "with": {}, "from": {}, "does": {},
	"paper": {}, "about": {}, "into": {}, "their": {}, "they": {}, "there": {},
}

// queryTerms lowercases the question into matchable terms. Runs of Han
// characters have no spaces, so they contribute overlapping bigrams.
func queryTerms(q string) []string {
	seen := map[string]struct{}{}
	var terms []string
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	for _, f := range strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '-')
	}) {
		runes := []rune(f)
		if unicode.Is(unicode.Han, runes[0]) {
			for i := 0; i+1 < len(runes); i++ {
				add(string(runes[i : i+2]))
			}
			continue
		}
		if len(runes) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		add(f)
	}
	return terms
}

func displayClean(s string) string {
	s = SanitizeText(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = defaultSnippetRunes
	}
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(r[:maxRunes])) + "..."
}
