package textproc

import (
	"regexp"
	"strings"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
	paragraphSep        = "\n\n"
)

var reSentenceEnd = regexp.MustCompile(`[。！？.!?]+`)

// Chunker groups paragraphs into chunks of at most Size tokens. Consecutive
// chunks split on a paragraph boundary share a suffix of whole paragraphs
// worth at most Overlap tokens.
type Chunker struct {
	Counter TokenCounter
	Size    int
	Overlap int
}

func NewChunker(counter TokenCounter, size, overlap int) *Chunker {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{Counter: counter, Size: size, Overlap: overlap}
}

// Split returns the chunks of text in input order. Empty input yields no
// chunks.
func (c *Chunker) Split(text string) []string {
	out := make([]string, 0)
	var buf []string
	flush := func() {
		if len(buf) > 0 {
			out = append(out, strings.Join(buf, paragraphSep))
		}
	}

	for _, para := range Paragraphs(text) {
		if c.Counter.Count(para) > c.Size {
			flush()
			buf = nil
			out = append(out, c.splitSentences(para)...)
			continue
		}
		if len(buf) > 0 && !c.fits(append(buf, para)) {
			flush()
			buf = c.overlapSeed(buf)
			for len(buf) > 0 && !c.fits(append(buf, para)) {
				buf = buf[1:]
			}
		}
		buf = append(buf, para)
	}
	flush()
	return out
}

func (c *Chunker) fits(paras []string) bool {
	return c.Counter.Count(strings.Join(paras, paragraphSep)) <= c.Size
}

// overlapSeed keeps the most recent paragraphs of prev whose joined size stays
// within Overlap. Paragraph order is preserved.
func (c *Chunker) overlapSeed(prev []string) []string {
	if c.Overlap <= 0 {
		return nil
	}
	start := len(prev)
	for i := len(prev) - 1; i >= 0; i-- {
		if c.Counter.Count(strings.Join(prev[i:], paragraphSep)) > c.Overlap {
			break
		}
		start = i
	}
	seed := make([]string, len(prev)-start)
	copy(seed, prev[start:])
	return seed
}

// splitSentences breaks an oversized paragraph on sentence terminators and
// regroups the sentences into chunks of at most Size tokens. A single sentence
// longer than Size is emitted on its own.
func (c *Chunker) splitSentences(para string) []string {
	sentences := splitKeepingTerminators(para)
	out := make([]string, 0, 2)
	var cur strings.Builder
	for _, s := range sentences {
		if cur.Len() > 0 && c.Counter.Count(cur.String()+s) > c.Size {
			if t := strings.TrimSpace(cur.String()); t != "" {
				out = append(out, t)
			}
			cur.Reset()
		}
		cur.WriteString(s)
	}
	if t := strings.TrimSpace(cur.String()); t != "" {
		out = append(out, t)
	}
	return out
}

func splitKeepingTerminators(text string) []string {
	idx := reSentenceEnd.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(idx)+1)
	start := 0
	for _, m := range idx {
		out = append(out, text[start:m[1]])
		start = m[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
