// Package textproc cleans extracted paper text and splits it into
// token-bounded chunks for embedding.
package textproc

import (
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts model tokens in a string.
type TokenCounter interface {
	Count(text string) int
}

const defaultEncoding = "cl100k_base"

// NewTokenCounter returns a cl100k_base counter, or the heuristic counter
// when the encoding cannot be loaded (for example without network access to
// fetch the BPE ranks).
func NewTokenCounter() TokenCounter {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return HeuristicCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// HeuristicCounter approximates token counts: one token per CJK character and
// one token per four other characters.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	cjk, other := 0, 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
			continue
		}
		other++
	}
	return cjk + other/4
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
