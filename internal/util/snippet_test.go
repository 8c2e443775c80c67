package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnippet(t *testing.T) {
	assert.Equal(t, "Hello world C", Snippet("Hello\x00   world \n\t C", 100))
	assert.Equal(t, "abc...", Snippet("abcdef", 3))
}

func TestEvidenceSnippet(t *testing.T) {
	chunk := "This paper studies edge computing in cloud schedulers. It evaluates latency reduction for edge workloads. Unrelated appendix text."
	out := EvidenceSnippet(chunk, "What are edge workload latency results?", 200)
	assert.True(t, strings.HasPrefix(out, "This paper studies edge computing"), out)
	assert.Contains(t, out, "latency reduction")
	assert.NotContains(t, out, "appendix")
}

func TestEvidenceSnippetHan(t *testing.T) {
	chunk := "本文提出一种新的注意力机制。实验表明模型在翻译任务上效果更好。附录包含额外细节。"
	out := EvidenceSnippet(chunk, "实验结果如何？", 200)
	assert.Equal(t, "实验表明模型在翻译任务上效果更好。", out)
}

func TestEvidenceSnippetNoMatchFallsBack(t *testing.T) {
	assert.Equal(t, "First. Second.", EvidenceSnippet("First. Second.", "zebra", 100))
}
