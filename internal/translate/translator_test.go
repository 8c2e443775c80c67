package translate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"paperwhisper/internal/models"
	"paperwhisper/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoChat struct {
	prompts []string
	failAt  int
}

func (e *echoChat) Info() providers.ProviderInfo { return providers.ProviderInfo{Name: "echo"} }

func (e *echoChat) ChatStream(ctx context.Context, req providers.ChatRequest) (providers.Stream, error) {
	return nil, errors.New("not used")
}

func (e *echoChat) Chat(ctx context.Context, req providers.ChatRequest) (string, error) {
	e.prompts = append(e.prompts, req.Messages[1].Content)
	if e.failAt > 0 && len(e.prompts) == e.failAt {
		return "", errors.New("quota")
	}
	return " translated ", nil
}

func TestTranslate_ShortSectionsWhole(t *testing.T) {
	chat := &echoChat{}
	doc := models.Document{DocumentID: "p", Sections: []models.Section{
		{Title: "Intro", Content: "Hello world."},
		{Title: "Empty", Content: "  "},
		{Title: "Method", Content: "We do things."},
	}}
	var progress []int
	out, err := New(chat, 0, 0, nil).OnProgress(func(n int) { progress = append(progress, n) }).
		Translate(context.Background(), doc, Options{TargetLanguage: "French"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, out.Status)
	assert.Equal(t, DefaultSource, out.SourceLanguage)
	require.Len(t, out.Segments, 2)
	assert.Equal(t, models.TranslationSegment{Original: "Hello world.", Translated: "translated", SectionTitle: "Intro"}, out.Segments[0])
	assert.Contains(t, chat.prompts[0], "into French")
	assert.Equal(t, []int{1, 2}, progress)
}

func TestTranslate_LongSectionUsesParagraphContext(t *testing.T) {
	chat := &echoChat{}
	p1 := strings.Repeat("a", 1500)
	p2 := strings.Repeat("b", 1500)
	p3 := strings.Repeat("c", 300)
	doc := models.Document{DocumentID: "p", Sections: []models.Section{
		{Title: "Long", Content: p1 + "\n\n" + p2 + "\n\n" + p3},
	}}
	out, err := New(chat, 0, 0, nil).Translate(context.Background(), doc, Options{})
	require.NoError(t, err)
	require.Len(t, out.Segments, 3)
	assert.Equal(t, p2, out.Segments[1].Original)
	assert.Equal(t, "Long", out.Segments[2].SectionTitle)

	middle := chat.prompts[1]
	assert.Contains(t, middle, "Previous text:\n"+strings.Repeat("a", 200)+"\n")
	assert.NotContains(t, middle, strings.Repeat("a", 201))
	assert.Contains(t, middle, "Following text:\n"+strings.Repeat("c", 200)+"\n")
	assert.Contains(t, chat.prompts[2], "Following text:\n(none)")
}

func TestTranslate_FailureKeepsDoneSegments(t *testing.T) {
	chat := &echoChat{failAt: 2}
	doc := models.Document{DocumentID: "p", Sections: []models.Section{
		{Title: "A", Content: "one"},
		{Title: "B", Content: "two"},
		{Title: "C", Content: "three"},
	}}
	out, err := New(chat, 0, 0, nil).Translate(context.Background(), doc, Options{})
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Contains(t, out.FailReason, `section "B"`)
	require.Len(t, out.Segments, 1)
	assert.Equal(t, "A", out.Segments[0].SectionTitle)
}

func TestTranslate_NoSectionsFallsBackToFullText(t *testing.T) {
	chat := &echoChat{}
	doc := models.Document{DocumentID: "p", FullText: "first para\n\nsecond para"}
	out, err := New(chat, 0, 0, nil).Translate(context.Background(), doc, Options{})
	require.NoError(t, err)
	require.Len(t, out.Segments, 2)
	assert.Empty(t, out.Segments[0].SectionTitle)
}

func TestMarkdownGroupsSegmentsBySection(t *testing.T) {
	out := Markdown(&models.Translation{
		SourceLanguage: "English",
		TargetLanguage: "French",
		Status:         models.StatusCompleted,
		Segments: []models.TranslationSegment{
			{SectionTitle: "Intro", Translated: " Bonjour. "},
			{SectionTitle: "Intro", Translated: "Suite."},
			{SectionTitle: "Method", Translated: "Méthode."},
		},
	})
	assert.Equal(t, 1, strings.Count(out, "## Intro"))
	assert.Contains(t, out, "## Method\n\nMéthode.")
	assert.Contains(t, out, "\nBonjour.\n")
	assert.True(t, strings.HasPrefix(out, "<!-- English -> French, completed -->"))
}
