package rag

import (
	"fmt"
	"strings"

	"paperwhisper/internal/models"
	"paperwhisper/internal/providers"
)

const systemPrompt = `You are an assistant for reading academic papers. Answer the user's questions using the paper excerpts you are given.

Rules:
1. Answer only from the provided paper excerpts. Do not invent information.
2. If the excerpts do not contain the answer, say so explicitly.
3. Use clear, precise academic language.
4. When the question has several parts, answer them point by point, citing the excerpt text when it helps.
5. Reply in the language of the question.`

const userTemplate = `Answer the question using the following paper excerpts.

Paper excerpts:
%s

Question: %s

Give an accurate, detailed answer based on the excerpts above. If they do not contain enough information, say so.`

// NoResultsAnswer is returned without calling the model when retrieval finds nothing.
const NoResultsAnswer = "Sorry, I could not find anything in this paper related to your question. Try rephrasing it or asking about another part of the paper."

// historyPairs is how many earlier exchanges are replayed to the model.
const historyPairs = 3

func formatContext(results []models.RetrievalResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		section := r.Metadata.SectionTitle
		if section == "" {
			section = "unknown section"
		}
		parts = append(parts, fmt.Sprintf("[Excerpt %d] (section: %s, relevance: %.3f)\n%s\n", i+1, section, r.Score, r.Text))
	}
	return strings.Join(parts, "\n---\n\n")
}

func buildMessages(question string, results []models.RetrievalResult, history []models.Message) []providers.Message {
	msgs := make([]providers.Message, 0, len(history)+2)
	msgs = append(msgs, providers.Message{Role: models.RoleSystem, Content: systemPrompt})
	for _, h := range history {
		msgs = append(msgs, providers.Message{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, providers.Message{
		Role:    models.RoleUser,
		Content: fmt.Sprintf(userTemplate, formatContext(results), question),
	})
	return msgs
}
