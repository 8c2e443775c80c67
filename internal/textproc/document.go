package textproc

import (
	"fmt"
	"strings"

	"paperwhisper/internal/models"
)

// ChunkID is the stable identifier of the n-th chunk of a document.
func ChunkID(documentID string, n int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, n)
}

// ChunkDocument chunks each non-empty section separately so chunks carry
// their section metadata. Documents without usable sections are chunked from
// the full text instead. Chunk indexes run across the whole document.
func ChunkDocument(doc models.Document, c *Chunker) []models.Chunk {
	out := make([]models.Chunk, 0)
	for _, sec := range doc.Sections {
		if strings.TrimSpace(sec.Content) == "" {
			continue
		}
		for _, text := range c.Split(Clean(sec.Content)) {
			idx := len(out)
			out = append(out, models.Chunk{
				ChunkID:    ChunkID(doc.DocumentID, idx),
				DocumentID: doc.DocumentID,
				Text:       text,
				TokenCount: c.Counter.Count(text),
				Metadata: models.ChunkMetadata{
					SectionTitle: sec.Title,
					SectionID:    sec.ID,
					SectionLevel: sec.Level,
					ChunkIndex:   idx,
				},
			})
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, text := range c.Split(Clean(doc.FullText)) {
		idx := len(out)
		out = append(out, models.Chunk{
			ChunkID:    ChunkID(doc.DocumentID, idx),
			DocumentID: doc.DocumentID,
			Text:       text,
			TokenCount: c.Counter.Count(text),
			Metadata:   models.ChunkMetadata{ChunkIndex: idx},
		})
	}
	return out
}
