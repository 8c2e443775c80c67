package activities

import "paperwhisper/internal/models"

type UpdatePaperStatusInput struct {
	PaperID    string            `json:"paper_id"`
	Status     models.TaskStatus `json:"status"`
	Progress   int               `json:"progress"`
	Step       string            `json:"step,omitempty"`
	FailReason string            `json:"fail_reason,omitempty"`
}

type ExtractTextInput struct {
	PaperPath string `json:"paper_path"`
}

type ExtractTextOutput struct {
	Text string `json:"text"`
}

type ParseDocumentInput struct {
	PaperID string `json:"paper_id"`
	Text    string `json:"text"`
}

type ParseDocumentOutput struct {
	Title        string `json:"title"`
	SectionCount int    `json:"section_count"`
}

type VectorizeInput struct {
	PaperID string `json:"paper_id"`
}

type VectorizeOutput struct {
	ChunkCount int    `json:"chunk_count"`
	Dimension  int    `json:"dimension"`
	Model      string `json:"model"`
}

type WriteArtifactsInput struct {
	PaperID string `json:"paper_id"`
}

type WriteArtifactsOutput struct {
	Dir string `json:"dir"`
}

type SummarizeInput struct {
	PaperID string `json:"paper_id"`
}

type TranslateInput struct {
	PaperID        string `json:"paper_id"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// JobOutput reports how a summary or translation run ended. Partial results
// are stored even when Status is failed.
type JobOutput struct {
	Status     models.TaskStatus `json:"status"`
	FailReason string            `json:"fail_reason,omitempty"`
	Items      int               `json:"items"`
}
