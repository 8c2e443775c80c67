package workflows

import "paperwhisper/internal/models"

type PaperIngestInput struct {
	PaperID   string `json:"paper_id"`
	Filename  string `json:"filename"`
	PaperPath string `json:"paper_path"`
}

// PaperStatus is the GetPaperStatus query result of an ingest run.
type PaperStatus struct {
	PaperID     string            `json:"paper_id"`
	Filename    string            `json:"filename"`
	Status      models.TaskStatus `json:"status"`
	Progress    int               `json:"progress"`
	CurrentStep string            `json:"current_step"`
	Steps       map[string]string `json:"steps"`
	ChunkCount  int               `json:"chunk_count"`
	FailReason  string            `json:"fail_reason,omitempty"`
}

type SummaryInput struct {
	PaperID string `json:"paper_id"`
}

type TranslationInput struct {
	PaperID        string `json:"paper_id"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// JobStatus is the GetJobStatus query result of a summary or translation run.
type JobStatus struct {
	PaperID    string            `json:"paper_id"`
	Job        string            `json:"job"`
	Status     models.TaskStatus `json:"status"`
	Items      int               `json:"items"`
	FailReason string            `json:"fail_reason,omitempty"`
}
