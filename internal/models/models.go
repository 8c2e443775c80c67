package models

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Paper struct {
	PaperID    string     `json:"paper_id"`
	Filename   string     `json:"filename"`
	Title      string     `json:"title,omitempty"`
	Status     TaskStatus `json:"status"`
	Progress   int        `json:"progress"`
	Step       string     `json:"step,omitempty"`
	FailReason string     `json:"fail_reason,omitempty"`
	ChunkCount int        `json:"chunk_count"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Metadata struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

type Section struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Level   int    `json:"level"`
	Order   int    `json:"order"`
	Content string `json:"content"`
}

// Document is a parsed paper. It is not modified after parsing; summaries and
// translations are stored next to it.
type Document struct {
	DocumentID string    `json:"document_id"`
	Metadata   Metadata  `json:"metadata"`
	Sections   []Section `json:"sections"`
	FullText   string    `json:"full_text"`
	CreatedAt  time.Time `json:"created_at"`
}

type ChunkMetadata struct {
	SectionTitle string `json:"section_title,omitempty"`
	SectionID    string `json:"section_id,omitempty"`
	SectionLevel int    `json:"section_level,omitempty"`
	ChunkIndex   int    `json:"chunk_index"`
}

type Chunk struct {
	ChunkID    string        `json:"chunk_id"`
	DocumentID string        `json:"document_id"`
	Text       string        `json:"text"`
	TokenCount int           `json:"token_count"`
	Metadata   ChunkMetadata `json:"metadata"`
}

type RetrievalResult struct {
	ChunkID    string        `json:"chunk_id"`
	DocumentID string        `json:"document_id"`
	Text       string        `json:"text"`
	Score      float64       `json:"score"`
	Metadata   ChunkMetadata `json:"metadata"`
}

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the stored transcript of one conversation about one document.
type Session struct {
	SessionID  string    `json:"session_id"`
	DocumentID string    `json:"document_id"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type SectionSummary struct {
	SectionTitle string `json:"section_title"`
	Summary      string `json:"summary"`
}

type PaperSummary struct {
	DocumentID       string           `json:"document_id"`
	OverallSummary   string           `json:"overall_summary"`
	KeyPoints        []string         `json:"key_points"`
	Methodology      string           `json:"methodology,omitempty"`
	Contributions    string           `json:"contributions,omitempty"`
	SectionSummaries []SectionSummary `json:"section_summaries"`
	Status           TaskStatus       `json:"status"`
	FailReason       string           `json:"fail_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

type TranslationSegment struct {
	Original     string `json:"original"`
	Translated   string `json:"translated"`
	SectionTitle string `json:"section_title,omitempty"`
}

type Translation struct {
	DocumentID     string               `json:"document_id"`
	SourceLanguage string               `json:"source_language"`
	TargetLanguage string               `json:"target_language"`
	Segments       []TranslationSegment `json:"segments"`
	Status         TaskStatus           `json:"status"`
	FailReason     string               `json:"fail_reason,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}
