// Package model defines the workorder and lead records shared across the
// ingestion, enrichment, and rerank subsystems.
package model

import "time"

// Status represents the manual triage outcome of a lead.
type Status string

const (
	StatusUnchecked  Status = "unchecked"
	StatusConverted  Status = "converted"
	StatusFailed     Status = "failed"
	StatusInProgress Status = "in-progress"
)

// ValidStatus reports whether s is a recognized triage status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusUnchecked, StatusConverted, StatusFailed, StatusInProgress:
		return true
	}
	return false
}

// WorkorderStatus represents the processing state of an uploaded batch.
type WorkorderStatus string

const (
	WorkorderUploaded   WorkorderStatus = "uploaded"
	WorkorderProcessing WorkorderStatus = "processing"
	WorkorderComplete   WorkorderStatus = "complete"
	WorkorderFailed     WorkorderStatus = "failed"
)

// Workorder is one uploaded set of leads processed together. Cluster labels
// and similarity comparisons never cross workorder boundaries.
type Workorder struct {
	ID         string          `json:"id"`
	Filename   string          `json:"filename"`
	Status     WorkorderStatus `json:"status"`
	UploadedAt time.Time       `json:"uploaded_at"`
}

// Lead is a single spreadsheet row being enriched and triaged.
//
// Fields holds the original row verbatim. The enrichment pipeline populates
// RawText, Persona, and Embedding once; Status and DisplayOrder are mutated
// repeatedly by triage actions. A lead is never deleted by the pipeline.
type Lead struct {
	ID           string            `json:"id"`
	WorkorderID  string            `json:"workorder_id"`
	Fields       map[string]string `json:"fields"`
	CompanyName  string            `json:"company_name,omitempty"`
	RawText      string            `json:"raw_text,omitempty"`
	Persona      string            `json:"persona,omitempty"`
	Embedding    []byte            `json:"embedding,omitempty"`
	Cluster      *int              `json:"cluster,omitempty"`
	Status       Status            `json:"status"`
	DisplayOrder *int              `json:"display_order,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// HasEmbedding reports whether the lead carries a persona embedding.
func (l *Lead) HasEmbedding() bool {
	return len(l.Embedding) > 0
}
