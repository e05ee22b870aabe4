package models

import (
	"time"

	"github.com/google/uuid"
)

// NewExtraction creates a running extraction record with a generated UUID
func NewExtraction(rootURL string) *Extraction {
	return &Extraction{
		ID:        uuid.New(),
		RootURL:   rootURL,
		Status:    StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
}

// Complete copies the outcome of a run onto the record.
func (e *Extraction) Complete(result *ExtractionResult, err error) {
	now := time.Now().UTC()
	e.CompletedAt = &now
	if err != nil {
		e.Status = StatusError
		e.Error = err.Error()
		return
	}
	e.Status = StatusCompleted
	e.EntryCount = len(result.Entries)
	e.SkippedCount = len(result.Skipped)
}
