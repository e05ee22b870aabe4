package models

import (
	"time"

	"github.com/google/uuid"
)

// SitemapEntry is one extracted page URL with its optional last-modified time.
type SitemapEntry struct {
	URL          string     `json:"url"`
	LastModified *time.Time `json:"last_modified"`
}

// SkippedSitemap records a child sitemap that contributed no entries.
type SkippedSitemap struct {
	URL    string `json:"url"`
	Depth  int    `json:"depth"`
	Reason string `json:"reason"`
}

// ExtractionResult is the flattened output of one resolver run.
type ExtractionResult struct {
	RootURL         string           `json:"root_url"`
	Entries         []SitemapEntry   `json:"entries"`
	Skipped         []SkippedSitemap `json:"skipped,omitempty"`
	SitemapsFetched int              `json:"sitemaps_fetched"`
	Truncated       bool             `json:"truncated,omitempty"`
}

const (
	StatusRunning   = "Running"
	StatusCompleted = "Completed"
	StatusError     = "Error"
)

// Extraction is the persisted record of a single extraction run.
type Extraction struct {
	ID           uuid.UUID  `json:"id"`
	RootURL      string     `json:"rootUrl"`
	Status       string     `json:"status"`
	EntryCount   int        `json:"entryCount"`
	SkippedCount int        `json:"skippedCount"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}
