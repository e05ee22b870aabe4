package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/romangod6/sitemap-extractor/internal/models"
)

// ErrNotFound is returned when an extraction does not exist.
var ErrNotFound = errors.New("extraction not found")

// Store keeps the history of extraction runs and their entries. It is
// never consulted to answer a fetch.
type Store interface {
	Initialize() error
	Close() error

	// Extraction operations
	CreateExtraction(ctx context.Context, extraction *models.Extraction) error
	UpdateExtraction(ctx context.Context, extraction *models.Extraction) error
	GetExtraction(ctx context.Context, id uuid.UUID) (*models.Extraction, error)
	ListExtractions(ctx context.Context, limit, offset int) ([]*models.Extraction, error)
	DeleteExtraction(ctx context.Context, id uuid.UUID) error

	// Entry operations
	SaveEntries(ctx context.Context, extractionID uuid.UUID, entries []models.SitemapEntry) error
	GetEntries(ctx context.Context, extractionID uuid.UUID) ([]models.SitemapEntry, error)
}

// New opens the store for the configured driver.
func New(driver, url string) (Store, error) {
	switch driver {
	case "", "sqlite", "sqlite3":
		return NewSQLiteStore(url)
	case "postgres", "postgresql":
		return NewPostgresStore(url)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
