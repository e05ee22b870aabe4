package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/romangod6/sitemap-extractor/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS extractions (
            id UUID PRIMARY KEY,
            root_url VARCHAR(2048) NOT NULL,
            status VARCHAR(32) NOT NULL,
            entry_count INTEGER NOT NULL DEFAULT 0,
            skipped_count INTEGER NOT NULL DEFAULT 0,
            error TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
            completed_at TIMESTAMPTZ
        )`,
		`CREATE TABLE IF NOT EXISTS extraction_entries (
            extraction_id UUID NOT NULL REFERENCES extractions(id) ON DELETE CASCADE,
            position INTEGER NOT NULL,
            url TEXT NOT NULL,
            last_modified TIMESTAMPTZ,
            PRIMARY KEY (extraction_id, position)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_created_at ON extractions(created_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	return nil
}

func (s *PostgresStore) CreateExtraction(ctx context.Context, extraction *models.Extraction) error {
	query := `
        INSERT INTO extractions (id, root_url, status, entry_count, skipped_count, error, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `

	_, err := s.db.ExecContext(ctx, query,
		extraction.ID,
		extraction.RootURL,
		extraction.Status,
		extraction.EntryCount,
		extraction.SkippedCount,
		extraction.Error,
		extraction.CreatedAt,
		extraction.CompletedAt,
	)

	return err
}

func (s *PostgresStore) UpdateExtraction(ctx context.Context, extraction *models.Extraction) error {
	query := `
        UPDATE extractions
        SET status = $1, entry_count = $2, skipped_count = $3, error = $4, completed_at = $5
        WHERE id = $6
    `

	res, err := s.db.ExecContext(ctx, query,
		extraction.Status,
		extraction.EntryCount,
		extraction.SkippedCount,
		extraction.Error,
		extraction.CompletedAt,
		extraction.ID,
	)
	if err != nil {
		return err
	}

	return checkAffected(res)
}

func (s *PostgresStore) GetExtraction(ctx context.Context, id uuid.UUID) (*models.Extraction, error) {
	query := `
        SELECT id, root_url, status, entry_count, skipped_count, error, created_at, completed_at
        FROM extractions
        WHERE id = $1
    `

	extractions, err := s.queryExtractions(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(extractions) == 0 {
		return nil, nil
	}

	return extractions[0], nil
}

func (s *PostgresStore) ListExtractions(ctx context.Context, limit, offset int) ([]*models.Extraction, error) {
	query := `
        SELECT id, root_url, status, entry_count, skipped_count, error, created_at, completed_at
        FROM extractions
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2
    `

	return s.queryExtractions(ctx, query, limit, offset)
}

func (s *PostgresStore) DeleteExtraction(ctx context.Context, id uuid.UUID) error {
	// extraction_entries rows go with ON DELETE CASCADE
	res, err := s.db.ExecContext(ctx, `DELETE FROM extractions WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return checkAffected(res)
}

// SaveEntries replaces the entries of an extraction using COPY.
func (s *PostgresStore) SaveEntries(ctx context.Context, extractionID uuid.UUID, entries []models.SitemapEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extraction_entries WHERE extraction_id = $1`, extractionID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("extraction_entries", "extraction_id", "position", "url", "last_modified"))
	if err != nil {
		return err
	}

	for i, entry := range entries {
		if _, err := stmt.ExecContext(ctx, extractionID.String(), i, entry.URL, nullTime(entry.LastModified)); err != nil {
			stmt.Close()
			return fmt.Errorf("error copying entry %d: %w", i, err)
		}
	}

	// flush buffered COPY data
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStore) GetEntries(ctx context.Context, extractionID uuid.UUID) ([]models.SitemapEntry, error) {
	query := `
        SELECT url, last_modified
        FROM extraction_entries
        WHERE extraction_id = $1
        ORDER BY position
    `

	rows, err := s.db.QueryContext(ctx, query, extractionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.SitemapEntry{}
	for rows.Next() {
		var entry models.SitemapEntry
		var lastModified pq.NullTime

		if err := rows.Scan(&entry.URL, &lastModified); err != nil {
			return nil, err
		}

		if lastModified.Valid {
			t := lastModified.Time
			entry.LastModified = &t
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *PostgresStore) queryExtractions(ctx context.Context, query string, args ...interface{}) ([]*models.Extraction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var extractions []*models.Extraction
	for rows.Next() {
		extraction := &models.Extraction{}
		var errMsg sql.NullString
		var completedAt pq.NullTime

		err := rows.Scan(
			&extraction.ID,
			&extraction.RootURL,
			&extraction.Status,
			&extraction.EntryCount,
			&extraction.SkippedCount,
			&errMsg,
			&extraction.CreatedAt,
			&completedAt,
		)
		if err != nil {
			return nil, err
		}

		extraction.Error = errMsg.String
		if completedAt.Valid {
			t := completedAt.Time
			extraction.CompletedAt = &t
		}

		extractions = append(extractions, extraction)
	}

	return extractions, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
