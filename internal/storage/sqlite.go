package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/romangod6/sitemap-extractor/internal/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// One connection so ":memory:" databases are shared and writes serialize
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS extractions (
            id TEXT PRIMARY KEY,
            root_url TEXT NOT NULL,
            status TEXT NOT NULL,
            entry_count INTEGER NOT NULL DEFAULT 0,
            skipped_count INTEGER NOT NULL DEFAULT 0,
            error TEXT,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            completed_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS extraction_entries (
            extraction_id TEXT NOT NULL,
            position INTEGER NOT NULL,
            url TEXT NOT NULL,
            last_modified DATETIME,
            PRIMARY KEY (extraction_id, position),
            FOREIGN KEY(extraction_id) REFERENCES extractions(id)
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

func (s *SQLiteStore) CreateExtraction(ctx context.Context, extraction *models.Extraction) error {
	query := `
        INSERT INTO extractions (id, root_url, status, entry_count, skipped_count, error, created_at, completed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `

	_, err := s.db.ExecContext(ctx, query,
		extraction.ID.String(),
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

func (s *SQLiteStore) UpdateExtraction(ctx context.Context, extraction *models.Extraction) error {
	query := `
        UPDATE extractions
        SET status = ?, entry_count = ?, skipped_count = ?, error = ?, completed_at = ?
        WHERE id = ?
    `

	res, err := s.db.ExecContext(ctx, query,
		extraction.Status,
		extraction.EntryCount,
		extraction.SkippedCount,
		extraction.Error,
		extraction.CompletedAt,
		extraction.ID.String(),
	)
	if err != nil {
		return err
	}

	return checkAffected(res)
}

func (s *SQLiteStore) GetExtraction(ctx context.Context, id uuid.UUID) (*models.Extraction, error) {
	query := `
        SELECT id, root_url, status, entry_count, skipped_count, error, created_at, completed_at
        FROM extractions
        WHERE id = ?
    `

	extractions, err := s.queryExtractions(ctx, query, id.String())
	if err != nil {
		return nil, err
	}
	if len(extractions) == 0 {
		return nil, nil
	}

	return extractions[0], nil
}

func (s *SQLiteStore) ListExtractions(ctx context.Context, limit, offset int) ([]*models.Extraction, error) {
	query := `
        SELECT id, root_url, status, entry_count, skipped_count, error, created_at, completed_at
        FROM extractions
        ORDER BY created_at DESC, rowid DESC
        LIMIT ? OFFSET ?
    `

	return s.queryExtractions(ctx, query, limit, offset)
}

func (s *SQLiteStore) DeleteExtraction(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extraction_entries WHERE extraction_id = ?`, id.String()); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM extractions WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if err := checkAffected(res); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) SaveEntries(ctx context.Context, extractionID uuid.UUID, entries []models.SitemapEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extraction_entries WHERE extraction_id = ?`, extractionID.String()); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO extraction_entries (extraction_id, position, url, last_modified)
        VALUES (?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, entry := range entries {
		if _, err := stmt.ExecContext(ctx, extractionID.String(), i, entry.URL, nullTime(entry.LastModified)); err != nil {
			return fmt.Errorf("error saving entry %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetEntries(ctx context.Context, extractionID uuid.UUID) ([]models.SitemapEntry, error) {
	query := `
        SELECT url, last_modified
        FROM extraction_entries
        WHERE extraction_id = ?
        ORDER BY position
    `

	rows, err := s.db.QueryContext(ctx, query, extractionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.SitemapEntry{}
	for rows.Next() {
		var entry models.SitemapEntry
		var lastModified sql.NullTime

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

func (s *SQLiteStore) queryExtractions(ctx context.Context, query string, args ...interface{}) ([]*models.Extraction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var extractions []*models.Extraction
	for rows.Next() {
		var extraction models.Extraction
		var idStr string
		var errMsg sql.NullString
		var completedAt sql.NullTime

		err := rows.Scan(
			&idStr,
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

		extraction.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid extraction id %q: %w", idStr, err)
		}
		extraction.Error = errMsg.String
		if completedAt.Valid {
			t := completedAt.Time
			extraction.CompletedAt = &t
		}

		extractions = append(extractions, &extraction)
	}

	return extractions, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
