package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertDataSource creates or refreshes a data source health record and
// marks it active. Idempotent; called by the orchestrator before each
// adapter run.
func (s *Store) UpsertDataSource(ctx context.Context, name, typ, url string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO data_sources (name, type, url, status, created_at, updated_at)
		VALUES (?, ?, ?, 'active', ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type = excluded.type, url = excluded.url,
			status = 'active', updated_at = excluded.updated_at`,
		name, typ, url, now, now)
	if err != nil {
		return fmt.Errorf("upsert data source %s: %w", name, err)
	}
	return nil
}

// RecordScrapeSuccess stamps last_scraped and clears any previous error.
func (s *Store) RecordScrapeSuccess(ctx context.Context, name string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE data_sources SET last_scraped = ?, status = 'active',
		error_message = '', updated_at = ? WHERE name = ?`,
		now, now, name)
	return err
}

// RecordScrapeError marks a source errored with its message and timestamp.
func (s *Store) RecordScrapeError(ctx context.Context, name, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE data_sources SET status = 'error', error_message = ?,
		last_error_at = ?, updated_at = ? WHERE name = ?`,
		errMsg, now, now, name)
	return err
}

// GetDataSource retrieves a health record by name, or nil.
func (s *Store) GetDataSource(ctx context.Context, name string) (*DataSource, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT name, type, url, status, last_scraped, error_message, last_error_at
		FROM data_sources WHERE name = ?`, name)
	ds, err := scanDataSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ds, err
}

// ListDataSources returns all health records, most recently scraped first
// with never-scraped sources last.
func (s *Store) ListDataSources(ctx context.Context) ([]*DataSource, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT name, type, url, status, last_scraped, error_message, last_error_at
		FROM data_sources ORDER BY last_scraped DESC NULLS LAST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*DataSource
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ds)
	}
	return sources, rows.Err()
}

func scanDataSource(row rowScanner) (*DataSource, error) {
	var ds DataSource
	var scraped, errAt sql.NullInt64
	err := row.Scan(&ds.Name, &ds.Type, &ds.URL, &ds.Status,
		&scraped, &ds.ErrorMessage, &errAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan data source: %w", err)
	}
	ds.LastScraped = nullToTime(scraped)
	ds.LastErrorAt = nullToTime(errAt)
	return &ds, nil
}
