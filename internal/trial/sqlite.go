package trial

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite. It is used by
// the standalone MCP server, which runs without Postgres.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite trial store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrial scans a row into a Trial struct.
func scanTrial(s scanner) (*Trial, error) {
	t := &Trial{}
	var status string

	err := s.Scan(
		&t.ID, &t.TrialID, &t.Title, &t.Phase, &status,
		&t.Sponsor, &t.CriteriaText, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = Status(status)
	return t, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS trials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trial_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		phase TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'recruiting',
		sponsor TEXT DEFAULT '',
		criteria_text TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trials_status ON trials(status);
	CREATE INDEX IF NOT EXISTS idx_trials_created_at ON trials(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores or updates a trial.
func (s *SQLiteStore) Save(ctx context.Context, trial *Trial) error {
	now := time.Now()

	if trial.Status == "" {
		trial.Status = StatusRecruiting
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM trials WHERE trial_id = ?",
		trial.TrialID,
	).Scan(&existingID)

	if err == nil {
		trial.ID = existingID
		trial.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE trials SET
				title = ?,
				phase = ?,
				status = ?,
				sponsor = ?,
				criteria_text = ?,
				updated_at = ?
			WHERE id = ?
		`,
			trial.Title,
			trial.Phase,
			string(trial.Status),
			trial.Sponsor,
			trial.CriteriaText,
			now,
			existingID,
		)
		return err
	}

	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	trial.CreatedAt = now
	trial.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO trials (
			trial_id, title, phase, status, sponsor, criteria_text,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trial.TrialID,
		trial.Title,
		trial.Phase,
		string(trial.Status),
		trial.Sponsor,
		trial.CriteriaText,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	trial.ID = id

	return nil
}

// Get retrieves a trial by its registry identifier.
func (s *SQLiteStore) Get(ctx context.Context, trialID string) (*Trial, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, trial_id, title, phase, status, sponsor, criteria_text,
			created_at, updated_at
		FROM trials
		WHERE trial_id = ?
		LIMIT 1
	`, trialID)

	t, err := scanTrial(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return t, nil
}

// List returns trials with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Trial, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trial_id, title, phase, status, sponsor, criteria_text,
			created_at, updated_at
		FROM trials
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Trial
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// Count returns the total number of registered trials.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trials").Scan(&count)
	return count, err
}

// Delete removes a trial by its registry identifier.
func (s *SQLiteStore) Delete(ctx context.Context, trialID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM trials WHERE trial_id = ?", trialID)
	return err
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON exports the registry to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list trials: %w", err)
	}

	export := &RegistryExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Trials:     all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON imports trials from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export RegistryExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, t := range export.Trials {
		existing, err := s.Get(ctx, t.TrialID)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if existing != nil {
			skipped++
			continue
		}

		if err := s.Save(ctx, t); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
