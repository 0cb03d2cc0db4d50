package trial

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL trial store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL trial store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save stores or updates a trial.
func (s *PostgresStore) Save(ctx context.Context, trial *Trial) error {
	now := time.Now()

	if trial.Status == "" {
		trial.Status = StatusRecruiting
	}

	query := `
		INSERT INTO trials (
			trial_id, title, phase, status, sponsor, criteria_text,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (trial_id) DO UPDATE SET
			title = EXCLUDED.title,
			phase = EXCLUDED.phase,
			status = EXCLUDED.status,
			sponsor = EXCLUDED.sponsor,
			criteria_text = EXCLUDED.criteria_text,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		trial.TrialID,
		trial.Title,
		trial.Phase,
		string(trial.Status),
		trial.Sponsor,
		trial.CriteriaText,
		now,
		now,
	).Scan(&trial.ID, &trial.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save trial: %w", err)
	}

	trial.UpdatedAt = now
	return nil
}

// Get retrieves a trial by its registry identifier.
func (s *PostgresStore) Get(ctx context.Context, trialID string) (*Trial, error) {
	query := `
		SELECT id, trial_id, title, phase, status, sponsor, criteria_text,
			created_at, updated_at
		FROM trials
		WHERE trial_id = $1
		LIMIT 1
	`

	t := &Trial{}
	var status string

	err := s.db.QueryRowContext(ctx, query, trialID).Scan(
		&t.ID, &t.TrialID, &t.Title, &t.Phase, &status,
		&t.Sponsor, &t.CriteriaText, &t.CreatedAt, &t.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trial: %w", err)
	}

	t.Status = Status(status)
	return t, nil
}

// List returns trials with pagination.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Trial, error) {
	query := `
		SELECT id, trial_id, title, phase, status, sponsor, criteria_text,
			created_at, updated_at
		FROM trials
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	defer rows.Close()

	var result []*Trial
	for rows.Next() {
		t := &Trial{}
		var status string

		err := rows.Scan(
			&t.ID, &t.TrialID, &t.Title, &t.Phase, &status,
			&t.Sponsor, &t.CriteriaText, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		t.Status = Status(status)
		result = append(result, t)
	}

	return result, rows.Err()
}

// Count returns the total number of registered trials.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trials").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trials: %w", err)
	}
	return count, nil
}

// Delete removes a trial by its registry identifier.
func (s *PostgresStore) Delete(ctx context.Context, trialID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM trials WHERE trial_id = $1", trialID)
	if err != nil {
		return fmt.Errorf("failed to delete trial: %w", err)
	}
	return nil
}

// pgMaxExportLimit is the maximum number of entries to export at once.
const pgMaxExportLimit = 1000000

// ExportJSON exports the registry to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, pgMaxExportLimit, 0)
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
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
