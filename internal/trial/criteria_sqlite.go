package trial

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trial-eligibility-server/internal/domain"
)

// SQLiteCriteriaStore persists parsed criterion trees in the trial
// registry's SQLite database. It implements domain.CriteriaRepository
// for the standalone MCP server, which runs without Postgres.
type SQLiteCriteriaStore struct {
	db *sql.DB
}

// NewSQLiteCriteriaStore creates a criteria store sharing the registry's
// database handle.
func NewSQLiteCriteriaStore(store *SQLiteStore) (*SQLiteCriteriaStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS trial_criteria (
		trial_id TEXT PRIMARY KEY,
		criteria TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := store.db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create criteria schema: %w", err)
	}

	return &SQLiteCriteriaStore{db: store.db}, nil
}

// SaveCriteria replaces the stored criteria for a trial.
func (s *SQLiteCriteriaStore) SaveCriteria(ctx context.Context, trialID string, criteria []*domain.Criterion) error {
	data, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trial_criteria (trial_id, criteria, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (trial_id)
		DO UPDATE SET criteria = excluded.criteria, updated_at = excluded.updated_at
	`, trialID, string(data), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save criteria: %w", err)
	}

	return nil
}

// GetCriteria retrieves the stored criteria for a trial.
func (s *SQLiteCriteriaStore) GetCriteria(ctx context.Context, trialID string) ([]*domain.Criterion, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT criteria FROM trial_criteria WHERE trial_id = ?", trialID,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("criteria not found for trial %s: %w", trialID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get criteria: %w", err)
	}

	var criteria []*domain.Criterion
	if err := json.Unmarshal([]byte(data), &criteria); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}

	return criteria, nil
}
