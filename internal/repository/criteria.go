package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/trial-eligibility-server/internal/domain"
)

// CriteriaRepository persists parsed criterion trees in Postgres. The
// whole tree is stored as one JSONB document per trial; criteria are
// replaced as a set, never patched in place. It implements
// domain.CriteriaRepository.
type CriteriaRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewCriteriaRepository creates a new criteria repository.
func NewCriteriaRepository(db *pgxpool.Pool, logger *logrus.Logger) *CriteriaRepository {
	return &CriteriaRepository{
		db:  db,
		log: logger,
	}
}

// SaveCriteria replaces the stored criteria for a trial.
func (r *CriteriaRepository) SaveCriteria(ctx context.Context, trialID string, criteria []*domain.Criterion) error {
	data, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("marshaling criteria: %w", err)
	}

	query := `
		INSERT INTO trial_criteria (id, trial_id, criteria, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (trial_id)
		DO UPDATE SET criteria = EXCLUDED.criteria, updated_at = NOW()`

	_, err = r.db.Exec(ctx, query, uuid.New(), trialID, data)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"trial_id": trialID,
			"error":    err,
		}).Error("Failed to save trial criteria")
		return fmt.Errorf("saving criteria: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"trial_id": trialID,
		"criteria": len(criteria),
	}).Info("Trial criteria saved successfully")

	return nil
}

// GetCriteria retrieves the stored criteria for a trial.
func (r *CriteriaRepository) GetCriteria(ctx context.Context, trialID string) ([]*domain.Criterion, error) {
	query := `SELECT criteria FROM trial_criteria WHERE trial_id = $1`

	var data []byte
	err := r.db.QueryRow(ctx, query, trialID).Scan(&data)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("criteria not found for trial %s: %w", trialID, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"trial_id": trialID,
			"error":    err,
		}).Error("Failed to get trial criteria")
		return nil, fmt.Errorf("getting criteria: %w", err)
	}

	var criteria []*domain.Criterion
	if err := json.Unmarshal(data, &criteria); err != nil {
		return nil, fmt.Errorf("unmarshaling criteria for trial %s: %w", trialID, err)
	}

	return criteria, nil
}

// DeleteCriteria removes a trial's stored criteria.
func (r *CriteriaRepository) DeleteCriteria(ctx context.Context, trialID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM trial_criteria WHERE trial_id = $1`, trialID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"trial_id": trialID,
			"error":    err,
		}).Error("Failed to delete trial criteria")
		return fmt.Errorf("deleting criteria: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("criteria not found for trial %s: %w", trialID, domain.ErrNotFound)
	}

	return nil
}

// ListTrials returns the trial IDs with stored criteria, most recently
// updated first.
func (r *CriteriaRepository) ListTrials(ctx context.Context, limit, offset int) ([]string, error) {
	query := `
		SELECT trial_id FROM trial_criteria
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing trials: %w", err)
	}
	defer rows.Close()

	var trialIDs []string
	for rows.Next() {
		var trialID string
		if err := rows.Scan(&trialID); err != nil {
			return nil, fmt.Errorf("scanning trial row: %w", err)
		}
		trialIDs = append(trialIDs, trialID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trial rows: %w", err)
	}

	return trialIDs, nil
}

// UpdatedAt returns the last time a trial's criteria were written.
func (r *CriteriaRepository) UpdatedAt(ctx context.Context, trialID string) (time.Time, error) {
	var updatedAt time.Time
	err := r.db.QueryRow(ctx, `SELECT updated_at FROM trial_criteria WHERE trial_id = $1`, trialID).Scan(&updatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, fmt.Errorf("criteria not found for trial %s: %w", trialID, domain.ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("getting criteria timestamp: %w", err)
	}
	return updatedAt, nil
}
