// Package trial provides storage for the trial registry. The registry
// holds trial metadata and the raw criteria text; parsed criterion trees
// live in the criteria repository.
package trial

import (
	"context"
	"io"
	"time"
)

// Status represents the recruitment status of a trial.
type Status string

const (
	StatusRecruiting Status = "recruiting"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusCompleted  Status = "completed"
	StatusWithdrawn  Status = "withdrawn"
)

// Trial represents a clinical trial registered with the server.
type Trial struct {
	ID           int64     `json:"id,omitempty"`
	TrialID      string    `json:"trial_id"` // registry identifier, e.g. NCT number
	Title        string    `json:"title"`
	Phase        string    `json:"phase,omitempty"`
	Status       Status    `json:"status"`
	Sponsor      string    `json:"sponsor,omitempty"`
	CriteriaText string    `json:"criteria_text,omitempty"` // raw eligibility text as registered
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store defines the interface for trial registry storage.
type Store interface {
	// Save stores or updates a trial. An existing trial with the same
	// trial_id is updated in place.
	Save(ctx context.Context, trial *Trial) error

	// Get retrieves a trial by its registry identifier.
	// Returns nil without error when the trial is not registered.
	Get(ctx context.Context, trialID string) (*Trial, error)

	// List returns trials with pagination, most recently created first.
	List(ctx context.Context, limit, offset int) ([]*Trial, error)

	// Count returns the total number of registered trials.
	Count(ctx context.Context) (int64, error)

	// Delete removes a trial by its registry identifier.
	Delete(ctx context.Context, trialID string) error

	// ExportJSON exports the registry to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports trials from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// RegistryExport represents the JSON export format.
type RegistryExport struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Trials     []*Trial  `json:"trials"`
}
