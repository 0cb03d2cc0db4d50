package domain

import (
	"context"
)

// CriteriaExtractor converts free-text eligibility criteria into a flat
// list of criterion descriptors. Its output is untrusted input: callers
// run it through the tree builder, enricher, and validator before use.
type CriteriaExtractor interface {
	Extract(ctx context.Context, criteriaText string) ([]*Criterion, error)
}

// ClinicalDataSource provides read access to a patient's clinical facts.
// The engine never mutates this source; retries and timeouts belong to
// its implementation.
type ClinicalDataSource interface {
	GetPatient(ctx context.Context, patientID string) (*Patient, error)
	QueryResources(ctx context.Context, resourceType ResourceType, patientID string, filters map[string]string) ([]ClinicalRecord, error)
}

// CriteriaRepository persists parsed criterion trees keyed by trial ID.
// Criteria are immutable once validated; saving replaces the trial's set.
type CriteriaRepository interface {
	SaveCriteria(ctx context.Context, trialID string, criteria []*Criterion) error
	GetCriteria(ctx context.Context, trialID string) ([]*Criterion, error)
}

// CriteriaCache is the distributed cache tier for criterion trees.
type CriteriaCache interface {
	GetCriteria(ctx context.Context, trialID string) ([]*Criterion, bool, error)
	SetCriteria(ctx context.Context, trialID string, criteria []*Criterion) error
	InvalidateCriteria(ctx context.Context, trialID string) error
}

// EligibilityChecker is the engine's externally observable contract.
type EligibilityChecker interface {
	CheckEligibility(ctx context.Context, trialID, patientID string) (*EligibilityResult, error)
}
