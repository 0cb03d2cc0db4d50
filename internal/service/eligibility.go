package service

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/trial-eligibility-server/internal/domain"
)

// EligibilityService orchestrates the criteria pipeline and eligibility
// checks. Parsing runs extract -> build -> enrich -> validate -> persist;
// checks load the trial's criteria through a two-tier cache (in-process
// LRU in front of Redis, repository as source of truth) and evaluate them
// against the clinical data source.
type EligibilityService struct {
	extractor domain.CriteriaExtractor
	repo      domain.CriteriaRepository
	cache     domain.CriteriaCache
	memory    *lru.Cache[string, []*domain.Criterion]

	builder   *TreeBuilder
	enricher  *Enricher
	validator *Validator
	evaluator *Evaluator

	log *logrus.Logger
}

// EligibilityServiceOptions configures optional cache tiers. A nil cache
// or zero memory size disables that tier.
type EligibilityServiceOptions struct {
	Cache       domain.CriteriaCache
	MemoryItems int
}

// NewEligibilityService wires the pipeline stages together.
func NewEligibilityService(
	extractor domain.CriteriaExtractor,
	source domain.ClinicalDataSource,
	repo domain.CriteriaRepository,
	opts EligibilityServiceOptions,
	logger *logrus.Logger,
) (*EligibilityService, error) {
	s := &EligibilityService{
		extractor: extractor,
		repo:      repo,
		cache:     opts.Cache,
		builder:   NewTreeBuilder(logger),
		enricher:  NewEnricher(NewTerminologyTable(), logger),
		validator: NewValidator(logger),
		evaluator: NewEvaluator(source, logger),
		log:       logger,
	}

	if opts.MemoryItems > 0 {
		memory, err := lru.New[string, []*domain.Criterion](opts.MemoryItems)
		if err != nil {
			return nil, fmt.Errorf("creating memory cache: %w", err)
		}
		s.memory = memory
	}

	return s, nil
}

// ParseCriteria extracts structured criteria from free text, assembles
// the logical tree, attaches terminology codes, validates, and persists
// the result for the trial. Validation warnings are returned, not fatal.
func (s *EligibilityService) ParseCriteria(ctx context.Context, req *domain.ParseCriteriaRequest) (*domain.ParseCriteriaResponse, error) {
	if req.TrialID == "" {
		return nil, fmt.Errorf("%w: trial_id is required", domain.ErrInvalidCriterion)
	}
	if req.CriteriaText == "" {
		return nil, fmt.Errorf("%w: criteria_text is required", domain.ErrInvalidCriterion)
	}

	extracted, err := s.extractor.Extract(ctx, req.CriteriaText)
	if err != nil {
		return nil, fmt.Errorf("extracting criteria for trial %s: %w", req.TrialID, err)
	}

	criteria := s.builder.Build(extracted, req.CriteriaText, req.Kind)
	s.enricher.Enrich(criteria)
	warnings := s.validator.ValidateAll(criteria)

	if err := s.repo.SaveCriteria(ctx, req.TrialID, criteria); err != nil {
		return nil, fmt.Errorf("saving criteria for trial %s: %w", req.TrialID, err)
	}
	s.storeInCaches(ctx, req.TrialID, criteria)

	s.log.WithFields(logrus.Fields{
		"trial_id": req.TrialID,
		"criteria": len(criteria),
		"warnings": len(warnings),
	}).Info("Parsed trial criteria")

	return &domain.ParseCriteriaResponse{
		TrialID:  req.TrialID,
		Criteria: criteria,
		Warnings: warnings,
	}, nil
}

// CheckEligibility evaluates a patient against a trial's stored criteria
// and aggregates the per-criterion verdicts.
func (s *EligibilityService) CheckEligibility(ctx context.Context, trialID, patientID string) (*domain.EligibilityResult, error) {
	return s.checkEligibility(ctx, trialID, patientID, nil)
}

// CheckEligibilityStream behaves like CheckEligibility but invokes
// onResult after each top-level criterion is evaluated, so callers can
// surface progress before the final verdict is ready.
func (s *EligibilityService) CheckEligibilityStream(ctx context.Context, trialID, patientID string, onResult func(*domain.EvaluationResult)) (*domain.EligibilityResult, error) {
	return s.checkEligibility(ctx, trialID, patientID, onResult)
}

func (s *EligibilityService) checkEligibility(ctx context.Context, trialID, patientID string, onResult func(*domain.EvaluationResult)) (*domain.EligibilityResult, error) {
	criteria, err := s.loadCriteria(ctx, trialID)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.EvaluationResult, 0, len(criteria))
	for _, c := range criteria {
		r, err := s.evaluator.Evaluate(ctx, c, patientID, 0)
		if err != nil {
			return nil, fmt.Errorf("evaluating criteria for trial %s: %w", trialID, err)
		}
		results = append(results, r)
		if onResult != nil {
			onResult(r)
		}
	}

	result := aggregate(trialID, patientID, results)

	s.log.WithFields(logrus.Fields{
		"trial_id":   trialID,
		"patient_id": patientID,
		"eligible":   result.Eligible,
		"criteria":   result.Summary.Total,
	}).Info("Eligibility check completed")

	return result, nil
}

// GetCriteria returns the trial's stored criteria, using the cache tiers.
func (s *EligibilityService) GetCriteria(ctx context.Context, trialID string) ([]*domain.Criterion, error) {
	return s.loadCriteria(ctx, trialID)
}

// loadCriteria resolves the trial's criteria through the cache tiers,
// backfilling each tier on a miss below it.
func (s *EligibilityService) loadCriteria(ctx context.Context, trialID string) ([]*domain.Criterion, error) {
	if s.memory != nil {
		if criteria, ok := s.memory.Get(trialID); ok {
			return criteria, nil
		}
	}

	if s.cache != nil {
		criteria, found, err := s.cache.GetCriteria(ctx, trialID)
		if err != nil {
			// Cache unavailability degrades to the repository.
			s.log.WithError(err).WithField("trial_id", trialID).Warn("Criteria cache lookup failed")
		} else if found {
			if s.memory != nil {
				s.memory.Add(trialID, criteria)
			}
			return criteria, nil
		}
	}

	criteria, err := s.repo.GetCriteria(ctx, trialID)
	if err != nil {
		return nil, fmt.Errorf("loading criteria for trial %s: %w", trialID, err)
	}
	if len(criteria) == 0 {
		return nil, fmt.Errorf("%w: no criteria stored for trial %s", domain.ErrNotFound, trialID)
	}

	s.storeInCaches(ctx, trialID, criteria)
	return criteria, nil
}

func (s *EligibilityService) storeInCaches(ctx context.Context, trialID string, criteria []*domain.Criterion) {
	if s.memory != nil {
		s.memory.Add(trialID, criteria)
	}
	if s.cache != nil {
		if err := s.cache.SetCriteria(ctx, trialID, criteria); err != nil {
			s.log.WithError(err).WithField("trial_id", trialID).Warn("Failed to cache criteria")
		}
	}
}

// InvalidateCriteria drops a trial's criteria from both cache tiers. The
// repository copy is untouched.
func (s *EligibilityService) InvalidateCriteria(ctx context.Context, trialID string) error {
	if s.memory != nil {
		s.memory.Remove(trialID)
	}
	if s.cache != nil {
		if err := s.cache.InvalidateCriteria(ctx, trialID); err != nil {
			return fmt.Errorf("invalidating criteria for trial %s: %w", trialID, err)
		}
	}
	return nil
}

// aggregate computes the trial verdict from the top-level criterion
// results: eligible iff every inclusion criterion is met and no exclusion
// criterion is met. Failed criteria list unmet inclusions and met
// exclusions, in evaluation order.
func aggregate(trialID, patientID string, results []*domain.EvaluationResult) *domain.EligibilityResult {
	summary := domain.EligibilitySummary{Total: len(results)}
	eligible := true
	var failed []*domain.EvaluationResult

	for _, r := range results {
		switch r.Kind {
		case domain.EXCLUSION:
			if r.Met {
				summary.ExclusionViolated++
				eligible = false
				failed = append(failed, r)
			}
		default:
			if r.Met {
				summary.InclusionMet++
			} else {
				eligible = false
				failed = append(failed, r)
			}
		}
	}

	return &domain.EligibilityResult{
		TrialID:        trialID,
		PatientID:      patientID,
		Eligible:       eligible,
		Results:        results,
		Summary:        summary,
		FailedCriteria: failed,
		CheckedAt:      time.Now().UTC(),
	}
}
