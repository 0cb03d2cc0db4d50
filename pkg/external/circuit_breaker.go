package external

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/trial-eligibility-server/internal/domain"
)

// ResilientClinicalSource wraps a clinical data source with circuit
// breakers so a failing FHIR server trips fast instead of stalling every
// eligibility check. Patient reads and resource searches break
// independently since they often have different failure profiles.
type ResilientClinicalSource struct {
	source domain.ClinicalDataSource
	log    *logrus.Logger

	patientBreaker  *gobreaker.CircuitBreaker
	resourceBreaker *gobreaker.CircuitBreaker
}

// NewResilientClinicalSource wraps the given source.
func NewResilientClinicalSource(source domain.ClinicalDataSource, logger *logrus.Logger) *ResilientClinicalSource {
	return &ResilientClinicalSource{
		source:          source,
		log:             logger,
		patientBreaker:  newBreaker("fhir-patient", logger),
		resourceBreaker: newBreaker("fhir-resources", logger),
	}
}

func newBreaker(name string, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// GetPatient retrieves patient demographics through the circuit breaker.
func (r *ResilientClinicalSource) GetPatient(ctx context.Context, patientID string) (*domain.Patient, error) {
	result, err := r.patientBreaker.Execute(func() (interface{}, error) {
		return r.source.GetPatient(ctx, patientID)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("clinical data source unavailable (circuit breaker open)")
		}
		return nil, err
	}
	return result.(*domain.Patient), nil
}

// QueryResources searches clinical resources through the circuit breaker.
func (r *ResilientClinicalSource) QueryResources(ctx context.Context, resourceType domain.ResourceType, patientID string, filters map[string]string) ([]domain.ClinicalRecord, error) {
	result, err := r.resourceBreaker.Execute(func() (interface{}, error) {
		return r.source.QueryResources(ctx, resourceType, patientID, filters)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("clinical data source unavailable (circuit breaker open)")
		}
		return nil, err
	}
	return result.([]domain.ClinicalRecord), nil
}

// BreakerCounts returns the counters of both breakers, keyed by name.
func (r *ResilientClinicalSource) BreakerCounts() map[string]gobreaker.Counts {
	return map[string]gobreaker.Counts{
		r.patientBreaker.Name():  r.patientBreaker.Counts(),
		r.resourceBreaker.Name(): r.resourceBreaker.Counts(),
	}
}

// ResilientExtractor wraps a criteria extractor with a circuit breaker.
// Extraction calls are expensive, so the breaker trips earlier than the
// clinical-source breakers.
type ResilientExtractor struct {
	extractor domain.CriteriaExtractor
	breaker   *gobreaker.CircuitBreaker
}

// NewResilientExtractor wraps the given extractor.
func NewResilientExtractor(extractor domain.CriteriaExtractor, logger *logrus.Logger) *ResilientExtractor {
	return &ResilientExtractor{
		extractor: extractor,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "extraction",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     90 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 2 && failureRatio >= 0.5
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Circuit breaker state changed")
			},
		}),
	}
}

// Extract runs the extraction through the circuit breaker.
func (r *ResilientExtractor) Extract(ctx context.Context, criteriaText string) ([]*domain.Criterion, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.extractor.Extract(ctx, criteriaText)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("extraction service unavailable (circuit breaker open)")
		}
		return nil, err
	}
	return result.([]*domain.Criterion), nil
}
