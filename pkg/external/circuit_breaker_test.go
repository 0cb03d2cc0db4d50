package external

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-eligibility-server/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type stubSource struct {
	patient *domain.Patient
	records []domain.ClinicalRecord
	err     error
	calls   int
}

func (s *stubSource) GetPatient(ctx context.Context, patientID string) (*domain.Patient, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.patient, nil
}

func (s *stubSource) QueryResources(ctx context.Context, resourceType domain.ResourceType, patientID string, filters map[string]string) ([]domain.ClinicalRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

type stubExtractor struct {
	criteria []*domain.Criterion
	err      error
	calls    int
}

func (s *stubExtractor) Extract(ctx context.Context, criteriaText string) ([]*domain.Criterion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.criteria, nil
}

func TestResilientClinicalSource_PassThrough(t *testing.T) {
	stub := &stubSource{
		patient: &domain.Patient{ID: "p1", Gender: "female"},
		records: []domain.ClinicalRecord{{ResourceType: domain.ResourceCondition, Text: "T2DM"}},
	}
	rs := NewResilientClinicalSource(stub, quietLogger())

	patient, err := rs.GetPatient(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", patient.ID)

	records, err := rs.QueryResources(context.Background(), domain.ResourceCondition, "p1", nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestResilientClinicalSource_OpensAfterFailures(t *testing.T) {
	stub := &stubSource{err: errors.New("connection refused")}
	rs := NewResilientClinicalSource(stub, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := rs.GetPatient(context.Background(), "p1")
		require.Error(t, err)
	}
	assert.Equal(t, 3, stub.calls)

	// The breaker is open now; the underlying source is not called again.
	_, err := rs.GetPatient(context.Background(), "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, 3, stub.calls)
}

func TestResilientClinicalSource_BreakersAreIndependent(t *testing.T) {
	stub := &stubSource{err: errors.New("connection refused")}
	rs := NewResilientClinicalSource(stub, quietLogger())

	for i := 0; i < 3; i++ {
		_, _ = rs.GetPatient(context.Background(), "p1")
	}
	_, err := rs.GetPatient(context.Background(), "p1")
	assert.Contains(t, err.Error(), "circuit breaker open")

	// Resource queries still reach the source.
	before := stub.calls
	_, err = rs.QueryResources(context.Background(), domain.ResourceCondition, "p1", nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, before+1, stub.calls)
}

func TestResilientClinicalSource_BreakerCounts(t *testing.T) {
	rs := NewResilientClinicalSource(&stubSource{patient: &domain.Patient{ID: "p1"}}, quietLogger())

	_, err := rs.GetPatient(context.Background(), "p1")
	require.NoError(t, err)

	counts := rs.BreakerCounts()
	require.Contains(t, counts, "fhir-patient")
	require.Contains(t, counts, "fhir-resources")
	assert.Equal(t, uint32(1), counts["fhir-patient"].Requests)
	assert.Equal(t, uint32(0), counts["fhir-resources"].Requests)
}

func TestResilientExtractor_OpensEarlier(t *testing.T) {
	stub := &stubExtractor{err: errors.New("upstream timeout")}
	re := NewResilientExtractor(stub, quietLogger())

	// Extraction trips at two consecutive failures.
	for i := 0; i < 2; i++ {
		_, err := re.Extract(context.Background(), "text")
		require.Error(t, err)
	}
	assert.Equal(t, 2, stub.calls)

	_, err := re.Extract(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, 2, stub.calls)
}

func TestResilientExtractor_PassThrough(t *testing.T) {
	stub := &stubExtractor{criteria: []*domain.Criterion{{Kind: domain.INCLUSION, Description: "Age 18+"}}}
	re := NewResilientExtractor(stub, quietLogger())

	criteria, err := re.Extract(context.Background(), "Adults only.")
	require.NoError(t, err)
	require.Len(t, criteria, 1)
	assert.Equal(t, "Age 18+", criteria[0].Description)
}
