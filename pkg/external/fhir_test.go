package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-eligibility-server/internal/domain"
)

func fhirConfig(baseURL string) domain.ClinicalConfig {
	return domain.ClinicalConfig{BaseURL: baseURL, RateLimit: 1000}
}

func TestGetPatient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Patient/patient-1", r.URL.Path)
		assert.Equal(t, "application/fhir+json", r.Header.Get("Accept"))
		w.Write([]byte(`{"resourceType": "Patient", "id": "patient-1", "birthDate": "1980-06-15", "gender": "female"}`))
	}))
	defer server.Close()

	client := NewFHIRClient(fhirConfig(server.URL))

	patient, err := client.GetPatient(context.Background(), "patient-1")
	require.NoError(t, err)

	assert.Equal(t, "patient-1", patient.ID)
	assert.Equal(t, "female", patient.Gender)
	assert.Equal(t, time.Date(1980, 6, 15, 0, 0, 0, 0, time.UTC), patient.BirthDate)
}

func TestGetPatient_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewFHIRClient(fhirConfig(server.URL))

	_, err := client.GetPatient(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetPatient_BadBirthDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "p1", "birthDate": "15/06/1980"}`))
	}))
	defer server.Close()

	client := NewFHIRClient(fhirConfig(server.URL))

	_, err := client.GetPatient(context.Background(), "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid birthDate")
}

func TestQueryResources_FlattensBundle(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Observation", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"entry": [
			{"resource": {
				"resourceType": "Observation",
				"status": "final",
				"code": {"coding": [{"system": "http://loinc.org", "code": "4548-4", "display": "Hemoglobin A1c"}]},
				"valueQuantity": {"value": 8.1, "unit": "%"},
				"effectiveDateTime": "2025-06-02T10:30:00Z",
				"category": [{"coding": [{"code": "laboratory"}]}]
			}}
		]}`))
	}))
	defer server.Close()

	client := NewFHIRClient(fhirConfig(server.URL))

	records, err := client.QueryResources(context.Background(), domain.ResourceObservation, "patient-1", map[string]string{"code": "4548-4"})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "patient=patient-1")
	assert.Contains(t, gotQuery, "code=4548-4")

	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, domain.ResourceObservation, r.ResourceType)
	assert.Equal(t, "final", r.Status)
	assert.Equal(t, "laboratory", r.Category)
	require.NotNil(t, r.Coding)
	assert.Equal(t, "4548-4", r.Coding.Code)
	assert.Equal(t, "Hemoglobin A1c", r.Text, "coding display backfills missing text")
	require.NotNil(t, r.Value)
	assert.Equal(t, 8.1, *r.Value)
	assert.Equal(t, "%", r.Unit)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC), r.Effective)
}

func TestQueryResources_MedicationConcept(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entry": [
			{"resource": {
				"resourceType": "MedicationStatement",
				"status": "active",
				"medicationCodeableConcept": {"text": "Metformin 500mg", "coding": [{"system": "http://www.nlm.nih.gov/research/umls/rxnorm", "code": "6809"}]}
			}}
		]}`))
	}))
	defer server.Close()

	client := NewFHIRClient(fhirConfig(server.URL))

	records, err := client.QueryResources(context.Background(), domain.ResourceMedicationStatement, "patient-1", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Metformin 500mg", records[0].Text)
	assert.Equal(t, "6809", records[0].Coding.Code)
	assert.Equal(t, "active", records[0].Status)
}

func TestQueryResources_AllergyPlainCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entry": [
			{"resource": {
				"resourceType": "AllergyIntolerance",
				"category": ["medication"],
				"code": {"text": "Penicillin V"},
				"recordedDate": "2019-03"
			}}
		]}`))
	}))
	defer server.Close()

	client := NewFHIRClient(fhirConfig(server.URL))

	records, err := client.QueryResources(context.Background(), domain.ResourceAllergyIntolerance, "patient-1", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "medication", records[0].Category)
	assert.Equal(t, "Penicillin V", records[0].Text)
	assert.Equal(t, 2019, records[0].Effective.Year())
}

func TestQueryResources_EmptyBundle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resourceType": "Bundle", "total": 0}`))
	}))
	defer server.Close()

	client := NewFHIRClient(fhirConfig(server.URL))

	records, err := client.QueryResources(context.Background(), domain.ResourceCondition, "patient-1", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseFHIRDateTime_Precisions(t *testing.T) {
	tests := []struct {
		raw  string
		year int
	}{
		{"2025-06-02T10:30:00Z", 2025},
		{"2025-06-02T10:30:00+02:00", 2025},
		{"2025-06-02", 2025},
		{"2025-06", 2025},
		{"2025", 2025},
	}
	for _, tt := range tests {
		parsed, err := parseFHIRDateTime(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.year, parsed.Year())
	}

	_, err := parseFHIRDateTime("June 2nd, 2025")
	assert.Error(t, err)
}
