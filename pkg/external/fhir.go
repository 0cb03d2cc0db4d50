package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/trial-eligibility-server/internal/domain"
)

// FHIRClient reads patient demographics and clinical resources from a
// FHIR R4 server. It implements domain.ClinicalDataSource.
type FHIRClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// NewFHIRClient creates a new FHIR data source client.
func NewFHIRClient(config domain.ClinicalConfig) *FHIRClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}

	return &FHIRClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// fhirPatient is the subset of the Patient resource the engine needs.
type fhirPatient struct {
	ID        string `json:"id"`
	BirthDate string `json:"birthDate"`
	Gender    string `json:"gender"`
}

type fhirCoding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

type fhirCodeableConcept struct {
	Coding []fhirCoding `json:"coding"`
	Text   string       `json:"text"`
}

type fhirQuantity struct {
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
}

// fhirResource is a superset of the fields read from the resource types
// the matchers query. FHIR spreads equivalent data across differently
// named elements per type (code vs medicationCodeableConcept, several
// effective/onset variants); toRecord flattens them.
type fhirResource struct {
	ResourceType              string               `json:"resourceType"`
	Code                      *fhirCodeableConcept `json:"code"`
	MedicationCodeableConcept *fhirCodeableConcept `json:"medicationCodeableConcept"`
	Status                    string               `json:"status"`
	ValueQuantity             *fhirQuantity        `json:"valueQuantity"`
	Category                  json.RawMessage      `json:"category"`
	EffectiveDateTime         string               `json:"effectiveDateTime"`
	OnsetDateTime             string               `json:"onsetDateTime"`
	RecordedDate              string               `json:"recordedDate"`
	PerformedDateTime         string               `json:"performedDateTime"`
	OccurrenceDateTime        string               `json:"occurrenceDateTime"`
}

type fhirBundle struct {
	Entry []struct {
		Resource fhirResource `json:"resource"`
	} `json:"entry"`
}

// GetPatient retrieves patient demographics.
func (c *FHIRClient) GetPatient(ctx context.Context, patientID string) (*domain.Patient, error) {
	var p fhirPatient
	path := fmt.Sprintf("/Patient/%s", url.PathEscape(patientID))
	if err := c.get(ctx, path, nil, &p); err != nil {
		return nil, err
	}

	patient := &domain.Patient{
		ID:     p.ID,
		Gender: p.Gender,
	}
	if p.BirthDate != "" {
		birthDate, err := time.Parse("2006-01-02", p.BirthDate)
		if err != nil {
			return nil, fmt.Errorf("invalid birthDate %q for patient %s: %w", p.BirthDate, patientID, err)
		}
		patient.BirthDate = birthDate
	}

	return patient, nil
}

// QueryResources searches a resource type for the patient and flattens
// the result bundle into clinical records.
func (c *FHIRClient) QueryResources(ctx context.Context, resourceType domain.ResourceType, patientID string, filters map[string]string) ([]domain.ClinicalRecord, error) {
	params := url.Values{"patient": {patientID}}
	for k, v := range filters {
		params.Set(k, v)
	}

	var bundle fhirBundle
	if err := c.get(ctx, "/"+string(resourceType), params, &bundle); err != nil {
		return nil, err
	}

	records := make([]domain.ClinicalRecord, 0, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		records = append(records, entry.Resource.toRecord(resourceType))
	}
	return records, nil
}

func (c *FHIRClient) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create FHIR request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute FHIR request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("FHIR server returned status %d for %s: %s", resp.StatusCode, path, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode FHIR response: %w", err)
	}
	return nil
}

func (r *fhirResource) toRecord(resourceType domain.ResourceType) domain.ClinicalRecord {
	record := domain.ClinicalRecord{
		ResourceType: resourceType,
		Status:       r.Status,
		Category:     r.categoryText(),
	}

	concept := r.Code
	if concept == nil {
		concept = r.MedicationCodeableConcept
	}
	if concept != nil {
		record.Text = concept.Text
		if len(concept.Coding) > 0 {
			first := concept.Coding[0]
			record.Coding = &domain.Coding{
				System:  first.System,
				Code:    first.Code,
				Display: first.Display,
			}
			if record.Text == "" {
				record.Text = first.Display
			}
		}
	}

	if r.ValueQuantity != nil {
		record.Value = r.ValueQuantity.Value
		record.Unit = r.ValueQuantity.Unit
	}

	for _, raw := range []string{r.EffectiveDateTime, r.OnsetDateTime, r.RecordedDate, r.PerformedDateTime, r.OccurrenceDateTime} {
		if raw == "" {
			continue
		}
		if t, err := parseFHIRDateTime(raw); err == nil {
			record.Effective = t
			break
		}
	}

	return record
}

// categoryText extracts a category label. FHIR encodes category either as
// an array of plain strings (AllergyIntolerance) or as an array of
// codeable concepts (Observation, Condition).
func (r *fhirResource) categoryText() string {
	if len(r.Category) == 0 {
		return ""
	}

	var plain []string
	if err := json.Unmarshal(r.Category, &plain); err == nil && len(plain) > 0 {
		return plain[0]
	}

	var concepts []fhirCodeableConcept
	if err := json.Unmarshal(r.Category, &concepts); err == nil && len(concepts) > 0 {
		if concepts[0].Text != "" {
			return concepts[0].Text
		}
		if len(concepts[0].Coding) > 0 {
			return concepts[0].Coding[0].Code
		}
	}

	return ""
}

// parseFHIRDateTime accepts the date precisions a FHIR dateTime allows.
func parseFHIRDateTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized dateTime %q", raw)
}
