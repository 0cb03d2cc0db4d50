package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trial-eligibility-server/internal/domain"
)

// Category matchers. Each receives a leaf criterion and read access to
// the patient's clinical facts and reports {met, reason, evidence}.
// Missing clinical data is never an error: it degrades to a deterministic
// outcome per operator.

// matchDemographics handles age and gender checks against the patient
// record.
func (e *Evaluator) matchDemographics(ctx context.Context, c *domain.Criterion, patientID string) (*matchOutcome, error) {
	patient, err := e.source.GetPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("retrieving patient %s: %w", patientID, err)
	}

	leaf := c.Leaf
	switch strings.ToLower(leaf.Attribute) {
	case "age":
		age := patient.AgeAt(time.Now())
		met, invalid := compareNumeric(leaf, float64(age))
		if invalid != "" {
			return &matchOutcome{Met: false, Reason: invalid}, nil
		}
		return &matchOutcome{
			Met:    met,
			Reason: fmt.Sprintf("patient age %d, required %s %v", age, leaf.Operator, leaf.Value),
			Evidence: &domain.Evidence{
				Operator: leaf.Operator.String(),
				Expected: leaf.Value,
				Observed: age,
			},
		}, nil

	case "gender", "sex":
		expected, _ := leaf.StringValue()
		equal := strings.EqualFold(patient.Gender, expected)
		met := equal
		if leaf.Operator == domain.NOT_EQUALS {
			met = !equal
		}
		return &matchOutcome{
			Met:    met,
			Reason: fmt.Sprintf("patient gender %q, required %s %q", patient.Gender, leaf.Operator, expected),
			Evidence: &domain.Evidence{
				Operator: leaf.Operator.String(),
				Expected: expected,
				Observed: patient.Gender,
			},
		}, nil

	default:
		return &matchOutcome{
			Met:    false,
			Reason: fmt.Sprintf("unsupported demographic attribute %q", leaf.Attribute),
		}, nil
	}
}

// matchCondition is an existence check over diagnosis records, optionally
// narrowed by the leaf's coded concept.
func (e *Evaluator) matchCondition(ctx context.Context, c *domain.Criterion, patientID string) (*matchOutcome, error) {
	records, err := e.source.QueryResources(ctx, domain.ResourceCondition, patientID, nil)
	if err != nil {
		return nil, fmt.Errorf("querying conditions for %s: %w", patientID, err)
	}

	leaf := c.Leaf
	term, _ := leaf.StringValue()
	matches := make([]domain.ClinicalRecord, 0)
	for _, r := range records {
		if codingMatch(leaf.Coding, r.Coding) || termInRecord(term, r.DisplayText()) {
			matches = append(matches, r)
		}
	}

	return existenceOutcome(leaf.Operator, matches, "condition", term)
}

// matchObservation covers lab_value and performance_status. The most
// recently effective matching observation wins when several exist.
func (e *Evaluator) matchObservation(ctx context.Context, c *domain.Criterion, patientID string) (*matchOutcome, error) {
	records, err := e.source.QueryResources(ctx, domain.ResourceObservation, patientID, nil)
	if err != nil {
		return nil, fmt.Errorf("querying observations for %s: %w", patientID, err)
	}

	leaf := c.Leaf
	matches := make([]domain.ClinicalRecord, 0)
	for _, r := range records {
		if codingMatch(leaf.Coding, r.Coding) || termInRecord(leaf.Attribute, r.DisplayText()) {
			matches = append(matches, r)
		}
	}

	if len(matches) == 0 {
		return &matchOutcome{
			Met:    false,
			Reason: fmt.Sprintf("no matching observation found for %q", leaf.Attribute),
			Evidence: &domain.Evidence{
				Operator: leaf.Operator.String(),
				Expected: leaf.Value,
			},
		}, nil
	}

	latest := mostRecent(matches)
	if latest.Value == nil {
		return &matchOutcome{
			Met:      false,
			Reason:   fmt.Sprintf("latest observation for %q has no numeric value", leaf.Attribute),
			Evidence: &domain.Evidence{Operator: leaf.Operator.String(), Expected: leaf.Value, Records: []domain.ClinicalRecord{latest}},
		}, nil
	}

	met, invalid := compareNumeric(leaf, *latest.Value)
	if invalid != "" {
		return &matchOutcome{Met: false, Reason: invalid}, nil
	}

	return &matchOutcome{
		Met: met,
		Reason: fmt.Sprintf("latest %s = %v %s, required %s %v",
			leaf.Attribute, *latest.Value, latest.Unit, leaf.Operator, leaf.Value),
		Evidence: &domain.Evidence{
			Operator: leaf.Operator.String(),
			Expected: leaf.Value,
			Observed: *latest.Value,
			Records:  []domain.ClinicalRecord{latest},
		},
	}, nil
}

// matchMedication reconciles the criterion term against the patient's
// medication statements. Names match on bidirectional substring
// containment so that generic and brand phrasings meet ("statin" matches
// "Atorvastatin 40mg"); coded concepts match exactly when both sides
// carry one. The status filter defaults to active medications.
func (e *Evaluator) matchMedication(ctx context.Context, c *domain.Criterion, patientID string) (*matchOutcome, error) {
	leaf := c.Leaf
	status := leaf.Status
	if status == "" {
		status = "active"
	}

	records, err := e.source.QueryResources(ctx, domain.ResourceMedicationStatement, patientID, map[string]string{"status": status})
	if err != nil {
		return nil, fmt.Errorf("querying medications for %s: %w", patientID, err)
	}

	term, _ := leaf.StringValue()
	matches := make([]domain.ClinicalRecord, 0)
	for _, r := range records {
		if r.Status != "" && !strings.EqualFold(r.Status, status) {
			continue
		}
		if codingMatch(leaf.Coding, r.Coding) || bidirectionalMatch(term, r.DisplayText()) {
			matches = append(matches, r)
		}
	}

	return existenceOutcome(leaf.Operator, matches, "medication", term)
}

// matchAllergy supports not_exists over the patient's whole allergy list
// (met iff zero records, regardless of allergen) alongside the
// medication-style matching, optionally scoped by category_filter.
func (e *Evaluator) matchAllergy(ctx context.Context, c *domain.Criterion, patientID string) (*matchOutcome, error) {
	records, err := e.source.QueryResources(ctx, domain.ResourceAllergyIntolerance, patientID, nil)
	if err != nil {
		return nil, fmt.Errorf("querying allergies for %s: %w", patientID, err)
	}

	leaf := c.Leaf
	scoped := records
	if leaf.CategoryFilter != "" {
		scoped = scoped[:0:0]
		for _, r := range records {
			if strings.EqualFold(r.Category, leaf.CategoryFilter) {
				scoped = append(scoped, r)
			}
		}
	}

	switch leaf.Operator {
	case domain.NOT_EXISTS:
		return &matchOutcome{
			Met:      len(scoped) == 0,
			Reason:   fmt.Sprintf("patient has %d recorded allergies", len(scoped)),
			Evidence: &domain.Evidence{Operator: leaf.Operator.String(), Records: scoped},
		}, nil
	case domain.EXISTS:
		return &matchOutcome{
			Met:      len(scoped) > 0,
			Reason:   fmt.Sprintf("patient has %d recorded allergies", len(scoped)),
			Evidence: &domain.Evidence{Operator: leaf.Operator.String(), Records: scoped},
		}, nil
	}

	term, _ := leaf.StringValue()
	matches := make([]domain.ClinicalRecord, 0)
	for _, r := range scoped {
		if codingMatch(leaf.Coding, r.Coding) || bidirectionalMatch(term, r.DisplayText()) {
			matches = append(matches, r)
		}
	}

	return existenceOutcome(leaf.Operator, matches, "allergy", term)
}

// matchExistence gives procedure, immunization, family_history,
// diagnostic_report, and care_plan criteria condition-style existence
// semantics.
func (e *Evaluator) matchExistence(ctx context.Context, c *domain.Criterion, patientID string) (*matchOutcome, error) {
	leaf := c.Leaf
	resourceType := leaf.Category.ResourceType()
	records, err := e.source.QueryResources(ctx, resourceType, patientID, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s for %s: %w", resourceType, patientID, err)
	}

	term, _ := leaf.StringValue()
	matches := make([]domain.ClinicalRecord, 0)
	for _, r := range records {
		if term == "" && leaf.Coding == nil {
			matches = append(matches, r)
			continue
		}
		if codingMatch(leaf.Coding, r.Coding) || termInRecord(term, r.DisplayText()) {
			matches = append(matches, r)
		}
	}

	return existenceOutcome(leaf.Operator, matches, leaf.Category.String(), term)
}

// existenceOutcome maps a match list to met/not-met per operator for the
// existence-style matchers.
func existenceOutcome(op domain.Operator, matches []domain.ClinicalRecord, what, term string) (*matchOutcome, error) {
	evidence := &domain.Evidence{
		Operator: op.String(),
		Expected: term,
		Records:  matches,
	}

	switch op {
	case domain.CONTAINS, domain.EQUALS, domain.EXISTS:
		return &matchOutcome{
			Met:      len(matches) > 0,
			Reason:   fmt.Sprintf("found %d matching %s record(s) for %q", len(matches), what, term),
			Evidence: evidence,
		}, nil
	case domain.NOT_CONTAINS, domain.NOT_EXISTS, domain.NOT_EQUALS:
		return &matchOutcome{
			Met:      len(matches) == 0,
			Reason:   fmt.Sprintf("found %d matching %s record(s) for %q", len(matches), what, term),
			Evidence: evidence,
		}, nil
	default:
		return &matchOutcome{
			Met:      false,
			Reason:   fmt.Sprintf("operator %q is not valid for %s criteria", op, what),
			Evidence: evidence,
		}, nil
	}
}

// mostRecent returns the record with the latest effective timestamp.
// Records without a timestamp sort before any timestamped record.
func mostRecent(records []domain.ClinicalRecord) domain.ClinicalRecord {
	latest := records[0]
	for _, r := range records[1:] {
		if r.Effective.After(latest.Effective) {
			latest = r
		}
	}
	return latest
}

// termInRecord reports whether the criterion term appears in the record's
// display text, case-insensitive.
func termInRecord(term, text string) bool {
	term = strings.TrimSpace(strings.ToLower(term))
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), term)
}

// bidirectionalMatch reports whether either string contains the other,
// case-insensitive. This is the fuzzy generic/brand reconciliation used
// for medications and allergens; it is deliberately not transitive.
func bidirectionalMatch(term, name string) bool {
	term = strings.TrimSpace(strings.ToLower(term))
	name = strings.TrimSpace(strings.ToLower(name))
	if term == "" || name == "" {
		return false
	}
	return strings.Contains(name, term) || strings.Contains(term, name)
}

// codingMatch reports whether two coded concepts identify the same term.
func codingMatch(a, b *domain.Coding) bool {
	return a != nil && b != nil && a.System == b.System && a.Code == b.Code
}
