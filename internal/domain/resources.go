package domain

import "time"

// Patient holds the demographic facts the evaluator needs from the
// clinical data source.
type Patient struct {
	ID        string    `json:"id"`
	BirthDate time.Time `json:"birth_date"`
	Gender    string    `json:"gender"`
}

// AgeAt computes the patient's age in whole years at the given reference
// date. A birthday not yet reached in the reference year does not count.
func (p *Patient) AgeAt(ref time.Time) int {
	years := ref.Year() - p.BirthDate.Year()
	anniversary := p.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(ref) {
		years--
	}
	return years
}

// ClinicalRecord is the reduced form of one resource returned by the
// clinical data source: a coded concept plus the status, numeric value,
// and effective timestamp the matchers compare against.
type ClinicalRecord struct {
	ResourceType ResourceType `json:"resource_type"`
	Coding       *Coding      `json:"coding,omitempty"`
	Text         string       `json:"text,omitempty"`
	Status       string       `json:"status,omitempty"`
	Value        *float64     `json:"value,omitempty"`
	Unit         string       `json:"unit,omitempty"`
	Category     string       `json:"category,omitempty"`
	Effective    time.Time    `json:"effective,omitempty"`
}

// DisplayText returns the best human-readable name for the record's
// concept: the free text when present, otherwise the coding display.
func (r *ClinicalRecord) DisplayText() string {
	if r.Text != "" {
		return r.Text
	}
	if r.Coding != nil {
		return r.Coding.Display
	}
	return ""
}
