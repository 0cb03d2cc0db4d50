// Package service implements the eligibility criteria pipeline: tree
// assembly, terminology enrichment, validation, and the recursive
// evaluator that checks criteria against patient data.
package service

import (
	"strings"

	"github.com/trial-eligibility-server/internal/domain"
)

// terminologyEntry maps a lowercase keyword to a coded concept. Entries
// are held in a slice per category because lookup order is significant:
// the first substring match wins.
type terminologyEntry struct {
	Keyword string
	Coding  domain.Coding
}

// TerminologyTable is the static (category, keyword) -> coded concept
// lookup used by the enricher. It is built once at startup and never
// mutated afterwards, so it is safe for concurrent readers.
type TerminologyTable struct {
	entries map[domain.Category][]terminologyEntry
}

const (
	systemSNOMED = "http://snomed.info/sct"
	systemLOINC  = "http://loinc.org"
	systemRxNorm = "http://www.nlm.nih.gov/research/umls/rxnorm"
	systemICD10  = "http://hl7.org/fhir/sid/icd-10-cm"
)

// NewTerminologyTable builds the default table. Keywords within a
// category are ordered most-specific first so that, for example,
// "type 2 diabetes" is tried before "diabetes".
func NewTerminologyTable() *TerminologyTable {
	t := &TerminologyTable{entries: make(map[domain.Category][]terminologyEntry)}

	t.add(domain.CONDITION, "type 2 diabetes", domain.Coding{System: systemSNOMED, Code: "44054006", Display: "Diabetes mellitus type 2"})
	t.add(domain.CONDITION, "type 1 diabetes", domain.Coding{System: systemSNOMED, Code: "46635009", Display: "Diabetes mellitus type 1"})
	t.add(domain.CONDITION, "diabetes", domain.Coding{System: systemSNOMED, Code: "73211009", Display: "Diabetes mellitus"})
	t.add(domain.CONDITION, "chronic kidney disease stage 4", domain.Coding{System: systemSNOMED, Code: "431857002", Display: "Chronic kidney disease stage 4"})
	t.add(domain.CONDITION, "chronic kidney disease", domain.Coding{System: systemSNOMED, Code: "709044004", Display: "Chronic kidney disease"})
	t.add(domain.CONDITION, "hypertension", domain.Coding{System: systemSNOMED, Code: "38341003", Display: "Hypertensive disorder"})
	t.add(domain.CONDITION, "heart failure", domain.Coding{System: systemSNOMED, Code: "84114007", Display: "Heart failure"})
	t.add(domain.CONDITION, "myocardial infarction", domain.Coding{System: systemSNOMED, Code: "22298006", Display: "Myocardial infarction"})
	t.add(domain.CONDITION, "asthma", domain.Coding{System: systemSNOMED, Code: "195967001", Display: "Asthma"})
	t.add(domain.CONDITION, "copd", domain.Coding{System: systemSNOMED, Code: "13645005", Display: "Chronic obstructive pulmonary disease"})
	t.add(domain.CONDITION, "breast cancer", domain.Coding{System: systemICD10, Code: "C50.919", Display: "Malignant neoplasm of breast"})
	t.add(domain.CONDITION, "pregnan", domain.Coding{System: systemSNOMED, Code: "77386006", Display: "Pregnancy"})
	t.add(domain.CONDITION, "hepatitis b", domain.Coding{System: systemSNOMED, Code: "66071002", Display: "Viral hepatitis type B"})
	t.add(domain.CONDITION, "hiv", domain.Coding{System: systemSNOMED, Code: "86406008", Display: "Human immunodeficiency virus infection"})

	t.add(domain.LAB_VALUE, "hba1c", domain.Coding{System: systemLOINC, Code: "4548-4", Display: "Hemoglobin A1c/Hemoglobin.total in Blood"})
	t.add(domain.LAB_VALUE, "egfr", domain.Coding{System: systemLOINC, Code: "62238-1", Display: "Glomerular filtration rate/1.73 sq M.predicted"})
	t.add(domain.LAB_VALUE, "creatinine", domain.Coding{System: systemLOINC, Code: "2160-0", Display: "Creatinine [Mass/volume] in Serum or Plasma"})
	t.add(domain.LAB_VALUE, "hemoglobin", domain.Coding{System: systemLOINC, Code: "718-7", Display: "Hemoglobin [Mass/volume] in Blood"})
	t.add(domain.LAB_VALUE, "platelet", domain.Coding{System: systemLOINC, Code: "777-3", Display: "Platelets [#/volume] in Blood"})
	t.add(domain.LAB_VALUE, "bilirubin", domain.Coding{System: systemLOINC, Code: "1975-2", Display: "Bilirubin.total [Mass/volume] in Serum or Plasma"})
	t.add(domain.LAB_VALUE, "alt", domain.Coding{System: systemLOINC, Code: "1742-6", Display: "Alanine aminotransferase [Enzymatic activity/volume]"})
	t.add(domain.LAB_VALUE, "ast", domain.Coding{System: systemLOINC, Code: "1920-8", Display: "Aspartate aminotransferase [Enzymatic activity/volume]"})

	t.add(domain.PERFORMANCE_STATUS, "ecog", domain.Coding{System: systemLOINC, Code: "89247-1", Display: "ECOG Performance Status score"})
	t.add(domain.PERFORMANCE_STATUS, "karnofsky", domain.Coding{System: systemLOINC, Code: "89243-0", Display: "Karnofsky Performance Status score"})

	t.add(domain.MEDICATION, "metformin", domain.Coding{System: systemRxNorm, Code: "6809", Display: "Metformin"})
	t.add(domain.MEDICATION, "insulin", domain.Coding{System: systemRxNorm, Code: "5856", Display: "Insulin"})
	t.add(domain.MEDICATION, "warfarin", domain.Coding{System: systemRxNorm, Code: "11289", Display: "Warfarin"})
	t.add(domain.MEDICATION, "statin", domain.Coding{System: systemRxNorm, Code: "36567", Display: "Simvastatin"})
	t.add(domain.MEDICATION, "prednisone", domain.Coding{System: systemRxNorm, Code: "8640", Display: "Prednisone"})
	t.add(domain.MEDICATION, "aspirin", domain.Coding{System: systemRxNorm, Code: "1191", Display: "Aspirin"})

	t.add(domain.ALLERGY, "penicillin", domain.Coding{System: systemRxNorm, Code: "7980", Display: "Penicillin"})
	t.add(domain.ALLERGY, "sulfa", domain.Coding{System: systemRxNorm, Code: "10180", Display: "Sulfamethoxazole"})
	t.add(domain.ALLERGY, "latex", domain.Coding{System: systemSNOMED, Code: "111088007", Display: "Latex"})

	t.add(domain.PROCEDURE, "transplant", domain.Coding{System: systemSNOMED, Code: "77465005", Display: "Transplantation"})
	t.add(domain.PROCEDURE, "bariatric", domain.Coding{System: systemSNOMED, Code: "53442002", Display: "Excision of stomach structure"})

	t.add(domain.IMMUNIZATION, "influenza", domain.Coding{System: systemSNOMED, Code: "86198006", Display: "Influenza vaccination"})
	t.add(domain.IMMUNIZATION, "covid", domain.Coding{System: systemSNOMED, Code: "840534001", Display: "SARS-CoV-2 vaccination"})

	return t
}

func (t *TerminologyTable) add(category domain.Category, keyword string, coding domain.Coding) {
	t.entries[category] = append(t.entries[category], terminologyEntry{
		Keyword: strings.ToLower(keyword),
		Coding:  coding,
	})
}

// Lookup scans the category's keyword list in insertion order and returns
// the coding of the first keyword contained in searchText. searchText is
// expected to be lowercase.
func (t *TerminologyTable) Lookup(category domain.Category, searchText string) (*domain.Coding, bool) {
	for _, entry := range t.entries[category] {
		if strings.Contains(searchText, entry.Keyword) {
			coding := entry.Coding
			return &coding, true
		}
	}
	return nil, false
}
