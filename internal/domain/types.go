// Package domain contains the core business entities for clinical-trial
// eligibility matching: the criterion tree model, evaluation results, and
// the clinical record shapes returned by the external data source.
//
// Criteria follow the common inclusion/exclusion structure of trial
// protocols: a criterion is either an atomic check against patient data
// (a leaf) or a boolean combination of child criteria (a logical node).
package domain

// Kind states whether meeting a criterion is required for eligibility
// (inclusion) or disqualifying (exclusion). A child criterion without an
// explicit kind inherits it from its nearest ancestor.
type Kind string

const (
	INCLUSION Kind = "inclusion"
	EXCLUSION Kind = "exclusion"
)

// Category identifies the clinical domain a leaf criterion is checked
// against. It selects the matcher used during evaluation.
type Category string

const (
	DEMOGRAPHICS       Category = "demographics"
	CONDITION          Category = "condition"
	LAB_VALUE          Category = "lab_value"
	PERFORMANCE_STATUS Category = "performance_status"
	MEDICATION         Category = "medication"
	ALLERGY            Category = "allergy"
	PROCEDURE          Category = "procedure"
	IMMUNIZATION       Category = "immunization"
	FAMILY_HISTORY     Category = "family_history"
	DIAGNOSTIC_REPORT  Category = "diagnostic_report"
	CARE_PLAN          Category = "care_plan"
)

// Operator is the comparison applied between a leaf criterion's value and
// the patient's clinical data.
type Operator string

const (
	EQUALS                Operator = "equals"
	NOT_EQUALS            Operator = "not_equals"
	GREATER_THAN          Operator = "greater_than"
	GREATER_THAN_OR_EQUAL Operator = "greater_than_or_equal"
	LESS_THAN             Operator = "less_than"
	LESS_THAN_OR_EQUAL    Operator = "less_than_or_equal"
	BETWEEN               Operator = "between"
	CONTAINS              Operator = "contains"
	NOT_CONTAINS          Operator = "not_contains"
	EXISTS                Operator = "exists"
	NOT_EXISTS            Operator = "not_exists"
)

// LogicOperator combines child criteria under a logical node.
type LogicOperator string

const (
	AND LogicOperator = "AND"
	OR  LogicOperator = "OR"
	NOT LogicOperator = "NOT"
)

// ResourceType names the clinical resource types the external data source
// can be queried for.
type ResourceType string

const (
	ResourcePatient             ResourceType = "Patient"
	ResourceCondition           ResourceType = "Condition"
	ResourceObservation         ResourceType = "Observation"
	ResourceMedicationStatement ResourceType = "MedicationStatement"
	ResourceAllergyIntolerance  ResourceType = "AllergyIntolerance"
	ResourceProcedure           ResourceType = "Procedure"
	ResourceImmunization        ResourceType = "Immunization"
	ResourceFamilyMemberHistory ResourceType = "FamilyMemberHistory"
	ResourceDiagnosticReport    ResourceType = "DiagnosticReport"
	ResourceCarePlan            ResourceType = "CarePlan"
)

// IsValid reports whether the kind is a recognized eligibility kind.
func (k Kind) IsValid() bool {
	switch k {
	case INCLUSION, EXCLUSION:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// IsValid reports whether the category is part of the supported enum.
func (c Category) IsValid() bool {
	switch c {
	case DEMOGRAPHICS, CONDITION, LAB_VALUE, PERFORMANCE_STATUS, MEDICATION,
		ALLERGY, PROCEDURE, IMMUNIZATION, FAMILY_HISTORY, DIAGNOSTIC_REPORT,
		CARE_PLAN:
		return true
	default:
		return false
	}
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// ResourceType maps the category to the clinical resource type queried
// for it. DEMOGRAPHICS maps to Patient since age and gender come from the
// patient record itself.
func (c Category) ResourceType() ResourceType {
	switch c {
	case DEMOGRAPHICS:
		return ResourcePatient
	case CONDITION:
		return ResourceCondition
	case LAB_VALUE, PERFORMANCE_STATUS:
		return ResourceObservation
	case MEDICATION:
		return ResourceMedicationStatement
	case ALLERGY:
		return ResourceAllergyIntolerance
	case PROCEDURE:
		return ResourceProcedure
	case IMMUNIZATION:
		return ResourceImmunization
	case FAMILY_HISTORY:
		return ResourceFamilyMemberHistory
	case DIAGNOSTIC_REPORT:
		return ResourceDiagnosticReport
	case CARE_PLAN:
		return ResourceCarePlan
	default:
		return ""
	}
}

// IsValid reports whether the operator is part of the supported enum.
func (o Operator) IsValid() bool {
	switch o {
	case EQUALS, NOT_EQUALS, GREATER_THAN, GREATER_THAN_OR_EQUAL, LESS_THAN,
		LESS_THAN_OR_EQUAL, BETWEEN, CONTAINS, NOT_CONTAINS, EXISTS, NOT_EXISTS:
		return true
	default:
		return false
	}
}

// String returns the string representation of the operator.
func (o Operator) String() string {
	return string(o)
}

// IsExistence reports whether the operator checks only for the presence or
// absence of clinical data. Existence operators carry no criterion value.
func (o Operator) IsExistence() bool {
	return o == EXISTS || o == NOT_EXISTS
}

// IsValid reports whether the logic operator is AND, OR, or NOT.
func (lo LogicOperator) IsValid() bool {
	switch lo {
	case AND, OR, NOT:
		return true
	default:
		return false
	}
}

// String returns the string representation of the logic operator.
func (lo LogicOperator) String() string {
	return string(lo)
}

// IsValid reports whether the resource type is a supported query target.
func (rt ResourceType) IsValid() bool {
	switch rt {
	case ResourcePatient, ResourceCondition, ResourceObservation,
		ResourceMedicationStatement, ResourceAllergyIntolerance,
		ResourceProcedure, ResourceImmunization, ResourceFamilyMemberHistory,
		ResourceDiagnosticReport, ResourceCarePlan:
		return true
	default:
		return false
	}
}

// String returns the string representation of the resource type.
func (rt ResourceType) String() string {
	return string(rt)
}
