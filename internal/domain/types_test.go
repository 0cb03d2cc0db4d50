package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindIsValid(t *testing.T) {
	assert.True(t, INCLUSION.IsValid())
	assert.True(t, EXCLUSION.IsValid())
	assert.False(t, Kind("").IsValid())
	assert.False(t, Kind("maybe").IsValid())
}

func TestCategoryIsValid(t *testing.T) {
	for _, c := range []Category{
		DEMOGRAPHICS, CONDITION, LAB_VALUE, PERFORMANCE_STATUS, MEDICATION,
		ALLERGY, PROCEDURE, IMMUNIZATION, FAMILY_HISTORY, DIAGNOSTIC_REPORT,
		CARE_PLAN,
	} {
		assert.True(t, c.IsValid(), c)
	}
	assert.False(t, Category("genomics").IsValid())
	assert.False(t, Category("").IsValid())
}

func TestCategoryResourceType(t *testing.T) {
	tests := []struct {
		category Category
		resource ResourceType
	}{
		{DEMOGRAPHICS, ResourcePatient},
		{CONDITION, ResourceCondition},
		{LAB_VALUE, ResourceObservation},
		{PERFORMANCE_STATUS, ResourceObservation},
		{MEDICATION, ResourceMedicationStatement},
		{ALLERGY, ResourceAllergyIntolerance},
		{PROCEDURE, ResourceProcedure},
		{IMMUNIZATION, ResourceImmunization},
		{FAMILY_HISTORY, ResourceFamilyMemberHistory},
		{DIAGNOSTIC_REPORT, ResourceDiagnosticReport},
		{CARE_PLAN, ResourceCarePlan},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.resource, tt.category.ResourceType(), tt.category)
		assert.True(t, tt.resource.IsValid())
	}

	assert.Equal(t, ResourceType(""), Category("genomics").ResourceType())
}

func TestOperatorIsExistence(t *testing.T) {
	assert.True(t, EXISTS.IsExistence())
	assert.True(t, NOT_EXISTS.IsExistence())
	assert.False(t, CONTAINS.IsExistence())
	assert.False(t, EQUALS.IsExistence())
	assert.False(t, BETWEEN.IsExistence())
}

func TestOperatorIsValid(t *testing.T) {
	for _, o := range []Operator{
		EQUALS, NOT_EQUALS, GREATER_THAN, GREATER_THAN_OR_EQUAL, LESS_THAN,
		LESS_THAN_OR_EQUAL, BETWEEN, CONTAINS, NOT_CONTAINS, EXISTS, NOT_EXISTS,
	} {
		assert.True(t, o.IsValid(), o)
	}
	assert.False(t, Operator("approximately").IsValid())
}

func TestLogicOperatorIsValid(t *testing.T) {
	assert.True(t, AND.IsValid())
	assert.True(t, OR.IsValid())
	assert.True(t, NOT.IsValid())
	assert.False(t, LogicOperator("XOR").IsValid())
	assert.False(t, LogicOperator("and").IsValid(), "logic operators are uppercase on the wire")
}
