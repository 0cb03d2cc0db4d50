package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-eligibility-server/internal/domain"
)

func TestValidateAll_WellFormedCriteria(t *testing.T) {
	v := NewValidator(testLogger())

	criteria := []*domain.Criterion{
		leafCriterion(domain.INCLUSION, "Age 18 or older", &domain.Leaf{
			Category:  domain.DEMOGRAPHICS,
			Attribute: "age",
			Operator:  domain.GREATER_THAN_OR_EQUAL,
			Value:     18.0,
		}),
		nodeCriterion(domain.EXCLUSION, domain.NOT,
			conditionLeaf(domain.EXCLUSION, "pregnancy"),
		),
	}

	warnings := v.ValidateAll(criteria)

	assert.Empty(t, warnings)
	assert.Empty(t, criteria[0].ValidationWarning)
	assert.Empty(t, criteria[1].ValidationWarning)
}

func TestValidateAll_WarningsCarryPositionalPath(t *testing.T) {
	v := NewValidator(testLogger())

	bad := leafCriterion(domain.INCLUSION, "HbA1c check", &domain.Leaf{
		Category: domain.LAB_VALUE,
		Operator: domain.GREATER_THAN,
		Value:    7.5,
		// Attribute missing.
	})
	criteria := []*domain.Criterion{
		conditionLeaf(domain.INCLUSION, "diabetes"),
		nodeCriterion(domain.INCLUSION, domain.AND,
			conditionLeaf(domain.INCLUSION, "hypertension"),
			bad,
		),
	}

	warnings := v.ValidateAll(criteria)

	require.Len(t, warnings, 1)
	assert.Equal(t, "1.1: missing attribute", warnings[0])
	assert.Equal(t, "missing attribute", bad.ValidationWarning)
}

func TestValidate_NonFatalAnnotation(t *testing.T) {
	v := NewValidator(testLogger())

	// Two independent problems on one leaf join into one annotation.
	bad := &domain.Criterion{
		Kind: domain.INCLUSION,
		Leaf: &domain.Leaf{
			Category: domain.Category("bogus"),
			Operator: domain.EQUALS,
			Value:    1.0,
		},
	}

	warnings := v.ValidateAll([]*domain.Criterion{bad})

	assert.Len(t, warnings, 3)
	assert.Contains(t, bad.ValidationWarning, `unknown category "bogus"`)
	assert.Contains(t, bad.ValidationWarning, "missing description")
	assert.Contains(t, bad.ValidationWarning, "missing attribute")
}

func TestValidate_NodeRules(t *testing.T) {
	v := NewValidator(testLogger())

	t.Run("NOT arity", func(t *testing.T) {
		node := nodeCriterion(domain.EXCLUSION, domain.NOT,
			conditionLeaf(domain.EXCLUSION, "pregnancy"),
			conditionLeaf(domain.EXCLUSION, "hiv"),
		)

		warnings := v.ValidateAll([]*domain.Criterion{node})

		require.NotEmpty(t, warnings)
		assert.Contains(t, node.ValidationWarning, "NOT requires exactly one child, got 2")
	})

	t.Run("empty node", func(t *testing.T) {
		node := &domain.Criterion{
			Kind: domain.INCLUSION,
			Node: &domain.Node{Operator: domain.AND},
		}

		warnings := v.ValidateAll([]*domain.Criterion{node})

		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "logical node has no children")
	})

	t.Run("unknown logic operator", func(t *testing.T) {
		node := nodeCriterion(domain.INCLUSION, domain.LogicOperator("XOR"),
			conditionLeaf(domain.INCLUSION, "diabetes"),
		)

		warnings := v.ValidateAll([]*domain.Criterion{node})

		require.NotEmpty(t, warnings)
		assert.Contains(t, node.ValidationWarning, `unknown logic_operator "XOR"`)
	})
}

func TestValidate_ExistenceOperatorsNeedNoValue(t *testing.T) {
	v := NewValidator(testLogger())

	noValue := leafCriterion(domain.INCLUSION, "No known allergies", &domain.Leaf{
		Category:  domain.ALLERGY,
		Attribute: "allergy",
		Operator:  domain.NOT_EXISTS,
	})
	needsValue := leafCriterion(domain.INCLUSION, "Age check", &domain.Leaf{
		Category:  domain.DEMOGRAPHICS,
		Attribute: "age",
		Operator:  domain.GREATER_THAN,
	})

	warnings := v.ValidateAll([]*domain.Criterion{noValue, needsValue})

	require.Len(t, warnings, 1)
	assert.Equal(t, "1: missing value", warnings[0])
	assert.Empty(t, noValue.ValidationWarning)
}

func TestValidate_InvalidKindAndShape(t *testing.T) {
	v := NewValidator(testLogger())

	empty := &domain.Criterion{Kind: domain.Kind("maybe")}

	warnings := v.ValidateAll([]*domain.Criterion{empty, nil})

	assert.Contains(t, warnings, "0: kind must be inclusion or exclusion")
	assert.Contains(t, warnings, "0: criterion is neither a leaf nor a logical node")
	assert.Contains(t, warnings, "1: criterion is nil")
}
