package service

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trial-eligibility-server/internal/domain"
)

// Validator recursively checks criterion shape. Failures are non-fatal:
// the failing node is annotated with a validation warning and processing
// continues, so a single malformed leaf never discards the rest of an
// extraction. Callers decide whether accumulated warnings become hard
// errors (for example before caching).
type Validator struct {
	log *logrus.Logger
}

// NewValidator creates a validator.
func NewValidator(logger *logrus.Logger) *Validator {
	return &Validator{log: logger}
}

// ValidateAll validates each top-level criterion and returns every
// warning found, prefixed with the positional path of the offending node
// (e.g. "0.1").
func (v *Validator) ValidateAll(criteria []*domain.Criterion) []string {
	var warnings []string
	for i, c := range criteria {
		warnings = append(warnings, v.validate(c, fmt.Sprintf("%d", i))...)
	}
	if len(warnings) > 0 {
		v.log.WithField("warnings", len(warnings)).Warn("Criteria validation produced warnings")
	}
	return warnings
}

func (v *Validator) validate(c *domain.Criterion, path string) []string {
	if c == nil {
		return []string{fmt.Sprintf("%s: criterion is nil", path)}
	}

	var problems []string

	if !c.Kind.IsValid() {
		problems = append(problems, "kind must be inclusion or exclusion")
	}

	switch {
	case c.IsNode():
		problems = append(problems, v.validateNode(c.Node)...)
	case c.Leaf != nil:
		problems = append(problems, v.validateLeaf(c)...)
	default:
		problems = append(problems, "criterion is neither a leaf nor a logical node")
	}

	var warnings []string
	if len(problems) > 0 {
		c.ValidationWarning = strings.Join(problems, "; ")
		for _, p := range problems {
			warnings = append(warnings, fmt.Sprintf("%s: %s", path, p))
		}
	}

	if c.IsNode() {
		for i, child := range c.Node.Children {
			warnings = append(warnings, v.validate(child, fmt.Sprintf("%s.%d", path, i))...)
		}
	}

	return warnings
}

func (v *Validator) validateNode(n *domain.Node) []string {
	var problems []string
	if !n.Operator.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown logic_operator %q", n.Operator))
	}
	if len(n.Children) == 0 {
		problems = append(problems, "logical node has no children")
	}
	if n.Operator == domain.NOT && len(n.Children) != 1 {
		problems = append(problems, fmt.Sprintf("NOT requires exactly one child, got %d", len(n.Children)))
	}
	return problems
}

func (v *Validator) validateLeaf(c *domain.Criterion) []string {
	var problems []string
	leaf := c.Leaf

	if leaf.Category == "" {
		problems = append(problems, "missing category")
	} else if !leaf.Category.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown category %q", leaf.Category))
	}
	if c.Description == "" {
		problems = append(problems, "missing description")
	}
	if leaf.Attribute == "" {
		problems = append(problems, "missing attribute")
	}
	if leaf.Operator == "" {
		problems = append(problems, "missing operator")
	} else if !leaf.Operator.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown operator %q", leaf.Operator))
	}
	if leaf.Value == nil && !leaf.Operator.IsExistence() {
		problems = append(problems, "missing value")
	}

	return problems
}
