package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/trial-eligibility-server/internal/domain"
)

// MaxEvaluationDepth bounds the recursive walk. Well-formed trees stay
// far below it; evaluation fails closed when it is exceeded.
const MaxEvaluationDepth = 10

// matchOutcome is what a category matcher reports for one leaf.
type matchOutcome struct {
	Met      bool
	Reason   string
	Evidence *domain.Evidence
}

// matcherFunc checks one leaf criterion against the patient's clinical
// facts. It returns an error only when the clinical data source itself
// fails; "no data found" is an outcome, not an error.
type matcherFunc func(ctx context.Context, c *domain.Criterion, patientID string) (*matchOutcome, error)

// Evaluator recursively walks a criterion tree against patient data,
// dispatching each leaf to the matcher registered for its category and
// combining child results per the node's logical operator.
//
// Evaluation is pure with respect to (criterion, patient data queries):
// the same tree against the same data snapshot yields identical results.
// The criterion tree is read-only during evaluation, so one tree can be
// shared across concurrent checks without locking.
type Evaluator struct {
	source   domain.ClinicalDataSource
	log      *logrus.Logger
	matchers map[domain.Category]matcherFunc
}

// NewEvaluator creates an evaluator reading from the given data source.
func NewEvaluator(source domain.ClinicalDataSource, logger *logrus.Logger) *Evaluator {
	e := &Evaluator{
		source: source,
		log:    logger,
	}
	e.initializeMatchers()
	return e
}

// initializeMatchers builds the category dispatch table. Categories and
// operators are resolved through this table instead of string branching
// in every matcher call.
func (e *Evaluator) initializeMatchers() {
	e.matchers = map[domain.Category]matcherFunc{
		domain.DEMOGRAPHICS:       e.matchDemographics,
		domain.CONDITION:          e.matchCondition,
		domain.LAB_VALUE:          e.matchObservation,
		domain.PERFORMANCE_STATUS: e.matchObservation,
		domain.MEDICATION:         e.matchMedication,
		domain.ALLERGY:            e.matchAllergy,
		domain.PROCEDURE:          e.matchExistence,
		domain.IMMUNIZATION:       e.matchExistence,
		domain.FAMILY_HISTORY:     e.matchExistence,
		domain.DIAGNOSTIC_REPORT:  e.matchExistence,
		domain.CARE_PLAN:          e.matchExistence,
	}
}

// Evaluate checks one criterion against one patient. It returns an error
// only when the clinical data source fails; every other condition,
// including malformed criteria and unknown operators, resolves to a
// result so that an eligibility check always produces a verdict.
func (e *Evaluator) Evaluate(ctx context.Context, c *domain.Criterion, patientID string, depth int) (*domain.EvaluationResult, error) {
	if depth > MaxEvaluationDepth {
		e.log.WithFields(logrus.Fields{
			"depth":      depth,
			"patient_id": patientID,
		}).Warn("Criterion tree exceeds maximum nesting depth")
		return &domain.EvaluationResult{
			Met:         false,
			Reason:      "maximum nesting depth exceeded",
			Kind:        c.Kind,
			Description: c.Description,
		}, nil
	}

	switch {
	case c.IsNode():
		return e.evaluateNode(ctx, c, patientID, depth)
	case c.Leaf != nil:
		return e.evaluateLeaf(ctx, c, patientID)
	default:
		return &domain.EvaluationResult{
			Met:         false,
			Reason:      "criterion is neither a leaf nor a logical node",
			Kind:        c.Kind,
			Description: c.Description,
		}, nil
	}
}

// evaluateNode evaluates every child before combining. No operator
// short-circuits: sub_results is always complete so the audit trail shows
// the outcome of every branch.
func (e *Evaluator) evaluateNode(ctx context.Context, c *domain.Criterion, patientID string, depth int) (*domain.EvaluationResult, error) {
	node := c.Node
	subResults := make([]*domain.EvaluationResult, 0, len(node.Children))
	for _, child := range node.Children {
		r, err := e.Evaluate(ctx, child, patientID, depth+1)
		if err != nil {
			return nil, err
		}
		subResults = append(subResults, r)
	}

	metCount := 0
	for _, r := range subResults {
		if r.Met {
			metCount++
		}
	}

	var met bool
	var reason string

	switch node.Operator {
	case domain.AND:
		met = len(subResults) > 0 && metCount == len(subResults)
		reason = fmt.Sprintf("%d of %d child criteria met (AND)", metCount, len(subResults))
	case domain.OR:
		met = metCount > 0
		reason = fmt.Sprintf("%d of %d child criteria met (OR)", metCount, len(subResults))
	case domain.NOT:
		if len(subResults) != 1 {
			met = false
			reason = fmt.Sprintf("NOT requires exactly one child, got %d", len(subResults))
		} else {
			met = !subResults[0].Met
			reason = fmt.Sprintf("Negation of: %s", subResults[0].Reason)
		}
	default:
		met = false
		reason = fmt.Sprintf("unknown logic operator %q", node.Operator)
	}

	return &domain.EvaluationResult{
		Met:           met,
		Reason:        reason,
		Kind:          c.Kind,
		Description:   c.Description,
		LogicOperator: node.Operator,
		Evidence: &domain.Evidence{
			Operator:   node.Operator.String(),
			SubResults: subResults,
		},
	}, nil
}

func (e *Evaluator) evaluateLeaf(ctx context.Context, c *domain.Criterion, patientID string) (*domain.EvaluationResult, error) {
	matcher, ok := e.matchers[c.Leaf.Category]
	if !ok {
		return &domain.EvaluationResult{
			Met:         false,
			Reason:      fmt.Sprintf("unsupported category %q", c.Leaf.Category),
			Kind:        c.Kind,
			Description: c.Description,
			Category:    c.Leaf.Category,
		}, nil
	}

	outcome, err := matcher(ctx, c, patientID)
	if err != nil {
		return nil, fmt.Errorf("matching %s criterion: %w", c.Leaf.Category, err)
	}

	return &domain.EvaluationResult{
		Met:         outcome.Met,
		Reason:      outcome.Reason,
		Kind:        c.Kind,
		Description: c.Description,
		Category:    c.Leaf.Category,
		Evidence:    outcome.Evidence,
	}, nil
}

// compareNumeric applies the leaf's operator to an observed numeric
// value. between is inclusive on both ends. The second return value is a
// diagnostic reason when the criterion's value is unusable for the
// operator; comparison outcomes carry an empty reason.
func compareNumeric(leaf *domain.Leaf, observed float64) (bool, string) {
	if leaf.Operator == domain.BETWEEN {
		low, high, ok := leaf.RangeValue()
		if !ok {
			return false, "between requires a [low, high] value pair"
		}
		return observed >= low && observed <= high, ""
	}

	expected, ok := leaf.NumberValue()
	if !ok {
		return false, fmt.Sprintf("criterion value %v is not numeric", leaf.Value)
	}

	switch leaf.Operator {
	case domain.EQUALS:
		return observed == expected, ""
	case domain.NOT_EQUALS:
		return observed != expected, ""
	case domain.GREATER_THAN:
		return observed > expected, ""
	case domain.GREATER_THAN_OR_EQUAL:
		return observed >= expected, ""
	case domain.LESS_THAN:
		return observed < expected, ""
	case domain.LESS_THAN_OR_EQUAL:
		return observed <= expected, ""
	default:
		return false, fmt.Sprintf("operator %q is not valid for numeric comparison", leaf.Operator)
	}
}
