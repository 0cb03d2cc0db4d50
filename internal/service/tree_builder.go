package service

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trial-eligibility-server/internal/domain"
)

// TreeBuilder assembles the flat criterion list produced by the
// extraction service into a correctly nested AND/OR/NOT tree.
//
// This is a heuristic, not a boolean-expression parser: it infers at most
// one top-level operator per call from connective cues in the source
// text. Nesting below the top level is only recognized when the
// extraction service already emitted nested children.
type TreeBuilder struct {
	log *logrus.Logger
}

// NewTreeBuilder creates a tree builder.
func NewTreeBuilder(logger *logrus.Logger) *TreeBuilder {
	return &TreeBuilder{log: logger}
}

// Build normalizes the extracted criteria and, when the source text
// carries connective cues, nests them under a single inferred top-level
// operator. defaultKind is applied to any criterion whose kind cannot be
// inherited from an ancestor.
func (b *TreeBuilder) Build(criteria []*domain.Criterion, sourceText string, defaultKind domain.Kind) []*domain.Criterion {
	if defaultKind == "" {
		defaultKind = domain.INCLUSION
	}

	normalized := make([]*domain.Criterion, 0, len(criteria))
	for _, c := range criteria {
		if c == nil {
			continue
		}
		normalized = append(normalized, b.normalize(c, defaultKind))
	}

	if !hasConnectiveCues(sourceText) {
		// Independent criteria, not one logical expression.
		return normalized
	}

	if len(normalized) == 1 {
		return []*domain.Criterion{b.resolveSingle(normalized[0], sourceText)}
	}

	if len(normalized) > 1 {
		op := inferOperator(sourceText, len(normalized), b.log)
		b.log.WithFields(logrus.Fields{
			"operator": op,
			"children": len(normalized),
		}).Debug("Wrapping extracted criteria under inferred operator")
		return []*domain.Criterion{{
			Kind:        defaultKind,
			Description: sourceText,
			Node: &domain.Node{
				Operator: op,
				Children: normalized,
			},
		}}
	}

	return normalized
}

// normalize propagates kind from parent to child and collapses structural
// single-child AND/OR wrappers. A NOT node with one child is semantic and
// is preserved.
func (b *TreeBuilder) normalize(c *domain.Criterion, inheritedKind domain.Kind) *domain.Criterion {
	if c.Kind == "" {
		c.Kind = inheritedKind
	}

	if !c.IsNode() {
		return c
	}

	children := make([]*domain.Criterion, 0, len(c.Node.Children))
	for _, child := range c.Node.Children {
		if child == nil {
			continue
		}
		children = append(children, b.normalize(child, c.Kind))
	}
	c.Node.Children = children

	if len(children) == 1 && c.Node.Operator != domain.NOT {
		// Structural wrapper with nothing of its own: unwrap.
		return children[0]
	}

	return c
}

// resolveSingle applies the step-3 rules for a list with exactly one
// top-level element.
func (b *TreeBuilder) resolveSingle(c *domain.Criterion, sourceText string) *domain.Criterion {
	if !c.IsNode() {
		return c
	}
	if c.Node.Operator != "" {
		return c
	}
	if len(c.Node.Children) == 1 {
		return c.Node.Children[0]
	}
	c.Node.Operator = inferOperator(sourceText, len(c.Node.Children), b.log)
	return c
}

// hasConnectiveCues reports whether the text contains a literal " AND ",
// " OR ", or " NOT " connective, case-insensitive.
func hasConnectiveCues(text string) bool {
	upper := strings.ToUpper(text)
	return strings.Contains(upper, " AND ") ||
		strings.Contains(upper, " OR ") ||
		strings.Contains(upper, " NOT ")
}

// inferOperator picks the single top-level operator from textual cues,
// priority NOT > AND > OR. NOT takes exactly one operand, so when the
// candidate node would have more than one child the next cue in priority
// order is used instead. When both AND and OR appear, AND wins if the
// text is parenthesized (parenthesization is assumed to nest OR inside
// AND); without parentheses the expression is ambiguous and AND is chosen
// as the conservative reading, with a warning.
func inferOperator(text string, childCount int, log *logrus.Logger) domain.LogicOperator {
	upper := strings.ToUpper(text)
	hasNot := strings.Contains(upper, " NOT ")
	hasAnd := strings.Contains(upper, " AND ")
	hasOr := strings.Contains(upper, " OR ")

	if hasNot && childCount <= 1 {
		return domain.NOT
	}

	switch {
	case hasAnd && hasOr:
		if !strings.ContainsAny(text, "()") && log != nil {
			log.WithField("text", text).Warn("Mixed AND/OR without parentheses; defaulting to AND")
		}
		return domain.AND
	case hasAnd:
		return domain.AND
	case hasOr:
		return domain.OR
	case hasNot:
		// NOT with multiple operands cannot hold; fall back to AND.
		if log != nil {
			log.WithField("text", text).Warn("NOT cue over multiple criteria; defaulting to AND")
		}
		return domain.AND
	default:
		return domain.AND
	}
}
