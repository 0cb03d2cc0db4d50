package service

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trial-eligibility-server/internal/domain"
)

// Enricher fills in missing terminology codes on leaf criteria using the
// terminology table. Logical nodes are recursed into unchanged.
type Enricher struct {
	table *TerminologyTable
	log   *logrus.Logger
}

// NewEnricher creates an enricher backed by the given table.
func NewEnricher(table *TerminologyTable, logger *logrus.Logger) *Enricher {
	return &Enricher{table: table, log: logger}
}

// Enrich walks every criterion and attaches a coding to each leaf that
// lacks one, when the table has a keyword matching the leaf's text.
func (e *Enricher) Enrich(criteria []*domain.Criterion) {
	for _, c := range criteria {
		e.enrich(c)
	}
}

func (e *Enricher) enrich(c *domain.Criterion) {
	if c == nil {
		return
	}
	if c.IsNode() {
		for _, child := range c.Node.Children {
			e.enrich(child)
		}
		return
	}
	if c.Leaf == nil || c.Leaf.Coding != nil {
		return
	}

	search := strings.ToLower(fmt.Sprintf("%v %s %s", c.Leaf.Value, c.Leaf.Attribute, c.Description))
	coding, found := e.table.Lookup(c.Leaf.Category, search)
	if !found {
		return
	}

	c.Leaf.Coding = coding
	e.log.WithFields(logrus.Fields{
		"category": c.Leaf.Category,
		"system":   coding.System,
		"code":     coding.Code,
	}).Debug("Enriched criterion with terminology code")
}
