package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Coding identifies a clinical concept in a standard terminology system
// such as ICD-10-CM, LOINC, RxNorm, or SNOMED CT.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// Leaf is an atomic eligibility check: one attribute of the patient's
// clinical record compared against a value with an operator.
type Leaf struct {
	Category       Category `json:"category"`
	Attribute      string   `json:"attribute"`
	Operator       Operator `json:"operator"`
	Value          any      `json:"value,omitempty"`
	Unit           string   `json:"unit,omitempty"`
	Coding         *Coding  `json:"coding,omitempty"`
	Status         string   `json:"status,omitempty"`
	CategoryFilter string   `json:"category_filter,omitempty"`
}

// Node is a boolean combination of child criteria. NOT takes exactly one
// child; AND and OR take one or more.
type Node struct {
	Operator LogicOperator `json:"logic_operator"`
	Children []*Criterion  `json:"children"`
}

// Criterion is the tagged union of Leaf and Node. Exactly one of Leaf and
// Node is set; the extraction service's flat JSON is resolved into one or
// the other at unmarshal time so downstream code never has to guess from
// the presence of optional fields.
type Criterion struct {
	Kind        Kind   `json:"kind,omitempty"`
	Description string `json:"description,omitempty"`

	Leaf *Leaf `json:"-"`
	Node *Node `json:"-"`

	// ValidationWarning is set by the validator when the criterion is
	// malformed. Validation failures do not abort processing.
	ValidationWarning string `json:"validation_warning,omitempty"`
}

// IsLeaf reports whether the criterion is an atomic check.
func (c *Criterion) IsLeaf() bool {
	return c.Leaf != nil
}

// IsNode reports whether the criterion is a logical combination.
func (c *Criterion) IsNode() bool {
	return c.Node != nil
}

// criterionJSON is the flat wire representation used by the extraction
// service and the persistence layer.
type criterionJSON struct {
	Kind              Kind          `json:"kind,omitempty"`
	Description       string        `json:"description,omitempty"`
	Category          Category      `json:"category,omitempty"`
	Attribute         string        `json:"attribute,omitempty"`
	Operator          Operator      `json:"operator,omitempty"`
	Value             any           `json:"value,omitempty"`
	Unit              string        `json:"unit,omitempty"`
	Coding            *Coding       `json:"coding,omitempty"`
	Status            string        `json:"status,omitempty"`
	CategoryFilter    string        `json:"category_filter,omitempty"`
	LogicOperator     LogicOperator `json:"logic_operator,omitempty"`
	Children          []*Criterion  `json:"children,omitempty"`
	ValidationWarning string        `json:"validation_warning,omitempty"`
}

// UnmarshalJSON resolves the flat extraction-service object into the
// Leaf/Node tagged union. An object carrying children or a logic_operator
// is a node; everything else is a leaf. Leaf fields on a node object are
// ignored; the validator reports them.
func (c *Criterion) UnmarshalJSON(data []byte) error {
	var raw criterionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshaling criterion: %w", err)
	}

	c.Kind = raw.Kind
	c.Description = raw.Description
	c.ValidationWarning = raw.ValidationWarning
	c.Leaf = nil
	c.Node = nil

	if len(raw.Children) > 0 || raw.LogicOperator != "" {
		c.Node = &Node{
			Operator: raw.LogicOperator,
			Children: raw.Children,
		}
		return nil
	}

	c.Leaf = &Leaf{
		Category:       raw.Category,
		Attribute:      raw.Attribute,
		Operator:       raw.Operator,
		Value:          raw.Value,
		Unit:           raw.Unit,
		Coding:         raw.Coding,
		Status:         raw.Status,
		CategoryFilter: raw.CategoryFilter,
	}
	return nil
}

// MarshalJSON writes the flat wire representation.
func (c *Criterion) MarshalJSON() ([]byte, error) {
	raw := criterionJSON{
		Kind:              c.Kind,
		Description:       c.Description,
		ValidationWarning: c.ValidationWarning,
	}

	switch {
	case c.Node != nil:
		raw.LogicOperator = c.Node.Operator
		raw.Children = c.Node.Children
	case c.Leaf != nil:
		raw.Category = c.Leaf.Category
		raw.Attribute = c.Leaf.Attribute
		raw.Operator = c.Leaf.Operator
		raw.Value = c.Leaf.Value
		raw.Unit = c.Leaf.Unit
		raw.Coding = c.Leaf.Coding
		raw.Status = c.Leaf.Status
		raw.CategoryFilter = c.Leaf.CategoryFilter
	}

	return json.Marshal(raw)
}

// NumberValue extracts a single numeric criterion value. JSON numbers
// arrive as float64; numeric strings from loose extraction output are
// accepted as well.
func (l *Leaf) NumberValue() (float64, bool) {
	return toFloat(l.Value)
}

// StringValue extracts a string criterion value.
func (l *Leaf) StringValue() (string, bool) {
	s, ok := l.Value.(string)
	return s, ok
}

// RangeValue extracts the [low, high] pair of a between criterion,
// inclusive on both ends.
func (l *Leaf) RangeValue() (low, high float64, ok bool) {
	items, isSlice := l.Value.([]any)
	if !isSlice {
		if pair, isFloats := l.Value.([]float64); isFloats && len(pair) == 2 {
			return pair[0], pair[1], true
		}
		return 0, 0, false
	}
	if len(items) != 2 {
		return 0, 0, false
	}
	low, lowOK := toFloat(items[0])
	high, highOK := toFloat(items[1])
	if !lowOK || !highOK {
		return 0, 0, false
	}
	return low, high, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
