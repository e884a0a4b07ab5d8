// Package predicate provides typed, configuration-driven boolean tests over
// records. Measurement unit filters and evaluator split groups are both
// expressed as rule sets: data, never executable code.
package predicate

import (
	"fmt"
	"strings"

	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/pkg/fieldpath"
	"github.com/c360/trendstreams/record"
)

// metadataPrefix routes a rule's field lookup into the record's metadata map
// instead of the document, so filters can test enrichment output.
const metadataPrefix = "metadata."

// Predicate is a boolean test over one record.
type Predicate interface {
	Matches(rec *record.Record) bool
}

// Func adapts a plain function to the Predicate interface for units built in
// code.
type Func func(rec *record.Record) bool

// Matches implements Predicate.
func (f Func) Matches(rec *record.Record) bool {
	return f(rec)
}

// Rule defines a single filter condition.
type Rule struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// Validate rejects rules that could never match anything.
func (r Rule) Validate() error {
	if r.Field == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Rule", "Validate", "field is required")
	}
	switch r.Operator {
	case "eq", "ne", "gt", "gte", "lt", "lte", "contains", "exists":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Rule", "Validate",
			fmt.Sprintf("unknown operator %q", r.Operator))
	}
	return nil
}

// matches checks the rule against one record.
func (r Rule) matches(rec *record.Record) bool {
	value, found := Resolve(rec, r.Field)

	if r.Operator == "exists" {
		return found
	}
	if !found || value == nil {
		return false
	}

	switch r.Operator {
	case "eq":
		return fmt.Sprint(value) == fmt.Sprint(r.Value)
	case "ne":
		return fmt.Sprint(value) != fmt.Sprint(r.Value)
	case "gt", "gte", "lt", "lte":
		a, aok := fieldpath.Coerce(value)
		b, bok := fieldpath.Coerce(r.Value)
		if !aok || !bok {
			return false
		}
		switch r.Operator {
		case "gt":
			return a > b
		case "gte":
			return a >= b
		case "lt":
			return a < b
		default:
			return a <= b
		}
	case "contains":
		return strings.Contains(fmt.Sprint(value), fmt.Sprint(r.Value))
	default:
		return false
	}
}

// Resolve looks up a field in the document, or in the metadata map when
// the field carries the "metadata." prefix. Shared by rule matching and
// by units that read configured fields the same way rules do.
func Resolve(rec *record.Record, field string) (any, bool) {
	if rest, ok := strings.CutPrefix(field, metadataPrefix); ok {
		return fieldpath.Get(rec.Metadata, rest)
	}
	return fieldpath.Get(rec.Doc, field)
}

// RuleSet combines rules with AND logic. An empty set matches every record.
type RuleSet []Rule

// Validate checks every rule in the set.
func (rs RuleSet) Validate() error {
	for i, rule := range rs {
		if err := rule.Validate(); err != nil {
			return errors.Wrap(err, "RuleSet", "Validate", fmt.Sprintf("rule %d", i))
		}
	}
	return nil
}

// Matches implements Predicate: all rules must match.
func (rs RuleSet) Matches(rec *record.Record) bool {
	for _, rule := range rs {
		if !rule.matches(rec) {
			return false
		}
	}
	return true
}
