package units

import (
	"encoding/json"
	"fmt"

	"github.com/c360/trendstreams/measure"
	"github.com/c360/trendstreams/pkg/fieldpath"
	"github.com/c360/trendstreams/predicate"
	"github.com/c360/trendstreams/record"
)

// ruleCountSchema defines the configuration schema for the rule_count unit.
var ruleCountSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"counter": {"type": "string", "minLength": 1, "description": "Counter to increment per matching record"},
		"filter": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"field": {"type": "string", "minLength": 1},
					"operator": {"type": "string", "enum": ["eq", "ne", "gt", "gte", "lt", "lte", "contains", "exists"]},
					"value": {}
				},
				"required": ["field", "operator"],
				"additionalProperties": false
			},
			"minItems": 1,
			"description": "Rules a record must match, combined with AND"
		},
		"weight_field": {"type": "string", "description": "Numeric field used as the increment instead of 1"}
	},
	"required": ["counter", "filter"],
	"additionalProperties": false
}`)

type ruleCountParams struct {
	Counter     string            `json:"counter"`
	Filter      predicate.RuleSet `json:"filter"`
	WeightField string            `json:"weight_field"`
}

// newRuleCount builds a fully configuration-driven counter: a rule set
// selects the records and an optional weight field turns the count into a
// sum, retweet counts for example. Rules may address enrichment output
// through the metadata. prefix.
func newRuleCount(params json.RawMessage) (*measure.Unit, error) {
	var p ruleCountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	if p.Counter == "" {
		return nil, fmt.Errorf("counter is required")
	}
	if err := p.Filter.Validate(); err != nil {
		return nil, err
	}

	count := func(rec *record.Record) ([]measure.Observation, error) {
		increment := 1.0
		if p.WeightField != "" {
			w, ok := resolveWeight(rec, p.WeightField)
			if !ok {
				return nil, fmt.Errorf("weight field %s missing or not numeric", p.WeightField)
			}
			increment = w
		}
		return []measure.Observation{{Counter: p.Counter, Increment: increment}}, nil
	}

	return measure.NewUnit("rule_count", count, measure.WithFilter(p.Filter)), nil
}

// resolveWeight reads the weight field through the same lookup rules the
// filter uses, so "metadata." prefixed fields work here too.
func resolveWeight(rec *record.Record, field string) (float64, bool) {
	val, ok := predicate.Resolve(rec, field)
	if !ok {
		return 0, false
	}
	return fieldpath.Coerce(val)
}
