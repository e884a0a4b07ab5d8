package units

import (
	"encoding/json"

	"github.com/c360/trendstreams/measure"
	"github.com/c360/trendstreams/predicate"
	"github.com/c360/trendstreams/record"
)

// geoPresenceSchema defines the configuration schema for the geo_presence
// unit.
var geoPresenceSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"field": {"type": "string", "description": "Field whose presence marks a geo tagged post"},
		"counter": {"type": "string", "minLength": 1}
	},
	"additionalProperties": false
}`)

type geoPresenceParams struct {
	Field   string `json:"field"`
	Counter string `json:"counter"`
}

func newGeoPresence(params json.RawMessage) (*measure.Unit, error) {
	p := geoPresenceParams{Field: "geo.coordinates", Counter: "geo_tagged"}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	rules := predicate.RuleSet{{Field: p.Field, Operator: "exists"}}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	return measure.NewUnit("geo_presence", func(*record.Record) ([]measure.Observation, error) {
		return []measure.Observation{{Counter: p.Counter, Increment: 1}}, nil
	}, measure.WithFilter(rules)), nil
}

// verifiedCountSchema defines the configuration schema for the
// verified_count unit.
var verifiedCountSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"field": {"type": "string", "description": "Boolean field marking a verified author"},
		"counter": {"type": "string", "minLength": 1}
	},
	"additionalProperties": false
}`)

type verifiedCountParams struct {
	Field   string `json:"field"`
	Counter string `json:"counter"`
}

func newVerifiedCount(params json.RawMessage) (*measure.Unit, error) {
	p := verifiedCountParams{Field: "actor.verified", Counter: "verified"}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	rules := predicate.RuleSet{{Field: p.Field, Operator: "eq", Value: true}}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	return measure.NewUnit("verified_count", func(*record.Record) ([]measure.Observation, error) {
		return []measure.Observation{{Counter: p.Counter, Increment: 1}}, nil
	}, measure.WithFilter(rules)), nil
}
