package units

import (
	"encoding/json"

	"github.com/c360/trendstreams/measure"
	"github.com/c360/trendstreams/record"
)

// postCountSchema defines the configuration schema for the post_count unit.
var postCountSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"counter": {"type": "string", "minLength": 1, "description": "Counter name, defaults to post_count"}
	},
	"additionalProperties": false
}`)

type postCountParams struct {
	Counter string `json:"counter"`
}

func newPostCount(params json.RawMessage) (*measure.Unit, error) {
	p := postCountParams{Counter: "post_count"}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	return measure.NewUnit("post_count", func(*record.Record) ([]measure.Observation, error) {
		return []measure.Observation{{Counter: p.Counter, Increment: 1}}, nil
	}), nil
}
