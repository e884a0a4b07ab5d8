package units

import (
	"encoding/json"
	"fmt"

	"github.com/c360/trendstreams/measure"
	"github.com/c360/trendstreams/pkg/fieldpath"
	"github.com/c360/trendstreams/record"
)

// bodyTermCountSchema defines the configuration schema for the
// body_term_count unit.
var bodyTermCountSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"source": {
			"type": "string",
			"enum": ["terms", "hashtags", "mentions"],
			"description": "Which body_terms output to count"
		},
		"prefix": {"type": "string", "description": "Counter name prefix, defaults to the source name"},
		"max_counters": {"type": "integer", "minimum": 0, "description": "Cap on distinct counters per record, 0 means unlimited"}
	},
	"additionalProperties": false
}`)

type bodyTermCountParams struct {
	Source      string `json:"source"`
	Prefix      string `json:"prefix"`
	MaxCounters int    `json:"max_counters"`
}

// metadataKeys maps a configured source to the metadata key written by the
// body_terms enrichment unit and the default counter prefix.
var metadataKeys = map[string]struct{ key, prefix string }{
	"terms":    {"body_terms", "term:"},
	"hashtags": {"body_hashtags", "hashtag:"},
	"mentions": {"body_mentions", "mention:"},
}

// newBodyTermCount builds a unit emitting one counter per extracted term,
// so a record saying "election results" contributes to term:election and
// term:results. It reads metadata written by the body_terms enrichment
// unit, which therefore must be on the enrichment list.
func newBodyTermCount(params json.RawMessage) (*measure.Unit, error) {
	p := bodyTermCountParams{Source: "terms"}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	source, ok := metadataKeys[p.Source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", p.Source)
	}
	prefix := p.Prefix
	if prefix == "" {
		prefix = source.prefix
	}

	return measure.NewUnit("body_term_count", func(rec *record.Record) ([]measure.Observation, error) {
		values, ok := fieldpath.Strings(rec.Metadata, source.key)
		if !ok {
			return nil, fmt.Errorf("metadata %s missing, is body_terms enabled", source.key)
		}

		obs := make([]measure.Observation, 0, len(values))
		for i, v := range values {
			if p.MaxCounters > 0 && i >= p.MaxCounters {
				break
			}
			obs = append(obs, measure.Observation{Counter: prefix + v, Increment: 1})
		}
		return obs, nil
	}), nil
}
