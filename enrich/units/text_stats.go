package units

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/c360/trendstreams/enrich"
	"github.com/c360/trendstreams/pkg/fieldpath"
	"github.com/c360/trendstreams/record"
)

// textStatsSchema defines the configuration schema for the text_stats unit.
var textStatsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"field": {"type": "string", "description": "Document field holding the post text"}
	},
	"additionalProperties": false
}`)

type textStatsParams struct {
	Field string `json:"field"`
}

func newTextStats(params json.RawMessage) (*enrich.Unit, error) {
	p := textStatsParams{Field: "body"}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	return enrich.NewValueUnit("text_stats", func(_ context.Context, rec *record.Record) (any, error) {
		body, _ := fieldpath.String(rec.Doc, p.Field)

		words := strings.Fields(body)
		links := 0
		for _, w := range words {
			if strings.HasPrefix(w, "http://") || strings.HasPrefix(w, "https://") {
				links++
			}
		}

		return map[string]any{
			"chars": utf8.RuneCountInString(body),
			"words": len(words),
			"links": links,
		}, nil
	}), nil
}
