package units

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/c360/trendstreams/enrich"
	"github.com/c360/trendstreams/pkg/fieldpath"
	"github.com/c360/trendstreams/record"
)

// langHintSchema defines the configuration schema for the lang_hint unit.
var langHintSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"fields": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Document fields checked for a declared language code, in order"
		},
		"body_field": {"type": "string", "description": "Post text to fall back to when no field declares a language"}
	},
	"additionalProperties": false
}`)

type langHintParams struct {
	Fields    []string `json:"fields"`
	BodyField string   `json:"body_field"`
}

func newLangHint(params json.RawMessage) (*enrich.Unit, error) {
	p := langHintParams{
		Fields:    []string{"twitter_lang", "gnip.language.value", "lang"},
		BodyField: "body",
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	return enrich.NewValueUnit("lang_hint", func(_ context.Context, rec *record.Record) (any, error) {
		for _, field := range p.Fields {
			if code, ok := fieldpath.String(rec.Doc, field); ok {
				code = strings.ToLower(strings.TrimSpace(code))
				if code != "" && code != "und" {
					return code, nil
				}
			}
		}

		body, _ := fieldpath.String(rec.Doc, p.BodyField)
		return guessLang(body), nil
	}), nil
}

// guessLang is a crude fallback for feeds that carry no language field.
// Posts whose letters are mostly basic Latin are tagged "en", everything
// else stays undetermined.
func guessLang(body string) string {
	var letters, latin int
	for _, r := range body {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r < 128 {
			latin++
		}
	}
	if letters == 0 {
		return "und"
	}
	if latin*2 >= letters {
		return "en"
	}
	return "und"
}
