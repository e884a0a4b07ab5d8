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

// bodyTermsSchema defines the configuration schema for the body_terms unit.
var bodyTermsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"field": {"type": "string", "description": "Document field holding the post text"},
		"min_length": {"type": "integer", "minimum": 1, "description": "Shortest term to keep"},
		"max_terms": {"type": "integer", "minimum": 0, "description": "Cap on extracted terms, 0 means unlimited"},
		"lowercase": {"type": "boolean", "description": "Fold terms to lower case"}
	},
	"additionalProperties": false
}`)

type bodyTermsParams struct {
	Field     string `json:"field"`
	MinLength int    `json:"min_length"`
	MaxTerms  int    `json:"max_terms"`
	Lowercase *bool  `json:"lowercase"`
}

// stopwords are never emitted as terms regardless of length.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "his": {}, "how": {}, "its": {},
	"this": {}, "that": {}, "with": {}, "from": {}, "they": {}, "have": {},
	"been": {}, "were": {}, "said": {}, "when": {}, "will": {}, "what": {},
	"there": {}, "their": {}, "would": {}, "about": {}, "which": {},
	"just": {}, "like": {}, "your": {}, "into": {}, "than": {}, "them": {},
}

func newBodyTerms(params json.RawMessage) (*enrich.Unit, error) {
	p := bodyTermsParams{Field: "body", MinLength: 3}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}
	fold := p.Lowercase == nil || *p.Lowercase

	return enrich.NewMutatorUnit("body_terms", func(_ context.Context, rec *record.Record) error {
		body, _ := fieldpath.String(rec.Doc, p.Field)
		terms, hashtags, mentions := splitTerms(body, p.MinLength, p.MaxTerms, fold)
		rec.SetMeta("body_terms", terms)
		rec.SetMeta("body_hashtags", hashtags)
		rec.SetMeta("body_mentions", mentions)
		return nil
	}), nil
}

// splitTerms tokenizes post text into plain terms, hashtags and mentions.
// Hashtags and mentions are returned without their # and @ markers. URLs
// and stopwords are dropped, plain terms shorter than minLength too.
func splitTerms(body string, minLength, maxTerms int, fold bool) (terms, hashtags, mentions []string) {
	terms = []string{}
	hashtags = []string{}
	mentions = []string{}

	for _, tok := range strings.Fields(body) {
		if strings.HasPrefix(tok, "http://") || strings.HasPrefix(tok, "https://") {
			continue
		}

		var marker byte
		if tok[0] == '#' || tok[0] == '@' {
			marker = tok[0]
			tok = tok[1:]
		}
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
		if tok == "" {
			continue
		}
		if fold {
			tok = strings.ToLower(tok)
		}

		switch marker {
		case '#':
			hashtags = append(hashtags, tok)
		case '@':
			mentions = append(mentions, tok)
		default:
			if len(tok) < minLength {
				continue
			}
			if _, stop := stopwords[strings.ToLower(tok)]; stop {
				continue
			}
			if maxTerms > 0 && len(terms) >= maxTerms {
				continue
			}
			terms = append(terms, tok)
		}
	}
	return terms, hashtags, mentions
}
