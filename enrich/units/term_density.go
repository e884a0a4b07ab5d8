package units

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/trendstreams/enrich"
	"github.com/c360/trendstreams/record"
)

// newTermDensity builds a value unit reporting the share of post words that
// survived term extraction. It reads the metadata written by body_terms and
// text_stats, so both must run earlier in the unit list.
func newTermDensity(json.RawMessage) (*enrich.Unit, error) {
	return enrich.NewValueUnit("term_density", func(_ context.Context, rec *record.Record) (any, error) {
		rawTerms, ok := rec.Meta("body_terms")
		if !ok {
			return nil, fmt.Errorf("body_terms metadata missing")
		}
		terms, ok := rawTerms.([]string)
		if !ok {
			return nil, fmt.Errorf("body_terms metadata has unexpected type %T", rawTerms)
		}

		rawStats, ok := rec.Meta("text_stats")
		if !ok {
			return nil, fmt.Errorf("text_stats metadata missing")
		}
		stats, ok := rawStats.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("text_stats metadata has unexpected type %T", rawStats)
		}
		words, ok := stats["words"].(int)
		if !ok || words == 0 {
			return 0.0, nil
		}

		return float64(len(terms)) / float64(words), nil
	}, enrich.WithRequires("body_terms", "text_stats")), nil
}
