// Package units ships the builtin enrichment units. Register wires them
// into a registry so configuration files can refer to them by name.
package units

import "github.com/c360/trendstreams/enrich"

// Register adds the builtin enrichment units to the given registry.
func Register(r *enrich.Registry) error {
	descriptors := []enrich.Descriptor{
		{
			Name:         "body_terms",
			Description:  "Extracts terms, hashtags and mentions from the post text into metadata",
			ParamsSchema: bodyTermsSchema,
			Build:        newBodyTerms,
		},
		{
			Name:         "text_stats",
			Description:  "Character, word and link counts for the post text",
			ParamsSchema: textStatsSchema,
			Build:        newTextStats,
		},
		{
			Name:         "lang_hint",
			Description:  "Best-effort language code from declared fields with a text fallback",
			ParamsSchema: langHintSchema,
			Build:        newLangHint,
		},
		{
			Name:        "term_density",
			Description: "Share of post words kept as terms, needs body_terms and text_stats",
			Requires:    []string{"body_terms", "text_stats"},
			Build:       newTermDensity,
		},
		{
			Name:         "topic_label",
			Description:  "Topic label from an OpenAI-compatible chat completion service",
			ParamsSchema: topicLabelSchema,
			Build:        newTopicLabel,
		},
	}

	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
