// Package units ships the builtin measurement units. Register wires them
// into a registry so configuration files can refer to them by name.
package units

import "github.com/c360/trendstreams/measure"

// Register adds the builtin measurement units to the given registry.
func Register(r *measure.Registry) error {
	descriptors := []measure.Descriptor{
		{
			Name:         "post_count",
			Description:  "Counts every record under a single counter",
			ParamsSchema: postCountSchema,
			Build:        newPostCount,
		},
		{
			Name:         "body_term_count",
			Description:  "One counter per extracted term, needs the body_terms enrichment",
			ParamsSchema: bodyTermCountSchema,
			Build:        newBodyTermCount,
		},
		{
			Name:         "geo_presence",
			Description:  "Counts records carrying a geo coordinate",
			ParamsSchema: geoPresenceSchema,
			Build:        newGeoPresence,
		},
		{
			Name:         "verified_count",
			Description:  "Counts records from verified authors",
			ParamsSchema: verifiedCountSchema,
			Build:        newVerifiedCount,
		},
		{
			Name:         "rule_count",
			Description:  "Counts records matching a configured rule set",
			ParamsSchema: ruleCountSchema,
			Build:        newRuleCount,
		},
	}

	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
