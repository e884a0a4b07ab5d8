// Package evaluate is the boundary to the external demographic modeling
// service. It partitions records into analyzed and baseline groups with two
// disjoint predicates, posts each group for scoring, and reports category
// percentages either absolutely or as the difference between the groups.
//
// The service itself is an external collaborator. This package only owns the
// wire contract and the guarantee that records cross the boundary with their
// metadata maps untouched.
package evaluate

import (
	"fmt"

	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/predicate"
	"github.com/c360/trendstreams/record"
)

// Evaluation modes.
const (
	ModeAbsolute = "absolute"
	ModeRelative = "relative"
)

// SplitConfig partitions a record set with two predicates that must never
// both match the same record.
type SplitConfig struct {
	Analyzed predicate.RuleSet `json:"analyzed"`
	Baseline predicate.RuleSet `json:"baseline"`
}

// Enabled reports whether a split is configured at all.
func (s SplitConfig) Enabled() bool {
	return len(s.Analyzed) > 0 || len(s.Baseline) > 0
}

// Validate checks both rule sets are present and well formed.
func (s SplitConfig) Validate() error {
	if len(s.Analyzed) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "SplitConfig", "Validate",
			"analyzed predicate is required")
	}
	if len(s.Baseline) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "SplitConfig", "Validate",
			"baseline predicate is required")
	}
	if err := s.Analyzed.Validate(); err != nil {
		return err
	}
	return s.Baseline.Validate()
}

// Partition is the outcome of splitting a record set. Records matching
// neither predicate are excluded from evaluation and only counted.
type Partition struct {
	Analyzed  []*record.Record
	Baseline  []*record.Record
	Unmatched int
}

// Split assigns each record to exactly one group. A record matching both
// predicates violates disjointness and fails the whole evaluation, because
// overlapping groups would silently bias the comparison.
func Split(records []*record.Record, cfg SplitConfig) (*Partition, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Partition{}
	for i, rec := range records {
		inAnalyzed := cfg.Analyzed.Matches(rec)
		inBaseline := cfg.Baseline.Matches(rec)

		switch {
		case inAnalyzed && inBaseline:
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "SplitConfig", "Split",
				fmt.Sprintf("record %d matches both analyzed and baseline predicates", i))
		case inAnalyzed:
			p.Analyzed = append(p.Analyzed, rec)
		case inBaseline:
			p.Baseline = append(p.Baseline, rec)
		default:
			p.Unmatched++
		}
	}
	return p, nil
}

// Result is a category-keyed evaluation outcome. In absolute mode Categories
// holds the service percentages for the whole set. In relative mode it holds
// analyzed minus baseline percentage points per category, so positive values
// mark categories overrepresented in the analyzed group.
type Result struct {
	Mode           string             `json:"mode"`
	Usable         int                `json:"usable,omitempty"`
	UsableAnalyzed int                `json:"usable_analyzed,omitempty"`
	UsableBaseline int                `json:"usable_baseline,omitempty"`
	Categories     map[string]float64 `json:"categories"`
}
