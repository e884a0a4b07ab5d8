package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trendstreams/record"
)

func postRecord() *record.Record {
	rec := record.New(map[string]any{
		"verb": "post",
		"body": "Just landed in Lisbon #travel",
		"actor": map[string]any{
			"followersCount": float64(1200),
			"verified":       true,
		},
		"geo": map[string]any{
			"coordinates": []any{float64(38.7), float64(-9.1)},
		},
	})
	rec.SetMeta("lang_hint", "en")
	rec.SetMeta("text_stats", map[string]any{"words": float64(5)})
	return rec
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"valid eq", Rule{Field: "verb", Operator: "eq", Value: "post"}, false},
		{"valid exists", Rule{Field: "geo", Operator: "exists"}, false},
		{"missing field", Rule{Operator: "eq", Value: "post"}, true},
		{"unknown operator", Rule{Field: "verb", Operator: "matches"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRuleMatching(t *testing.T) {
	rec := postRecord()

	tests := []struct {
		name     string
		rule     Rule
		expected bool
	}{
		{"eq match", Rule{Field: "verb", Operator: "eq", Value: "post"}, true},
		{"eq mismatch", Rule{Field: "verb", Operator: "eq", Value: "share"}, false},
		{"ne match", Rule{Field: "verb", Operator: "ne", Value: "share"}, true},
		{"gt on nested number", Rule{Field: "actor.followersCount", Operator: "gt", Value: 1000}, true},
		{"gt fails", Rule{Field: "actor.followersCount", Operator: "gt", Value: 2000}, false},
		{"gte boundary", Rule{Field: "actor.followersCount", Operator: "gte", Value: 1200}, true},
		{"lt", Rule{Field: "actor.followersCount", Operator: "lt", Value: 2000}, true},
		{"lte boundary", Rule{Field: "actor.followersCount", Operator: "lte", Value: 1200}, true},
		{"contains", Rule{Field: "body", Operator: "contains", Value: "#travel"}, true},
		{"contains mismatch", Rule{Field: "body", Operator: "contains", Value: "#food"}, false},
		{"exists hit", Rule{Field: "geo.coordinates", Operator: "exists"}, true},
		{"exists miss", Rule{Field: "place", Operator: "exists"}, false},
		{"missing field never matches", Rule{Field: "place", Operator: "eq", Value: "x"}, false},
		{"numeric op on non-number", Rule{Field: "verb", Operator: "gt", Value: 1}, false},
		{"eq on bool", Rule{Field: "actor.verified", Operator: "eq", Value: true}, true},
		{"metadata lookup", Rule{Field: "metadata.lang_hint", Operator: "eq", Value: "en"}, true},
		{"metadata nested", Rule{Field: "metadata.text_stats.words", Operator: "gte", Value: 5}, true},
		{"metadata miss", Rule{Field: "metadata.nope", Operator: "exists"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.rule.matches(rec))
		})
	}
}

func TestRuleSetMatches(t *testing.T) {
	rec := postRecord()

	all := RuleSet{
		{Field: "verb", Operator: "eq", Value: "post"},
		{Field: "actor.followersCount", Operator: "gt", Value: 100},
	}
	assert.True(t, all.Matches(rec))

	oneFails := RuleSet{
		{Field: "verb", Operator: "eq", Value: "post"},
		{Field: "actor.followersCount", Operator: "gt", Value: 99999},
	}
	assert.False(t, oneFails.Matches(rec))

	// Empty set passes everything
	assert.True(t, RuleSet{}.Matches(rec))
}

func TestRuleSetValidate(t *testing.T) {
	good := RuleSet{{Field: "verb", Operator: "eq", Value: "post"}}
	require.NoError(t, good.Validate())

	bad := RuleSet{
		{Field: "verb", Operator: "eq", Value: "post"},
		{Field: "verb", Operator: "bogus"},
	}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule 1")
}

func TestFuncPredicate(t *testing.T) {
	rec := postRecord()
	hasGeo := Func(func(r *record.Record) bool {
		_, ok := r.Doc["geo"]
		return ok
	})
	assert.True(t, hasGeo.Matches(rec))
}
