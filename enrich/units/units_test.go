package units

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trendstreams/enrich"
	"github.com/c360/trendstreams/record"
)

func postRecord(body string) *record.Record {
	return record.New(map[string]any{
		"id":   "tag:search.twitter.com,2005:12345",
		"body": body,
	})
}

func TestRegisterBuiltins(t *testing.T) {
	r := enrich.NewRegistry(nil)
	require.NoError(t, Register(r))

	assert.Equal(t, []string{"body_terms", "text_stats", "lang_hint", "term_density", "topic_label"}, r.Names())
}

func TestBodyTerms(t *testing.T) {
	u, err := newBodyTerms(nil)
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	rec, err := e.Enrich(context.Background(),
		postRecord("Breaking: the #election results are in! Ask @newsdesk https://t.co/abc123 now"))
	require.NoError(t, err)

	terms, _ := rec.Meta("body_terms")
	assert.Equal(t, []string{"breaking", "results", "ask", "now"}, terms)

	hashtags, _ := rec.Meta("body_hashtags")
	assert.Equal(t, []string{"election"}, hashtags)

	mentions, _ := rec.Meta("body_mentions")
	assert.Equal(t, []string{"newsdesk"}, mentions)
}

func TestBodyTermsParams(t *testing.T) {
	u, err := newBodyTerms(json.RawMessage(`{"min_length": 6, "lowercase": false, "max_terms": 1}`))
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	rec, err := e.Enrich(context.Background(), postRecord("Filibuster Gerrymander short"))
	require.NoError(t, err)

	terms, _ := rec.Meta("body_terms")
	assert.Equal(t, []string{"Filibuster"}, terms)
}

func TestBodyTermsEmptyBody(t *testing.T) {
	u, err := newBodyTerms(nil)
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	rec, err := e.Enrich(context.Background(), postRecord(""))
	require.NoError(t, err)

	// Keys are always written so downstream counters can rely on them
	terms, ok := rec.Meta("body_terms")
	require.True(t, ok)
	assert.Empty(t, terms)
}

func TestTextStats(t *testing.T) {
	u, err := newTextStats(nil)
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	rec, err := e.Enrich(context.Background(), postRecord("two words https://t.co/x"))
	require.NoError(t, err)

	val, ok := rec.Meta("text_stats")
	require.True(t, ok)
	stats := val.(map[string]any)
	assert.Equal(t, 3, stats["words"])
	assert.Equal(t, 1, stats["links"])
	assert.Equal(t, 24, stats["chars"])
}

func TestLangHintDeclaredField(t *testing.T) {
	u, err := newLangHint(nil)
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	rec := record.New(map[string]any{"body": "hola mundo", "twitter_lang": "ES"})
	got, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)

	val, _ := got.Meta("lang_hint")
	assert.Equal(t, "es", val)
}

func TestLangHintFallback(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"latin text", "plain english text here", "en"},
		{"cyrillic text", "привет мир как дела", "und"},
		{"empty body", "", "und"},
	}

	u, err := newLangHint(nil)
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Enrich(context.Background(), postRecord(tt.body))
			require.NoError(t, err)
			val, _ := got.Meta("lang_hint")
			assert.Equal(t, tt.want, val)
		})
	}
}

func TestTermDensity(t *testing.T) {
	r := enrich.NewRegistry(nil)
	require.NoError(t, Register(r))

	units, err := r.Resolve([]enrich.UnitConfig{
		{Name: "body_terms"},
		{Name: "text_stats"},
		{Name: "term_density"},
	})
	require.NoError(t, err)
	e := enrich.NewEngine(units)

	rec, err := e.Enrich(context.Background(), postRecord("government announces budget today"))
	require.NoError(t, err)

	val, ok := rec.Meta("term_density")
	require.True(t, ok)
	assert.InDelta(t, 1.0, val, 0.001)
}

func TestTermDensityRequiresUpstream(t *testing.T) {
	r := enrich.NewRegistry(nil)
	require.NoError(t, Register(r))

	_, err := r.Resolve([]enrich.UnitConfig{{Name: "term_density"}})
	require.Error(t, err)
}

func TestTopicLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": " Politics \n"},
					"finish_reason": "stop",
				},
			},
		})
	}))
	defer srv.Close()

	u, err := newTopicLabel(json.RawMessage(`{"base_url": "` + srv.URL + `"}`))
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	rec, err := e.Enrich(context.Background(), postRecord("Senate passes the infrastructure bill"))
	require.NoError(t, err)

	val, ok := rec.Meta("topic_label")
	require.True(t, ok)
	assert.Equal(t, "politics", val)
}

func TestTopicLabelClosedSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "finance"}},
			},
		})
	}))
	defer srv.Close()

	u, err := newTopicLabel(json.RawMessage(`{"base_url": "` + srv.URL + `", "labels": ["sports", "politics"]}`))
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	rec, err := e.Enrich(context.Background(), postRecord("market news"))
	require.NoError(t, err)

	val, _ := rec.Meta("topic_label")
	assert.Equal(t, "other", val)
}

func TestTopicLabelServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	u, err := newTopicLabel(json.RawMessage(`{"base_url": "` + srv.URL + `"}`))
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	rec, err := e.Enrich(context.Background(), postRecord("market news"))
	require.NoError(t, err)

	// Service failure degrades to a null label, the record survives
	val, ok := rec.Meta("topic_label")
	require.True(t, ok)
	assert.Nil(t, val)
	assert.Equal(t, int64(1), e.Stats().UnitFailures["topic_label"])
}

func TestTopicLabelCachesRepeatedBodies(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "sports"}},
			},
		})
	}))
	defer srv.Close()

	u, err := newTopicLabel(json.RawMessage(`{"base_url": "` + srv.URL + `"}`))
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	// Reposts share the body byte for byte, only distinct bodies reach
	// the service.
	for i := 0; i < 3; i++ {
		rec, err := e.Enrich(context.Background(), postRecord("What a match last night"))
		require.NoError(t, err)
		val, _ := rec.Meta("topic_label")
		assert.Equal(t, "sports", val)
	}
	_, err = e.Enrich(context.Background(), postRecord("A different post entirely"))
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestTopicLabelCacheDisabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "sports"}},
			},
		})
	}))
	defer srv.Close()

	u, err := newTopicLabel(json.RawMessage(`{"base_url": "` + srv.URL + `", "cache_size": 0}`))
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	for i := 0; i < 2; i++ {
		_, err := e.Enrich(context.Background(), postRecord("What a match last night"))
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), calls.Load())
}

func TestTopicLabelEmptyBody(t *testing.T) {
	u, err := newTopicLabel(json.RawMessage(`{"base_url": "http://localhost:1"}`))
	require.NoError(t, err)
	e := enrich.NewEngine([]*enrich.Unit{u})

	rec, err := e.Enrich(context.Background(), postRecord("   "))
	require.NoError(t, err)

	// Empty posts never hit the service
	val, ok := rec.Meta("topic_label")
	require.True(t, ok)
	assert.Nil(t, val)
}

func TestTopicLabelRequiresBaseURL(t *testing.T) {
	_, err := newTopicLabel(json.RawMessage(`{}`))
	require.Error(t, err)
}
