package units

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/c360/trendstreams/enrich"
	"github.com/c360/trendstreams/pkg/cache"
	"github.com/c360/trendstreams/pkg/fieldpath"
	"github.com/c360/trendstreams/record"
)

// topicLabelSchema defines the configuration schema for the topic_label unit.
var topicLabelSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"base_url": {"type": "string", "description": "Base URL of an OpenAI-compatible chat completion service"},
		"model": {"type": "string", "description": "Model identifier"},
		"api_key": {"type": "string", "description": "API key, optional for local services"},
		"field": {"type": "string", "description": "Document field holding the post text"},
		"labels": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Closed label set, replies outside it map to other"
		},
		"max_chars": {"type": "integer", "minimum": 1, "description": "Post text is truncated to this length before sending"},
		"timeout": {"type": "string", "description": "Per call timeout, e.g. 10s"},
		"cache_size": {"type": "integer", "minimum": 0, "description": "Distinct bodies to remember, 0 disables the label cache"}
	},
	"required": ["base_url"],
	"additionalProperties": false
}`)

type topicLabelParams struct {
	BaseURL   string   `json:"base_url"`
	Model     string   `json:"model"`
	APIKey    string   `json:"api_key"`
	Field     string   `json:"field"`
	Labels    []string `json:"labels"`
	MaxChars  int      `json:"max_chars"`
	Timeout   string   `json:"timeout"`
	CacheSize int      `json:"cache_size"`
}

// newTopicLabel builds a value unit that asks an external OpenAI-compatible
// service for a one-word topic label. Works with LocalAI, Ollama's OpenAI
// endpoint and OpenAI itself. Failures degrade to a null label for the
// affected record, they never stop the run.
func newTopicLabel(params json.RawMessage) (*enrich.Unit, error) {
	p := topicLabelParams{
		Model:     "gpt-4o-mini",
		Field:     "body",
		MaxChars:  500,
		Timeout:   "10s",
		CacheSize: 4096,
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}
	if p.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}

	timeout, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout %q: %w", p.Timeout, err)
	}

	apiKey := p.APIKey
	if apiKey == "" {
		apiKey = "dummy-key" // Local services don't need real key
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = p.BaseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	client := openai.NewClientWithConfig(cfg)

	system := "You label social media posts with a single lowercase topic word. Reply with the topic only."
	if len(p.Labels) > 0 {
		system = fmt.Sprintf("You label social media posts with exactly one of: %s. Reply with the label only.",
			strings.Join(p.Labels, ", "))
	}

	// Reposts repeat bodies byte for byte, one completion per distinct body
	// is enough.
	var seen *cache.LRU[string]
	if p.CacheSize > 0 {
		seen = cache.NewLRU[string](p.CacheSize)
	}

	return enrich.NewValueUnit("topic_label", func(ctx context.Context, rec *record.Record) (any, error) {
		body, _ := fieldpath.String(rec.Doc, p.Field)
		body = strings.TrimSpace(body)
		if body == "" {
			return nil, nil
		}
		if runes := []rune(body); len(runes) > p.MaxChars {
			body = string(runes[:p.MaxChars])
		}

		if seen != nil {
			if label, ok := seen.Get(body); ok {
				return label, nil
			}
		}

		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: body},
			},
			MaxTokens:   8,
			Temperature: 0,
		})
		if err != nil {
			return nil, fmt.Errorf("chat completion call failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("chat completion returned no choices")
		}

		label := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
		if label == "" {
			return nil, fmt.Errorf("chat completion returned an empty label")
		}
		if len(p.Labels) > 0 && !containsLabel(p.Labels, label) {
			label = "other"
		}
		if seen != nil {
			seen.Set(body, label)
		}
		return label, nil
	}, enrich.WithTimeout(timeout)), nil
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}
