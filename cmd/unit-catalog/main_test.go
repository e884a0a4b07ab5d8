package main

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestBuildCatalog checks the catalog lists every builtin unit with its
// descriptor fields carried over.
func TestBuildCatalog(t *testing.T) {
	catalog, err := buildCatalog()
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}

	if len(catalog.Enrichment) == 0 {
		t.Fatal("No enrichment units in catalog")
	}
	if len(catalog.Measurement) == 0 {
		t.Fatal("No measurement units in catalog")
	}

	byName := make(map[string]UnitEntry)
	for _, e := range catalog.Enrichment {
		byName[e.Name] = e
	}

	terms, ok := byName["body_terms"]
	if !ok {
		t.Fatal("body_terms missing from catalog")
	}
	if terms.Capability != "mutate" {
		t.Errorf("body_terms capability = %q, want mutate", terms.Capability)
	}
	if terms.ParamsSchema == nil {
		t.Error("body_terms params schema missing")
	}

	density, ok := byName["term_density"]
	if !ok {
		t.Fatal("term_density missing from catalog")
	}
	if len(density.Requires) != 2 {
		t.Errorf("term_density requires = %v, want body_terms and text_stats", density.Requires)
	}

	// topic_label cannot be built without parameters, so its capability
	// stays unreported.
	if label := byName["topic_label"]; label.Capability != "" {
		t.Errorf("topic_label capability = %q, want empty", label.Capability)
	}

	foundPostCount := false
	for _, e := range catalog.Measurement {
		if e.Name == "post_count" {
			foundPostCount = true
			if e.Description == "" {
				t.Error("post_count description missing")
			}
		}
	}
	if !foundPostCount {
		t.Error("post_count missing from catalog")
	}
}

// TestEncodeCatalog checks both output formats decode back to the same
// unit listing.
func TestEncodeCatalog(t *testing.T) {
	catalog, err := buildCatalog()
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}

	jsonData, err := encodeCatalog(catalog, "json")
	if err != nil {
		t.Fatalf("JSON encoding failed: %v", err)
	}
	var fromJSON Catalog
	if err := json.Unmarshal(jsonData, &fromJSON); err != nil {
		t.Fatalf("JSON output does not decode: %v", err)
	}
	if len(fromJSON.Enrichment) != len(catalog.Enrichment) {
		t.Errorf("JSON round trip lost units: %d != %d", len(fromJSON.Enrichment), len(catalog.Enrichment))
	}

	yamlData, err := encodeCatalog(catalog, "yaml")
	if err != nil {
		t.Fatalf("YAML encoding failed: %v", err)
	}
	var fromYAML Catalog
	if err := yaml.Unmarshal(yamlData, &fromYAML); err != nil {
		t.Fatalf("YAML output does not decode: %v", err)
	}
	if len(fromYAML.Measurement) != len(catalog.Measurement) {
		t.Errorf("YAML round trip lost units: %d != %d", len(fromYAML.Measurement), len(catalog.Measurement))
	}

	if _, err := encodeCatalog(catalog, "toml"); err == nil {
		t.Error("Unknown format should fail")
	}
}
