// Package main exports the built-in enrichment and measurement unit catalog
// as JSON or YAML, for operators assembling pipeline configurations.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/c360/trendstreams/enrich"
	enrichunits "github.com/c360/trendstreams/enrich/units"
	"github.com/c360/trendstreams/measure"
	measureunits "github.com/c360/trendstreams/measure/units"
)

const catalogVersion = "0.1.0"

// Catalog is the exported unit listing.
type Catalog struct {
	Version     string      `json:"version" yaml:"version"`
	Enrichment  []UnitEntry `json:"enrichment_units" yaml:"enrichment_units"`
	Measurement []UnitEntry `json:"measurement_units" yaml:"measurement_units"`
}

// UnitEntry describes one registered unit.
type UnitEntry struct {
	Name         string         `json:"name" yaml:"name"`
	Capability   string         `json:"capability,omitempty" yaml:"capability,omitempty"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	Requires     []string       `json:"requires,omitempty" yaml:"requires,omitempty"`
	ParamsSchema map[string]any `json:"params_schema,omitempty" yaml:"params_schema,omitempty"`
}

func main() {
	format := flag.String("format", "json", "Output format: json or yaml")
	outPath := flag.String("out", "", "Output file, empty writes to stdout")
	flag.Parse()

	catalog, err := buildCatalog()
	if err != nil {
		log.Fatalf("Failed to build catalog: %v", err)
	}

	data, err := encodeCatalog(catalog, *format)
	if err != nil {
		log.Fatalf("Failed to encode catalog: %v", err)
	}

	if *outPath == "" {
		fmt.Print(string(data))
		return
	}

	if err := os.WriteFile(*outPath, data, 0644); err != nil {
		log.Fatalf("Failed to write %s: %v", *outPath, err)
	}
	log.Printf("✓ Exported %d enrichment and %d measurement units to %s",
		len(catalog.Enrichment), len(catalog.Measurement), *outPath)
}

func buildCatalog() (*Catalog, error) {
	enrichReg := enrich.NewRegistry(nil)
	if err := enrichunits.Register(enrichReg); err != nil {
		return nil, fmt.Errorf("register enrichment units: %w", err)
	}

	measureReg := measure.NewRegistry(nil)
	if err := measureunits.Register(measureReg); err != nil {
		return nil, fmt.Errorf("register measurement units: %w", err)
	}

	catalog := &Catalog{Version: catalogVersion}
	for _, desc := range enrichReg.Descriptors() {
		catalog.Enrichment = append(catalog.Enrichment, UnitEntry{
			Name:         desc.Name,
			Capability:   probeCapability(desc),
			Description:  desc.Description,
			Requires:     desc.Requires,
			ParamsSchema: decodeSchema(desc.Name, desc.ParamsSchema),
		})
	}
	for _, desc := range measureReg.Descriptors() {
		catalog.Measurement = append(catalog.Measurement, UnitEntry{
			Name:         desc.Name,
			Description:  desc.Description,
			ParamsSchema: decodeSchema(desc.Name, desc.ParamsSchema),
		})
	}
	return catalog, nil
}

// probeCapability builds the unit without parameters to read its shape.
// Units that require parameters cannot be probed and report no capability.
func probeCapability(desc enrich.Descriptor) string {
	unit, err := desc.Build(nil)
	if err != nil || unit == nil {
		return ""
	}
	return unit.Capability().String()
}

// decodeSchema turns the raw JSON schema into a map so YAML output renders
// it as structure rather than an embedded string.
func decodeSchema(name string, raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		log.Printf("⚠️  Unreadable params schema for %s: %v", name, err)
		return nil
	}
	return schema
}

func encodeCatalog(catalog *Catalog, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(catalog, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml":
		return yaml.Marshal(catalog)
	default:
		return nil, fmt.Errorf("unknown format %q, want json or yaml", format)
	}
}
