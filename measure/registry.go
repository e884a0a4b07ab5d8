package measure

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/trendstreams/errors"
)

// unitNamePattern constrains unit names to snake_case identifiers.
var unitNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// BuildFunc constructs a live unit from its configured parameters.
type BuildFunc func(params json.RawMessage) (*Unit, error)

// Descriptor describes one registrable measurement unit.
type Descriptor struct {
	Name         string
	Description  string
	ParamsSchema json.RawMessage
	Build        BuildFunc
}

// UnitConfig is one entry of the configured measurement unit list.
type UnitConfig struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Registry maps unit names to descriptors and resolves configured unit
// lists into live units. Unlike enrichment there is no dependency
// ordering to enforce, units are independent.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	schemas     map[string]*gojsonschema.Schema
	order       []string
	logger      *slog.Logger
}

// NewRegistry creates an empty measurement unit registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		descriptors: make(map[string]Descriptor),
		schemas:     make(map[string]*gojsonschema.Schema),
		logger:      logger.With("component", "measure_registry"),
	}
}

// Register adds a descriptor. Parameter schemas are compiled here so a
// broken schema surfaces at startup, not at resolution time.
func (r *Registry) Register(desc Descriptor) error {
	if !unitNamePattern.MatchString(desc.Name) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MeasureRegistry", "Register",
			fmt.Sprintf("invalid unit name %q", desc.Name))
	}
	if desc.Build == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MeasureRegistry", "Register",
			fmt.Sprintf("unit %s has no build function", desc.Name))
	}

	var schema *gojsonschema.Schema
	if len(desc.ParamsSchema) > 0 {
		var err error
		schema, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(desc.ParamsSchema))
		if err != nil {
			return errors.WrapInvalid(err, "MeasureRegistry", "Register",
				fmt.Sprintf("compile params schema for unit %s", desc.Name))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[desc.Name]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateUnit, "MeasureRegistry", "Register",
			fmt.Sprintf("unit %s already registered", desc.Name))
	}

	r.descriptors[desc.Name] = desc
	if schema != nil {
		r.schemas[desc.Name] = schema
	}
	r.order = append(r.order, desc.Name)

	r.logger.Debug("measurement unit registered", "name", desc.Name)
	return nil
}

// Get returns the descriptor for a name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.descriptors[name]
	return desc, ok
}

// Names returns registered unit names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descriptors[name])
	}
	return out
}

// Resolve turns the configured unit list into live units in list order.
// Unknown names, duplicates and parameter schema violations all fail
// resolution, nothing is partially constructed for the caller.
func (r *Registry) Resolve(configs []UnitConfig) ([]*Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	units := make([]*Unit, 0, len(configs))
	seen := make(map[string]struct{}, len(configs))

	for i, cfg := range configs {
		if cfg.Name == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "MeasureRegistry", "Resolve",
				fmt.Sprintf("unit list entry %d has no name", i))
		}
		if _, dup := seen[cfg.Name]; dup {
			return nil, errors.WrapInvalid(errors.ErrDuplicateUnit, "MeasureRegistry", "Resolve",
				fmt.Sprintf("unit %s appears twice", cfg.Name))
		}
		seen[cfg.Name] = struct{}{}

		desc, ok := r.descriptors[cfg.Name]
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrUnknownUnit, "MeasureRegistry", "Resolve",
				fmt.Sprintf("unit %s is not registered", cfg.Name))
		}

		if err := r.validateParams(cfg.Name, cfg.Params); err != nil {
			return nil, err
		}

		unit, err := desc.Build(cfg.Params)
		if err != nil {
			return nil, errors.WrapInvalid(err, "MeasureRegistry", "Resolve",
				fmt.Sprintf("build unit %s", cfg.Name))
		}
		if unit == nil || unit.Name() != cfg.Name {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "MeasureRegistry", "Resolve",
				fmt.Sprintf("descriptor %s built a mismatched unit", cfg.Name))
		}

		units = append(units, unit)
	}

	return units, nil
}

func (r *Registry) validateParams(name string, params json.RawMessage) error {
	schema, ok := r.schemas[name]
	if !ok {
		return nil
	}

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(params))
	if err != nil {
		return errors.WrapInvalid(err, "MeasureRegistry", "Resolve",
			fmt.Sprintf("validate params for unit %s", name))
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MeasureRegistry", "Resolve",
			fmt.Sprintf("params for unit %s: %s", name, strings.Join(details, "; ")))
	}
	return nil
}
