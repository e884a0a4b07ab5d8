package enrich

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/trendstreams/errors"
)

// BuildFunc constructs a live Unit from its configured parameters. Parameters
// arrive as raw JSON, already validated against the descriptor's schema when
// one is declared.
type BuildFunc func(params json.RawMessage) (*Unit, error)

// Descriptor is one entry in the registration-time unit table: everything the
// registry needs to list, validate, and construct a unit. Configuration is
// data (a name plus parameters); it never names code.
type Descriptor struct {
	// Name is the identifier units are configured by.
	Name string
	// Description explains the unit for catalog listings.
	Description string
	// Requires lists upstream unit names whose metadata this unit reads.
	// Mirrored onto built units for order validation.
	Requires []string
	// ParamsSchema optionally holds a JSON schema the configured params
	// must satisfy. Empty means the unit takes no parameters.
	ParamsSchema json.RawMessage
	// Build constructs the unit.
	Build BuildFunc
}

// UnitConfig is one element of the configured enrichment unit list.
type UnitConfig struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Registry maps unit names to descriptors and resolves configured unit lists
// into ordered, validated sets of live units. Resolution is pure construction:
// no side effects beyond validation.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	schemas     map[string]*gojsonschema.Schema
	order       []string
	logger      *slog.Logger
}

// NewRegistry creates an empty enrichment unit registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		descriptors: make(map[string]Descriptor),
		schemas:     make(map[string]*gojsonschema.Schema),
		logger:      logger,
	}
}

// Register adds a descriptor to the table. Schemas are compiled here so a
// malformed schema fails at startup, not on the first configured run.
func (r *Registry) Register(desc Descriptor) error {
	if !ValidateUnitName(desc.Name) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "EnrichRegistry", "Register",
			fmt.Sprintf("invalid unit name %q", desc.Name))
	}
	if desc.Build == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "EnrichRegistry", "Register",
			fmt.Sprintf("unit %s has no build function", desc.Name))
	}

	var schema *gojsonschema.Schema
	if len(desc.ParamsSchema) > 0 {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(desc.ParamsSchema))
		if err != nil {
			return errors.WrapInvalid(err, "EnrichRegistry", "Register",
				fmt.Sprintf("compile params schema for unit %s", desc.Name))
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[desc.Name]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateUnit, "EnrichRegistry", "Register",
			fmt.Sprintf("unit %s already registered", desc.Name))
	}

	r.descriptors[desc.Name] = desc
	if schema != nil {
		r.schemas[desc.Name] = schema
	}
	r.order = append(r.order, desc.Name)

	r.logger.Debug("enrichment unit registered",
		"unit", desc.Name,
		"requires", desc.Requires)
	return nil
}

// Get returns the descriptor registered under name.
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

// Descriptors returns all descriptors in registration order, for catalog
// listings.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descriptors[name])
	}
	return out
}

// Resolve turns the configured unit list into an ordered set of live units.
// The configured order is authoritative: units run exactly in this order, and
// a unit whose dependency does not appear earlier in the list fails
// resolution rather than being reordered.
func (r *Registry) Resolve(configs []UnitConfig) ([]*Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	units := make([]*Unit, 0, len(configs))
	position := make(map[string]int, len(configs))

	for i, cfg := range configs {
		if cfg.Name == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "EnrichRegistry", "Resolve",
				fmt.Sprintf("unit list entry %d has no name", i))
		}
		if _, dup := position[cfg.Name]; dup {
			return nil, errors.WrapInvalid(errors.ErrDuplicateUnit, "EnrichRegistry", "Resolve",
				fmt.Sprintf("unit %s appears twice", cfg.Name))
		}

		desc, ok := r.descriptors[cfg.Name]
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrUnknownUnit, "EnrichRegistry", "Resolve",
				fmt.Sprintf("unit %s is not registered", cfg.Name))
		}

		if err := r.validateParams(cfg.Name, cfg.Params); err != nil {
			return nil, err
		}

		unit, err := desc.Build(cfg.Params)
		if err != nil {
			return nil, errors.WrapInvalid(err, "EnrichRegistry", "Resolve",
				fmt.Sprintf("build unit %s", cfg.Name))
		}
		if unit == nil || unit.Name() != cfg.Name {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "EnrichRegistry", "Resolve",
				fmt.Sprintf("descriptor %s built a mismatched unit", cfg.Name))
		}

		for _, req := range unit.Requires() {
			if _, earlier := position[req]; !earlier {
				return nil, errors.WrapInvalid(errors.ErrDependencyOrder, "EnrichRegistry", "Resolve",
					fmt.Sprintf("unit %s requires %s earlier in the list", cfg.Name, req))
			}
		}

		position[cfg.Name] = i
		units = append(units, unit)
	}

	return units, nil
}

// validateParams checks configured params against the unit's declared schema.
// Callers hold at least a read lock.
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
		return errors.WrapInvalid(err, "EnrichRegistry", "Resolve",
			fmt.Sprintf("validate params for unit %s", name))
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return errors.WrapInvalid(errors.ErrInvalidConfig, "EnrichRegistry", "Resolve",
			fmt.Sprintf("params for unit %s: %s", name, strings.Join(details, "; ")))
	}
	return nil
}
