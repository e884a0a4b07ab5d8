package enrich

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/c360/trendstreams/record"
)

// ErrSkip is the signal a unit returns to discard the current record
// entirely. The engine stops the unit chain and does not forward the record
// downstream. It is control flow, not a failure: skips are counted separately
// from unit errors.
var ErrSkip = errors.New("skip record")

// Capability identifies which of the two unit shapes a Unit implements.
// Exactly one applies to any unit, resolved once at construction.
type Capability int

const (
	// CapabilityValue marks a unit that computes one derived value. The
	// engine stores the value in the record's metadata under the unit's
	// name; the unit never touches the metadata map itself.
	CapabilityValue Capability = iota
	// CapabilityMutate marks a unit that writes its own keys into the
	// record's metadata map.
	CapabilityMutate
)

// String returns the string representation of Capability.
func (c Capability) String() string {
	switch c {
	case CapabilityValue:
		return "value"
	case CapabilityMutate:
		return "mutate"
	default:
		return "unknown"
	}
}

// ValueFunc computes one derived value from a record. Implementations must
// treat the document as read-only and must honor ctx when they perform I/O so
// the engine's per-unit budget can degrade a slow call to a null value.
type ValueFunc func(ctx context.Context, rec *record.Record) (any, error)

// MutateFunc writes derived keys directly into the record's metadata map.
// The same read-only document and ctx contracts apply.
type MutateFunc func(ctx context.Context, rec *record.Record) error

// Unit is a live enrichment unit: one of the two capability shapes plus the
// ordering and budget attributes the engine needs. Units are constructed once
// at registry resolution and invoked once per record; they are never mutated
// afterwards, so a unit used concurrently must be stateless or internally
// synchronized.
type Unit struct {
	name       string
	capability Capability
	value      ValueFunc
	mutate     MutateFunc
	requires   []string
	timeout    time.Duration
}

// UnitOption configures optional unit attributes.
type UnitOption func(*Unit)

// WithRequires declares upstream units whose output this unit reads. The
// registry refuses a configured order that does not place every dependency
// earlier in the chain.
func WithRequires(names ...string) UnitOption {
	return func(u *Unit) {
		u.requires = append(u.requires, names...)
	}
}

// WithTimeout sets a per-record budget for this unit, overriding the engine
// default. When the budget elapses the unit degrades to a failure for that
// record.
func WithTimeout(d time.Duration) UnitOption {
	return func(u *Unit) {
		u.timeout = d
	}
}

// NewValueUnit builds a value-producing unit.
func NewValueUnit(name string, fn ValueFunc, opts ...UnitOption) *Unit {
	u := &Unit{
		name:       name,
		capability: CapabilityValue,
		value:      fn,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// NewMutatorUnit builds a metadata-mutating unit.
func NewMutatorUnit(name string, fn MutateFunc, opts ...UnitOption) *Unit {
	u := &Unit{
		name:       name,
		capability: CapabilityMutate,
		mutate:     fn,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Name returns the unit's registry identifier.
func (u *Unit) Name() string { return u.name }

// Capability returns which shape the unit implements.
func (u *Unit) Capability() Capability { return u.capability }

// Requires returns the upstream unit names this unit depends on.
func (u *Unit) Requires() []string { return u.requires }

// Timeout returns the unit's per-record budget, 0 meaning the engine default.
func (u *Unit) Timeout() time.Duration { return u.timeout }

// unitNamePattern constrains unit identifiers to names that survive config
// files, metadata keys, and counter prefixes unescaped.
var unitNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateUnitName reports whether name is usable as a unit identifier.
func ValidateUnitName(name string) bool {
	return unitNamePattern.MatchString(name)
}
