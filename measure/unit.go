// Package measure defines measurement units and their registry. A
// measurement unit inspects one record and yields named counter
// increments, optionally gated by a filter predicate. Units are
// independent of each other, there is no ordering or dependency
// concept, each contributes its own counters.
package measure

import (
	"fmt"

	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/predicate"
	"github.com/c360/trendstreams/record"
)

// Observation is one counter increment yielded by a unit for one record.
type Observation struct {
	Counter   string
	Increment float64
}

// CountFunc computes the observations a record contributes. A single call
// may yield several counters, one per distinct term for example. Returning
// an error fails the record for this unit only, never the run.
type CountFunc func(rec *record.Record) ([]Observation, error)

// Unit pairs a counting function with an optional filter. Records the
// filter rejects contribute nothing for this unit but still reach every
// other unit. Units run once per record and must be stateless.
type Unit struct {
	name   string
	filter predicate.Predicate
	count  CountFunc
}

// UnitOption configures a Unit at construction time.
type UnitOption func(*Unit)

// WithFilter gates the unit behind a predicate.
func WithFilter(p predicate.Predicate) UnitOption {
	return func(u *Unit) {
		u.filter = p
	}
}

// NewUnit creates a measurement unit.
func NewUnit(name string, count CountFunc, opts ...UnitOption) *Unit {
	u := &Unit{name: name, count: count}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Name returns the unit name.
func (u *Unit) Name() string { return u.name }

// Filtered reports whether the unit carries a filter predicate.
func (u *Unit) Filtered() bool { return u.filter != nil }

// Observe applies the filter and runs the counting function. A filtered
// out record yields nil observations and no error. Panics inside the
// counting function are recovered and reported as unit execution errors.
func (u *Unit) Observe(rec *record.Record) (obs []Observation, err error) {
	if u.filter != nil && !u.filter.Matches(rec) {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			obs = nil
			err = errors.WrapTransient(errors.ErrUnitExecution, "MeasureUnit", "Observe",
				fmt.Sprintf("unit %s panicked: %v", u.name, r))
		}
	}()

	obs, err = u.count(rec)
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrUnitExecution, "MeasureUnit", "Observe",
			fmt.Sprintf("unit %s: %v", u.name, err))
	}
	return obs, nil
}
