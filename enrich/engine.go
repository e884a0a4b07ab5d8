package enrich

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/record"
)

// Engine applies an ordered set of enrichment units to records. Unit failures
// are isolated: a failing value unit leaves a null metadata entry for its name
// and the chain continues, so one broken unit never poisons the rest of the
// record or the run. Only a unit's skip signal removes a record from the
// stream.
//
// Enrich is safe for concurrent use as long as every unit honors the
// stateless-or-synchronized contract; the engine itself only touches the
// record it is handed and its own atomic counters.
type Engine struct {
	units       []*unitState
	unitTimeout time.Duration
	logger      *slog.Logger

	enriched atomic.Int64
	skipped  atomic.Int64
}

// unitState pairs a unit with its run counters.
type unitState struct {
	unit     *Unit
	failures atomic.Int64
	skips    atomic.Int64
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithUnitTimeout sets the default per-unit budget applied to units that do
// not declare their own. Zero disables the budget.
func WithUnitTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.unitTimeout = d
	}
}

// NewEngine creates an engine over an ordered unit set, normally the output
// of Registry.Resolve.
func NewEngine(units []*Unit, opts ...EngineOption) *Engine {
	e := &Engine{
		units:  make([]*unitState, 0, len(units)),
		logger: slog.Default(),
	}
	for _, u := range units {
		e.units = append(e.units, &unitState{unit: u})
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "enrich_engine")
	return e
}

// Enrich runs the unit chain against rec in registry order. It returns the
// enriched record, or (nil, ErrSkip) when a unit discards it; the first skip
// wins and later units never see the record. Any other per-unit error is
// absorbed here and reported only through counters and debug logs.
func (e *Engine) Enrich(ctx context.Context, rec *record.Record) (*record.Record, error) {
	for _, state := range e.units {
		unit := state.unit

		err := e.runUnit(ctx, unit, rec)
		if err == nil {
			continue
		}
		if isSkip(err) {
			e.skipped.Add(1)
			state.skips.Add(1)
			e.logger.Debug("record skipped",
				"unit", unit.Name())
			return nil, fmt.Errorf("unit %s: %w", unit.Name(), ErrSkip)
		}

		state.failures.Add(1)
		if unit.Capability() == CapabilityValue {
			rec.SetMeta(unit.Name(), nil)
		}
		e.logger.Debug("unit failed on record",
			"unit", unit.Name(),
			"error", err)
	}

	e.enriched.Add(1)
	return rec, nil
}

// runUnit invokes one unit under its budget, converting panics into ordinary
// unit failures so isolation holds even for buggy units.
func (e *Engine) runUnit(ctx context.Context, unit *Unit, rec *record.Record) (err error) {
	budget := unit.Timeout()
	if budget == 0 {
		budget = e.unitTimeout
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapTransient(errors.ErrUnitExecution, "EnrichEngine", "runUnit",
				fmt.Sprintf("unit %s panicked: %v", unit.Name(), r))
		}
	}()

	switch unit.Capability() {
	case CapabilityValue:
		val, verr := unit.value(ctx, rec)
		if verr != nil {
			return verr
		}
		rec.SetMeta(unit.Name(), val)
		return nil
	case CapabilityMutate:
		return unit.mutate(ctx, rec)
	default:
		return errors.WrapInvalid(errors.ErrUnitExecution, "EnrichEngine", "runUnit",
			fmt.Sprintf("unit %s has unknown capability", unit.Name()))
	}
}

// isSkip reports whether err carries the skip signal.
func isSkip(err error) bool {
	return err != nil && stderrors.Is(err, ErrSkip)
}

// Stats returns the engine's run counters.
func (e *Engine) Stats() EngineStats {
	failures := make(map[string]int64, len(e.units))
	skips := make(map[string]int64, len(e.units))
	for _, state := range e.units {
		if n := state.failures.Load(); n > 0 {
			failures[state.unit.Name()] = n
		}
		if n := state.skips.Load(); n > 0 {
			skips[state.unit.Name()] = n
		}
	}
	return EngineStats{
		Enriched:     e.enriched.Load(),
		Skipped:      e.skipped.Load(),
		UnitFailures: failures,
		UnitSkips:    skips,
	}
}

// UnitNames returns the resolved chain order, for logging and run summaries.
func (e *Engine) UnitNames() []string {
	names := make([]string, len(e.units))
	for i, state := range e.units {
		names[i] = state.unit.Name()
	}
	return names
}

// EngineStats reports per-run enrichment counters.
type EngineStats struct {
	Enriched     int64            `json:"enriched"`
	Skipped      int64            `json:"skipped"`
	UnitFailures map[string]int64 `json:"unit_failures,omitempty"`
	UnitSkips    map[string]int64 `json:"unit_skips,omitempty"`
}
