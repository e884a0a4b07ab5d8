// Package enrich implements the streaming enrichment engine: independently
// authored units that attach derived metadata to records, a registry that
// resolves configured unit lists into validated execution order, and the
// engine that applies the chain to each record.
//
// # Unit Model
//
// A unit implements exactly one of two capabilities, fixed at construction:
//
//   - value: computes one derived value; the engine stores it in the
//     record's metadata under the unit's name
//   - mutate: writes its own keys into the metadata map directly
//
// Units declare upstream dependencies by name. The registry does not reorder
// anything: the configured list is the execution order, and a dependency that
// does not appear earlier fails resolution with ErrDependencyOrder. This
// keeps behavior predictable from the configuration file alone.
//
// # Registry
//
// Units are registered as descriptors in a registration-time table: name,
// description, optional parameter schema, and a build function. Configuration
// refers to units purely by name plus JSON parameters; nothing in a config
// file can name code. Resolve validates the list (unknown names, duplicates,
// dependency order, parameter schemas) and constructs the live units before
// the first record is read, so configuration errors are always surfaced
// pre-stream.
//
// # Engine Semantics
//
// The engine applies units in resolved order. Failures are isolated per unit
// per record: a failing value unit leaves a null metadata entry and the chain
// continues; a failing mutator leaves whatever keys it managed to write. A
// unit returning ErrSkip discards the record entirely, first skip wins. The
// engine never mutates the document, only the metadata map.
//
// Slow units are bounded by a per-unit budget (engine default or per-unit
// override). When the budget elapses the unit call fails like any other
// error and the record continues with a null value, so one stalled external
// call cannot stall the stream.
//
// # Quick Start
//
//	registry := enrich.NewRegistry(logger)
//	_ = registry.Register(enrich.Descriptor{
//	    Name:        "char_count",
//	    Description: "number of characters in the post body",
//	    Build: func(params json.RawMessage) (*enrich.Unit, error) {
//	        return enrich.NewValueUnit("char_count",
//	            func(ctx context.Context, rec *record.Record) (any, error) {
//	                body, _ := fieldpath.String(rec.Doc, "body")
//	                return len(body), nil
//	            }), nil
//	    },
//	})
//
//	units, err := registry.Resolve([]enrich.UnitConfig{{Name: "char_count"}})
//	engine := enrich.NewEngine(units, enrich.WithLogger(logger))
//	enriched, err := engine.Enrich(ctx, rec)
package enrich
