// Package record defines the canonical in-memory representation of one post
// document flowing through the pipeline.
//
// A Record is the decoded JSON document of a single input line plus a metadata
// map holding enrichment output keyed by unit name. The document is
// immutable by convention: enrichment only ever grows the metadata map, never
// the document itself. Downstream stages treat both as read-only.
package record

import (
	"encoding/json"

	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/pkg/fieldpath"
	"github.com/c360/trendstreams/pkg/timestamp"
)

// MetadataKey is the top-level key under which the metadata map is attached
// when a Record is serialized. A document field with the same name is shadowed
// in serialized output; the in-memory document keeps it.
const MetadataKey = "metadata"

// Record is one input item: the original nested document and the metadata
// attached to it by enrichment.
type Record struct {
	// Doc contains the decoded document as it arrived. Enrichment units
	// read it and must not write it.
	Doc map[string]any

	// Metadata holds enrichment output keyed by unit name. Owned by the
	// enrichment engine while the Record is being enriched, read-only
	// afterwards. A key with a nil value marks a unit that failed on this
	// Record.
	Metadata map[string]any
}

// New creates a Record around an already-decoded document.
func New(doc map[string]any) *Record {
	return &Record{
		Doc:      doc,
		Metadata: make(map[string]any),
	}
}

// FromJSON decodes one raw input line into a Record with empty metadata.
func FromJSON(data []byte) (*Record, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapInvalid(err, "Record", "FromJSON", "decode document")
	}
	return New(doc), nil
}

// FromEnrichedJSON decodes a line previously produced by MarshalEnriched,
// lifting the metadata field back out of the document. A metadata field that
// is not an object is left in the document untouched.
func FromEnrichedJSON(data []byte) (*Record, error) {
	rec, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if meta, ok := rec.Doc[MetadataKey].(map[string]any); ok {
		rec.Metadata = meta
		delete(rec.Doc, MetadataKey)
	}
	return rec, nil
}

// Validate ensures the Record carries a document.
func (r *Record) Validate() error {
	if r.Doc == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Record", "Validate", "document cannot be nil")
	}
	return nil
}

// SetMeta stores an enrichment value under name, initializing the metadata
// map if the Record was built by hand.
func (r *Record) SetMeta(name string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[name] = value
}

// Meta returns the enrichment value stored under name.
func (r *Record) Meta(name string) (any, bool) {
	if r.Metadata == nil {
		return nil, false
	}
	val, ok := r.Metadata[name]
	return val, ok
}

// Timestamp extracts and parses the Record's creation time from the document
// field at path, returning canonical Unix milliseconds. Missing fields,
// unparseable values, and out-of-range results all yield
// errors.ErrUnparseableTimestamp so the caller can drop the Record and keep
// the run alive.
func (r *Record) Timestamp(path string) (int64, error) {
	raw, ok := fieldpath.Get(r.Doc, path)
	if !ok {
		return 0, errors.WrapInvalid(errors.ErrUnparseableTimestamp, "Record", "Timestamp",
			"field "+path+" not found")
	}

	ms, err := timestamp.Parse(raw)
	if err != nil {
		return 0, errors.WrapInvalid(errors.ErrUnparseableTimestamp, "Record", "Timestamp",
			"parse field "+path)
	}
	if err := timestamp.Validate(ms); err != nil {
		return 0, errors.WrapInvalid(errors.ErrUnparseableTimestamp, "Record", "Timestamp",
			"validate field "+path)
	}
	return ms, nil
}

// MarshalEnriched serializes the Record as its original document augmented
// with the metadata field. The document map itself is not modified.
func (r *Record) MarshalEnriched() ([]byte, error) {
	out := make(map[string]any, len(r.Doc)+1)
	for k, v := range r.Doc {
		out[k] = v
	}
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	out[MetadataKey] = meta

	data, err := json.Marshal(out)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Record", "MarshalEnriched", "encode document")
	}
	return data, nil
}
