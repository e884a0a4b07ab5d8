// Package fieldpath resolves dot-notation paths inside nested JSON documents.
//
// Paths address values in decoded JSON (map[string]any) the way they appear in
// post payloads: "actor.displayName", "object.geo.coordinates.0". A numeric
// segment indexes into a sequence; every other segment is a map key. Lookups
// never mutate the document.
package fieldpath

import (
	"strconv"
	"strings"
)

// Get returns the value at path inside doc. The second return reports whether
// the full path resolved. A key that happens to contain dots is matched first
// as a literal top-level key before the path is split, so flat documents with
// dotted keys keep working.
func Get(doc map[string]any, path string) (any, bool) {
	if doc == nil || path == "" {
		return nil, false
	}

	// Direct hit: literal key, including keys containing dots
	if val, ok := doc[path]; ok {
		return val, true
	}

	segments := strings.Split(path, ".")
	var current any = doc
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// String resolves path and returns the value when it is a string.
func String(doc map[string]any, path string) (string, bool) {
	val, ok := Get(doc, path)
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

// Float64 resolves path and coerces numeric values to float64. JSON decoding
// yields float64 for all numbers, but documents assembled in code may carry
// ints, and numeric strings appear in older feed formats.
func Float64(doc map[string]any, path string) (float64, bool) {
	val, ok := Get(doc, path)
	if !ok {
		return 0, false
	}
	return Coerce(val)
}

// Coerce converts a scalar to float64 where a sensible numeric reading exists.
func Coerce(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Strings resolves path and returns the value as a slice of strings. It
// accepts either a single string or a sequence; non-string elements of a
// sequence are skipped.
func Strings(doc map[string]any, path string) ([]string, bool) {
	val, ok := Get(doc, path)
	if !ok {
		return nil, false
	}
	switch v := val.(type) {
	case string:
		return []string{v}, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	case []string:
		return v, true
	default:
		return nil, false
	}
}
