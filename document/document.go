// Package document defines the record type stored by docdb.
//
// A Document is a flat-ish mapping from field name to scalar, array or
// nested-map values. Two fields are reserved: "id" is assigned by the store
// and immutable once set, and "_table" records the owning table so backends
// that co-mingle tables in one physical store can filter correctly.
package document

import (
	"strings"
)

const (
	// FieldID is the reserved identity field. It is assigned by the store.
	FieldID = "id"

	// FieldTable is the reserved bookkeeping field recording the owning table.
	FieldTable = "_table"
)

// Document is a record of named fields.
//
// Values are restricted to what survives a JSON round-trip: bool, string,
// integers and floats, arrays of scalars and nested maps. Accessors normalize
// numeric values so that a document read back from storage compares equal to
// the one that was written.
type Document map[string]any

// New returns an empty document.
func New() Document {
	return Document{}
}

// Clone returns a shallow copy of the document. Array and map values are
// copied one level deep, which is sufficient for the flat-ish shapes docdb
// stores.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		switch tv := v.(type) {
		case []any:
			cp := make([]any, len(tv))
			copy(cp, tv)
			out[k] = cp
		case map[string]any:
			cp := make(map[string]any, len(tv))
			for mk, mv := range tv {
				cp[mk] = mv
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// ID returns the document id, if assigned.
func (d Document) ID() (uint64, bool) {
	v, ok := d[FieldID]
	if !ok || v == nil {
		return 0, false
	}
	id, ok := asUint64(v)
	return id, ok
}

// SetID assigns the document id. Assigning over an existing id is the
// caller's bug; the store never does it.
func (d Document) SetID(id uint64) {
	d[FieldID] = id
}

// Table returns the owning table recorded on the document, if any.
func (d Document) Table() (string, bool) {
	s, ok := d[FieldTable].(string)
	return s, ok && s != ""
}

// SetTable stamps the owning table onto the document.
func (d Document) SetTable(table string) {
	d[FieldTable] = table
}

// Set assigns a field value.
func (d Document) Set(field string, value any) {
	d[field] = value
}

// Lookup resolves a possibly dotted field path ("experience.years") against
// the document. It returns (nil, false) when any segment is missing.
func (d Document) Lookup(path string) (any, bool) {
	if v, ok := d[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}

	var cur any = map[string]any(d)
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			if dm, dok := cur.(Document); dok {
				m = map[string]any(dm)
			} else {
				return nil, false
			}
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the named field as a string.
func (d Document) String(field string) (string, bool) {
	s, ok := d[field].(string)
	return s, ok
}

// Int returns the named field as an int64, converting any numeric
// representation the codec may have produced.
func (d Document) Int(field string) (int64, bool) {
	f, ok := asFloat64(d[field])
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Float returns the named field as a float64.
func (d Document) Float(field string) (float64, bool) {
	return asFloat64(d[field])
}

// Bool returns the named field as a bool.
func (d Document) Bool(field string) (bool, bool) {
	b, ok := d[field].(bool)
	return b, ok
}

// Strings returns the named array field as a string slice. Non-string
// elements are skipped.
func (d Document) Strings(field string) ([]string, bool) {
	arr, ok := d[field].([]any)
	if !ok {
		if ss, sok := d[field].([]string); sok {
			out := make([]string, len(ss))
			copy(out, ss)
			return out, true
		}
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, sok := v.(string); sok {
			out = append(out, s)
		}
	}
	return out, true
}

// Vector returns the value of a numeric-array field as a []float32, the
// form vector collections consume. It accepts []float32 directly and any
// array whose elements are numeric (the shape a JSON round-trip produces).
func (d Document) Vector(field string) ([]float32, bool) {
	if vec, ok := d[field].([]float32); ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, true
	}

	elems := Elements(d[field])
	if elems == nil {
		return nil, false
	}
	out := make([]float32, 0, len(elems))
	for _, v := range elems {
		f, ok := asFloat64(v)
		if !ok {
			return nil, false
		}
		out = append(out, float32(f))
	}
	return out, true
}

// Elements returns the elements of an array-valued field in a uniform []any
// form, or nil if the field is not an array.
func Elements(v any) []any {
	switch tv := v.(type) {
	case []any:
		return tv
	case []string:
		out := make([]any, len(tv))
		for i, s := range tv {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(tv))
		for i, n := range tv {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]any, len(tv))
		for i, f := range tv {
			out[i] = f
		}
		return out
	default:
		return nil
	}
}

// IsScalar reports whether v is an indexable scalar (string, bool or number).
func IsScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
