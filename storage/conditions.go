package storage

import (
	"sort"

	"github.com/hupe1980/docdb/document"
)

// Operator keys accepted inside an Op map.
const (
	OpGTE      = "gte"
	OpGT       = "gt"
	OpLTE      = "lte"
	OpLT       = "lt"
	OpIncludes = "includes"
)

// IncludesSuffix is appended to a field name to address its array-membership
// index ("skills" -> "skills_includes").
const IncludesSuffix = "_includes"

// Op is an operator condition on a single field, e.g.
// Op{"gte": 30} or Op{"includes": "ruby"}.
type Op map[string]any

// Conditions maps field names to either a literal (equality) or an Op map.
type Conditions map[string]any

// MergeConditions combines condition clauses into a single map. Later clauses
// win on field collisions, matching chained where-call semantics.
func MergeConditions(clauses []Conditions) Conditions {
	merged := Conditions{}
	for _, clause := range clauses {
		for field, expected := range clause {
			merged[field] = expected
		}
	}
	return merged
}

// Match reports whether doc satisfies every condition.
func (c Conditions) Match(doc document.Document) bool {
	for field, expected := range c {
		actual, _ := doc.Lookup(field)
		if ops, ok := asOp(expected); ok {
			for op, operand := range ops {
				if !compare(actual, op, operand) {
					return false
				}
			}
			continue
		}
		if !document.Equal(actual, expected) {
			return false
		}
	}
	return true
}

// Selective reports whether the clause contains at least one condition an
// index can serve (equality or array membership). The planner treats
// selective clauses as cheap to evaluate first.
func (c Conditions) Selective() bool {
	for _, expected := range c {
		ops, ok := asOp(expected)
		if !ok {
			return true
		}
		if _, has := ops[OpIncludes]; has {
			return true
		}
	}
	return false
}

// IndexLookup picks the most selective index-served condition: an equality
// condition if any exists, otherwise an array-membership condition. It
// returns the index field name (already suffixed for membership), the
// canonical value, and whether a usable index condition was found.
// Range conditions are never index-served; callers fall back to a full scan.
func (c Conditions) IndexLookup() (indexField, value string, ok bool) {
	fields := make([]string, 0, len(c))
	for field := range c {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if _, isOp := asOp(c[field]); isOp {
			continue
		}
		if v, vok := document.Canonical(c[field]); vok {
			return field, v, true
		}
	}
	for _, field := range fields {
		ops, isOp := asOp(c[field])
		if !isOp {
			continue
		}
		if elem, has := ops[OpIncludes]; has {
			if v, vok := document.Canonical(elem); vok {
				return field + IncludesSuffix, v, true
			}
		}
	}
	return "", "", false
}

func asOp(v any) (Op, bool) {
	switch tv := v.(type) {
	case Op:
		return tv, true
	case map[string]any:
		// Only treat it as an operator map if every key is an operator;
		// otherwise it is a nested-map equality comparison.
		if len(tv) == 0 {
			return nil, false
		}
		for k := range tv {
			switch k {
			case OpGTE, OpGT, OpLTE, OpLT, OpIncludes:
			default:
				return nil, false
			}
		}
		return Op(tv), true
	default:
		return nil, false
	}
}

func compare(actual any, op string, expected any) bool {
	if actual == nil {
		return false
	}

	switch op {
	case OpGT:
		lt, ok := document.Less(expected, actual)
		return ok && lt
	case OpLT:
		lt, ok := document.Less(actual, expected)
		return ok && lt
	case OpGTE:
		if document.Equal(actual, expected) {
			return true
		}
		lt, ok := document.Less(expected, actual)
		return ok && lt
	case OpLTE:
		if document.Equal(actual, expected) {
			return true
		}
		lt, ok := document.Less(actual, expected)
		return ok && lt
	case OpIncludes:
		for _, elem := range document.Elements(actual) {
			if document.Equal(elem, expected) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
