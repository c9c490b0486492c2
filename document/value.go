package document

import (
	"strconv"
)

// asFloat64 converts any numeric representation to float64.
func asFloat64(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case float32:
		return float64(tv), true
	case int:
		return float64(tv), true
	case int8:
		return float64(tv), true
	case int16:
		return float64(tv), true
	case int32:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case uint:
		return float64(tv), true
	case uint8:
		return float64(tv), true
	case uint16:
		return float64(tv), true
	case uint32:
		return float64(tv), true
	case uint64:
		return float64(tv), true
	default:
		return 0, false
	}
}

// asUint64 converts any non-negative numeric representation to uint64.
func asUint64(v any) (uint64, bool) {
	if u, ok := v.(uint64); ok {
		return u, true
	}
	f, ok := asFloat64(v)
	if !ok || f < 0 {
		return 0, false
	}
	return uint64(f), true
}

// Equal compares two field values. Numbers compare numerically regardless of
// their concrete Go type, so a document read back through the codec compares
// equal to the one that was written.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat64(a); aok {
		bf, bok := asFloat64(b)
		return bok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// Less orders two field values. It reports (result, comparable): numbers
// order numerically, strings lexically; mixed or non-scalar values are not
// comparable.
func Less(a, b any) (bool, bool) {
	if af, aok := asFloat64(a); aok {
		if bf, bok := asFloat64(b); bok {
			return af < bf, true
		}
		return false, false
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as < bs, true
		}
	}
	return false, false
}

// Canonical renders a scalar value in the stable string form used for index
// keys and index file names. Integral floats render without a fraction so
// that 25 and 25.0 address the same index entry.
func Canonical(v any) (string, bool) {
	switch tv := v.(type) {
	case string:
		return tv, true
	case bool:
		return strconv.FormatBool(tv), true
	}
	f, ok := asFloat64(v)
	if !ok {
		return "", false
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10), true
	}
	return strconv.FormatFloat(f, 'g', -1, 64), true
}
