package merge

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// compareValues orders two non-nil column values. Numbers compare by
// value whatever their Go type, []byte compares as text when the other
// side is a string.
func compareValues(a, b any) int {
	if ai, aok := asInt(a); aok {
		if bi, bok := asInt(b); bok {
			return cmp3(ai, bi)
		}
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return cmp3(af, bf)
		}
	}

	switch av := a.(type) {
	case string:
		return strings.Compare(av, asText(b))
	case []byte:
		if bb, ok := b.([]byte); ok {
			return bytes.Compare(av, bb)
		}
		return strings.Compare(string(av), asText(b))
	case time.Time:
		if bt, ok := b.(time.Time); ok {
			return av.Compare(bt)
		}
	case bool:
		if bb, ok := b.(bool); ok {
			switch {
			case av == bb:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(asText(a), asText(b))
}

// compareNullable puts nils last unless nullsFirst is set.
func compareNullable(a, b any, nullsFirst bool) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		if nullsFirst {
			return -1, true
		}
		return 1, true
	case b == nil:
		if nullsFirst {
			return 1, true
		}
		return -1, true
	}
	return 0, false
}

func cmp3[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func asText(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	case []byte:
		return string(vv)
	}
	return fmt.Sprint(v)
}

func asInt(v any) (int64, bool) {
	switch vv := v.(type) {
	case int:
		return int64(vv), true
	case int8:
		return int64(vv), true
	case int16:
		return int64(vv), true
	case int32:
		return int64(vv), true
	case int64:
		return vv, true
	case uint8:
		return int64(vv), true
	case uint16:
		return int64(vv), true
	case uint32:
		return int64(vv), true
	case uint64:
		if vv <= 1<<63-1 {
			return int64(vv), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	switch vv := v.(type) {
	case float32:
		return float64(vv), true
	case float64:
		return vv, true
	case uint64:
		return float64(vv), true
	}
	return 0, false
}

// asNumber accepts driver values that carry numbers as text, such as
// DECIMAL columns scanned into []byte.
func asNumber(v any) (int64, float64, bool, bool) {
	if i, ok := asInt(v); ok {
		return i, float64(i), true, true
	}
	if f, ok := asFloat(v); ok {
		return 0, f, false, true
	}
	var s string
	switch vv := v.(type) {
	case string:
		s = vv
	case []byte:
		s = string(vv)
	default:
		return 0, 0, false, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, float64(i), true, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return 0, f, false, true
	}
	return 0, 0, false, false
}

// addValues sums two numbers, staying integral while both sides are.
// nil counts as absent.
func addValues(a, b any) (any, error) {
	if a == nil {
		return normalizeNumber(b)
	}
	if b == nil {
		return normalizeNumber(a)
	}
	ai, af, aint, aok := asNumber(a)
	bi, bf, bint, bok := asNumber(b)
	if !aok || !bok {
		return nil, fmt.Errorf("cannot add %T and %T", a, b)
	}
	if aint && bint {
		s := ai + bi
		if (s > ai) == (bi > 0) {
			return s, nil
		}
	}
	return af + bf, nil
}

func normalizeNumber(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	i, f, isInt, ok := asNumber(v)
	if !ok {
		return nil, fmt.Errorf("%T is not a number", v)
	}
	if isInt {
		return i, nil
	}
	return f, nil
}
