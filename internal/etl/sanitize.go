package etl

import (
	"math"
	"time"
)

// ── Value Sanitizer ────────────────────────────────────────
// Type-driven, column-agnostic normalization run after coercion and
// filtering. Afterwards no cell holds "", NaN, ±Inf or a zero time, and
// every timestamp is UTC at millisecond precision, which is what a BSON
// datetime stores. Sanitize(Sanitize(t)) == Sanitize(t).

// SanitizeValue canonicalizes a single cell.
func SanitizeValue(v Value) Value {
	switch v.Kind() {
	case KindString:
		if v.Str() == "" {
			return Null()
		}
		return v
	case KindNumber:
		if !v.IsFloat() {
			return v
		}
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Null()
		}
		return v
	case KindTimestamp:
		t := v.Time()
		if t.IsZero() {
			return Null()
		}
		return Timestamp(t.UTC().Truncate(time.Millisecond))
	default:
		return Null()
	}
}

// SanitizeAny lifts a loosely typed Go value (e.g. from a driver or a
// fixture) and sanitizes it. Sized integers and float32 are widened first.
func SanitizeAny(x any) Value {
	return SanitizeValue(FromAny(x))
}

// Sanitize normalizes every cell of t in place and returns the number of
// cells that were collapsed to Null.
func Sanitize(t *Table) int {
	nulled := 0
	for _, r := range t.Records {
		for _, col := range t.Columns {
			in := r.Data[col]
			out := SanitizeValue(in)
			if out.IsNull() && !in.IsNull() {
				nulled++
			}
			r.Data[col] = out
		}
	}
	return nulled
}
