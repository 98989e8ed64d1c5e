package etl

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// ── Value ──────────────────────────────────────────────────
// Every cell flowing through a pipeline is a Value: a closed variant over
// {Null, Timestamp, Number, String}. Coercion produces Values once; the
// sanitizer and the sink switch on Kind instead of inspecting Go types.

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindTimestamp
	KindNumber
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindTimestamp:
		return "timestamp"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "null"
	}
}

// Value is a single typed cell. The zero Value is Null.
// Numbers carry either an int64 or a float64 payload, never a narrower type.
type Value struct {
	kind    Kind
	t       time.Time
	i       int64
	f       float64
	isFloat bool
	s       string
}

func Null() Value { return Value{} }
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t} }
func Int(i int64) Value { return Value{kind: KindNumber, i: i} }
func Float(f float64) Value { return Value{kind: KindNumber, f: f, isFloat: true} }
func String(s string) Value { return Value{kind: KindString, s: s} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) IsFloat() bool { return v.kind == KindNumber && v.isFloat }
func (v Value) Time() time.Time { return v.t }
func (v Value) Str() string { return v.s }

// Int returns the integer payload. ok is false for floats and non-numbers.
func (v Value) Int() (int64, bool) {
	if v.kind != KindNumber || v.isFloat {
		return 0, false
	}
	return v.i, true
}

// Float returns the numeric payload widened to float64.
func (v Value) Float() float64 {
	if v.kind != KindNumber {
		return math.NaN()
	}
	if v.isFloat {
		return v.f
	}
	return float64(v.i)
}

// Any returns the native Go value handed to the sink driver:
// nil, time.Time, int64, float64 or string.
func (v Value) Any() any {
	switch v.kind {
	case KindTimestamp:
		return v.t
	case KindNumber:
		if v.isFloat {
			return v.f
		}
		return v.i
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Equal reports whether two values hold the same variant and payload.
// NaN payloads compare equal to each other so sanitizer idempotence can be checked.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindTimestamp:
		return v.t.Equal(o.t)
	case KindNumber:
		if v.isFloat != o.isFloat {
			return false
		}
		if v.isFloat {
			return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
		}
		return v.i == o.i
	default:
		return v.s == o.s
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	case KindNumber:
		if v.isFloat {
			return strconv.FormatFloat(v.f, 'g', -1, 64)
		}
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return v.s
	default:
		return "null"
	}
}

// MarshalJSON renders the value for previews: null, RFC3339 timestamps,
// plain numbers and strings. Non-finite floats render as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindTimestamp:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	case KindNumber:
		if v.isFloat && (math.IsNaN(v.f) || math.IsInf(v.f, 0)) {
			return []byte("null"), nil
		}
		return json.Marshal(v.Any())
	case KindString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// FromAny lifts a loosely typed Go value into the variant, widening sized
// integer and float types. Unsupported types are rendered as strings.
func FromAny(x any) Value {
	switch n := x.(type) {
	case nil:
		return Null()
	case Value:
		return n
	case string:
		return String(n)
	case time.Time:
		return Timestamp(n)
	case *time.Time:
		if n == nil {
			return Null()
		}
		return Timestamp(*n)
	case int:
		return Int(int64(n))
	case int8:
		return Int(int64(n))
	case int16:
		return Int(int64(n))
	case int32:
		return Int(int64(n))
	case int64:
		return Int(n)
	case uint8:
		return Int(int64(n))
	case uint16:
		return Int(int64(n))
	case uint32:
		return Int(int64(n))
	case uint:
		if uint64(n) > math.MaxInt64 {
			return Float(float64(n))
		}
		return Int(int64(n))
	case uint64:
		if n > math.MaxInt64 {
			return Float(float64(n))
		}
		return Int(int64(n))
	case float32:
		return Float(float64(n))
	case float64:
		return Float(n)
	case bool:
		return String(strconv.FormatBool(n))
	case []byte:
		return String(string(n))
	default:
		b, err := json.Marshal(n)
		if err != nil {
			return Null()
		}
		return String(string(b))
	}
}

// ── Record / Table ─────────────────────────────────────────
// Common intermediate data format shared by every stage.

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "null" | "timestamp" | "number" | "string" | "mixed"
}

// Schema describes the observed shape of a table.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Record is a single row of data flowing through the pipeline.
type Record struct {
	Data map[string]Value `json:"data"`
}

// Get returns the cell for column, Null when absent.
func (r Record) Get(column string) Value {
	return r.Data[column]
}

// Table is an ordered set of columns plus the rows that share them.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Records []Record `json:"records"`
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Records) }

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Schema derives per-column kinds from the current cells.
// A column whose non-null cells disagree on kind is reported as "mixed".
func (t *Table) Schema() *Schema {
	s := &Schema{Fields: make([]Field, len(t.Columns))}
	for i, col := range t.Columns {
		kind := KindNull
		mixed := false
		for _, r := range t.Records {
			v := r.Data[col]
			if v.IsNull() {
				continue
			}
			if kind == KindNull {
				kind = v.Kind()
			} else if kind != v.Kind() {
				mixed = true
				break
			}
		}
		typ := kind.String()
		if mixed {
			typ = "mixed"
		}
		s.Fields[i] = Field{Name: col, Type: typ}
	}
	return s
}

// Head returns up to n records, for previews and diagnostics.
func (t *Table) Head(n int) []Record {
	if n < 0 || n > len(t.Records) {
		n = len(t.Records)
	}
	return t.Records[:n]
}
