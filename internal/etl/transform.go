package etl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ── Column Coercer ─────────────────────────────────────────
// Declarative per-column rules that cast raw text to a semantic type.
// A bad cell never fails the pipeline: it degrades to Null.

// Coercion names the target type of a column rule.
type Coercion int

const (
	ToTimestamp Coercion = iota
	ToNumber
	PreserveStringOrNull
)

func (c Coercion) String() string {
	switch c {
	case ToTimestamp:
		return "timestamp"
	case ToNumber:
		return "number"
	default:
		return "string_or_null"
	}
}

// ColumnRule applies a Coercion to one column, addressed by name or, when
// Position is non-negative, by its index in the loaded table.
type ColumnRule struct {
	Column   string
	Position int
	Coerce   Coercion
	Optional bool // skip silently if the column is absent
}

// ByName addresses a column by its header name.
func ByName(column string, c Coercion) ColumnRule {
	return ColumnRule{Column: column, Position: -1, Coerce: c}
}

// ByPosition addresses a column by index, whatever it is named.
func ByPosition(i int, c Coercion) ColumnRule {
	return ColumnRule{Position: i, Coerce: c}
}

// IfPresent marks the rule optional.
func (r ColumnRule) IfPresent() ColumnRule {
	r.Optional = true
	return r
}

func (r ColumnRule) describe() string {
	if r.Position >= 0 {
		return fmt.Sprintf("#%d", r.Position)
	}
	return r.Column
}

// resolve returns the column name the rule targets in t.
func (r ColumnRule) resolve(t *Table) (string, bool) {
	if r.Position >= 0 {
		if r.Position < len(t.Columns) {
			return t.Columns[r.Position], true
		}
		return "", false
	}
	return r.Column, t.HasColumn(r.Column)
}

// Coercer applies a set of column rules to a table.
type Coercer struct {
	Rules []ColumnRule
}

// Columns resolves which columns of t the rules target. A required rule
// whose column is missing yields a SchemaMismatchError.
func (c *Coercer) Columns(t *Table) (map[string]Coercion, error) {
	out := make(map[string]Coercion, len(c.Rules))
	for _, r := range c.Rules {
		col, ok := r.resolve(t)
		if !ok {
			if r.Optional {
				continue
			}
			return nil, &SchemaMismatchError{
				Source: t.Name,
				Column: r.describe(),
				Reason: "column required by " + r.Coerce.String() + " rule is missing",
			}
		}
		out[col] = r.Coerce
	}
	return out, nil
}

// Apply coerces every targeted cell in place and returns how many non-empty
// cells could not be parsed and were degraded to Null.
func (c *Coercer) Apply(t *Table) (int, error) {
	cols, err := c.Columns(t)
	if err != nil {
		return 0, err
	}
	degraded := 0
	for _, r := range t.Records {
		for col, kind := range cols {
			in := r.Data[col]
			out := Coerce(in, kind)
			if out.IsNull() && !isBlank(in) {
				degraded++
			}
			r.Data[col] = out
		}
	}
	return degraded, nil
}

// Coerce casts a single value. It never fails.
func Coerce(v Value, c Coercion) Value {
	switch c {
	case ToTimestamp:
		switch v.Kind() {
		case KindTimestamp:
			return v
		case KindString:
			if t, ok := parseTimestamp(v.Str()); ok {
				return Timestamp(t)
			}
		}
		return Null()
	case ToNumber:
		switch v.Kind() {
		case KindNumber:
			return v
		case KindString:
			n, _ := parseNumber(v.Str())
			return n
		}
		return Null()
	default:
		if isBlank(v) {
			return Null()
		}
		return v
	}
}

func isBlank(v Value) bool {
	return v.IsNull() || (v.Kind() == KindString && v.Str() == "")
}

// ── Parsing ────────────────────────────────────────────────

// numericPattern validates plain integers, decimals and scientific notation.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// groupedPattern matches numbers written with comma thousands separators.
var groupedPattern = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)

// parseNumber parses integer or decimal text. Integers stay int64; anything
// with a fraction or exponent becomes float64. "nan" and "inf" parse to the
// corresponding float so the sanitizer can collapse them.
func parseNumber(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Null(), false
	}
	if groupedPattern.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}

	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null(), false
		}
		return Float(f), true
	}

	if !numericPattern.MatchString(s) {
		return Null(), false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Null(), false
	}
	return Float(f), true
}

// TwoDigitYearPivot bounds how far into the future a 2-digit year may land
// before it is read as the previous century.
var TwoDigitYearPivot = 20

// Layouts are tried in order; month-first wins for ambiguous slash dates,
// which is how spreadsheet CSV exports write them.
var (
	fourDigitYearLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
		"2006/01/02 15:04:05",
		"2006/01/02",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"1/2/2006",
		"1-2-2006",
		"1.2.2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"2 Jan 2006",
		"2 January 2006",
		"02-Jan-2006",
		"Mon, 02 Jan 2006",
		"20060102",
	}
	twoDigitYearLayouts = []string{
		"1/2/06",
		"1-2-06",
		"02-Jan-06",
	}
)

// parseTimestamp parses calendar text in UTC. ok is false for blank or
// unrecognised input.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ── Row Filter ─────────────────────────────────────────────
// Transformers are composable: each takes a record and returns it along
// with whether to keep it.

// Transformer processes a single record.
// Returns (transformed record, keep). If keep is false, the record is dropped.
type Transformer interface {
	Transform(Record) (Record, bool)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(Record) (Record, bool)

func (f TransformerFunc) Transform(r Record) (Record, bool) { return f(r) }

// RequireNonNull drops records whose Field is Null or an empty string.
type RequireNonNull struct {
	Field string
}

func (t *RequireNonNull) Transform(r Record) (Record, bool) {
	return r, !isBlank(r.Data[t.Field])
}

// ApplyTransformers runs a chain of transformers on a record.
func ApplyTransformers(r Record, ts []Transformer) (Record, bool) {
	for _, t := range ts {
		var keep bool
		r, keep = t.Transform(r)
		if !keep {
			return r, false
		}
	}
	return r, true
}

// Filter runs the chain over every record of t, dropping rejected rows in
// place. It returns the number of rows dropped.
func Filter(t *Table, ts []Transformer) int {
	if len(ts) == 0 {
		return 0
	}
	kept := t.Records[:0]
	for _, r := range t.Records {
		if out, keep := ApplyTransformers(r, ts); keep {
			kept = append(kept, out)
		}
	}
	dropped := len(t.Records) - len(kept)
	for i := len(kept); i < len(t.Records); i++ {
		t.Records[i] = Record{}
	}
	t.Records = kept
	return dropped
}
