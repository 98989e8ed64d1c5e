package etl

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ── Typed Loader ───────────────────────────────────────────
// Turns raw CSV text into a Table. Cells are loaded as strings, empty cells
// included; deciding what "missing" means is left to later stages.

// HeaderPolicy decides where column names come from.
// A nil Names slice means the first row names the columns verbatim.
type HeaderPolicy struct {
	Names []string
}

// SelfDescribing takes column names from the source's header row.
func SelfDescribing() HeaderPolicy { return HeaderPolicy{} }

// PositionalRename discards the source's header row and assigns names in order.
// The source must have exactly len(names) columns.
func PositionalRename(names ...string) HeaderPolicy {
	return HeaderPolicy{Names: names}
}

// Positional reports whether the policy assigns names itself.
func (h HeaderPolicy) Positional() bool { return h.Names != nil }

// LoadOptions configures Load.
type LoadOptions struct {
	Header    HeaderPolicy
	Delimiter rune // default ','
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Load parses raw CSV into a table named name.
func Load(name string, raw []byte, opts LoadOptions) (*Table, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(raw))
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		if opts.Header.Positional() {
			return nil, &SchemaMismatchError{
				Source:   name,
				Expected: len(opts.Header.Names),
				Got:      0,
				Reason:   "source is empty",
			}
		}
		return &Table{Name: name}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}

	var columns []string
	if opts.Header.Positional() {
		if len(header) != len(opts.Header.Names) {
			return nil, &SchemaMismatchError{
				Source:   name,
				Expected: len(opts.Header.Names),
				Got:      len(header),
			}
		}
		columns = append([]string(nil), opts.Header.Names...)
	} else {
		columns = dedupeColumns(header)
	}

	t := &Table{Name: name, Columns: columns}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv line %d: %w", line, err)
		}
		if extra := overflow(row, len(columns)); extra > 0 {
			if opts.Header.Positional() {
				return nil, &SchemaMismatchError{
					Source:   name,
					Expected: len(columns),
					Got:      len(row),
					Reason:   fmt.Sprintf("line %d has %d cells beyond the header", line, extra),
				}
			}
			return nil, fmt.Errorf("parse csv line %d: expected %d fields, saw %d", line, len(columns), len(row))
		}
		data := make(map[string]Value, len(columns))
		for j, col := range columns {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			data[col] = String(cell)
		}
		t.Records = append(t.Records, Record{Data: data})
	}
	return t, nil
}

// overflow counts cells past width, ignoring trailing empty cells that
// spreadsheet exports leave behind.
func overflow(row []string, width int) int {
	n := len(row)
	for n > width && row[n-1] == "" {
		n--
	}
	return n - width
}

// dedupeColumns suffixes repeated header names (".1", ".2", …) so every
// column stays addressable, and names blank headers by position.
func dedupeColumns(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	counts := make(map[string]int, len(header))
	for i, h := range header {
		if h == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		name := h
		for used[name] {
			counts[h]++
			name = h + "." + strconv.Itoa(counts[h])
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// ── Type inference ─────────────────────────────────────────

// InferTypes converts numeric-looking columns to numbers. A column qualifies
// only when every non-empty cell parses as a number; empty cells stay empty
// strings for the sanitizer. Columns in skip are left untouched (they have
// explicit coercion rules).
func InferTypes(t *Table, skip map[string]bool) []string {
	var inferred []string
	for _, col := range t.Columns {
		if skip[col] {
			continue
		}
		numeric, seen := true, false
		for _, r := range t.Records {
			v := r.Data[col]
			if v.Kind() != KindString {
				continue
			}
			if v.Str() == "" {
				continue
			}
			seen = true
			if _, ok := parseNumber(v.Str()); !ok {
				numeric = false
				break
			}
		}
		if !numeric || !seen {
			continue
		}
		for _, r := range t.Records {
			v := r.Data[col]
			if v.Kind() == KindString && v.Str() != "" {
				r.Data[col], _ = parseNumber(v.Str())
			}
		}
		inferred = append(inferred, col)
	}
	return inferred
}
