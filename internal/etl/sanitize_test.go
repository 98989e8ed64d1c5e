package etl_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sheetsync/internal/etl"
)

func TestSanitizeValue(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 123456789, time.FixedZone("IST", 19800))
	cases := []struct {
		name string
		in   etl.Value
		want etl.Value
	}{
		{"empty string", etl.String(""), etl.Null()},
		{"string", etl.String("a"), etl.String("a")},
		{"nan", etl.Float(math.NaN()), etl.Null()},
		{"+inf", etl.Float(math.Inf(1)), etl.Null()},
		{"-inf", etl.Float(math.Inf(-1)), etl.Null()},
		{"float", etl.Float(1.5), etl.Float(1.5)},
		{"int", etl.Int(7), etl.Int(7)},
		{"zero time", etl.Timestamp(time.Time{}), etl.Null()},
		{"time", etl.Timestamp(ts), etl.Timestamp(time.Date(2024, 1, 1, 6, 30, 0, 123000000, time.UTC))},
		{"null", etl.Null(), etl.Null()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := etl.SanitizeValue(tc.in)
			assert.True(t, tc.want.Equal(got), "got %v, want %v", got, tc.want)
		})
	}
}

func TestSanitizeValue_TimestampIsUTC(t *testing.T) {
	got := etl.SanitizeValue(etl.Timestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))))
	assert.Equal(t, time.UTC, got.Time().Location())
}

func TestSanitizeAny_WidensNativeTypes(t *testing.T) {
	assert.True(t, etl.Int(5).Equal(etl.SanitizeAny(int32(5))))
	assert.True(t, etl.Int(5).Equal(etl.SanitizeAny(uint8(5))))
	assert.True(t, etl.Float(1.5).Equal(etl.SanitizeAny(float32(1.5))))
	assert.True(t, etl.Null().Equal(etl.SanitizeAny(math.NaN())))
	assert.True(t, etl.Null().Equal(etl.SanitizeAny(float32(math.Inf(1)))))
	assert.True(t, etl.Null().Equal(etl.SanitizeAny("")))
	assert.True(t, etl.Null().Equal(etl.SanitizeAny(time.Time{})))
	assert.True(t, etl.Null().Equal(etl.SanitizeAny(nil)))
}

func sanitizeFixture() *etl.Table {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 999999999, time.UTC)
	return &etl.Table{
		Columns: []string{"s", "n", "t"},
		Records: []etl.Record{
			{Data: map[string]etl.Value{"s": etl.String(""), "n": etl.Float(math.NaN()), "t": etl.Timestamp(time.Time{})}},
			{Data: map[string]etl.Value{"s": etl.String("x"), "n": etl.Float(math.Inf(1)), "t": etl.Timestamp(ts)}},
			{Data: map[string]etl.Value{"s": etl.Null(), "n": etl.Int(3), "t": etl.Null()}},
			{Data: map[string]etl.Value{"n": etl.Float(2.5)}}, // missing cells
		},
	}
}

func TestSanitize_LeavesNoMissingMarkers(t *testing.T) {
	tbl := sanitizeFixture()

	nulled := etl.Sanitize(tbl)

	assert.Equal(t, 4, nulled)
	for i, r := range tbl.Records {
		for _, col := range tbl.Columns {
			v, ok := r.Data[col]
			assert.True(t, ok, "row %d column %s must be present after sanitizing", i, col)
			switch v.Kind() {
			case etl.KindString:
				assert.NotEmpty(t, v.Str())
			case etl.KindNumber:
				assert.False(t, math.IsNaN(v.Float()) || math.IsInf(v.Float(), 0))
			case etl.KindTimestamp:
				assert.False(t, v.Time().IsZero())
			}
		}
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	once := sanitizeFixture()
	etl.Sanitize(once)

	twice := sanitizeFixture()
	etl.Sanitize(twice)
	nulled := etl.Sanitize(twice)

	assert.Equal(t, 0, nulled)
	for i := range once.Records {
		for _, col := range once.Columns {
			a, b := once.Records[i].Get(col), twice.Records[i].Get(col)
			assert.True(t, a.Equal(b), "row %d column %s: %v != %v", i, col, a, b)
		}
	}
}
