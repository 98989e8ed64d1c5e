package etl_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/etl"
)

func TestLoad_SelfDescribingKeepsEmptyStrings(t *testing.T) {
	raw := []byte("Test Date,Count\n2024-01-01,5\n,x\n")

	tbl, err := etl.Load("ds", raw, etl.LoadOptions{Header: etl.SelfDescribing()})
	require.NoError(t, err)

	assert.Equal(t, []string{"Test Date", "Count"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len())
	assert.True(t, etl.String("2024-01-01").Equal(tbl.Records[0].Get("Test Date")))
	assert.True(t, etl.String("").Equal(tbl.Records[1].Get("Test Date")), "empty cell must stay an empty string")
	assert.True(t, etl.String("x").Equal(tbl.Records[1].Get("Count")))
}

func TestLoad_StripsBOMAndPadsShortRows(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b,c\n1\n")...)

	tbl, err := etl.Load("x", raw, etl.LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, tbl.Columns)
	require.Equal(t, 1, tbl.Len())
	assert.True(t, etl.String("").Equal(tbl.Records[0].Get("c")))
}

func TestLoad_CustomDelimiter(t *testing.T) {
	tbl, err := etl.Load("x", []byte("a;b\n1;2\n"), etl.LoadOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Columns)
	assert.True(t, etl.String("2").Equal(tbl.Records[0].Get("b")))
}

func TestLoad_DuplicateAndBlankHeaders(t *testing.T) {
	tbl, err := etl.Load("x", []byte("a,a,,a\n1,2,3,4\n"), etl.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.1", "Unnamed: 2", "a.2"}, tbl.Columns)
}

func TestLoad_PositionalRename(t *testing.T) {
	raw := []byte("whatever,the sheet,says\nx,1,2\n")

	tbl, err := etl.Load("care", raw, etl.LoadOptions{Header: etl.PositionalRename("District", "A", "B")})
	require.NoError(t, err)

	assert.Equal(t, []string{"District", "A", "B"}, tbl.Columns)
	assert.True(t, etl.String("x").Equal(tbl.Records[0].Get("District")))
}

func TestLoad_PositionalColumnCountMismatch(t *testing.T) {
	raw := []byte("A,B\n1,2\n")

	_, err := etl.Load("care", raw, etl.LoadOptions{Header: etl.PositionalRename("x", "y", "z")})

	var sme *etl.SchemaMismatchError
	require.True(t, errors.As(err, &sme), "want SchemaMismatchError, got %v", err)
	assert.Equal(t, 3, sme.Expected)
	assert.Equal(t, 2, sme.Got)
}

func TestLoad_RowWiderThanHeader(t *testing.T) {
	_, err := etl.Load("care", []byte("a,b\n1,2,3,4\n"), etl.LoadOptions{Header: etl.PositionalRename("A", "B")})
	var sme *etl.SchemaMismatchError
	require.True(t, errors.As(err, &sme), "want SchemaMismatchError, got %v", err)
	assert.Equal(t, 2, sme.Expected)
	assert.Equal(t, 4, sme.Got)

	_, err = etl.Load("ds", []byte("a,b\n1,2,3\n"), etl.LoadOptions{Header: etl.SelfDescribing()})
	require.Error(t, err)
	assert.False(t, errors.As(err, &sme))
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoad_TrailingEmptyCellsAreTolerated(t *testing.T) {
	tbl, err := etl.Load("ds", []byte("a,b\n1,2,,\n"), etl.LoadOptions{Header: etl.SelfDescribing()})
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	assert.True(t, etl.String("2").Equal(tbl.Records[0].Get("b")))
}

func TestLoad_EmptyInput(t *testing.T) {
	tbl, err := etl.Load("ds", nil, etl.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())

	_, err = etl.Load("care", nil, etl.LoadOptions{Header: etl.PositionalRename("a")})
	var sme *etl.SchemaMismatchError
	assert.True(t, errors.As(err, &sme))
}

func TestInferTypes(t *testing.T) {
	raw := []byte("n,s,e,ruled\n1,1,,7\n,x,,8\n2.5,2,,9\n")
	tbl, err := etl.Load("x", raw, etl.LoadOptions{})
	require.NoError(t, err)

	inferred := etl.InferTypes(tbl, map[string]bool{"ruled": true})

	assert.Equal(t, []string{"n"}, inferred)
	assert.True(t, etl.Int(1).Equal(tbl.Records[0].Get("n")))
	assert.True(t, etl.String("").Equal(tbl.Records[1].Get("n")), "empty cells are left for the sanitizer")
	assert.True(t, etl.Float(2.5).Equal(tbl.Records[2].Get("n")))
	assert.True(t, etl.String("1").Equal(tbl.Records[0].Get("s")), "mixed column stays text")
	assert.True(t, etl.String("7").Equal(tbl.Records[0].Get("ruled")), "ruled column is skipped")
}
