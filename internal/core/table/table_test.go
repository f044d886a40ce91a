package table_test

import (
	"bytes"
	"math"
	"nowcast-pipeline/internal/core/table"
	"nowcast-pipeline/internal/core/types"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func belgiumRaw() table.RawTable {
	return table.RawTable{Table: table.Table{Columns: []table.Column{
		{Name: "region_level_1", Type: table.Character, Values: []any{"Flanders", "Wallonia", "Brussels", nil}},
		{Name: "date", Type: table.Date, Values: []any{
			table.NewDate(2020, 5, 1), table.NewDate(2020, 5, 1), table.NewDate(2020, 5, 2), nil,
		}},
		{Name: "confirm", Type: table.Integer, Values: []any{int64(120), int64(87), nil, int64(-3)}},
	}}}
}

func TestNormalizeRenamesRegionColumn(t *testing.T) {
	raw := belgiumRaw()

	canonical, err := table.Normalize(raw, "region_level_1")
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "date", "confirm"}, canonical.Names())
	assert.Equal(t, raw.Columns[0].Values, canonical.Columns[0].Values)
	assert.Equal(t, raw.Columns[1], canonical.Columns[1])
	assert.Equal(t, raw.Columns[2], canonical.Columns[2])
	assert.Equal(t, []string{"Flanders", "Wallonia", "Brussels", "NA"}, canonical.Regions())

	// the raw table is left untouched
	assert.Equal(t, "region_level_1", raw.Columns[0].Name)
	canonical.Columns[2].Values[0] = int64(0)
	assert.Equal(t, int64(120), raw.Columns[2].Values[0])
}

func TestNormalizeRegionColumnInTheMiddle(t *testing.T) {
	raw := table.RawTable{Table: table.Table{Columns: []table.Column{
		{Name: "date", Type: table.Date, Values: []any{table.NewDate(2021, 1, 1)}},
		{Name: "state", Type: table.Character, Values: []any{"Ontario"}},
		{Name: "cases_new", Type: table.Numeric, Values: []any{1.5}},
	}}}

	canonical, err := table.Normalize(raw, "state")
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "region", "cases_new"}, canonical.Names())
}

func TestNormalizeIdentityRename(t *testing.T) {
	raw := table.RawTable{Table: table.Table{Columns: []table.Column{
		{Name: "region", Type: table.Character, Values: []any{"a", "b"}},
	}}}

	canonical, err := table.Normalize(raw, "region")
	require.NoError(t, err)
	assert.Equal(t, []string{"region"}, canonical.Names())
}

func TestNormalizeSchemaMismatch(t *testing.T) {
	tests := []struct {
		name   string
		raw    table.RawTable
		source string
	}{
		{
			name:   "missing column",
			raw:    belgiumRaw(),
			source: "region_level_2",
		},
		{
			name:   "column names are case sensitive",
			raw:    belgiumRaw(),
			source: "Region_Level_1",
		},
		{
			name:   "empty table",
			raw:    table.RawTable{},
			source: "region_level_1",
		},
		{
			name: "region column already present",
			raw: table.RawTable{Table: table.Table{Columns: []table.Column{
				{Name: "state", Type: table.Character, Values: []any{"x"}},
				{Name: "region", Type: table.Character, Values: []any{"y"}},
			}}},
			source: "state",
		},
		{
			name: "ragged columns",
			raw: table.RawTable{Table: table.Table{Columns: []table.Column{
				{Name: "state", Type: table.Character, Values: []any{"x", "y"}},
				{Name: "confirm", Type: table.Integer, Values: []any{int64(1)}},
			}}},
			source: "state",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := table.Normalize(tc.raw, tc.source)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrSchemaMismatch)
		})
	}
}

func TestEngineFormatRoundTrip(t *testing.T) {
	raw := table.RawTable{Table: table.Table{Columns: []table.Column{
		{Name: "date", Type: table.Date, Values: []any{table.NewDate(2020, 3, 1), table.NewDate(1999, 12, 31), nil}},
		{Name: "province", Type: table.Character, Values: []any{"Québec", "", "NA"}},
		{Name: "cases", Type: table.Integer, Values: []any{int64(math.MaxInt64), int64(math.MinInt64), nil}},
		{Name: "rate", Type: table.Numeric, Values: []any{0.1 + 0.2, math.SmallestNonzeroFloat64, math.Inf(-1)}},
		{Name: "tested", Type: table.Numeric, Values: []any{1e300, math.Copysign(0, -1), nil}},
		{Name: "imported", Type: table.Logical, Values: []any{true, false, nil}},
	}}}

	canonical, err := table.Normalize(raw, "province")
	require.NoError(t, err)

	engineTable, err := table.ToEngineFormat(canonical)
	require.NoError(t, err)
	assert.Equal(t, 3, engineTable.NumRows)
	assert.Equal(t, []string{"date", "region", "cases", "rate", "tested", "imported"}, engineTable.Names())

	back, err := table.FromEngineFormat(engineTable)
	require.NoError(t, err)
	assert.Equal(t, canonical, back)

	for i, c := range back.Columns {
		if c.Type != table.Numeric {
			continue
		}
		for r, v := range c.Values {
			if v == nil {
				continue
			}
			assert.Equal(t, math.Float64bits(canonical.Columns[i].Values[r].(float64)), math.Float64bits(v.(float64)))
		}
	}
}

func TestEngineFormatEncoding(t *testing.T) {
	canonical, err := table.Normalize(belgiumRaw(), "region_level_1")
	require.NoError(t, err)

	engineTable, err := table.ToEngineFormat(canonical)
	require.NoError(t, err)

	assert.Equal(t, table.EngineColumn{
		Name:    "date",
		Type:    "Date",
		Values:  []string{"2020-05-01", "2020-05-01", "2020-05-02", ""},
		Missing: []bool{false, false, false, true},
	}, engineTable.Columns[1])
	assert.Equal(t, map[string]string{"region": "character", "date": "Date", "confirm": "integer"}, engineTable.ColClasses())
}

func TestToEngineFormatRejectsInvalidTables(t *testing.T) {
	_, err := table.ToEngineFormat(table.CanonicalCaseTable{Table: table.Table{Columns: []table.Column{
		{Name: "state", Type: table.Character, Values: []any{"x"}},
	}}})
	assert.Error(t, err)

	_, err = table.ToEngineFormat(table.CanonicalCaseTable{Table: table.Table{Columns: []table.Column{
		{Name: "region", Type: table.Integer, Values: []any{"x"}},
	}}})
	assert.Error(t, err)
}

func TestFromEngineFormatRejectsMalformedTables(t *testing.T) {
	_, err := table.FromEngineFormat(table.EngineTable{NumRows: 1, Columns: []table.EngineColumn{
		{Name: "region", Type: "integer", Values: []string{"one"}, Missing: []bool{false}},
	}})
	assert.Error(t, err)

	_, err = table.FromEngineFormat(table.EngineTable{NumRows: 2, Columns: []table.EngineColumn{
		{Name: "region", Type: "character", Values: []string{"a"}, Missing: []bool{false}},
	}})
	assert.Error(t, err)

	_, err = table.FromEngineFormat(table.EngineTable{NumRows: 1, Columns: []table.EngineColumn{
		{Name: "region", Type: "factor", Values: []string{"a"}, Missing: []bool{false}},
	}})
	assert.Error(t, err)
}

func TestReadCSVInfersColumnTypes(t *testing.T) {
	input := strings.Join([]string{
		`date,region_level_1,confirm,rate,fips,flag,notes`,
		`2020-05-01,Flanders,120,0.5,01001,TRUE,`,
		`2020-05-02,"Wallonia, Region",NA,1,01003,false,late`,
		`2020-05-03,Brussels,7,,10,TRUE,NA`,
	}, "\n")

	raw, err := table.ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"date", "region_level_1", "confirm", "rate", "fips", "flag", "notes"}, raw.Names())

	expected := []table.Column{
		{Name: "date", Type: table.Date, Values: []any{table.NewDate(2020, 5, 1), table.NewDate(2020, 5, 2), table.NewDate(2020, 5, 3)}},
		{Name: "region_level_1", Type: table.Character, Values: []any{"Flanders", "Wallonia, Region", "Brussels"}},
		{Name: "confirm", Type: table.Integer, Values: []any{int64(120), nil, int64(7)}},
		{Name: "rate", Type: table.Numeric, Values: []any{0.5, 1.0, nil}},
		{Name: "fips", Type: table.Character, Values: []any{"01001", "01003", "10"}},
		{Name: "flag", Type: table.Logical, Values: []any{true, false, true}},
		{Name: "notes", Type: table.Character, Values: []any{nil, "late", nil}},
	}
	assert.Equal(t, expected, raw.Columns)
	assert.NoError(t, raw.Validate())
}

func TestReadCSVKeepsUnrepresentableNumbersAsText(t *testing.T) {
	input := strings.Join([]string{
		`code,word,hex,exact`,
		`123456789012345678901,Inf,0x1p-2,1234567890.12345`,
		`123456789012345678903,NaN,0x10,1e21`,
		`,infinity,,1000000000000000000000`,
	}, "\n")

	raw, err := table.ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	expected := []table.Column{
		{Name: "code", Type: table.Character, Values: []any{"123456789012345678901", "123456789012345678903", nil}},
		{Name: "word", Type: table.Character, Values: []any{"Inf", "NaN", "infinity"}},
		{Name: "hex", Type: table.Character, Values: []any{"0x1p-2", "0x10", nil}},
		{Name: "exact", Type: table.Numeric, Values: []any{1234567890.12345, 1e21, 1e21}},
	}
	assert.Equal(t, expected, raw.Columns)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := table.ReadCSV(strings.NewReader(""))
	assert.Error(t, err)

	_, err = table.ReadCSV(strings.NewReader("a,a\n1,2\n"))
	assert.Error(t, err)

	_, err = table.ReadCSV(strings.NewReader("a,b\n1,2,3\n"))
	assert.Error(t, err)
}

func TestReadCSVHeaderOnly(t *testing.T) {
	raw, err := table.ReadCSV(strings.NewReader("region_level_1,date,confirm\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"region_level_1", "date", "confirm"}, raw.Names())
	assert.Equal(t, 0, raw.NumRows())

	canonical, err := table.Normalize(raw, "region_level_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "date", "confirm"}, canonical.Names())
}

func TestWriteEngineCSV(t *testing.T) {
	canonical, err := table.Normalize(belgiumRaw(), "region_level_1")
	require.NoError(t, err)
	engineTable, err := table.ToEngineFormat(canonical)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, table.WriteEngineCSV(&buf, engineTable))

	expected := "region,date,confirm\n" +
		"Flanders,2020-05-01,120\n" +
		"Wallonia,2020-05-01,87\n" +
		"Brussels,2020-05-02,NA\n" +
		"NA,NA,-3\n"
	assert.Equal(t, expected, buf.String())
	assert.Equal(t, "NA", engineTable.MissingMarker())
}

func TestWriteEngineCSVKeepsLiteralNA(t *testing.T) {
	canonical := table.CanonicalCaseTable{Table: table.Table{Columns: []table.Column{
		{Name: "region", Type: table.Character, Values: []any{"NA", nil, "NA_"}},
		{Name: "confirm", Type: table.Integer, Values: []any{int64(1), int64(2), nil}},
	}}}
	engineTable, err := table.ToEngineFormat(canonical)
	require.NoError(t, err)

	assert.Equal(t, "NA__", engineTable.MissingMarker())

	var buf bytes.Buffer
	require.NoError(t, table.WriteEngineCSV(&buf, engineTable))
	expected := "region,confirm\n" +
		"NA,1\n" +
		"NA__,2\n" +
		"NA_,NA__\n"
	assert.Equal(t, expected, buf.String())
}
