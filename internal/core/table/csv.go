package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	naString = "NA"

	// float64 holds any decimal with this many significant digits exactly.
	maxNumericDigits = 15
)

// ReadCSV decodes an acquisition CSV into a RawTable. Each column gets the
// narrowest type all of its non-missing cells parse as, trying integer,
// numeric, Date and logical before falling back to character. Empty cells
// and NA are missing.
func ReadCSV(r io.Reader) (RawTable, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return RawTable{}, fmt.Errorf("csv is empty")
		}
		return RawTable{}, fmt.Errorf("error reading csv header: %w", err)
	}

	names := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if _, ok := seen[name]; ok {
			return RawTable{}, fmt.Errorf("duplicate csv column '%s'", name)
		}
		seen[name] = struct{}{}
		names[i] = name
	}

	cells := make([][]string, len(names))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return RawTable{}, fmt.Errorf("error reading csv row: %w", err)
		}
		for i, v := range record {
			cells[i] = append(cells[i], v)
		}
	}

	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = inferColumn(name, cells[i])
	}

	return RawTable{Table: Table{Columns: columns}}, nil
}

func isMissing(s string) bool {
	return s == "" || s == naString
}

func inferColumn(name string, cells []string) Column {
	for _, typ := range []ColumnType{Integer, Numeric, Date, Logical} {
		if values, ok := parseAll(typ, cells); ok {
			return Column{Name: name, Type: typ, Values: values}
		}
	}

	values := make([]any, len(cells))
	for i, s := range cells {
		if !isMissing(s) {
			values[i] = s
		}
	}
	return Column{Name: name, Type: Character, Values: values}
}

func parseAll(typ ColumnType, cells []string) ([]any, bool) {
	values := make([]any, len(cells))
	present := 0
	for i, raw := range cells {
		s := strings.TrimSpace(raw)
		if isMissing(s) {
			continue
		}
		v, ok := parseCell(typ, s)
		if !ok {
			return nil, false
		}
		values[i] = v
		present++
	}
	// A column with no observations carries no type information.
	return values, present > 0
}

func parseCell(typ ColumnType, s string) (any, bool) {
	switch typ {
	case Integer:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil || strconv.FormatInt(i, 10) != s {
			return nil, false
		}
		return i, true
	case Numeric:
		digits, ok := significantDigits(s)
		if !ok || digits > maxNumericDigits || hasLeadingZero(s) {
			return nil, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, false
		}
		return f, true
	case Date:
		t, err := time.Parse(DateLayout, s)
		if err != nil {
			return nil, false
		}
		return t, true
	case Logical:
		switch strings.ToUpper(s) {
		case "TRUE":
			return true, true
		case "FALSE":
			return false, true
		}
	}
	return nil, false
}

// significantDigits counts the mantissa digits of a plain decimal such as
// "-12.50e3", ignoring leading and trailing zeros. It rejects anything else
// ParseFloat would accept, like "Inf", "NaN" or hex floats.
func significantDigits(s string) (int, bool) {
	s = strings.TrimLeft(s, "+-")
	mantissa := s
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mantissa = s[:i]
		exp := strings.TrimLeft(s[i+1:], "+-")
		if len(s[i+1:])-len(exp) > 1 || exp == "" || !allDigits(exp) {
			return 0, false
		}
	}

	intPart, fracPart, _ := strings.Cut(mantissa, ".")
	if intPart+fracPart == "" || !allDigits(intPart) || !allDigits(fracPart) {
		return 0, false
	}
	digits := strings.Trim(intPart+fracPart, "0")
	return len(digits), true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// hasLeadingZero reports codes such as "01001" which must stay text.
func hasLeadingZero(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9'
}

// WriteEngineCSV writes the engine table as CSV with et.MissingMarker() for
// missing cells. Column classes travel separately (see ColClasses).
func WriteEngineCSV(w io.Writer, et EngineTable) error {
	writer := csv.NewWriter(w)
	marker := et.MissingMarker()

	if err := writer.Write(et.Names()); err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}

	record := make([]string, len(et.Columns))
	for r := 0; r < et.NumRows; r++ {
		for i, c := range et.Columns {
			if c.Missing[r] {
				record[i] = marker
			} else {
				record[i] = c.Values[r]
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("error writing csv row %d: %w", r, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
