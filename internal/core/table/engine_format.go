package table

import (
	"fmt"
	"strconv"
	"time"
)

// EngineColumn is the text encoding of a column handed to the estimation
// engine. Missing[i] marks row i as NA, in which case Values[i] is empty.
type EngineColumn struct {
	Name    string
	Type    string
	Values  []string
	Missing []bool
}

type EngineTable struct {
	Columns []EngineColumn
	NumRows int
}

func (t EngineTable) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// MissingMarker is the text written for missing cells: NA, unless some
// present value is itself NA, in which case underscores are appended until
// the marker collides with no value.
func (t EngineTable) MissingMarker() string {
	marker := naString
	for t.hasValue(marker) {
		marker += "_"
	}
	return marker
}

func (t EngineTable) hasValue(s string) bool {
	for _, c := range t.Columns {
		for i, v := range c.Values {
			if v == s && (i >= len(c.Missing) || !c.Missing[i]) {
				return true
			}
		}
	}
	return false
}

// ColClasses maps each column to the R class the engine should read it as.
func (t EngineTable) ColClasses() map[string]string {
	classes := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		classes[c.Name] = c.Type
	}
	return classes
}

// ToEngineFormat encodes the canonical table for the engine. FromEngineFormat
// is its exact inverse.
func ToEngineFormat(canonical CanonicalCaseTable) (EngineTable, error) {
	if canonical.Index(RegionColumn) < 0 {
		return EngineTable{}, fmt.Errorf("canonical table has no '%s' column", RegionColumn)
	}
	if err := canonical.Validate(); err != nil {
		return EngineTable{}, fmt.Errorf("invalid canonical table: %w", err)
	}

	rows := canonical.NumRows()
	out := EngineTable{Columns: make([]EngineColumn, len(canonical.Columns)), NumRows: rows}

	for i, c := range canonical.Columns {
		ec := EngineColumn{
			Name:    c.Name,
			Type:    string(c.Type),
			Values:  make([]string, rows),
			Missing: make([]bool, rows),
		}
		for r, v := range c.Values {
			if v == nil {
				ec.Missing[r] = true
				continue
			}
			s, err := encodeValue(c.Type, v)
			if err != nil {
				return EngineTable{}, fmt.Errorf("column '%s' row %d: %w", c.Name, r, err)
			}
			ec.Values[r] = s
		}
		out.Columns[i] = ec
	}

	return out, nil
}

// FromEngineFormat decodes an engine table back into the canonical representation.
func FromEngineFormat(et EngineTable) (CanonicalCaseTable, error) {
	columns := make([]Column, len(et.Columns))

	for i, ec := range et.Columns {
		typ, err := ToColumnType(ec.Type)
		if err != nil {
			return CanonicalCaseTable{}, fmt.Errorf("column '%s': %w", ec.Name, err)
		}
		if len(ec.Values) != et.NumRows || len(ec.Missing) != et.NumRows {
			return CanonicalCaseTable{}, fmt.Errorf("column '%s' has %d values and %d missing flags, expected %d", ec.Name, len(ec.Values), len(ec.Missing), et.NumRows)
		}

		values := make([]any, et.NumRows)
		for r, s := range ec.Values {
			if ec.Missing[r] {
				continue
			}
			v, err := decodeValue(typ, s)
			if err != nil {
				return CanonicalCaseTable{}, fmt.Errorf("column '%s' row %d: %w", ec.Name, r, err)
			}
			values[r] = v
		}
		columns[i] = Column{Name: ec.Name, Type: typ, Values: values}
	}

	canonical := CanonicalCaseTable{Table: Table{Columns: columns}}
	if canonical.Index(RegionColumn) < 0 {
		return CanonicalCaseTable{}, fmt.Errorf("engine table has no '%s' column", RegionColumn)
	}
	return canonical, nil
}

func encodeValue(typ ColumnType, v any) (string, error) {
	switch typ {
	case Character:
		return v.(string), nil
	case Integer:
		return strconv.FormatInt(v.(int64), 10), nil
	case Numeric:
		// 'g' with precision -1 is the shortest text that parses back to the same bits.
		return strconv.FormatFloat(v.(float64), 'g', -1, 64), nil
	case Date:
		t := v.(time.Time)
		s := t.UTC().Format(DateLayout)
		if back, _ := time.Parse(DateLayout, s); !back.Equal(t) {
			return "", fmt.Errorf("date %s carries a time of day", t.Format(time.RFC3339Nano))
		}
		return s, nil
	case Logical:
		if v.(bool) {
			return "TRUE", nil
		}
		return "FALSE", nil
	}
	return "", fmt.Errorf("unsupported column type '%s'", typ)
}

func decodeValue(typ ColumnType, s string) (any, error) {
	switch typ {
	case Character:
		return s, nil
	case Integer:
		return strconv.ParseInt(s, 10, 64)
	case Numeric:
		return strconv.ParseFloat(s, 64)
	case Date:
		return time.Parse(DateLayout, s)
	case Logical:
		switch s {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
		return nil, fmt.Errorf("invalid logical '%s'", s)
	}
	return nil, fmt.Errorf("unsupported column type '%s'", typ)
}
