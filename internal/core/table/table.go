package table

import (
	"fmt"
	"time"
)

// ColumnType names follow the R classes the estimation engine reads.
type ColumnType string

const (
	Character ColumnType = "character"
	Integer   ColumnType = "integer"
	Numeric   ColumnType = "numeric"
	Date      ColumnType = "Date"
	Logical   ColumnType = "logical"
)

const (
	RegionColumn = "region"
	DateLayout   = "2006-01-02"
)

func ToColumnType(s string) (ColumnType, error) {
	switch ColumnType(s) {
	case Character, Integer, Numeric, Date, Logical:
		return ColumnType(s), nil
	default:
		return "", fmt.Errorf("unknown column type '%s'", s)
	}
}

// Column values are string, int64, float64, time.Time (UTC, midnight) or bool
// depending on Type. A nil value is a missing observation.
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

type Table struct {
	Columns []Column
}

// RawTable is a table as produced by an acquisition source.
type RawTable struct {
	Table
}

// CanonicalCaseTable is a table whose region column has been renamed to RegionColumn.
type CanonicalCaseTable struct {
	Table
}

func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func (t Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t Table) Column(name string) (Column, bool) {
	if i := t.Index(name); i >= 0 {
		return t.Columns[i], true
	}
	return Column{}, false
}

func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	rows := t.NumRows()
	for _, c := range t.Columns {
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("duplicate column '%s'", c.Name)
		}
		seen[c.Name] = struct{}{}

		if _, err := ToColumnType(string(c.Type)); err != nil {
			return fmt.Errorf("column '%s': %w", c.Name, err)
		}
		if len(c.Values) != rows {
			return fmt.Errorf("column '%s' has %d values, expected %d", c.Name, len(c.Values), rows)
		}
		for i, v := range c.Values {
			if !valueMatches(c.Type, v) {
				return fmt.Errorf("column '%s' row %d: value of type %T is not %s", c.Name, i, v, c.Type)
			}
		}
	}
	return nil
}

func valueMatches(typ ColumnType, v any) bool {
	if v == nil {
		return true
	}
	switch typ {
	case Character:
		_, ok := v.(string)
		return ok
	case Integer:
		_, ok := v.(int64)
		return ok
	case Numeric:
		_, ok := v.(float64)
		return ok
	case Date:
		_, ok := v.(time.Time)
		return ok
	case Logical:
		_, ok := v.(bool)
		return ok
	}
	return false
}

// Regions returns the distinct region values in order of first appearance.
func (t CanonicalCaseTable) Regions() []string {
	col, ok := t.Column(RegionColumn)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var regions []string
	for _, v := range col.Values {
		s := fmt.Sprint(v)
		if v == nil {
			s = "NA"
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		regions = append(regions, s)
	}
	return regions
}

func copyColumn(c Column) Column {
	values := make([]any, len(c.Values))
	copy(values, c.Values)
	return Column{Name: c.Name, Type: c.Type, Values: values}
}
