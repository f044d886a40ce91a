package table

import (
	"fmt"
	"nowcast-pipeline/internal/core/types"
)

// Normalize renames sourceColumn to RegionColumn. Every other column keeps its
// name, type, position and values; nothing is filtered or coerced.
func Normalize(raw RawTable, sourceColumn string) (CanonicalCaseTable, error) {
	if err := raw.Validate(); err != nil {
		return CanonicalCaseTable{}, fmt.Errorf("%w: malformed acquired table: %w", types.ErrSchemaMismatch, err)
	}

	idx := raw.Index(sourceColumn)
	if idx < 0 {
		return CanonicalCaseTable{}, fmt.Errorf("%w: column '%s' not found in acquired table (columns: %v)", types.ErrSchemaMismatch, sourceColumn, raw.Names())
	}

	if sourceColumn != RegionColumn && raw.Index(RegionColumn) >= 0 {
		return CanonicalCaseTable{}, fmt.Errorf("%w: cannot rename '%s' to '%s', column already exists", types.ErrSchemaMismatch, sourceColumn, RegionColumn)
	}

	columns := make([]Column, len(raw.Columns))
	for i, c := range raw.Columns {
		columns[i] = copyColumn(c)
	}
	columns[idx].Name = RegionColumn

	return CanonicalCaseTable{Table: Table{Columns: columns}}, nil
}
