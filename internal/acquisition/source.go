package acquisition

import (
	"context"
	"errors"
	"fmt"
	"nowcast-pipeline/internal/core/table"
	"nowcast-pipeline/internal/core/types"
)

// Source retrieves the raw case count table for a country.
type Source interface {
	Fetch(ctx context.Context, country string) (table.RawTable, error)
}

// fetchError tags a failed fetch as a timeout when the context deadline was
// hit, and as an acquisition failure otherwise.
func fetchError(ctx context.Context, country string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: fetching cases for '%s': %w", types.ErrTimeout, country, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("fetching cases for '%s': %w", country, err)
	}
	return fmt.Errorf("%w: fetching cases for '%s': %w", types.ErrAcquisition, country, err)
}

func objectKey(country string) string {
	return country + ".csv"
}
