package acquisition

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"nowcast-pipeline/internal/core/table"
	"nowcast-pipeline/internal/storage"
)

// ObjectStoreSource reads case tables stored as {bucket}/{country}.csv.
type ObjectStoreSource struct {
	provider storage.Provider
	bucket   string
}

func NewObjectStoreSource(provider storage.Provider, bucket string) *ObjectStoreSource {
	return &ObjectStoreSource{provider: provider, bucket: bucket}
}

func (s *ObjectStoreSource) Fetch(ctx context.Context, country string) (table.RawTable, error) {
	data, err := s.provider.GetObject(ctx, s.bucket, objectKey(country))
	if err != nil {
		return table.RawTable{}, fetchError(ctx, country, err)
	}

	raw, err := table.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return table.RawTable{}, fetchError(ctx, country, fmt.Errorf("error parsing %s/%s: %w", s.bucket, objectKey(country), err))
	}

	slog.Info("loaded cases", "country", country, "bucket", s.bucket, "rows", raw.NumRows())

	return raw, nil
}
