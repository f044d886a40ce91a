package acquisition

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"nowcast-pipeline/internal/core/table"
	"nowcast-pipeline/internal/storage"

	"github.com/go-resty/resty/v2"
)

// HTTPSource fetches case tables as CSV from the acquisition service:
// GET {baseURL}/{country}?localise=false.
type HTTPSource struct {
	client *resty.Client

	snapshots      storage.Provider
	snapshotBucket string
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		client: resty.New().SetBaseURL(baseURL).SetHeader("Accept", "text/csv"),
	}
}

// WithSnapshots stores every fetched table as {country}.csv in bucket, so the
// data a run used can be replayed through an ObjectStoreSource.
func (s *HTTPSource) WithSnapshots(provider storage.Provider, bucket string) *HTTPSource {
	s.snapshots = provider
	s.snapshotBucket = bucket
	return s
}

func (s *HTTPSource) Fetch(ctx context.Context, country string) (table.RawTable, error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("localise", "false").
		Get("/" + url.PathEscape(country))
	if err != nil {
		slog.Error("error fetching cases", "country", country, "error", err)
		return table.RawTable{}, fetchError(ctx, country, err)
	}

	if !res.IsSuccess() {
		slog.Error("acquisition service returned error", "country", country, "status_code", res.StatusCode(), "body", res.String())
		return table.RawTable{}, fetchError(ctx, country, fmt.Errorf("received status %d", res.StatusCode()))
	}

	body := res.Body()

	raw, err := table.ReadCSV(bytes.NewReader(body))
	if err != nil {
		return table.RawTable{}, fetchError(ctx, country, fmt.Errorf("error parsing response: %w", err))
	}

	if s.snapshots != nil {
		if err := s.snapshots.PutObject(ctx, s.snapshotBucket, objectKey(country), bytes.NewReader(body)); err != nil {
			// The fetched table is still usable.
			slog.Warn("error saving case table snapshot", "country", country, "error", err)
		}
	}

	slog.Info("fetched cases", "country", country, "columns", raw.Names(), "rows", raw.NumRows())

	return raw, nil
}
