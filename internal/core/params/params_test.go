package params_test

import (
	"context"
	"io"
	"nowcast-pipeline/internal/core/params"
	"nowcast-pipeline/internal/core/types"
	"nowcast-pipeline/internal/registry"
	"nowcast-pipeline/internal/storage"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resourceBucket = "resources"

type countingProvider struct {
	storage.Provider
	gets atomic.Int32
}

func (p *countingProvider) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	p.gets.Add(1)
	return p.Provider.GetObject(ctx, bucket, key)
}

func setupProvider(t *testing.T, objects map[string]string) *countingProvider {
	t.Helper()
	local, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)
	for key, content := range objects {
		require.NoError(t, local.PutObject(context.Background(), resourceBucket, key, strings.NewReader(content)))
	}
	return &countingProvider{Provider: local}
}

func belgium() registry.Descriptor {
	return registry.Descriptor{
		Name:                 "Belgium",
		Country:              "belgium",
		RegionScale:          registry.Region,
		CasesSubregionSource: "region_level_1",
		IncubationPeriod:     types.FixedDelay(5),
		ReportingDelay:       types.FixedDelay(3),
		TargetFolder:         "/out/belgium",
		EngineOptions:        map[string]any{"horizon": 14, "stan": map[string]any{"chains": 4}},
	}
}

func TestExtract(t *testing.T) {
	provider := setupProvider(t, map[string]string{
		"covid.json": `{"dist": "gamma", "mean": 3.6, "mean_sd": 0.7, "sd": 3.1, "sd_sd": 0.8, "max": 30}`,
	})
	extractor := params.NewExtractor(params.NewGenerationTimeStore(provider, resourceBucket, "covid"))

	desc := belgium()
	p, err := extractor.Extract(context.Background(), desc)
	require.NoError(t, err)

	assert.Equal(t, types.FixedDelay(5), p.IncubationPeriod)
	assert.Equal(t, types.FixedDelay(3), p.ReportingDelay)
	assert.Equal(t, types.Delay{Family: types.Gamma, Mean: 3.6, MeanSD: 0.7, SD: 3.1, SDSD: 0.8, Max: 30}, p.GenerationTime)
	assert.Equal(t, "/out/belgium", p.TargetFolder)
	assert.Equal(t, desc.EngineOptions, p.EngineOptions)
}

func TestExtractUsesDescriptorReference(t *testing.T) {
	provider := setupProvider(t, map[string]string{
		"covid.json":     `{"dist": "gamma", "mean": 3.6, "sd": 3.1}`,
		"influenza.json": `{"dist": "lognormal", "mean": 1.0, "sd": 0.5}`,
	})
	extractor := params.NewExtractor(params.NewGenerationTimeStore(provider, resourceBucket, "covid"))

	desc := belgium()
	desc.GenerationTimeRef = "influenza"
	p, err := extractor.Extract(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, types.Lognormal, p.GenerationTime.Family)
	assert.Equal(t, 1.0, p.GenerationTime.Mean)
}

func TestExtractMissingResource(t *testing.T) {
	provider := setupProvider(t, map[string]string{
		"broken.json":   `{"dist": "gamma", "mean": `,
		"negative.json": `{"dist": "gamma", "mean": -1, "sd": 1}`,
	})
	store := params.NewGenerationTimeStore(provider, resourceBucket, "")
	extractor := params.NewExtractor(store)

	for _, ref := range []string{"", "missing", "broken", "negative"} {
		t.Run(ref, func(t *testing.T) {
			desc := belgium()
			desc.GenerationTimeRef = ref
			_, err := extractor.Extract(context.Background(), desc)
			assert.ErrorIs(t, err, types.ErrMissingResource)
			assert.Equal(t, types.MissingResourceError, types.KindOf(err))
		})
	}
}

func TestGenerationTimeStoreCaches(t *testing.T) {
	provider := setupProvider(t, map[string]string{
		"covid.json": `{"mean": 3.6, "sd": 3.1}`,
	})
	store := params.NewGenerationTimeStore(provider, resourceBucket, "covid")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			delay, err := store.Get(context.Background(), "")
			assert.NoError(t, err)
			assert.Equal(t, types.Gamma, delay.Family, "family defaults to gamma")
		}()
	}
	wg.Wait()

	delay, err := store.Get(context.Background(), "covid.json")
	require.NoError(t, err)
	assert.Equal(t, 3.6, delay.Mean)

	assert.Equal(t, int32(1), provider.gets.Load(), "'covid' and 'covid.json' name the same resource")
}

func TestGenerationTimeStoreRetriesFailures(t *testing.T) {
	provider := setupProvider(t, nil)
	store := params.NewGenerationTimeStore(provider, resourceBucket, "covid")

	_, err := store.Get(context.Background(), "")
	require.ErrorIs(t, err, types.ErrMissingResource)

	require.NoError(t, provider.PutObject(context.Background(), resourceBucket, "covid.json", io.NopCloser(strings.NewReader(`{"mean": 4, "sd": 2}`))))

	delay, err := store.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 4.0, delay.Mean)
	assert.Equal(t, int32(2), provider.gets.Load())
}

type blockingProvider struct {
	storage.Provider
}

func (blockingProvider) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGenerationTimeStoreLoadTimeout(t *testing.T) {
	store := params.NewGenerationTimeStore(blockingProvider{}, resourceBucket, "covid").WithLoadTimeout(20 * time.Millisecond)

	_, err := store.Get(context.Background(), "")
	require.ErrorIs(t, err, types.ErrTimeout)
	assert.Equal(t, types.TimeoutError, types.KindOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Get(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.CanceledError, types.KindOf(err))
}
