package params

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"nowcast-pipeline/internal/core/types"
	"nowcast-pipeline/internal/core/utils"
	"nowcast-pipeline/internal/storage"
	"strings"
	"sync"
	"time"
)

const maxConcurrentResources = 1024

// GenerationTimeStore loads generation time distributions stored as JSON
// objects named <ref>.json in a bucket. Loaded distributions are cached for
// the lifetime of the store, failed loads are retried on the next request.
type GenerationTimeStore struct {
	provider   storage.Provider
	bucket     string
	defaultRef string

	// Zero disables the timeout.
	loadTimeout time.Duration

	// Keyed by resourceKey, so "covid" and "covid.json" share an entry.
	loading *utils.MutexMap

	mu    sync.RWMutex
	cache map[string]types.Delay
}

func NewGenerationTimeStore(provider storage.Provider, bucket, defaultRef string) *GenerationTimeStore {
	return &GenerationTimeStore{
		provider:   provider,
		bucket:     bucket,
		defaultRef: defaultRef,
		loading:    utils.NewMutexMap(maxConcurrentResources),
		cache:      make(map[string]types.Delay),
	}
}

// WithLoadTimeout bounds every storage read of a resource.
func (s *GenerationTimeStore) WithLoadTimeout(timeout time.Duration) *GenerationTimeStore {
	s.loadTimeout = timeout
	return s
}

func resourceKey(ref string) string {
	return strings.TrimSuffix(ref, ".json") + ".json"
}

// Get returns the distribution for ref, or the shared default when ref is empty.
func (s *GenerationTimeStore) Get(ctx context.Context, ref string) (types.Delay, error) {
	if ref == "" {
		ref = s.defaultRef
	}
	if ref == "" {
		return types.Delay{}, fmt.Errorf("%w: no generation time reference and no default configured", types.ErrMissingResource)
	}

	key := resourceKey(ref)
	if delay, ok := s.cached(key); ok {
		return delay, nil
	}

	var delay types.Delay
	// Concurrent runs asking for the same resource share one download.
	err := s.loading.WithLock(key, func() error {
		if cached, ok := s.cached(key); ok {
			delay = cached
			return nil
		}

		loaded, err := s.load(ctx, ref)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.cache[key] = loaded
		s.mu.Unlock()

		delay = loaded
		return nil
	})
	if err != nil {
		return types.Delay{}, err
	}
	return delay, nil
}

func (s *GenerationTimeStore) cached(key string) (types.Delay, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	delay, ok := s.cache[key]
	return delay, ok
}

func (s *GenerationTimeStore) load(ctx context.Context, ref string) (types.Delay, error) {
	key := resourceKey(ref)

	loadCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.loadTimeout > 0 {
		loadCtx, cancel = context.WithTimeout(ctx, s.loadTimeout)
	}
	defer cancel()

	data, err := s.provider.GetObject(loadCtx, s.bucket, key)
	if err != nil {
		slog.Error("error loading generation time", "bucket", s.bucket, "key", key, "error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.Delay{}, fmt.Errorf("loading generation time '%s' stopped: %w", ref, ctxErr)
		}
		if errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
			return types.Delay{}, fmt.Errorf("%w: loading generation time '%s' exceeded %s: %w", types.ErrTimeout, ref, s.loadTimeout, err)
		}
		return types.Delay{}, fmt.Errorf("%w: generation time '%s': %w", types.ErrMissingResource, ref, err)
	}

	var delay types.Delay
	if err := json.Unmarshal(data, &delay); err != nil {
		return types.Delay{}, fmt.Errorf("%w: generation time '%s' is not valid json: %w", types.ErrMissingResource, ref, err)
	}
	if delay.Family == "" {
		delay.Family = types.Gamma
	}
	if err := delay.Validate(); err != nil {
		return types.Delay{}, fmt.Errorf("%w: generation time '%s' is invalid: %w", types.ErrMissingResource, ref, err)
	}

	slog.Info("loaded generation time", "ref", ref, "delay", delay.String())

	return delay, nil
}
