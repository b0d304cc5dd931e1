package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"
	"golang.org/x/sync/singleflight"

	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
)

// Backend is an optional shared tier behind the in-process map (redis in production).
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is a TTL cache with per-key load deduplication.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	prefix  string
	backend Backend
	logger  *logging.Logger
	flight  singleflight.Group
	now     func() time.Time
}

type Option[V any] func(*Store[V])

func WithBackend[V any](backend Backend, prefix string) Option[V] {
	return func(s *Store[V]) {
		s.backend = backend
		s.prefix = strings.TrimSpace(prefix)
	}
}

func WithLogger[V any](logger *logging.Logger) Option[V] {
	return func(s *Store[V]) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStore[V any](ttl time.Duration, opts ...Option[V]) *Store[V] {
	s := &Store[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		logger:  logging.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		if s.ttl <= 0 || e.expiresAt.After(s.now()) {
			return e.value, true
		}
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
	}

	if s.backend == nil {
		return zero, false
	}

	raw, found, err := s.backend.Get(ctx, s.prefix+key)
	if err != nil {
		s.logger.WarnContext(ctx, "cache backend get failed", "key", key, "error", err)
		return zero, false
	}
	if !found {
		return zero, false
	}

	var value V
	if err := sonic.Unmarshal(raw, &value); err != nil {
		s.logger.WarnContext(ctx, "cache backend payload undecodable", "key", key, "error", err)
		return zero, false
	}
	s.setLocal(key, value)
	return value, true
}

func (s *Store[V]) Set(ctx context.Context, key string, value V) {
	if key == "" {
		return
	}
	s.setLocal(key, value)

	if s.backend == nil {
		return
	}
	raw, err := sonic.Marshal(value)
	if err != nil {
		s.logger.WarnContext(ctx, "cache value unencodable", "key", key, "error", err)
		return
	}
	if err := s.backend.Set(ctx, s.prefix+key, raw, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "cache backend set failed", "key", key, "error", err)
	}
}

func (s *Store[V]) setLocal(key string, value V) {
	expiresAt := time.Time{}
	if s.ttl > 0 {
		expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry[V]{value: value, expiresAt: expiresAt}
	s.mu.Unlock()
}

func (s *Store[V]) Delete(ctx context.Context, key string) {
	if key == "" {
		return
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.Delete(ctx, s.prefix+key); err != nil {
			s.logger.WarnContext(ctx, "cache backend delete failed", "key", key, "error", err)
		}
	}
}

// GetOrLoad returns the cached value or runs loader once per key across
// concurrent callers. Loader errors are never cached.
func (s *Store[V]) GetOrLoad(ctx context.Context, key string, loader func(context.Context) (V, error)) (V, error) {
	var zero V
	if loader == nil {
		return zero, fmt.Errorf("loader is required")
	}
	if key == "" {
		return loader(ctx)
	}

	if value, ok := s.Get(ctx, key); ok {
		return value, nil
	}

	out, err, _ := s.flight.Do(key, func() (any, error) {
		if cached, ok := s.Get(ctx, key); ok {
			return cached, nil
		}

		loaded, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		s.Set(ctx, key, loaded)
		return loaded, nil
	})
	if err != nil {
		return zero, err
	}

	value, ok := out.(V)
	if !ok {
		return zero, fmt.Errorf("unexpected cached value type %T", out)
	}
	return value, nil
}
