package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vaultshop/internal/config"
)

var cacheMeter = otel.Meter("github.com/Additional-Code/vaultshop/cache")

// Store represents a generic cache backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrCacheMiss indicates the key is absent from the cache.
var ErrCacheMiss = errors.New("cache miss")

// Module provides the cache store to the Fx graph.
var Module = fx.Provide(NewStore)

// NewStore initialises the configured cache store (redis or noop). Redis
// keys are namespaced with CACHE_KEY_PREFIX and lookups are counted.
func NewStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Cache.Driver {
	case "noop":
		if logger != nil {
			logger.Info("cache disabled; using noop store")
		}
		return NewNoop(), nil
	case "redis":
		store, err := newRedisStore(lc, cfg.Cache, logger)
		if err != nil {
			return nil, err
		}
		return Instrument(WithPrefix(store, cfg.Cache.KeyPrefix), "redis")
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

// NewNoop returns a store that never holds anything.
func NewNoop() Store {
	return noopStore{}
}

type noopStore struct{}

func (noopStore) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (noopStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (noopStore) Delete(context.Context, string) error {
	return nil
}

// WithPrefix namespaces every key of next, so several deployments can
// share one redis database.
func WithPrefix(next Store, prefix string) Store {
	if prefix == "" {
		return next
	}
	return prefixedStore{next: next, prefix: prefix}
}

type prefixedStore struct {
	next   Store
	prefix string
}

func (p prefixedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrCacheMiss
	}
	return p.next.Get(ctx, p.prefix+key)
}

func (p prefixedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key is required")
	}
	return p.next.Set(ctx, p.prefix+key, value, ttl)
}

func (p prefixedStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return p.next.Delete(ctx, p.prefix+key)
}

// Instrument records hits, misses and errors of next.
func Instrument(next Store, backend string) (Store, error) {
	lookups, err := cacheMeter.Int64Counter("vaultshop.cache.lookups",
		metric.WithDescription("Cache lookups by result"))
	if err != nil {
		return nil, err
	}
	return instrumentedStore{next: next, lookups: lookups, backend: attribute.String("backend", backend)}, nil
}

type instrumentedStore struct {
	next    Store
	lookups metric.Int64Counter
	backend attribute.KeyValue
}

func (s instrumentedStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.next.Get(ctx, key)
	result := "hit"
	switch {
	case errors.Is(err, ErrCacheMiss):
		result = "miss"
	case err != nil:
		result = "error"
	}
	s.lookups.Add(ctx, 1, metric.WithAttributes(s.backend, attribute.String("result", result)))
	return v, err
}

func (s instrumentedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.next.Set(ctx, key, value, ttl)
}

func (s instrumentedStore) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}
