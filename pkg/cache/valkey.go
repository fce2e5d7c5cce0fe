package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sightline-obs/sightline-core/internal/metrics"
	"github.com/sightline-obs/sightline-core/pkg/logger"
)

// Valkey is the caching surface SIGHTLINE-CORE uses for search-result
// caching and per-tenant rate-limit counters.
type Valkey interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Search result caching for repeat dashboard queries
	CacheSearchResult(ctx context.Context, queryHash string, result interface{}, ttl time.Duration) error
	GetCachedSearchResult(ctx context.Context, queryHash string) ([]byte, error)
}

type valkeyImpl struct {
	client *redis.Client
	logger logger.Logger
	ttl    time.Duration
}

// NewValkey connects to a single Valkey/Redis node. Callers that need
// degraded operation without a cache should fall back to NewNoopValkey.
func NewValkey(addr, password string, db int, defaultTTL time.Duration, log logger.Logger) (Valkey, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey at %s: %w", addr, err)
	}

	return &valkeyImpl{
		client: client,
		logger: log,
		ttl:    defaultTTL,
	}, nil
}

func (v *valkeyImpl) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := v.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.CacheRequestsTotal.WithLabelValues("get", "miss").Inc()
		} else {
			metrics.CacheRequestsTotal.WithLabelValues("get", "error").Inc()
		}
		return nil, err
	}
	metrics.CacheRequestsTotal.WithLabelValues("get", "hit").Inc()
	return data, nil
}

func (v *valkeyImpl) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = v.ttl
	}

	var payload []byte
	switch val := value.(type) {
	case []byte:
		payload = val
	case string:
		payload = []byte(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("failed to marshal cache value: %w", err)
		}
		payload = b
	}

	if err := v.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		metrics.CacheRequestsTotal.WithLabelValues("set", "error").Inc()
		return err
	}
	metrics.CacheRequestsTotal.WithLabelValues("set", "hit").Inc()
	return nil
}

func (v *valkeyImpl) Delete(ctx context.Context, key string) error {
	return v.client.Del(ctx, key).Err()
}

func (v *valkeyImpl) CacheSearchResult(ctx context.Context, queryHash string, result interface{}, ttl time.Duration) error {
	return v.Set(ctx, "search_cache:"+queryHash, result, ttl)
}

func (v *valkeyImpl) GetCachedSearchResult(ctx context.Context, queryHash string) ([]byte, error) {
	return v.Get(ctx, "search_cache:"+queryHash)
}
