package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sightline-obs/sightline-core/pkg/logger"
)

// noopValkey is an in-memory, process-local fallback that satisfies Valkey
// when the external cache is unavailable. Best-effort only: entries expire
// lazily, nothing is shared across replicas and everything is lost on
// restart.
type noopValkey struct {
	m      map[string]noopEntry
	mu     sync.RWMutex
	logger logger.Logger
}

type noopEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewNoopValkey(log logger.Logger) Valkey {
	log.Warn("Valkey unavailable; using in-memory fallback cache")
	return &noopValkey{m: make(map[string]noopEntry), logger: log}
}

func (n *noopValkey) Get(ctx context.Context, key string) ([]byte, error) {
	n.mu.RLock()
	e, ok := n.m[key]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		n.mu.Lock()
		delete(n.m, key)
		n.mu.Unlock()
		return nil, fmt.Errorf("key not found: %s", key)
	}
	return e.data, nil
}

func (n *noopValkey) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		jb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b = jb
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	n.mu.Lock()
	n.m[key] = noopEntry{data: b, expiresAt: expiresAt}
	n.mu.Unlock()
	return nil
}

func (n *noopValkey) Delete(ctx context.Context, key string) error {
	n.mu.Lock()
	delete(n.m, key)
	n.mu.Unlock()
	return nil
}

func (n *noopValkey) CacheSearchResult(ctx context.Context, queryHash string, result interface{}, ttl time.Duration) error {
	return n.Set(ctx, "search_cache:"+queryHash, result, ttl)
}

func (n *noopValkey) GetCachedSearchResult(ctx context.Context, queryHash string) ([]byte, error) {
	return n.Get(ctx, "search_cache:"+queryHash)
}
