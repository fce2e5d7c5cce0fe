package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/sightline-obs/sightline-core/internal/config"
	"github.com/sightline-obs/sightline-core/internal/metrics"
	"github.com/sightline-obs/sightline-core/internal/models"
	"github.com/sightline-obs/sightline-core/pkg/cache"
	"github.com/sightline-obs/sightline-core/pkg/logger"
)

// SearchEngine is the cross-signal search facade: it scopes and translates
// a unified query, fans it out across the backends, and normalizes, merges
// and summarizes whatever came back. All tenant scoping flows through here;
// handlers never touch backend queries directly.
type SearchEngine struct {
	builder      *QueryBuilder
	orchestrator *FanoutOrchestrator
	normalizer   *Normalizer
	merger       *Merger
	facets       *FacetAggregator
	breakers     *BreakerTable
	adapters     map[models.SourceType]BackendAdapter
	cache        cache.Valkey
	cfg          config.EngineConfig
	logger       logger.Logger
}

func NewSearchEngine(
	adapters map[models.SourceType]BackendAdapter,
	breakers *BreakerTable,
	valkey cache.Valkey,
	cfg config.EngineConfig,
	log logger.Logger,
) *SearchEngine {
	return &SearchEngine{
		builder:      NewQueryBuilder(cfg),
		orchestrator: NewFanoutOrchestrator(adapters, breakers, cfg, log),
		normalizer:   NewNormalizer(log),
		merger:       NewMerger(),
		facets:       NewFacetAggregator(cfg),
		breakers:     breakers,
		adapters:     adapters,
		cache:        valkey,
		cfg:          cfg,
		logger:       log,
	}
}

// Search executes one unified search for a tenant. First pages of repeated
// queries are served from the result cache; cursor pages always hit the
// backends because the continuation state lives in the cursor itself.
func (e *SearchEngine) Search(ctx context.Context, tenantID string, query *models.UnifiedSearchQuery) (*models.SearchResult, error) {
	started := time.Now()

	cursors, err := DecodeCursor(query.Cursor)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	subs, err := e.builder.Build(query, tenantID, cursors)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	cacheKey := ""
	if e.cfg.ResultCache.Enabled && query.Cursor == "" {
		cacheKey = searchCacheKey(tenantID, query)
		if data, err := e.cache.GetCachedSearchResult(ctx, cacheKey); err == nil {
			var cached models.SearchResult
			if json.Unmarshal(data, &cached) == nil {
				cached.Cached = true
				metrics.SearchesTotal.WithLabelValues("cached").Inc()
				return &cached, nil
			}
		}
	}

	results, fanoutErr := e.orchestrator.Execute(ctx, subs)
	if fanoutErr != nil {
		metrics.SearchesTotal.WithLabelValues("failed").Inc()
		return nil, fanoutErr
	}

	streams := make(map[models.SourceType][]models.SearchItem, len(results))
	dropped := make(map[models.SourceType]int, len(results))
	positions := make(map[models.SourceType]string)
	var normalized []models.SearchItem
	for source, res := range results {
		if res.Failed() {
			continue
		}
		items, d := e.normalizer.Normalize(res)
		streams[source] = items
		dropped[source] = d
		normalized = append(normalized, items...)
		if res.NextCursor != "" {
			positions[source] = res.NextCursor
		}
	}

	limit := query.Limit
	if limit == 0 {
		limit = e.cfg.DefaultLimit
	}
	items := e.merger.Merge(streams, limit)

	stats := BuildStats(results, items, dropped)
	result := &models.SearchResult{
		Items: items,
		Stats: stats,
		// Facets cover every normalized item, not just the returned page.
		Facets: e.facets.Facets(normalized),
		Cursor: EncodeCursor(positions),
	}

	outcome := "success"
	if stats.Partial {
		outcome = "degraded"
	}
	metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	metrics.SearchDuration.WithLabelValues(string(query.Type)).Observe(time.Since(started).Seconds())
	e.logger.Info("search completed",
		"tenant", tenantID,
		"type", query.Type,
		"matched", stats.Matched,
		"dropped", stats.Dropped,
		"partial", stats.Partial,
		"latency_ms", stats.LatencyMS)

	if cacheKey != "" && !stats.Partial {
		ttl := time.Duration(e.cfg.ResultCache.TTL) * time.Second
		if err := e.cache.CacheSearchResult(ctx, cacheKey, result, ttl); err != nil {
			e.logger.Debug("search result cache write failed", "error", err)
		}
	}
	return result, nil
}

// correlationLookback bounds how far back a correlation lookup reaches when
// the caller gives no explicit range.
const correlationLookback = 24 * time.Hour

// ResolveCorrelation finds every signal that shares a correlation id: the
// trace itself, logs carrying the id, and metrics labeled with it.
func (e *SearchEngine) ResolveCorrelation(ctx context.Context, tenantID, correlationID string) (*models.SearchResult, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return nil, &models.ValidationError{Reason: "correlation id is required"}
	}
	now := time.Now().UTC()
	query := &models.UnifiedSearchQuery{
		Type:          models.SourceAll,
		CorrelationID: correlationID,
		TimeRange: models.TimeRange{
			Start: now.Add(-correlationLookback),
			End:   now,
		},
		Limit: e.cfg.DefaultLimit,
	}
	return e.Search(ctx, tenantID, query)
}

// Health reports the breaker position of every backend.
func (e *SearchEngine) Health() map[models.SourceType]models.BackendHealth {
	return e.breakers.Health()
}

// CheckBackends actively probes each backend's health endpoint. Used by the
// readiness handler; probe failures do not touch breaker state.
func (e *SearchEngine) CheckBackends(ctx context.Context) map[models.SourceType]error {
	out := make(map[models.SourceType]error, len(e.adapters))
	for source, adapter := range e.adapters {
		out[source] = adapter.HealthCheck(ctx)
	}
	return out
}

// searchCacheKey hashes the tenant and the query into the result cache key.
// Tenant id is part of the hash, so tenants can never see each other's
// cached pages.
func searchCacheKey(tenantID string, query *models.UnifiedSearchQuery) string {
	raw, _ := json.Marshal(query)
	sum := sha256.Sum256(append([]byte(tenantID+":"), raw...))
	return hex.EncodeToString(sum[:])
}
