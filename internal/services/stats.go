package services

import (
	"sort"

	"github.com/sightline-obs/sightline-core/internal/config"
	"github.com/sightline-obs/sightline-core/internal/models"
)

// FacetAggregator computes value-count buckets over the configured facet
// fields. Counting happens on every normalized item before the limit is
// applied, so the buckets describe the full matched set rather than the one
// page being returned.
type FacetAggregator struct {
	fields []string
	topN   int
}

func NewFacetAggregator(cfg config.EngineConfig) *FacetAggregator {
	return &FacetAggregator{fields: cfg.FacetFields, topN: cfg.FacetTopN}
}

// Facets buckets the items by each configured field. Items with no value for
// a field do not contribute to that facet.
func (a *FacetAggregator) Facets(items []models.SearchItem) map[string][]models.FacetValue {
	if len(a.fields) == 0 {
		return nil
	}
	out := make(map[string][]models.FacetValue, len(a.fields))
	for _, field := range a.fields {
		counts := make(map[string]int)
		for _, item := range items {
			if v := facetValue(item, field); v != "" {
				counts[v]++
			}
		}
		if len(counts) == 0 {
			continue
		}
		buckets := make([]models.FacetValue, 0, len(counts))
		for v, c := range counts {
			buckets = append(buckets, models.FacetValue{Value: v, Count: c})
		}
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].Count != buckets[j].Count {
				return buckets[i].Count > buckets[j].Count
			}
			return buckets[i].Value < buckets[j].Value
		})
		if a.topN > 0 && len(buckets) > a.topN {
			buckets = buckets[:a.topN]
		}
		out[field] = buckets
	}
	return out
}

// facetValue resolves a facet field against the item envelope first, then
// the source-specific label maps.
func facetValue(item models.SearchItem, field string) string {
	switch field {
	case "service":
		return item.Service
	case "source":
		return string(item.Source)
	case "level":
		if item.Log != nil {
			return item.Log.Level
		}
		return ""
	}
	if item.Log != nil {
		if v := item.Log.Labels[field]; v != "" {
			return v
		}
	}
	if item.Metric != nil {
		if v := item.Metric.Labels[field]; v != "" {
			return v
		}
	}
	if item.Trace != nil {
		if v := item.Trace.Tags[field]; v != "" {
			return v
		}
	}
	return ""
}

// BuildStats assembles the per-search statistics. Matched and the per-source
// counts describe the final merged and limited page; scanned, dropped and
// latency come from the backend calls themselves. Latency is the wall-clock
// time of the slowest source that contributed items.
func BuildStats(results map[models.SourceType]*models.AdapterResult, merged []models.SearchItem, dropped map[models.SourceType]int) models.SearchStats {
	stats := models.SearchStats{
		Matched:      len(merged),
		SourceCounts: make(map[models.SourceType]int, len(results)),
	}
	for _, item := range merged {
		stats.SourceCounts[item.Source]++
	}
	for source, res := range results {
		if res.Failed() {
			stats.Partial = true
			stats.Failures = append(stats.Failures, models.SourceFailure{
				Source: source,
				Reason: string(res.Outcome),
				Detail: res.Err,
			})
			continue
		}
		stats.Scanned += res.Scanned
		stats.Dropped += dropped[source]
		if res.DurationMS > stats.LatencyMS {
			stats.LatencyMS = res.DurationMS
		}
	}
	sort.Slice(stats.Failures, func(i, j int) bool {
		return models.SourcePriority(stats.Failures[i].Source) < models.SourcePriority(stats.Failures[j].Source)
	})
	return stats
}
