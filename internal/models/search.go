package models

import (
	"time"
)

// SourceType identifies which backend a query or item belongs to.
type SourceType string

const (
	SourceLogs    SourceType = "logs"
	SourceMetrics SourceType = "metrics"
	SourceTraces  SourceType = "traces"
	SourceAll     SourceType = "all"
)

// AllSources lists the concrete backends "all" expands to, in the fixed
// priority order used by the ranker (traces > logs > metrics).
var AllSources = []SourceType{SourceTraces, SourceLogs, SourceMetrics}

// SourcePriority returns the rank of a source for tie-breaking during the
// merge. Lower is higher priority.
func SourcePriority(s SourceType) int {
	switch s {
	case SourceTraces:
		return 0
	case SourceLogs:
		return 1
	case SourceMetrics:
		return 2
	}
	return 3
}

// FilterOperator is the comparison applied by a structured search filter.
type FilterOperator string

const (
	OpEquals   FilterOperator = "equals"
	OpContains FilterOperator = "contains"
	OpRegex    FilterOperator = "regex"
	OpRange    FilterOperator = "range"
	OpExists   FilterOperator = "exists"
)

// SearchFilter is one structured filter of a unified query.
type SearchFilter struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value,omitempty"`
}

// TimeRange bounds a search. Both ends are required and Start must precede End.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// UnifiedSearchQuery is the caller-facing query. The tenant id is never part
// of it; tenant scoping is injected from the authenticated request context.
type UnifiedSearchQuery struct {
	FreeText      string         `json:"free_text,omitempty"`
	Type          SourceType     `json:"type"`
	TimeRange     TimeRange      `json:"time_range"`
	Filters       []SearchFilter `json:"filters,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Cursor        string         `json:"cursor,omitempty"`
	Limit         int            `json:"limit"`
}

// Sources expands the type selector into the concrete backend list.
func (q *UnifiedSearchQuery) Sources() []SourceType {
	if q.Type == SourceAll || q.Type == "" {
		out := make([]SourceType, len(AllSources))
		copy(out, AllSources)
		return out
	}
	return []SourceType{q.Type}
}

// NormalizedSubQuery is the per-backend query produced by the tenant-scoped
// query builder. Native holds the already-translated backend query (LogQL,
// PromQL or Tempo search expression); Cursor is that backend's own
// continuation token.
type NormalizedSubQuery struct {
	Source   SourceType `json:"source"`
	TenantID string     `json:"tenant_id"`
	Native   string     `json:"native"`
	Start    time.Time  `json:"start"`
	End      time.Time  `json:"end"`
	Limit    int        `json:"limit"`
	Cursor   string     `json:"cursor,omitempty"`
}

// SearchItem is the normalized result envelope. Exactly one of Log, Metric
// or Trace is set, discriminated by Source.
type SearchItem struct {
	ID            string      `json:"id"`
	Timestamp     time.Time   `json:"timestamp"`
	Source        SourceType  `json:"source"`
	Service       string      `json:"service,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Log           *LogItem    `json:"log,omitempty"`
	Metric        *MetricItem `json:"metric,omitempty"`
	Trace         *TraceItem  `json:"trace,omitempty"`
}

// LogItem carries the log-specific fields of a SearchItem.
type LogItem struct {
	Message string            `json:"message"`
	Level   string            `json:"level"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// MetricType distinguishes the Prometheus metric families we normalize.
type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricHistogram MetricType = "histogram"
)

// MetricItem carries the metric-specific fields of a SearchItem.
type MetricItem struct {
	Name   string            `json:"name"`
	Value  float64           `json:"value"`
	Unit   string            `json:"unit"`
	Type   MetricType        `json:"metric_type"`
	Labels map[string]string `json:"labels,omitempty"`
}

// SpanStatus is the outcome recorded on a trace span.
type SpanStatus string

const (
	SpanOK      SpanStatus = "ok"
	SpanError   SpanStatus = "error"
	SpanTimeout SpanStatus = "timeout"
)

// TraceItem carries the trace-specific fields of a SearchItem.
type TraceItem struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	Operation string            `json:"operation"`
	Duration  time.Duration     `json:"duration_ns"`
	Status    SpanStatus        `json:"status"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// SourceFailure records why a backend contributed nothing to a response.
type SourceFailure struct {
	Source SourceType `json:"source"`
	Reason string     `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// SearchStats summarizes one search execution.
type SearchStats struct {
	Matched      int                `json:"matched"`
	Scanned      int                `json:"scanned"`
	Dropped      int                `json:"dropped"`
	LatencyMS    int64              `json:"latency_ms"`
	SourceCounts map[SourceType]int `json:"source_counts"`
	Partial      bool               `json:"partial"`
	Failures     []SourceFailure    `json:"failures,omitempty"`
}

// FacetValue is one value bucket of a facet field.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// SearchResult is the unified response of the search engine.
type SearchResult struct {
	Items  []SearchItem            `json:"items"`
	Stats  SearchStats             `json:"stats"`
	Facets map[string][]FacetValue `json:"facets,omitempty"`
	Cursor string                  `json:"cursor,omitempty"`
	Cached bool                    `json:"cached"`
}

// AdapterOutcome classifies one backend call. Expected failures are values,
// not Go errors: the orchestrator aggregates them instead of unwinding.
type AdapterOutcome string

const (
	OutcomeSuccess     AdapterOutcome = "success"
	OutcomeTimeout     AdapterOutcome = "timeout"
	OutcomeTransport   AdapterOutcome = "transport_error"
	OutcomeQueryError  AdapterOutcome = "query_error"
	OutcomeCircuitOpen AdapterOutcome = "circuit_open"
)

// RawRecord is one backend-native record before normalization.
type RawRecord map[string]any

// AdapterResult is the typed result of a single backend execution.
type AdapterResult struct {
	Source     SourceType     `json:"source"`
	Outcome    AdapterOutcome `json:"outcome"`
	Records    []RawRecord    `json:"records,omitempty"`
	Scanned    int            `json:"scanned"`
	NextCursor string         `json:"next_cursor,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Err        string         `json:"error,omitempty"`
}

// Failed reports whether the call produced no usable records.
func (r *AdapterResult) Failed() bool {
	return r.Outcome != OutcomeSuccess
}

// BreakerState is the circuit breaker position for one backend.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// BackendHealth is a point-in-time snapshot of one backend's breaker. The
// table of these is created at process start and mutated only by the breaker
// itself on call outcomes.
type BackendHealth struct {
	Source       SourceType   `json:"source"`
	State        BreakerState `json:"state"`
	Failures     int          `json:"consecutive_failures"`
	LastFailure  time.Time    `json:"last_failure,omitempty"`
	OpenUntil    time.Time    `json:"open_until,omitempty"`
	TotalTrips   int64        `json:"total_trips"`
	LastObserved time.Time    `json:"last_observed"`
}
