package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sightline-obs/sightline-core/internal/config"
	"github.com/sightline-obs/sightline-core/internal/models"
)

// QueryBuilder turns one UnifiedSearchQuery into tenant-scoped, backend-native
// sub-queries. The tenant filter is injected here and appended last so no
// caller-supplied filter can shadow it.
type QueryBuilder struct {
	cfg config.EngineConfig
}

func NewQueryBuilder(cfg config.EngineConfig) *QueryBuilder {
	return &QueryBuilder{cfg: cfg}
}

// Build validates the query and produces one NormalizedSubQuery per selected
// source. cursors carries each backend's resume point decoded from the
// unified continuation cursor; it may be nil on a first page.
func (b *QueryBuilder) Build(
	query *models.UnifiedSearchQuery,
	tenantID string,
	cursors map[models.SourceType]string,
) (map[models.SourceType]*models.NormalizedSubQuery, error) {

	if strings.TrimSpace(tenantID) == "" {
		return nil, &models.UnauthenticatedError{}
	}

	if err := b.validate(query); err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit == 0 {
		limit = b.cfg.DefaultLimit
	}

	out := make(map[models.SourceType]*models.NormalizedSubQuery)
	for _, source := range query.Sources() {
		native, err := b.translate(source, query, tenantID)
		if err != nil {
			return nil, err
		}
		out[source] = &models.NormalizedSubQuery{
			Source:   source,
			TenantID: tenantID,
			Native:   native,
			Start:    query.TimeRange.Start,
			End:      query.TimeRange.End,
			Limit:    limit,
			Cursor:   cursors[source],
		}
	}
	return out, nil
}

func (b *QueryBuilder) validate(query *models.UnifiedSearchQuery) error {
	switch query.Type {
	case models.SourceAll, models.SourceLogs, models.SourceMetrics, models.SourceTraces, "":
	default:
		return &models.ValidationError{Reason: fmt.Sprintf("unknown source type %q", query.Type)}
	}

	if query.TimeRange.Start.IsZero() || query.TimeRange.End.IsZero() {
		return &models.ValidationError{Reason: "time range start and end are required"}
	}
	if !query.TimeRange.Start.Before(query.TimeRange.End) {
		return &models.ValidationError{Reason: "time range start must precede end"}
	}

	if query.Limit < 0 || query.Limit > b.cfg.MaxLimit {
		return &models.ValidationError{
			Reason: fmt.Sprintf("limit must be in [1, %d]", b.cfg.MaxLimit),
		}
	}

	if strings.TrimSpace(query.FreeText) == "" && len(query.Filters) == 0 && query.CorrelationID == "" {
		return &models.ValidationError{Reason: "query needs free text, at least one filter, or a correlation id"}
	}

	for _, f := range query.Filters {
		if f.Field == b.cfg.TenantLabel {
			return &models.InvalidFilterError{Field: f.Field}
		}
		switch f.Operator {
		case models.OpEquals, models.OpContains, models.OpRegex, models.OpRange, models.OpExists:
		default:
			return &models.ValidationError{Reason: fmt.Sprintf("unknown filter operator %q", f.Operator)}
		}
	}

	return nil
}

// translate renders the backend-native query for one source. Filters are
// emitted in caller order; the tenant scope always comes last.
func (b *QueryBuilder) translate(source models.SourceType, query *models.UnifiedSearchQuery, tenantID string) (string, error) {
	switch source {
	case models.SourceLogs:
		return b.toLogQL(query, tenantID), nil
	case models.SourceMetrics:
		return b.toPromQL(query, tenantID), nil
	case models.SourceTraces:
		return b.toTraceQL(query, tenantID), nil
	}
	return "", &models.ValidationError{Reason: fmt.Sprintf("no translator for source %q", source)}
}

// toLogQL builds a Loki query: equality filters become stream selector
// matchers, everything else becomes pipeline stages.
func (b *QueryBuilder) toLogQL(query *models.UnifiedSearchQuery, tenantID string) string {
	var selector []string
	var pipeline []string

	for _, f := range query.Filters {
		switch f.Operator {
		case models.OpEquals:
			selector = append(selector, fmt.Sprintf("%s=%q", f.Field, f.Value))
		case models.OpContains:
			pipeline = append(pipeline, fmt.Sprintf("|= %q", f.Value))
		case models.OpRegex:
			pipeline = append(pipeline, fmt.Sprintf("| %s=~%q", f.Field, f.Value))
		case models.OpExists:
			pipeline = append(pipeline, fmt.Sprintf("| %s!=\"\"", f.Field))
		case models.OpRange:
			lo, hi := splitRange(f.Value)
			pipeline = append(pipeline, fmt.Sprintf("| %s>=%s | %s<=%s", f.Field, lo, f.Field, hi))
		}
	}
	if query.CorrelationID != "" {
		pipeline = append(pipeline, fmt.Sprintf("| trace_id=%q", query.CorrelationID))
	}
	if t := strings.TrimSpace(query.FreeText); t != "" {
		pipeline = append(pipeline, fmt.Sprintf("|= %q", t))
	}

	// Tenant scope is always the final selector matcher.
	selector = append(selector, fmt.Sprintf("%s=%q", b.cfg.TenantLabel, tenantID))

	q := "{" + strings.Join(selector, ", ") + "}"
	if len(pipeline) > 0 {
		q += " " + strings.Join(pipeline, " ")
	}
	return q
}

// toPromQL builds a Prometheus instant-vector selector. Range filters on the
// sample value wrap the selector in comparison expressions.
func (b *QueryBuilder) toPromQL(query *models.UnifiedSearchQuery, tenantID string) string {
	var matchers []string
	var valueRanges [][2]string

	if t := strings.TrimSpace(query.FreeText); t != "" {
		matchers = append(matchers, fmt.Sprintf("__name__=~%q", ".*"+regexEscape(t)+".*"))
	}
	for _, f := range query.Filters {
		switch f.Operator {
		case models.OpEquals:
			matchers = append(matchers, fmt.Sprintf("%s=%q", f.Field, f.Value))
		case models.OpContains:
			matchers = append(matchers, fmt.Sprintf("%s=~%q", f.Field, ".*"+regexEscape(f.Value)+".*"))
		case models.OpRegex:
			matchers = append(matchers, fmt.Sprintf("%s=~%q", f.Field, f.Value))
		case models.OpExists:
			matchers = append(matchers, fmt.Sprintf("%s!=\"\"", f.Field))
		case models.OpRange:
			lo, hi := splitRange(f.Value)
			valueRanges = append(valueRanges, [2]string{lo, hi})
		}
	}
	if query.CorrelationID != "" {
		matchers = append(matchers, fmt.Sprintf("trace_id=%q", query.CorrelationID))
	}

	matchers = append(matchers, fmt.Sprintf("%s=%q", b.cfg.TenantLabel, tenantID))

	q := "{" + strings.Join(matchers, ", ") + "}"
	for _, r := range valueRanges {
		q = fmt.Sprintf("((%s) >= %s) <= %s", q, r[0], r[1])
	}
	return q
}

// toTraceQL builds a Tempo TraceQL expression, conditions joined by &&.
func (b *QueryBuilder) toTraceQL(query *models.UnifiedSearchQuery, tenantID string) string {
	var conds []string

	if query.CorrelationID != "" {
		conds = append(conds, fmt.Sprintf("trace:id = %q", query.CorrelationID))
	}
	if t := strings.TrimSpace(query.FreeText); t != "" {
		conds = append(conds, fmt.Sprintf("name =~ %q", ".*"+regexEscape(t)+".*"))
	}
	for _, f := range query.Filters {
		switch f.Operator {
		case models.OpEquals:
			conds = append(conds, fmt.Sprintf(".%s = %q", f.Field, f.Value))
		case models.OpContains:
			conds = append(conds, fmt.Sprintf(".%s =~ %q", f.Field, ".*"+regexEscape(f.Value)+".*"))
		case models.OpRegex:
			conds = append(conds, fmt.Sprintf(".%s =~ %q", f.Field, f.Value))
		case models.OpExists:
			conds = append(conds, fmt.Sprintf(".%s != nil", f.Field))
		case models.OpRange:
			lo, hi := splitRange(f.Value)
			conds = append(conds, fmt.Sprintf(".%s >= %s && .%s <= %s", f.Field, lo, f.Field, hi))
		}
	}

	conds = append(conds, fmt.Sprintf(".%s = %q", b.cfg.TenantLabel, tenantID))

	return "{ " + strings.Join(conds, " && ") + " }"
}

// splitRange parses a "lo:hi" range filter value. A missing bound falls back
// to an unbounded sentinel the backends accept.
func splitRange(v string) (string, string) {
	parts := strings.SplitN(v, ":", 2)
	lo, hi := "0", "+Inf"
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		lo = strings.TrimSpace(parts[0])
	}
	if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
		hi = strings.TrimSpace(parts[1])
	}
	return lo, hi
}

var regexMeta = []string{`\`, `.`, `+`, `*`, `?`, `(`, `)`, `|`, `[`, `]`, `{`, `}`, `^`, `$`}

// regexEscape makes a literal safe for embedding in an RE2 pattern.
func regexEscape(s string) string {
	for _, m := range regexMeta {
		s = strings.ReplaceAll(s, m, `\`+m)
	}
	return s
}

// sortedSources returns map keys in the fixed merge priority order, for
// deterministic logging and tests.
func sortedSources[T any](m map[models.SourceType]T) []models.SourceType {
	keys := make([]models.SourceType, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return models.SourcePriority(keys[i]) < models.SourcePriority(keys[j])
	})
	return keys
}
