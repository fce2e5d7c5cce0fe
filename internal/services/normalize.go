package services

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sightline-obs/sightline-core/internal/metrics"
	"github.com/sightline-obs/sightline-core/internal/models"
	"github.com/sightline-obs/sightline-core/pkg/logger"
)

// Normalizer converts backend-native records into the unified SearchItem
// envelope. Records that cannot be normalized (missing or unparseable
// timestamp, trace without a trace id) are dropped and counted, never
// passed through half-formed.
type Normalizer struct {
	logger logger.Logger
}

func NewNormalizer(log logger.Logger) *Normalizer {
	return &Normalizer{logger: log}
}

// Normalize converts one adapter result. The second return is the number of
// records dropped.
func (n *Normalizer) Normalize(res *models.AdapterResult) ([]models.SearchItem, int) {
	items := make([]models.SearchItem, 0, len(res.Records))
	dropped := 0
	for _, rec := range res.Records {
		var (
			item models.SearchItem
			ok   bool
		)
		switch res.Source {
		case models.SourceLogs:
			item, ok = n.normalizeLog(rec)
		case models.SourceMetrics:
			item, ok = n.normalizeMetric(rec)
		case models.SourceTraces:
			item, ok = n.normalizeTrace(rec)
		}
		if !ok {
			dropped++
			continue
		}
		items = append(items, item)
	}
	if dropped > 0 {
		metrics.DroppedRecordsTotal.WithLabelValues(string(res.Source)).Add(float64(dropped))
		n.logger.Debug("dropped records during normalization",
			"backend", res.Source, "dropped", dropped)
	}
	return items, dropped
}

func (n *Normalizer) normalizeLog(rec models.RawRecord) (models.SearchItem, bool) {
	tsStr, _ := rec["timestamp"].(string)
	ns, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil || ns <= 0 {
		return models.SearchItem{}, false
	}
	line, _ := rec["line"].(string)
	labels, _ := rec["labels"].(map[string]string)

	ts := time.Unix(0, ns).UTC()
	item := models.SearchItem{
		ID:            fmt.Sprintf("log-%d-%d", ns, hashString(line)),
		Timestamp:     ts,
		Source:        models.SourceLogs,
		Service:       serviceFromLabels(labels),
		CorrelationID: correlationFromLabels(labels),
		Log: &models.LogItem{
			Message: line,
			Level:   levelFromLabels(labels, line),
			Labels:  labels,
		},
	}
	return item, true
}

func (n *Normalizer) normalizeMetric(rec models.RawRecord) (models.SearchItem, bool) {
	sec, ok := rec["timestamp"].(float64)
	if !ok || sec <= 0 {
		return models.SearchItem{}, false
	}
	labels, _ := rec["metric"].(map[string]string)
	valStr, _ := rec["value"].(string)
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return models.SearchItem{}, false
	}

	name := labels["__name__"]
	ts := time.Unix(int64(sec), int64((sec-float64(int64(sec)))*1e9)).UTC()
	item := models.SearchItem{
		ID:            fmt.Sprintf("metric-%s-%d-%d", name, ts.UnixNano(), hashLabels(labels)),
		Timestamp:     ts,
		Source:        models.SourceMetrics,
		Service:       serviceFromLabels(labels),
		CorrelationID: correlationFromLabels(labels),
		Metric: &models.MetricItem{
			Name:   name,
			Value:  val,
			Unit:   "",
			Type:   metricTypeFromName(name),
			Labels: labels,
		},
	}
	return item, true
}

func (n *Normalizer) normalizeTrace(rec models.RawRecord) (models.SearchItem, bool) {
	traceID, _ := rec["traceID"].(string)
	if traceID == "" {
		return models.SearchItem{}, false
	}
	tsStr, _ := rec["startTimeUnixNano"].(string)
	ns, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil || ns <= 0 {
		return models.SearchItem{}, false
	}

	spanID, _ := rec["spanID"].(string)
	attrs, _ := rec["attributes"].(map[string]string)
	service, _ := rec["rootServiceName"].(string)
	operation, _ := rec["rootTraceName"].(string)
	durationMs, _ := rec["durationMs"].(int)

	id := spanID
	if id == "" {
		id = traceID
	}
	item := models.SearchItem{
		ID:            "trace-" + id,
		Timestamp:     time.Unix(0, ns).UTC(),
		Source:        models.SourceTraces,
		Service:       service,
		CorrelationID: traceID,
		Trace: &models.TraceItem{
			TraceID:   traceID,
			SpanID:    spanID,
			Operation: operation,
			Duration:  time.Duration(durationMs) * time.Millisecond,
			Status:    spanStatusFromAttrs(attrs),
			Tags:      attrs,
		},
	}
	return item, true
}

func serviceFromLabels(labels map[string]string) string {
	for _, key := range []string{"service", "service_name", "job", "app"} {
		if v := labels[key]; v != "" {
			return v
		}
	}
	return ""
}

func correlationFromLabels(labels map[string]string) string {
	for _, key := range []string{"trace_id", "traceID", "correlation_id"} {
		if v := labels[key]; v != "" {
			return v
		}
	}
	return ""
}

// levelFromLabels prefers an explicit level label and falls back to sniffing
// the message, defaulting to info.
func levelFromLabels(labels map[string]string, line string) string {
	if v := labels["level"]; v != "" {
		return strings.ToLower(v)
	}
	if v := labels["severity"]; v != "" {
		return strings.ToLower(v)
	}
	lower := strings.ToLower(line)
	for _, lvl := range []string{"fatal", "error", "warn", "debug"} {
		if strings.Contains(lower, lvl) {
			return lvl
		}
	}
	return "info"
}

// metricTypeFromName applies the Prometheus naming conventions. Anything not
// recognizably a counter or histogram is treated as a gauge.
func metricTypeFromName(name string) models.MetricType {
	switch {
	case strings.HasSuffix(name, "_total") || strings.HasSuffix(name, "_count"):
		return models.MetricCounter
	case strings.HasSuffix(name, "_bucket") || strings.HasSuffix(name, "_sum"):
		return models.MetricHistogram
	default:
		return models.MetricGauge
	}
}

func spanStatusFromAttrs(attrs map[string]string) models.SpanStatus {
	switch strings.ToLower(attrs["status"]) {
	case "error", "status_error":
		return models.SpanError
	case "timeout", "deadline_exceeded":
		return models.SpanTimeout
	default:
		return models.SpanOK
	}
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func hashLabels(labels map[string]string) uint32 {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := fnv.New32a()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(labels[k]))
		h.Write([]byte{';'})
	}
	return h.Sum32()
}
