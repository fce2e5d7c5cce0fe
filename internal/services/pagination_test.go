package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sightline-obs/sightline-core/internal/config"
	"github.com/sightline-obs/sightline-core/internal/models"
	"github.com/sightline-obs/sightline-core/pkg/logger"
)

// pagedPrometheus serves a fixed bank of one-sample-per-second points,
// newest at base, and honors the start and end query parameters the way
// query_range does: both bounds inclusive.
func pagedPrometheus(t *testing.T, base time.Time, n int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query_range" {
			http.NotFound(w, r)
			return
		}
		start, _ := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
		end, _ := strconv.ParseInt(r.URL.Query().Get("end"), 10, 64)
		var values [][2]any
		for i := 0; i < n; i++ {
			sec := base.Add(-time.Duration(i) * time.Second).Unix()
			if sec >= start && sec <= end {
				values = append(values, [2]any{float64(sec), "1"})
			}
		}
		resp := map[string]any{
			"status": "success",
			"data": map[string]any{
				"resultType": "matrix",
				"result": []map[string]any{
					{
						"metric": map[string]string{"__name__": "up", "job": "checkout"},
						"values": values,
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

// pagedTempo serves traces spaced one second apart starting 250ms into each
// second, newest first, and honors start, end and limit the way /api/search
// does: bounds in whole seconds, both inclusive.
func pagedTempo(t *testing.T, base time.Time, n int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			http.NotFound(w, r)
			return
		}
		start, _ := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
		end, _ := strconv.ParseInt(r.URL.Query().Get("end"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var traces []map[string]any
		for i := 0; i < n && len(traces) < limit; i++ {
			ts := base.Add(-time.Duration(i)*time.Second - 250*time.Millisecond)
			if ts.Unix() < start || ts.Unix() > end {
				continue
			}
			traces = append(traces, map[string]any{
				"traceID":           fmt.Sprintf("trace-%d", i),
				"rootServiceName":   "checkout",
				"rootTraceName":     "POST /checkout",
				"startTimeUnixNano": fmt.Sprintf("%d", ts.UnixNano()),
				"durationMs":        120,
			})
		}
		resp := map[string]any{
			"traces":  traces,
			"metrics": map[string]any{"inspectedTraces": len(traces)},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func paginationBackend(url string) config.BackendConfig {
	return config.BackendConfig{Endpoints: []string{url}, Timeout: 2000}
}

func TestPrometheusService_CursorResumesWithoutOverlap(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)
	srv := pagedPrometheus(t, base, 8)
	defer srv.Close()

	svc := NewPrometheusService(paginationBackend(srv.URL), logger.NewNop())
	q := &models.NormalizedSubQuery{
		Source:   models.SourceMetrics,
		TenantID: "acme",
		Native:   "up",
		Start:    base.Add(-time.Hour),
		End:      base,
		Limit:    3,
	}

	first := svc.Execute(context.Background(), q)
	if first.Failed() {
		t.Fatalf("first page failed: %s", first.Err)
	}
	if first.NextCursor == "" {
		t.Fatal("first page must carry a continuation cursor")
	}

	q.Cursor = first.NextCursor
	second := svc.Execute(context.Background(), q)
	if second.Failed() {
		t.Fatalf("second page failed: %s", second.Err)
	}

	// The end bound is inclusive, so the resumed query gets the boundary
	// sample back from the backend; it must not reach the caller twice,
	// and no sample may fall into the gap between pages.
	var all []float64
	seen := make(map[float64]bool)
	for _, res := range []*models.AdapterResult{first, second} {
		for _, rec := range res.Records {
			ts := rec["timestamp"].(float64)
			if seen[ts] {
				t.Fatalf("sample at %v returned on both pages", ts)
			}
			seen[ts] = true
			all = append(all, ts)
		}
	}
	if len(all) != 6 {
		t.Fatalf("got %d samples across two pages, want 6", len(all))
	}
	for i, ts := range all {
		want := float64(base.Add(-time.Duration(i) * time.Second).Unix())
		if ts != want {
			t.Fatalf("sample %d = %v, want %v", i, ts, want)
		}
	}
}

func TestTempoService_CursorResumesWithoutOverlap(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)
	srv := pagedTempo(t, base, 8)
	defer srv.Close()

	svc := NewTempoService(paginationBackend(srv.URL), logger.NewNop())
	q := &models.NormalizedSubQuery{
		Source:   models.SourceTraces,
		TenantID: "acme",
		Native:   `{resource.service.name = "checkout"}`,
		Start:    base.Add(-time.Hour),
		End:      base,
		Limit:    3,
	}

	first := svc.Execute(context.Background(), q)
	if first.Failed() {
		t.Fatalf("first page failed: %s", first.Err)
	}
	if len(first.Records) != 3 {
		t.Fatalf("first page has %d traces, want 3", len(first.Records))
	}
	if first.NextCursor == "" {
		t.Fatal("first page must carry a continuation cursor")
	}

	q.Cursor = first.NextCursor
	second := svc.Execute(context.Background(), q)
	if second.Failed() {
		t.Fatalf("second page failed: %s", second.Err)
	}

	// The truncated end bound makes the backend resend the boundary second;
	// those traces were already returned and must be dropped on resume.
	var ids []string
	seen := make(map[string]bool)
	for _, res := range []*models.AdapterResult{first, second} {
		for _, rec := range res.Records {
			id := rec["traceID"].(string)
			if seen[id] {
				t.Fatalf("trace %s returned on both pages", id)
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for i, id := range ids {
		if want := fmt.Sprintf("trace-%d", i); id != want {
			t.Fatalf("trace %d = %s, want %s", i, id, want)
		}
	}
}

func TestSearchEngine_CursorPageContinuesWithoutOverlap(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)
	srv := pagedPrometheus(t, base, 8)
	defer srv.Close()

	cfg := testEngineConfig()
	engine := newTestEngine(cfg, srv.URL, srv.URL, srv.URL)
	query := &models.UnifiedSearchQuery{
		Type:     models.SourceMetrics,
		FreeText: "up",
		TimeRange: models.TimeRange{
			Start: base.Add(-time.Hour),
			End:   base,
		},
		Limit: 3,
	}

	page1, err := engine.Search(context.Background(), "acme", query)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page1.Items) != 3 {
		t.Fatalf("first page has %d items, want 3", len(page1.Items))
	}
	if page1.Cursor == "" {
		t.Fatal("first page must carry a cursor")
	}

	query.Cursor = page1.Cursor
	page2, err := engine.Search(context.Background(), "acme", query)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(page2.Items) != 3 {
		t.Fatalf("second page has %d items, want 3", len(page2.Items))
	}

	seen := make(map[string]bool)
	for _, item := range page1.Items {
		seen[item.ID] = true
	}
	for _, item := range page2.Items {
		if seen[item.ID] {
			t.Fatalf("item %s returned on both pages", item.ID)
		}
	}
	lastOfFirst := page1.Items[len(page1.Items)-1].Timestamp
	firstOfSecond := page2.Items[0].Timestamp
	if want := lastOfFirst.Add(-time.Second); !firstOfSecond.Equal(want) {
		t.Fatalf("second page starts at %v, want %v", firstOfSecond, want)
	}
}
