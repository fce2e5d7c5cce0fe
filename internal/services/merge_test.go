package services

import (
	"errors"
	"testing"
	"time"

	"github.com/sightline-obs/sightline-core/internal/models"
)

func itemAt(source models.SourceType, id string, ts time.Time) models.SearchItem {
	return models.SearchItem{ID: id, Source: source, Timestamp: ts}
}

func TestMerge_TimestampDescendingAcrossSources(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	streams := map[models.SourceType][]models.SearchItem{
		models.SourceLogs: {
			itemAt(models.SourceLogs, "l1", base.Add(-1*time.Second)),
			itemAt(models.SourceLogs, "l2", base.Add(-5*time.Second)),
		},
		models.SourceMetrics: {
			itemAt(models.SourceMetrics, "m1", base.Add(-2*time.Second)),
			itemAt(models.SourceMetrics, "m2", base.Add(-6*time.Second)),
		},
		models.SourceTraces: {
			itemAt(models.SourceTraces, "t1", base),
			itemAt(models.SourceTraces, "t2", base.Add(-4*time.Second)),
		},
	}

	items := NewMerger().Merge(streams, 100)
	if len(items) != 6 {
		t.Fatalf("got %d items, want 6", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].Timestamp.After(items[i-1].Timestamp) {
			t.Fatalf("items out of order at %d: %v after %v", i, items[i].Timestamp, items[i-1].Timestamp)
		}
	}
	wantOrder := []string{"t1", "l1", "m1", "t2", "l2", "m2"}
	for i, want := range wantOrder {
		if items[i].ID != want {
			t.Errorf("position %d = %s, want %s", i, items[i].ID, want)
		}
	}
}

func TestMerge_TiesRankTracesOverLogsOverMetrics(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	streams := map[models.SourceType][]models.SearchItem{
		models.SourceMetrics: {itemAt(models.SourceMetrics, "m", ts)},
		models.SourceLogs:    {itemAt(models.SourceLogs, "l", ts)},
		models.SourceTraces:  {itemAt(models.SourceTraces, "t", ts)},
	}

	items := NewMerger().Merge(streams, 100)
	got := []string{items[0].ID, items[1].ID, items[2].ID}
	want := []string{"t", "l", "m"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie order = %v, want %v", got, want)
		}
	}
}

func TestMerge_SamePriorityTieBreaksOnID(t *testing.T) {
	// Two log streams (as produced by cursor pages being re-merged) with an
	// identical timestamp settle on id order.
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := []models.SearchItem{itemAt(models.SourceLogs, "log-b", ts)}
	b := []models.SearchItem{itemAt(models.SourceLogs, "log-a", ts)}

	if !itemBefore(b[0], a[0]) {
		t.Error("log-a should rank before log-b on the id tie-break")
	}
	if itemBefore(a[0], b[0]) {
		t.Error("ordering must be asymmetric")
	}
}

func TestMerge_LimitAppliesAfterMerge(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	logs := make([]models.SearchItem, 10)
	for i := range logs {
		logs[i] = itemAt(models.SourceLogs, "l", base.Add(-time.Duration(2*i)*time.Second))
	}
	metricsItems := make([]models.SearchItem, 10)
	for i := range metricsItems {
		metricsItems[i] = itemAt(models.SourceMetrics, "m", base.Add(-time.Duration(2*i+1)*time.Second))
	}
	streams := map[models.SourceType][]models.SearchItem{
		models.SourceLogs:    logs,
		models.SourceMetrics: metricsItems,
	}

	items := NewMerger().Merge(streams, 5)
	if len(items) != 5 {
		t.Fatalf("got %d items, want 5", len(items))
	}
	// The newest five interleave both sources rather than exhausting one.
	sources := map[models.SourceType]int{}
	for _, it := range items {
		sources[it.Source]++
	}
	if sources[models.SourceLogs] != 3 || sources[models.SourceMetrics] != 2 {
		t.Errorf("limit applied per source, counts: %v", sources)
	}
}

func TestMerge_EmptyStreams(t *testing.T) {
	items := NewMerger().Merge(map[models.SourceType][]models.SearchItem{}, 10)
	if len(items) != 0 {
		t.Fatalf("got %d items, want 0", len(items))
	}
}

func TestCursor_RoundTrip(t *testing.T) {
	positions := map[models.SourceType]string{
		models.SourceLogs:    "1748779200000000000",
		models.SourceMetrics: "1748779200.000",
		models.SourceTraces:  "1748779195000000000",
	}

	cursor := EncodeCursor(positions)
	if cursor == "" {
		t.Fatal("cursor must not be empty")
	}

	decoded, err := DecodeCursor(cursor)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	for source, want := range positions {
		if decoded[source] != want {
			t.Errorf("%s position = %q, want %q", source, decoded[source], want)
		}
	}
}

func TestCursor_EmptyMeansExhausted(t *testing.T) {
	if got := EncodeCursor(nil); got != "" {
		t.Errorf("EncodeCursor(nil) = %q, want empty", got)
	}
	decoded, err := DecodeCursor("")
	if err != nil || decoded != nil {
		t.Errorf("DecodeCursor(\"\") = %v, %v", decoded, err)
	}
}

func TestCursor_MalformedRejected(t *testing.T) {
	for _, cursor := range []string{"not base64!!!", "aGVsbG8=", "eyJldmVudHMiOiAieCJ9"} {
		_, err := DecodeCursor(cursor)
		var ve *models.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("DecodeCursor(%q) = %v, want ValidationError", cursor, err)
		}
	}
}
