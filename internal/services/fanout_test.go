package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sightline-obs/sightline-core/internal/config"
	"github.com/sightline-obs/sightline-core/internal/models"
	"github.com/sightline-obs/sightline-core/pkg/logger"
)

// fakeAdapter returns a canned result, optionally after a delay, honoring
// context cancellation the way the real adapters do.
type fakeAdapter struct {
	source models.SourceType
	result *models.AdapterResult
	delay  time.Duration
}

func (f *fakeAdapter) Source() models.SourceType { return f.source }

func (f *fakeAdapter) Execute(ctx context.Context, q *models.NormalizedSubQuery) *models.AdapterResult {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return &models.AdapterResult{
				Source:  f.source,
				Outcome: models.OutcomeTimeout,
				Err:     ctx.Err().Error(),
			}
		}
	}
	return f.result
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) error { return nil }

func successResult(source models.SourceType, n int) *models.AdapterResult {
	records := make([]models.RawRecord, n)
	for i := range records {
		records[i] = models.RawRecord{}
	}
	return &models.AdapterResult{Source: source, Outcome: models.OutcomeSuccess, Records: records, Scanned: n}
}

func newTestOrchestrator(adapters map[models.SourceType]BackendAdapter, cfg config.EngineConfig) *FanoutOrchestrator {
	breakers := NewBreakerTable(cfg.Breaker, models.AllSources)
	return NewFanoutOrchestrator(adapters, breakers, cfg, logger.NewNop())
}

func testSubQueries(sources ...models.SourceType) map[models.SourceType]*models.NormalizedSubQuery {
	subs := make(map[models.SourceType]*models.NormalizedSubQuery, len(sources))
	for _, s := range sources {
		subs[s] = &models.NormalizedSubQuery{Source: s, TenantID: "acme", Limit: 100}
	}
	return subs
}

func TestFanout_AllSourcesSucceed(t *testing.T) {
	adapters := map[models.SourceType]BackendAdapter{
		models.SourceLogs:    &fakeAdapter{source: models.SourceLogs, result: successResult(models.SourceLogs, 3)},
		models.SourceMetrics: &fakeAdapter{source: models.SourceMetrics, result: successResult(models.SourceMetrics, 2)},
		models.SourceTraces:  &fakeAdapter{source: models.SourceTraces, result: successResult(models.SourceTraces, 1)},
	}
	o := newTestOrchestrator(adapters, testEngineConfig())

	results, err := o.Execute(context.Background(), testSubQueries(models.AllSources...))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for source, res := range results {
		if res.Failed() {
			t.Errorf("%s failed: %s", source, res.Err)
		}
	}
}

func TestFanout_PartialFailureStillReturnsResults(t *testing.T) {
	adapters := map[models.SourceType]BackendAdapter{
		models.SourceLogs: &fakeAdapter{source: models.SourceLogs, result: successResult(models.SourceLogs, 3)},
		models.SourceMetrics: &fakeAdapter{
			source: models.SourceMetrics,
			result: &models.AdapterResult{Source: models.SourceMetrics, Outcome: models.OutcomeTransport, Err: "connection refused"},
		},
	}
	o := newTestOrchestrator(adapters, testEngineConfig())

	results, err := o.Execute(context.Background(), testSubQueries(models.SourceLogs, models.SourceMetrics))
	if err != nil {
		t.Fatalf("partial failure must not return an error, got %v", err)
	}
	if results[models.SourceLogs].Failed() {
		t.Error("logs result should be usable")
	}
	if results[models.SourceMetrics].Outcome != models.OutcomeTransport {
		t.Errorf("metrics outcome = %s", results[models.SourceMetrics].Outcome)
	}
}

func TestFanout_AllSourcesFailed(t *testing.T) {
	adapters := map[models.SourceType]BackendAdapter{
		models.SourceLogs: &fakeAdapter{
			source: models.SourceLogs,
			result: &models.AdapterResult{Source: models.SourceLogs, Outcome: models.OutcomeTransport, Err: "connection refused"},
		},
		models.SourceMetrics: &fakeAdapter{
			source: models.SourceMetrics,
			result: &models.AdapterResult{Source: models.SourceMetrics, Outcome: models.OutcomeQueryError, Err: "bad query"},
		},
	}
	o := newTestOrchestrator(adapters, testEngineConfig())

	results, err := o.Execute(context.Background(), testSubQueries(models.SourceLogs, models.SourceMetrics))
	var tfe *models.TotalFailureError
	if !errors.As(err, &tfe) {
		t.Fatalf("expected TotalFailureError, got %v", err)
	}
	if len(tfe.Failures) != 2 {
		t.Fatalf("got %d failures, want 2", len(tfe.Failures))
	}
	if len(results) != 2 {
		t.Fatalf("results must still be returned for diagnostics, got %d", len(results))
	}
}

func TestFanout_SlowBackendHitsDeadline(t *testing.T) {
	cfg := testEngineConfig()
	cfg.RequestDeadline = 50 // milliseconds

	adapters := map[models.SourceType]BackendAdapter{
		models.SourceLogs: &fakeAdapter{source: models.SourceLogs, result: successResult(models.SourceLogs, 3)},
		models.SourceTraces: &fakeAdapter{
			source: models.SourceTraces,
			result: successResult(models.SourceTraces, 1),
			delay:  2 * time.Second,
		},
	}
	o := newTestOrchestrator(adapters, cfg)

	start := time.Now()
	results, err := o.Execute(context.Background(), testSubQueries(models.SourceLogs, models.SourceTraces))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("fan-out took %v, deadline not enforced", elapsed)
	}
	if results[models.SourceLogs].Failed() {
		t.Error("fast backend should still succeed")
	}
	if results[models.SourceTraces].Outcome != models.OutcomeTimeout {
		t.Errorf("slow backend outcome = %s, want timeout", results[models.SourceTraces].Outcome)
	}
}

func TestFanout_OpenBreakerShortCircuits(t *testing.T) {
	cfg := testEngineConfig()
	failing := &fakeAdapter{
		source: models.SourceLogs,
		result: &models.AdapterResult{Source: models.SourceLogs, Outcome: models.OutcomeTransport, Err: "connection refused"},
	}
	adapters := map[models.SourceType]BackendAdapter{
		models.SourceLogs:    failing,
		models.SourceMetrics: &fakeAdapter{source: models.SourceMetrics, result: successResult(models.SourceMetrics, 2)},
	}
	o := newTestOrchestrator(adapters, cfg)
	subs := testSubQueries(models.SourceLogs, models.SourceMetrics)

	// Trip the logs breaker.
	for i := 0; i < cfg.Breaker.FailureThreshold; i++ {
		o.Execute(context.Background(), subs)
	}

	results, err := o.Execute(context.Background(), subs)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if results[models.SourceLogs].Outcome != models.OutcomeCircuitOpen {
		t.Errorf("logs outcome = %s, want circuit_open", results[models.SourceLogs].Outcome)
	}
	if results[models.SourceMetrics].Failed() {
		t.Error("metrics should be unaffected by the logs breaker")
	}
}

func TestFanout_MissingAdapterReportedAsQueryError(t *testing.T) {
	adapters := map[models.SourceType]BackendAdapter{
		models.SourceLogs: &fakeAdapter{source: models.SourceLogs, result: successResult(models.SourceLogs, 3)},
	}
	o := newTestOrchestrator(adapters, testEngineConfig())

	results, err := o.Execute(context.Background(), testSubQueries(models.SourceLogs, models.SourceTraces))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	res := results[models.SourceTraces]
	if res == nil {
		t.Fatal("unregistered source must still get a result")
	}
	if res.Outcome != models.OutcomeQueryError {
		t.Errorf("outcome = %s, want query_error not timeout", res.Outcome)
	}
	if res.Err != "no adapter registered for source" {
		t.Errorf("err = %q", res.Err)
	}
}
