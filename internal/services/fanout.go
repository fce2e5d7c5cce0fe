package services

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sightline-obs/sightline-core/internal/config"
	"github.com/sightline-obs/sightline-core/internal/models"
	"github.com/sightline-obs/sightline-core/pkg/logger"
)

// FanoutOrchestrator runs one sub-query per selected backend in parallel,
// each call wrapped by that backend's circuit breaker, and collects every
// result before returning. One slow or failing backend never blocks the
// others past the shared request deadline.
type FanoutOrchestrator struct {
	adapters map[models.SourceType]BackendAdapter
	breakers *BreakerTable
	cfg      config.EngineConfig
	logger   logger.Logger
}

func NewFanoutOrchestrator(adapters map[models.SourceType]BackendAdapter, breakers *BreakerTable, cfg config.EngineConfig, log logger.Logger) *FanoutOrchestrator {
	return &FanoutOrchestrator{
		adapters: adapters,
		breakers: breakers,
		cfg:      cfg,
		logger:   log,
	}
}

// Execute fans the sub-queries out and waits for all of them. Every selected
// source gets exactly one AdapterResult; a source whose call never produced
// one (deadline hit before it finished) is reported as a timeout. The error
// is non-nil only when every source failed.
func (f *FanoutOrchestrator) Execute(ctx context.Context, subs map[models.SourceType]*models.NormalizedSubQuery) (map[models.SourceType]*models.AdapterResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.RequestDeadlineDuration())
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[models.SourceType]*models.AdapterResult, len(subs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxConcurrency)

	for source, sub := range subs {
		adapter, ok := f.adapters[source]
		if !ok {
			mu.Lock()
			results[source] = &models.AdapterResult{
				Source:  source,
				Outcome: models.OutcomeQueryError,
				Err:     "no adapter registered for source",
			}
			mu.Unlock()
			continue
		}
		source, sub := source, sub
		g.Go(func() error {
			res := f.breakers.For(source).Call(gctx, func(c context.Context) *models.AdapterResult {
				return adapter.Execute(c, sub)
			})
			mu.Lock()
			results[source] = res
			mu.Unlock()
			if res.Failed() {
				f.logger.Warn("backend query failed",
					"backend", source, "outcome", res.Outcome, "error", res.Err)
			}
			return nil
		})
	}
	g.Wait()

	// Sources the deadline cut off before their goroutine stored a result.
	for source := range subs {
		if _, ok := results[source]; !ok {
			results[source] = &models.AdapterResult{
				Source:  source,
				Outcome: models.OutcomeTimeout,
				Err:     "request deadline exceeded before backend call completed",
			}
		}
	}

	failed := 0
	var failures []models.SourceFailure
	for _, source := range sortedSources(results) {
		res := results[source]
		if res.Failed() {
			failed++
			failures = append(failures, models.SourceFailure{
				Source: res.Source,
				Reason: string(res.Outcome),
				Detail: res.Err,
			})
		}
	}
	if len(results) > 0 && failed == len(results) {
		return results, &models.TotalFailureError{Failures: failures}
	}
	return results, nil
}
