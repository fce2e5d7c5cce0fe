package services

import (
	"context"
	"sync"
	"time"

	"github.com/sightline-obs/sightline-core/internal/config"
	"github.com/sightline-obs/sightline-core/internal/metrics"
	"github.com/sightline-obs/sightline-core/internal/models"
)

// CircuitBreaker guards one backend. It trips open after the configured
// number of failures inside the sliding window, short-circuits calls while
// open, and admits exactly one trial call once the cool-down elapses. State
// is mutated only here, under the per-backend mutex; other backends'
// breakers are never blocked.
type CircuitBreaker struct {
	source models.SourceType
	cfg    config.BreakerConfig

	mu            sync.Mutex
	state         models.BreakerState
	failures      []time.Time
	lastFailure   time.Time
	openUntil     time.Time
	trialInFlight bool
	totalTrips    int64

	now func() time.Time // test hook
}

func NewCircuitBreaker(source models.SourceType, cfg config.BreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		source: source,
		cfg:    cfg,
		state:  models.BreakerClosed,
		now:    time.Now,
	}
	cb.gauge()
	return cb
}

// Call runs fn under the breaker. When the breaker is open (or a half-open
// trial is already in flight) the call short-circuits with a circuit_open
// outcome and no network activity.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) *models.AdapterResult) *models.AdapterResult {
	trial, allowed := cb.admit()
	if !allowed {
		return &models.AdapterResult{
			Source:  cb.source,
			Outcome: models.OutcomeCircuitOpen,
			Err:     "circuit breaker open",
		}
	}

	res := fn(ctx)
	cb.record(trial, !res.Failed())
	return res
}

// admit decides whether a call may proceed. The second return is false when
// the call must short-circuit; the first marks it as the half-open trial.
func (cb *CircuitBreaker) admit() (trial bool, allowed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case models.BreakerClosed:
		return false, true
	case models.BreakerOpen:
		if cb.now().Before(cb.openUntil) {
			return false, false
		}
		cb.transition(models.BreakerHalfOpen)
		cb.trialInFlight = true
		return true, true
	case models.BreakerHalfOpen:
		if cb.trialInFlight {
			// Only one trial probes the recovering backend; everyone
			// else short-circuits as if open.
			return false, false
		}
		cb.trialInFlight = true
		return true, true
	}
	return false, false
}

// record applies a call outcome to the state machine.
func (cb *CircuitBreaker) record(trial, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialInFlight = false
		if success {
			cb.failures = nil
			cb.transition(models.BreakerClosed)
		} else {
			cb.lastFailure = cb.now()
			cb.openUntil = cb.now().Add(cb.cfg.CooldownDuration())
			cb.totalTrips++
			cb.transition(models.BreakerOpen)
		}
		return
	}

	if success {
		cb.failures = nil
		return
	}

	now := cb.now()
	cb.lastFailure = now

	// Slide the window before counting.
	cutoff := now.Add(-cb.cfg.WindowDuration())
	kept := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failures = append(kept, now)

	if cb.state == models.BreakerClosed && len(cb.failures) >= cb.cfg.FailureThreshold {
		cb.openUntil = now.Add(cb.cfg.CooldownDuration())
		cb.totalTrips++
		cb.transition(models.BreakerOpen)
	}
}

// transition must be called with the mutex held.
func (cb *CircuitBreaker) transition(to models.BreakerState) {
	if cb.state == to {
		return
	}
	cb.state = to
	metrics.BreakerTransitionsTotal.WithLabelValues(string(cb.source), string(to)).Inc()
	cb.gauge()
}

func (cb *CircuitBreaker) gauge() {
	var v float64
	switch cb.state {
	case models.BreakerOpen:
		v = 1
	case models.BreakerHalfOpen:
		v = 2
	}
	metrics.BreakerState.WithLabelValues(string(cb.source)).Set(v)
}

// Health returns a point-in-time snapshot for readiness and stats reporting.
func (cb *CircuitBreaker) Health() models.BackendHealth {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return models.BackendHealth{
		Source:       cb.source,
		State:        cb.state,
		Failures:     len(cb.failures),
		LastFailure:  cb.lastFailure,
		OpenUntil:    cb.openUntil,
		TotalTrips:   cb.totalTrips,
		LastObserved: cb.now(),
	}
}

// BreakerTable holds one breaker per backend. It is built once at process
// start and shared by every request; nothing else mutates breaker state.
type BreakerTable struct {
	breakers map[models.SourceType]*CircuitBreaker
}

func NewBreakerTable(cfg config.BreakerConfig, sources []models.SourceType) *BreakerTable {
	t := &BreakerTable{breakers: make(map[models.SourceType]*CircuitBreaker, len(sources))}
	for _, s := range sources {
		t.breakers[s] = NewCircuitBreaker(s, cfg)
	}
	return t
}

// For returns the breaker guarding a backend.
func (t *BreakerTable) For(source models.SourceType) *CircuitBreaker {
	return t.breakers[source]
}

// Health snapshots every breaker.
func (t *BreakerTable) Health() map[models.SourceType]models.BackendHealth {
	out := make(map[models.SourceType]models.BackendHealth, len(t.breakers))
	for s, cb := range t.breakers {
		out[s] = cb.Health()
	}
	return out
}
