package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sightline-obs/sightline-core/internal/metrics"
	"github.com/sightline-obs/sightline-core/internal/models"
)

// BackendAdapter executes one normalized sub-query against its backend.
// Expected failure classes (timeout, transport, query error) come back as
// typed AdapterResult outcomes, never as Go errors.
type BackendAdapter interface {
	Source() models.SourceType
	Execute(ctx context.Context, q *models.NormalizedSubQuery) *models.AdapterResult
	HealthCheck(ctx context.Context) error
}

// backendClient is the HTTP plumbing shared by the three adapters: endpoint
// round-robin under a mutex, a timeout-bounded client and tenant/basic-auth
// headers.
type backendClient struct {
	name      string
	endpoints []string
	timeout   time.Duration
	client    *http.Client
	current   int
	mu        sync.Mutex

	username string
	password string
}

func newBackendClient(name string, endpoints []string, timeoutMS int, username, password string) backendClient {
	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return backendClient{
		name:      name,
		endpoints: endpoints,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		username:  username,
		password:  password,
	}
}

// selectEndpoint implements round-robin load balancing (safe for empty slice).
func (c *backendClient) selectEndpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.endpoints) == 0 {
		return ""
	}
	ep := c.endpoints[c.current%len(c.endpoints)]
	c.current++
	return ep
}

// do sends one request with the tenant header set. Cancellation of ctx
// aborts the underlying connection.
func (c *backendClient) do(ctx context.Context, method, urlStr, tenantID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if tenantID != "" {
		req.Header.Set("X-Scope-OrgID", tenantID)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return c.client.Do(req)
}

// classifyTransport maps a transport-level error to an adapter outcome.
// Context expiry counts as a timeout so the orchestrator can report a
// cancelled source distinctly from a backend-reported error.
func classifyTransport(ctx context.Context, err error) models.AdapterOutcome {
	if ctx.Err() != nil {
		return models.OutcomeTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.OutcomeTimeout
	}
	return models.OutcomeTransport
}

// classifyStatus maps a non-2xx response to an adapter outcome. Client
// errors indicate a bad translated query; server errors count as transport.
func classifyStatus(status int) models.AdapterOutcome {
	if status >= 400 && status < 500 {
		return models.OutcomeQueryError
	}
	return models.OutcomeTransport
}

// observe records the per-call latency/outcome metric every adapter emits.
func observe(source models.SourceType, outcome models.AdapterOutcome, started time.Time) int64 {
	elapsed := time.Since(started)
	metrics.BackendRequestsTotal.WithLabelValues(string(source), string(outcome)).Inc()
	metrics.BackendRequestDuration.WithLabelValues(string(source)).Observe(elapsed.Seconds())
	return elapsed.Milliseconds()
}

// readBodySnippet returns a short text excerpt from an HTTP body for error
// messages.
func readBodySnippet(r io.Reader) string {
	const max = 8 << 10 // 8KB
	b, _ := io.ReadAll(io.LimitReader(r, max))
	return string(b)
}
