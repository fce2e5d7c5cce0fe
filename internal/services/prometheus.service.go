package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/sightline-obs/sightline-core/internal/config"
	"github.com/sightline-obs/sightline-core/internal/models"
	"github.com/sightline-obs/sightline-core/pkg/logger"
)

// PrometheusService executes metric sub-queries against the Prometheus
// range-query API.
type PrometheusService struct {
	backendClient
	logger logger.Logger
}

func NewPrometheusService(cfg config.BackendConfig, log logger.Logger) *PrometheusService {
	return &PrometheusService{
		backendClient: newBackendClient(cfg.Name, cfg.Endpoints, cfg.Timeout, cfg.Username, cfg.Password),
		logger:        log,
	}
}

func (s *PrometheusService) Source() models.SourceType { return models.SourceMetrics }

type prometheusResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Values [][2]any          `json:"values"` // [unix seconds, value string]
		} `json:"result"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

func (s *PrometheusService) Execute(ctx context.Context, q *models.NormalizedSubQuery) *models.AdapterResult {
	started := time.Now()
	res := &models.AdapterResult{Source: models.SourceMetrics}

	fail := func(outcome models.AdapterOutcome, err string) *models.AdapterResult {
		res.Outcome = outcome
		res.Err = err
		res.DurationMS = observe(models.SourceMetrics, outcome, started)
		return res
	}

	endpoint := s.selectEndpoint()
	if endpoint == "" {
		return fail(models.OutcomeTransport, "no Prometheus endpoint configured")
	}

	end := q.End
	var cursorSec float64
	if q.Cursor != "" {
		if sec, err := strconv.ParseFloat(q.Cursor, 64); err == nil {
			cursorSec = sec
			end = time.Unix(0, int64(sec*float64(time.Second)))
		}
	}

	params := url.Values{}
	params.Set("query", q.Native)
	params.Set("start", strconv.FormatInt(q.Start.Unix(), 10))
	params.Set("end", strconv.FormatInt(end.Unix(), 10))
	params.Set("step", chooseStep(q.Start, end).String())

	fullURL := fmt.Sprintf("%s/api/v1/query_range?%s", endpoint, params.Encode())
	resp, err := s.do(ctx, http.MethodGet, fullURL, q.TenantID)
	if err != nil {
		return fail(classifyTransport(ctx, err), err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(classifyStatus(resp.StatusCode),
			fmt.Sprintf("prometheus returned status %d: %s", resp.StatusCode, readBodySnippet(resp.Body)))
	}

	var body prometheusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fail(models.OutcomeQueryError, fmt.Sprintf("malformed prometheus response: %v", err))
	}
	if body.Status != "success" {
		return fail(models.OutcomeQueryError, fmt.Sprintf("prometheus query failed: %s", body.Error))
	}

	// Flatten series samples into one record per data point, newest first.
	var records []models.RawRecord
	for _, series := range body.Data.Result {
		for _, sample := range series.Values {
			ts, ok := sample[0].(float64)
			if !ok {
				continue
			}
			records = append(records, models.RawRecord{
				"metric":    series.Metric,
				"timestamp": ts,
				"value":     sample[1],
			})
		}
	}
	// query_range treats end as inclusive and the cursor sample was already
	// returned on the previous page, so resume strictly before it.
	if cursorSec > 0 {
		kept := records[:0]
		for _, rec := range records {
			if rec["timestamp"].(float64) < cursorSec {
				kept = append(kept, rec)
			}
		}
		records = kept
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i]["timestamp"].(float64) > records[j]["timestamp"].(float64)
	})

	res.Scanned = len(records)
	if len(records) > q.Limit {
		records = records[:q.Limit]
		if ts, ok := records[len(records)-1]["timestamp"].(float64); ok {
			res.NextCursor = strconv.FormatFloat(ts, 'f', -1, 64)
		}
	}
	res.Records = records
	res.Outcome = models.OutcomeSuccess
	res.DurationMS = observe(models.SourceMetrics, models.OutcomeSuccess, started)

	s.logger.Debug("Prometheus query executed",
		"query", q.Native,
		"records", len(res.Records),
		"scanned", res.Scanned,
		"took", time.Since(started),
		"tenant", q.TenantID,
	)
	return res
}

func (s *PrometheusService) HealthCheck(ctx context.Context) error {
	endpoint := s.selectEndpoint()
	if endpoint == "" {
		return fmt.Errorf("no Prometheus endpoint configured")
	}
	resp, err := s.do(ctx, http.MethodGet, endpoint+"/-/healthy", "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("prometheus health check failed: status %d", resp.StatusCode)
	}
	return nil
}

// chooseStep picks a resolution that keeps a range query around 250 points.
func chooseStep(start, end time.Time) time.Duration {
	step := end.Sub(start) / 250
	if step < 15*time.Second {
		step = 15 * time.Second
	}
	return step.Round(time.Second)
}
