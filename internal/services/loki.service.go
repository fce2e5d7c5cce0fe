package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sightline-obs/sightline-core/internal/config"
	"github.com/sightline-obs/sightline-core/internal/models"
	"github.com/sightline-obs/sightline-core/pkg/logger"
)

// LokiService executes log sub-queries against Loki's query_range API.
type LokiService struct {
	backendClient
	logger logger.Logger
}

func NewLokiService(cfg config.BackendConfig, log logger.Logger) *LokiService {
	return &LokiService{
		backendClient: newBackendClient(cfg.Name, cfg.Endpoints, cfg.Timeout, cfg.Username, cfg.Password),
		logger:        log,
	}
}

func (s *LokiService) Source() models.SourceType { return models.SourceLogs }

// lokiResponse mirrors the subset of Loki's query_range payload we consume.
type lokiResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"` // [ns timestamp, line]
		} `json:"result"`
		Stats struct {
			Summary struct {
				TotalLinesProcessed int `json:"totalLinesProcessed"`
			} `json:"summary"`
		} `json:"stats"`
	} `json:"data"`
}

func (s *LokiService) Execute(ctx context.Context, q *models.NormalizedSubQuery) *models.AdapterResult {
	started := time.Now()
	res := &models.AdapterResult{Source: models.SourceLogs}

	fail := func(outcome models.AdapterOutcome, err string) *models.AdapterResult {
		res.Outcome = outcome
		res.Err = err
		res.DurationMS = observe(models.SourceLogs, outcome, started)
		return res
	}

	endpoint := s.selectEndpoint()
	if endpoint == "" {
		return fail(models.OutcomeTransport, "no Loki endpoint configured")
	}

	end := q.End
	// A cursor is the resume point: everything at or after it was already
	// returned on a previous page.
	if q.Cursor != "" {
		if ns, err := strconv.ParseInt(q.Cursor, 10, 64); err == nil {
			end = time.Unix(0, ns)
		}
	}

	params := url.Values{}
	params.Set("query", q.Native)
	params.Set("start", strconv.FormatInt(q.Start.UnixNano(), 10))
	params.Set("end", strconv.FormatInt(end.UnixNano(), 10))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("direction", "backward")

	fullURL := fmt.Sprintf("%s/loki/api/v1/query_range?%s", endpoint, params.Encode())
	resp, err := s.do(ctx, http.MethodGet, fullURL, q.TenantID)
	if err != nil {
		return fail(classifyTransport(ctx, err), err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(classifyStatus(resp.StatusCode),
			fmt.Sprintf("loki returned status %d: %s", resp.StatusCode, readBodySnippet(resp.Body)))
	}

	var body lokiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fail(models.OutcomeQueryError, fmt.Sprintf("malformed loki response: %v", err))
	}

	var oldest int64
	for _, stream := range body.Data.Result {
		for _, entry := range stream.Values {
			rec := models.RawRecord{
				"timestamp": entry[0],
				"line":      entry[1],
				"labels":    stream.Stream,
			}
			res.Records = append(res.Records, rec)
			if ns, err := strconv.ParseInt(entry[0], 10, 64); err == nil {
				if oldest == 0 || ns < oldest {
					oldest = ns
				}
			}
		}
	}

	res.Outcome = models.OutcomeSuccess
	res.Scanned = body.Data.Stats.Summary.TotalLinesProcessed
	if res.Scanned == 0 {
		res.Scanned = len(res.Records)
	}
	if len(res.Records) >= q.Limit && oldest > 0 {
		res.NextCursor = strconv.FormatInt(oldest, 10)
	}
	res.DurationMS = observe(models.SourceLogs, models.OutcomeSuccess, started)

	s.logger.Debug("Loki query executed",
		"query", q.Native,
		"records", len(res.Records),
		"scanned", res.Scanned,
		"took", time.Since(started),
		"tenant", q.TenantID,
	)
	return res
}

func (s *LokiService) HealthCheck(ctx context.Context) error {
	endpoint := s.selectEndpoint()
	if endpoint == "" {
		return fmt.Errorf("no Loki endpoint configured")
	}
	resp, err := s.do(ctx, http.MethodGet, endpoint+"/ready", "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("loki health check failed: status %d", resp.StatusCode)
	}
	return nil
}
