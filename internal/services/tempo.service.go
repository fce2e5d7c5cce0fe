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

// TempoService executes trace sub-queries against Tempo's search API.
type TempoService struct {
	backendClient
	logger logger.Logger
}

func NewTempoService(cfg config.BackendConfig, log logger.Logger) *TempoService {
	return &TempoService{
		backendClient: newBackendClient(cfg.Name, cfg.Endpoints, cfg.Timeout, cfg.Username, cfg.Password),
		logger:        log,
	}
}

func (s *TempoService) Source() models.SourceType { return models.SourceTraces }

type tempoResponse struct {
	Traces []struct {
		TraceID           string `json:"traceID"`
		RootServiceName   string `json:"rootServiceName"`
		RootTraceName     string `json:"rootTraceName"`
		StartTimeUnixNano string `json:"startTimeUnixNano"`
		DurationMs        int    `json:"durationMs"`
		SpanSet           struct {
			Spans []struct {
				SpanID     string            `json:"spanID"`
				Attributes map[string]string `json:"attributes"`
			} `json:"spans"`
		} `json:"spanSet"`
	} `json:"traces"`
	Metrics struct {
		InspectedTraces int `json:"inspectedTraces"`
	} `json:"metrics"`
}

func (s *TempoService) Execute(ctx context.Context, q *models.NormalizedSubQuery) *models.AdapterResult {
	started := time.Now()
	res := &models.AdapterResult{Source: models.SourceTraces}

	fail := func(outcome models.AdapterOutcome, err string) *models.AdapterResult {
		res.Outcome = outcome
		res.Err = err
		res.DurationMS = observe(models.SourceTraces, outcome, started)
		return res
	}

	endpoint := s.selectEndpoint()
	if endpoint == "" {
		return fail(models.OutcomeTransport, "no Tempo endpoint configured")
	}

	end := q.End
	var cursorNs int64
	if q.Cursor != "" {
		if ns, err := strconv.ParseInt(q.Cursor, 10, 64); err == nil {
			cursorNs = ns
			end = time.Unix(0, ns)
		}
	}

	params := url.Values{}
	params.Set("q", q.Native)
	params.Set("start", strconv.FormatInt(q.Start.Unix(), 10))
	params.Set("end", strconv.FormatInt(end.Unix(), 10))
	params.Set("limit", strconv.Itoa(q.Limit))

	fullURL := fmt.Sprintf("%s/api/search?%s", endpoint, params.Encode())
	resp, err := s.do(ctx, http.MethodGet, fullURL, q.TenantID)
	if err != nil {
		return fail(classifyTransport(ctx, err), err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(classifyStatus(resp.StatusCode),
			fmt.Sprintf("tempo returned status %d: %s", resp.StatusCode, readBodySnippet(resp.Body)))
	}

	var body tempoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fail(models.OutcomeQueryError, fmt.Sprintf("malformed tempo response: %v", err))
	}

	var oldest int64
	for _, trace := range body.Traces {
		ns, nsErr := strconv.ParseInt(trace.StartTimeUnixNano, 10, 64)
		// The search end is inclusive and truncated to whole seconds, so the
		// backend resends traces the previous page already covered. The
		// cursor marks the oldest returned trace; keep only strictly older.
		if cursorNs > 0 && nsErr == nil && ns >= cursorNs {
			continue
		}
		rec := models.RawRecord{
			"traceID":           trace.TraceID,
			"rootServiceName":   trace.RootServiceName,
			"rootTraceName":     trace.RootTraceName,
			"startTimeUnixNano": trace.StartTimeUnixNano,
			"durationMs":        trace.DurationMs,
		}
		if len(trace.SpanSet.Spans) > 0 {
			rec["spanID"] = trace.SpanSet.Spans[0].SpanID
			rec["attributes"] = trace.SpanSet.Spans[0].Attributes
		}
		res.Records = append(res.Records, rec)
		if nsErr == nil && (oldest == 0 || ns < oldest) {
			oldest = ns
		}
	}

	res.Outcome = models.OutcomeSuccess
	res.Scanned = body.Metrics.InspectedTraces
	if res.Scanned == 0 {
		res.Scanned = len(res.Records)
	}
	if len(body.Traces) >= q.Limit && oldest > 0 {
		res.NextCursor = strconv.FormatInt(oldest, 10)
	}
	res.DurationMS = observe(models.SourceTraces, models.OutcomeSuccess, started)

	s.logger.Debug("Tempo search executed",
		"query", q.Native,
		"records", len(res.Records),
		"scanned", res.Scanned,
		"took", time.Since(started),
		"tenant", q.TenantID,
	)
	return res
}

func (s *TempoService) HealthCheck(ctx context.Context) error {
	endpoint := s.selectEndpoint()
	if endpoint == "" {
		return fmt.Errorf("no Tempo endpoint configured")
	}
	resp, err := s.do(ctx, http.MethodGet, endpoint+"/ready", "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tempo health check failed: status %d", resp.StatusCode)
	}
	return nil
}
