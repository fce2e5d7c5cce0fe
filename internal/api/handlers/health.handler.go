package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sightline-obs/sightline-core/internal/models"
	"github.com/sightline-obs/sightline-core/internal/services"
)

// HealthHandler serves liveness and readiness probes. Liveness is
// unconditional; readiness reflects backend reachability and breaker state.
type HealthHandler struct {
	engine  *services.SearchEngine
	version string
}

func NewHealthHandler(engine *services.SearchEngine, version string) *HealthHandler {
	return &HealthHandler{engine: engine, version: version}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready. The service stays ready while at least one
// backend is reachable; a fully dark backend set is the only hard failure.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()

	probes := h.engine.CheckBackends(ctx)
	breakers := h.engine.Health()

	backends := make(map[string]gin.H, len(probes))
	reachable := 0
	for source, err := range probes {
		state := breakers[source]
		entry := gin.H{
			"breaker": state.State,
			"trips":   state.TotalTrips,
		}
		if err != nil {
			entry["reachable"] = false
			entry["error"] = err.Error()
		} else {
			entry["reachable"] = true
			reachable++
		}
		backends[string(source)] = entry
	}

	status := http.StatusOK
	overall := "ready"
	if reachable == 0 {
		status = http.StatusServiceUnavailable
		overall = "unavailable"
	} else if reachable < len(probes) {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"backends": backends,
	})
}

// Breakers handles GET /api/v1/search/health, the dashboard's breaker
// status panel.
func (h *HealthHandler) Breakers(c *gin.Context) {
	health := h.engine.Health()
	out := make(map[string]models.BackendHealth, len(health))
	for source, state := range health {
		out[string(source)] = state
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   out,
	})
}
