package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sightline-obs/sightline-core/internal/api/middleware"
	"github.com/sightline-obs/sightline-core/internal/models"
	"github.com/sightline-obs/sightline-core/internal/services"
	"github.com/sightline-obs/sightline-core/pkg/logger"
)

// SearchHandler exposes the cross-signal search engine over the dashboard
// API. All tenant scoping happens in the engine; handlers only carry the
// tenant id from the request context.
type SearchHandler struct {
	engine *services.SearchEngine
	logger logger.Logger
}

func NewSearchHandler(engine *services.SearchEngine, log logger.Logger) *SearchHandler {
	return &SearchHandler{engine: engine, logger: log}
}

// Search handles POST /api/v1/search.
func (h *SearchHandler) Search(c *gin.Context) {
	var query models.UnifiedSearchQuery
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "malformed search request: " + err.Error(),
		})
		return
	}

	tenant := middleware.TenantFromContext(c)
	result, err := h.engine.Search(c.Request.Context(), tenant, &query)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   result,
	})
}

// Correlate handles GET /api/v1/search/correlate/:correlationId.
func (h *SearchHandler) Correlate(c *gin.Context) {
	tenant := middleware.TenantFromContext(c)
	result, err := h.engine.ResolveCorrelation(c.Request.Context(), tenant, c.Param("correlationId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   result,
	})
}

// Facets handles POST /api/v1/search/facets. It runs the same fan-out as a
// search but responds with the facet buckets only, which is what the
// dashboard filter sidebar polls.
func (h *SearchHandler) Facets(c *gin.Context) {
	var query models.UnifiedSearchQuery
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "malformed facet request: " + err.Error(),
		})
		return
	}

	tenant := middleware.TenantFromContext(c)
	result, err := h.engine.Search(c.Request.Context(), tenant, &query)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"facets": result.Facets,
			"stats":  result.Stats,
		},
	})
}

func (h *SearchHandler) respondError(c *gin.Context, err error) {
	status := models.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("search request failed", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, gin.H{
		"status": "error",
		"error":  err.Error(),
	})
}
