package jobs

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hms/analytics/pkg/pagination"
)

// HTTPHandler exposes the operator surface over the registry and the run ledger.
type HTTPHandler struct {
	registry *Registry
}

func NewHTTPHandler(registry *Registry) *HTTPHandler {
	return &HTTPHandler{registry: registry}
}

// RegisterRoutes registers the ETL operator routes on the given group.
func (h *HTTPHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/jobs/:name/trigger", h.TriggerJob)
	g.POST("/jobs/run-all", h.RunAll)
	g.GET("/jobs", h.ListJobs)
	g.GET("/runs", h.ListRuns)
}

// TriggerJob handles POST /etl/jobs/:name/trigger. The run executes
// synchronously; the response carries its terminal status. Handler failures
// are a ledger fact, not an HTTP error; only an unknown name is.
func (h *HTTPHandler) TriggerJob(c echo.Context) error {
	name := c.Param("name")

	outcome, err := h.registry.Trigger(c.Request().Context(), name)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, outcome)
}

// RunAll handles POST /etl/jobs/run-all.
func (h *HTTPHandler) RunAll(c echo.Context) error {
	outcomes := h.registry.RunAll(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobs": outcomes,
	})
}

// ListJobs handles GET /etl/jobs.
func (h *HTTPHandler) ListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobs": h.registry.Definitions(),
	})
}

// ListRuns handles GET /etl/runs?job=&limit=&offset=. A ledger read failure
// yields an empty list, never a 5xx.
func (h *HTTPHandler) ListRuns(c echo.Context) error {
	p := pagination.FromContext(c)
	jobName := c.QueryParam("job")

	runs := h.registry.Status(c.Request().Context(), jobName, p.Limit, p.Offset)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}
