package audit

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/impilo-health/impilo/internal/platform/auth"
	"github.com/impilo-health/impilo/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/audit", auth.RequireRole("admin"))
	admin.GET("", h.SearchEntries)
	admin.GET("/stats", h.GetStats)
	admin.GET("/:id", h.GetEntry)
}

func (h *Handler) GetEntry(c echo.Context) error {
	e, err := h.svc.GetEntry(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "audit entry not found")
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) SearchEntries(c echo.Context) error {
	pg := pagination.FromContext(c)
	filters := filtersFromContext(c)

	items, total, err := h.svc.Search(c.Request().Context(), filters, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.svc.GetStats(c.Request().Context(), filtersFromContext(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func filtersFromContext(c echo.Context) SearchFilters {
	filters := SearchFilters{
		ActorID:      c.QueryParam("actor_id"),
		Action:       c.QueryParam("action"),
		ResourceType: c.QueryParam("resource_type"),
		PatientID:    c.QueryParam("patient_id"),
		StudyUID:     c.QueryParam("study_uid"),
		Category:     c.QueryParam("category"),
	}
	if v := c.QueryParam("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.From = &t
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.To = &t
		}
	}
	return filters
}
