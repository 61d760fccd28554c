package reporting

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/impilo-health/impilo/internal/platform/auth"
	"github.com/impilo-health/impilo/pkg/pagination"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports")
	g.GET("", h.SearchReports)
	g.GET("/:id", h.GetReport)
	g.POST("", h.CreateReport, auth.RequireRole("admin", "radiologist"))
	g.PUT("/:id", h.UpdateReport, auth.RequireRole("admin", "radiologist", "typist"))
	g.POST("/:id/transition", h.TransitionReport, auth.RequireRole("admin", "radiologist", "typist"))
	g.POST("/:id/clinical-data", h.SetClinicalData, auth.RequireRole("admin", "radiologist"))
	g.POST("/validate-clinical-data", h.ValidateClinicalData)
}

func (h *Handler) CreateReport(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	report, err := h.service.Create(c.Request().Context(), actorID, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, report)
}

func (h *Handler) SearchReports(c echo.Context) error {
	p := pagination.FromContext(c)
	filters := SearchFilters{
		PatientID:     c.QueryParam("patient_id"),
		StudyUID:      c.QueryParam("study_uid"),
		RadiologistID: c.QueryParam("radiologist_id"),
		Status:        c.QueryParam("status"),
	}
	reports, total, err := h.service.Search(c.Request().Context(), filters, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to search reports")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(reports, total, p.Limit, p.Offset))
}

func (h *Handler) GetReport(c echo.Context) error {
	report, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load report")
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) UpdateReport(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	report, err := h.service.Update(c.Request().Context(), actorID, c.Param("id"), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrReportNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrLocked):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) TransitionReport(c echo.Context) error {
	var req TransitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	actorID := auth.UserIDFromContext(ctx)
	actorRole := auth.RoleFromContext(ctx)

	// Only a radiologist (or admin) signs off.
	if req.Status == StatusAuthorized && actorRole != "radiologist" && actorRole != "admin" {
		return echo.NewHTTPError(http.StatusForbidden, "only a radiologist can authorize a report")
	}

	report, err := h.service.Transition(ctx, actorID, actorRole, c.Param("id"), req.Status)
	if err != nil {
		var te *TransitionError
		switch {
		case errors.Is(err, ErrReportNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.As(err, &te):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) SetClinicalData(c echo.Context) error {
	var data ClinicalData
	if err := c.Bind(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	result, err := h.service.SetClinicalData(c.Request().Context(), actorID, c.Param("id"), data)
	if err != nil {
		switch {
		case errors.Is(err, ErrReportNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrLocked):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	if !result.Valid {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

// ValidateClinicalData range-checks measurements without touching any
// report, for client-side pre-validation.
func (h *Handler) ValidateClinicalData(c echo.Context) error {
	var data ClinicalData
	if err := c.Bind(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.JSON(http.StatusOK, ValidateClinicalData(data))
}
