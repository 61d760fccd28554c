package authorization

import (
	"errors"
	"net/http"
	"strconv"
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
	doctors := api.Group("/referring-doctors")
	doctors.POST("", h.RegisterDoctor, auth.RequireRole("admin"))
	doctors.GET("", h.ListDoctors)
	doctors.GET("/:id", h.GetDoctor)
	doctors.PUT("/:id", h.UpdateDoctor, auth.RequireRole("admin"))
	doctors.DELETE("/:id", h.DeactivateDoctor, auth.RequireRole("admin"))
	doctors.GET("/:id/authorizations", h.ListDoctorAuthorizations)

	auths := api.Group("/authorizations")
	auths.POST("", h.Grant, auth.RequireRole("admin", "radiologist"))
	auths.POST("/bulk", h.BulkGrant, auth.RequireRole("admin"))
	auths.GET("/check", h.CheckAccess)
	auths.GET("/expiring", h.ListExpiring)
	auths.GET("/stats", h.GetStats)
	auths.POST("/cleanup", h.CleanupExpired, auth.RequireRole("admin"))
	auths.GET("/:id", h.GetAuthorization)
	auths.PUT("/:id", h.UpdateAuthorization, auth.RequireRole("admin", "radiologist"))
	auths.POST("/:id/extend", h.Extend, auth.RequireRole("admin", "radiologist"))
	auths.POST("/:id/revoke", h.Revoke, auth.RequireRole("admin", "radiologist"))

	api.GET("/patients/:patientId/authorizations", h.ListPatientAuthorizations)
}

func (h *Handler) RegisterDoctor(c echo.Context) error {
	var d ReferringDoctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	created, err := h.svc.RegisterDoctor(c.Request().Context(), d)
	if err != nil {
		if errors.Is(err, ErrDuplicateHPCSA) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), c.QueryParam("active") == "true", pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	d, err := h.svc.GetDoctor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	var update ReferringDoctor
	if err := c.Bind(&update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), c.Param("id"), update)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeactivateDoctor(c echo.Context) error {
	if err := h.svc.DeactivateDoctor(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDoctorAuthorizations(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), c.Param("id"),
		c.QueryParam("active") != "false", pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPatientAuthorizations(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), c.Param("patientId"),
		c.QueryParam("active") != "false", pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Grant(c echo.Context) error {
	var req GrantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Grant(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateActive):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrDoctorNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) BulkGrant(c echo.Context) error {
	var reqs []GrantRequest
	if err := c.Bind(&reqs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	created, failures := h.svc.BulkGrant(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), reqs)

	errMsgs := make([]string, len(failures))
	for i, err := range failures {
		errMsgs[i] = err.Error()
	}
	return c.JSON(http.StatusOK, map[string]any{
		"created": created,
		"errors":  errMsgs,
	})
}

func (h *Handler) CheckAccess(c echo.Context) error {
	doctorID := c.QueryParam("doctor_id")
	patientID := c.QueryParam("patient_id")
	if doctorID == "" || patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id and patient_id are required")
	}
	decision, err := h.svc.CheckAccess(c.Request().Context(), doctorID, patientID, c.QueryParam("study_uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, decision)
}

func (h *Handler) GetAuthorization(c echo.Context) error {
	a, err := h.svc.GetAuthorization(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "authorization not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAuthorization(c echo.Context) error {
	var req UpdateAuthRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.UpdateAuthorization(c.Request().Context(), c.Param("id"),
		auth.UserIDFromContext(c.Request().Context()), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrAlreadyRevoked):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Extend(c echo.Context) error {
	var req struct {
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := c.Bind(&req); err != nil || req.ExpiresAt.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "expires_at is required")
	}
	a, err := h.svc.Extend(c.Request().Context(), c.Param("id"), req.ExpiresAt,
		auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		if errors.Is(err, ErrAuthNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Revoke(c echo.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil && c.Request().ContentLength > 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Revoke(c.Request().Context(), c.Param("id"),
		auth.UserIDFromContext(c.Request().Context()), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrAlreadyRevoked):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListExpiring(c echo.Context) error {
	days, _ := strconv.Atoi(c.QueryParam("days"))
	items, err := h.svc.ListExpiring(c.Request().Context(), days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"authorizations": items})
}

func (h *Handler) CleanupExpired(c echo.Context) error {
	n, err := h.svc.CleanupExpired(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"expired": n})
}

func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.svc.GetStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
