package discovery

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
	g := api.Group("/discovery", auth.RequireRole("admin"))
	g.POST("/scans", h.StartScan)
	g.GET("/scans", h.ListScans)
	g.GET("/scans/:id", h.GetScan)
	g.POST("/devices/:id/promote", h.PromoteDevice)
}

func (h *Handler) StartScan(c echo.Context) error {
	var req ScanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	scan, devices, err := h.service.Scan(c.Request().Context(), actorID, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"scan":    scan,
		"devices": devices,
	})
}

func (h *Handler) ListScans(c echo.Context) error {
	p := pagination.FromContext(c)
	scans, total, err := h.service.ListScans(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list scans")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(scans, total, p.Limit, p.Offset))
}

func (h *Handler) GetScan(c echo.Context) error {
	scan, devices, err := h.service.GetScan(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrScanNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load scan")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"scan":    scan,
		"devices": devices,
	})
}

func (h *Handler) PromoteDevice(c echo.Context) error {
	var req PromoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	deviceID, err := h.service.Promote(c.Request().Context(), actorID, c.Param("id"), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrDeviceNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrAlreadyPromoted):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, map[string]string{"device_id": deviceID})
}
