package fhirmap

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/impilo-health/impilo/pkg/pagination"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patient-mappings")
	g.POST("", h.Register)
	g.GET("", h.List)
	g.GET("/by-local/:localId", h.LookupByLocalID)
	g.GET("/by-uuid/:uuid", h.LookupByFHIRUUID)
	g.DELETE("/by-local/:localId", h.Delete)
	g.GET("/by-local/:localId/identifiers", h.IdentifierBundle)
	g.POST("/by-local/:localId/external-ids", h.AddExternalID)
	g.DELETE("/external-ids/:id", h.RemoveExternalID)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	mapping, err := h.service.Register(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ErrAlreadyMapped) || errors.Is(err, ErrUUIDTaken) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, mapping)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	mappings, total, err := h.service.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list mappings")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(mappings, total, p.Limit, p.Offset))
}

func (h *Handler) LookupByLocalID(c echo.Context) error {
	mapping, err := h.service.LookupByLocalID(c.Request().Context(), c.Param("localId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, mapping)
}

func (h *Handler) LookupByFHIRUUID(c echo.Context) error {
	mapping, err := h.service.LookupByFHIRUUID(c.Request().Context(), c.Param("uuid"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, mapping)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("localId")); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete mapping")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) IdentifierBundle(c echo.Context) error {
	bundle, err := h.service.IdentifierBundle(c.Request().Context(), c.Param("localId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to assemble identifiers")
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) AddExternalID(c echo.Context) error {
	var req AddExternalIDRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ext, err := h.service.AddExternalID(c.Request().Context(), c.Param("localId"), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrDuplicateExtID):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, ext)
}

func (h *Handler) RemoveExternalID(c echo.Context) error {
	if err := h.service.RemoveExternalID(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, ErrExtIDNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to remove identifier")
	}
	return c.NoContent(http.StatusNoContent)
}
