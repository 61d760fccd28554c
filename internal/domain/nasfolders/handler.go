package nasfolders

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/impilo-health/impilo/internal/platform/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	devices := api.Group("/nas-devices", auth.RequireRole("admin"))
	devices.POST("", h.CreateDevice)
	devices.GET("", h.ListDevices)
	devices.GET("/:id", h.GetDevice)
	devices.DELETE("/:id", h.DeactivateDevice)
	devices.GET("/:id/folders", h.ListDeviceFolders)

	folders := api.Group("/shared-folders", auth.RequireRole("admin"))
	folders.POST("", h.CreateFolder)
	folders.GET("", h.ListFolders)
	folders.GET("/summary", h.Summary)
	folders.GET("/:id", h.GetFolder)
	folders.PUT("/:id", h.UpdateFolder)
	folders.DELETE("/:id", h.DeactivateFolder)
	folders.POST("/:id/test", h.TestFolder)
	folders.GET("/:id/credentials", h.FolderCredentials)
}

func (h *Handler) CreateDevice(c echo.Context) error {
	var req CreateDeviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	device, err := h.service.CreateDevice(c.Request().Context(), actorID, req)
	if err != nil {
		if errors.Is(err, ErrDuplicateIP) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, device)
}

func (h *Handler) ListDevices(c echo.Context) error {
	activeOnly := c.QueryParam("active") == "true"
	devices, err := h.service.ListDevices(c.Request().Context(), activeOnly)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list nas devices")
	}
	return c.JSON(http.StatusOK, devices)
}

func (h *Handler) GetDevice(c echo.Context) error {
	device, err := h.service.GetDevice(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load nas device")
	}
	return c.JSON(http.StatusOK, device)
}

func (h *Handler) DeactivateDevice(c echo.Context) error {
	actorID := auth.UserIDFromContext(c.Request().Context())
	if err := h.service.DeactivateDevice(c.Request().Context(), actorID, c.Param("id")); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to deactivate nas device")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDeviceFolders(c echo.Context) error {
	folders, err := h.service.ListFolders(c.Request().Context(), c.Param("id"), c.QueryParam("procedure_type"))
	if err != nil {
		if errors.Is(err, ErrInvalidProcedure) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list folders")
	}
	return c.JSON(http.StatusOK, folders)
}

func (h *Handler) CreateFolder(c echo.Context) error {
	var req CreateFolderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	folder, err := h.service.CreateFolder(c.Request().Context(), actorID, req)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, folder)
}

func (h *Handler) ListFolders(c echo.Context) error {
	folders, err := h.service.ListFolders(c.Request().Context(), c.QueryParam("device_id"), c.QueryParam("procedure_type"))
	if err != nil {
		if errors.Is(err, ErrInvalidProcedure) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list folders")
	}
	return c.JSON(http.StatusOK, folders)
}

func (h *Handler) GetFolder(c echo.Context) error {
	folder, err := h.service.GetFolder(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrFolderNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load folder")
	}
	return c.JSON(http.StatusOK, folder)
}

func (h *Handler) UpdateFolder(c echo.Context) error {
	var req UpdateFolderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	folder, err := h.service.UpdateFolder(c.Request().Context(), actorID, c.Param("id"), req)
	if err != nil {
		if errors.Is(err, ErrFolderNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, folder)
}

func (h *Handler) DeactivateFolder(c echo.Context) error {
	actorID := auth.UserIDFromContext(c.Request().Context())
	if err := h.service.DeactivateFolder(c.Request().Context(), actorID, c.Param("id")); err != nil {
		if errors.Is(err, ErrFolderNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to deactivate folder")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) TestFolder(c echo.Context) error {
	actorID := auth.UserIDFromContext(c.Request().Context())
	result, err := h.service.TestFolder(c.Request().Context(), actorID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrFolderNotFound) || errors.Is(err, ErrDeviceNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "connectivity test failed")
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) FolderCredentials(c echo.Context) error {
	username, password, err := h.service.FolderCredentials(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrFolderNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to decrypt credentials")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"username": username,
		"password": password,
	})
}

func (h *Handler) Summary(c echo.Context) error {
	summaries, err := h.service.Summary(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to build summary")
	}
	return c.JSON(http.StatusOK, summaries)
}
