package imaging

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/impilo-health/impilo/internal/platform/auth"
	"github.com/impilo-health/impilo/pkg/pagination"
)

// maxDICOMUpload caps a single header-import upload at 256 MiB.
const maxDICOMUpload = 256 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/studies")
	g.GET("", h.SearchStudies)
	g.GET("/:id", h.GetStudy)
	g.GET("/by-uid/:uid", h.GetStudyByUID)

	write := g.Group("", auth.RequireRole("admin", "radiologist"))
	write.POST("", h.CreateStudy)
	write.PUT("/:id", h.UpdateStudy)
	write.DELETE("/:id", h.DeleteStudy)
	write.POST("/import", h.ImportDICOM)
}

func (h *Handler) CreateStudy(c echo.Context) error {
	var req CreateStudyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	study, err := h.service.Create(c.Request().Context(), actorID, req)
	if err != nil {
		if errors.Is(err, ErrDuplicateUID) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, study)
}

func (h *Handler) SearchStudies(c echo.Context) error {
	p := pagination.FromContext(c)
	filters := SearchFilters{
		PatientID: c.QueryParam("patient_id"),
		Modality:  c.QueryParam("modality"),
		DateFrom:  c.QueryParam("date_from"),
		DateTo:    c.QueryParam("date_to"),
	}
	studies, total, err := h.service.Search(c.Request().Context(), filters, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to search studies")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(studies, total, p.Limit, p.Offset))
}

func (h *Handler) GetStudy(c echo.Context) error {
	study, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrStudyNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load study")
	}
	return c.JSON(http.StatusOK, study)
}

func (h *Handler) GetStudyByUID(c echo.Context) error {
	study, err := h.service.GetByStudyUID(c.Request().Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, ErrStudyNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load study")
	}
	return c.JSON(http.StatusOK, study)
}

func (h *Handler) UpdateStudy(c echo.Context) error {
	var req CreateStudyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	study, err := h.service.Update(c.Request().Context(), actorID, c.Param("id"), req)
	if err != nil {
		if errors.Is(err, ErrStudyNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, study)
}

func (h *Handler) DeleteStudy(c echo.Context) error {
	actorID := auth.UserIDFromContext(c.Request().Context())
	if err := h.service.Delete(c.Request().Context(), actorID, c.Param("id")); err != nil {
		if errors.Is(err, ErrStudyNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete study")
	}
	return c.NoContent(http.StatusNoContent)
}

// ImportDICOM accepts a multipart upload with a "file" part holding one
// DICOM object and upserts study metadata from its header.
func (h *Handler) ImportDICOM(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart 'file' part is required")
	}
	if fh.Size > maxDICOMUpload {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open uploaded file")
	}
	defer f.Close()

	actorID := auth.UserIDFromContext(c.Request().Context())
	result, err := h.service.ImportDICOM(c.Request().Context(), actorID, f, fh.Size)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, result)
}
