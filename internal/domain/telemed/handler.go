package telemed

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
	g := api.Group("/consultations")
	g.POST("", h.Schedule)
	g.GET("", h.List)
	g.GET("/upcoming", h.ListUpcoming)
	g.GET("/:id", h.Get)
	g.POST("/:id/start", h.Start)
	g.POST("/:id/complete", h.Complete)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/no-show", h.MarkNoShow)
	g.GET("/:id/participants", h.ListParticipants)
	g.POST("/:id/participants", h.AddParticipant)
	g.POST("/:id/join", h.Join)
	g.POST("/:id/leave", h.Leave)
}

func (h *Handler) Schedule(c echo.Context) error {
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	consultation, err := h.service.Schedule(c.Request().Context(), actorID, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, consultation)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	filters := ListFilters{
		PatientID: c.QueryParam("patient_id"),
		DoctorID:  c.QueryParam("doctor_id"),
		Status:    c.QueryParam("status"),
	}
	consultations, total, err := h.service.List(c.Request().Context(), filters, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list consultations")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(consultations, total, p.Limit, p.Offset))
}

func (h *Handler) ListUpcoming(c echo.Context) error {
	ctx := c.Request().Context()
	doctorID := c.QueryParam("doctor_id")
	if doctorID == "" {
		doctorID = auth.UserIDFromContext(ctx)
	}
	p := pagination.FromContext(c)
	consultations, err := h.service.ListUpcoming(ctx, doctorID, p.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list upcoming consultations")
	}
	return c.JSON(http.StatusOK, consultations)
}

func (h *Handler) Get(c echo.Context) error {
	consultation, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, consultation)
}

func (h *Handler) Start(c echo.Context) error {
	actorID := auth.UserIDFromContext(c.Request().Context())
	consultation, err := h.service.Start(c.Request().Context(), actorID, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, consultation)
}

func (h *Handler) Complete(c echo.Context) error {
	var req CompleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	consultation, err := h.service.Complete(c.Request().Context(), actorID, c.Param("id"), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, consultation)
}

func (h *Handler) Cancel(c echo.Context) error {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	consultation, err := h.service.Cancel(c.Request().Context(), actorID, c.Param("id"), body.Reason)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, consultation)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	actorID := auth.UserIDFromContext(c.Request().Context())
	consultation, err := h.service.MarkNoShow(c.Request().Context(), actorID, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, consultation)
}

func (h *Handler) ListParticipants(c echo.Context) error {
	participants, err := h.service.ListParticipants(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, participants)
}

func (h *Handler) AddParticipant(c echo.Context) error {
	var req AddParticipantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	participant, err := h.service.AddParticipant(c.Request().Context(), actorID, c.Param("id"), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, participant)
}

func (h *Handler) Join(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	participant, err := h.service.Join(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, participant)
}

func (h *Handler) Leave(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	participant, err := h.service.Leave(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, participant)
}

func mapError(err error) error {
	var te *TransitionError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrParticipantNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateParticipant):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &te):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
