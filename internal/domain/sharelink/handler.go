package sharelink

import (
	"errors"
	"net/http"

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

// RegisterPublicRoutes mounts the unauthenticated redemption endpoint.
func (h *Handler) RegisterPublicRoutes(root *echo.Group) {
	root.POST("/shared/:token", h.RedeemLink)
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/secure-links")
	g.POST("", h.CreateLink)
	g.GET("", h.ListLinks)
	g.GET("/stats", h.GetStats)
	g.GET("/:id", h.GetLink)
	g.GET("/:id/attempts", h.ListAttempts)
	g.DELETE("/:id", h.RevokeLink)
}

func (h *Handler) CreateLink(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	userID := auth.UserIDFromContext(c.Request().Context())
	result, err := h.svc.Create(c.Request().Context(), userID, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) RedeemLink(c echo.Context) error {
	var req RedeemRequest
	if err := c.Bind(&req); err != nil && c.Request().ContentLength > 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.Redeem(c.Request().Context(),
		c.Param("token"), req.Password, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		var redeemErr *RedeemError
		if errors.As(err, &redeemErr) {
			status := http.StatusForbidden
			switch redeemErr.Reason {
			case FailInvalidToken:
				status = http.StatusNotFound
			case FailPasswordRequired, FailInvalidPassword:
				status = http.StatusUnauthorized
			case FailLinkExpired, FailViewLimit:
				status = http.StatusGone
			}
			return echo.NewHTTPError(status, redeemErr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "link redemption failed")
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListLinks(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	activeOnly := c.QueryParam("active") == "true"

	// Non-admins only see their own links.
	createdBy := auth.UserIDFromContext(ctx)
	if auth.RoleFromContext(ctx) == "admin" {
		createdBy = c.QueryParam("created_by")
	}

	items, total, err := h.svc.ListByCreator(ctx, createdBy, activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetLink(c echo.Context) error {
	ctx := c.Request().Context()
	link, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "link not found")
	}
	if auth.RoleFromContext(ctx) != "admin" && link.CreatedBy != auth.UserIDFromContext(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, "not your link")
	}
	return c.JSON(http.StatusOK, link)
}

func (h *Handler) ListAttempts(c echo.Context) error {
	ctx := c.Request().Context()
	link, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "link not found")
	}
	if auth.RoleFromContext(ctx) != "admin" && link.CreatedBy != auth.UserIDFromContext(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, "not your link")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAttempts(ctx, link.LinkID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetStats(c echo.Context) error {
	ctx := c.Request().Context()
	createdBy := auth.UserIDFromContext(ctx)
	if auth.RoleFromContext(ctx) == "admin" {
		createdBy = c.QueryParam("created_by")
	}
	stats, err := h.svc.GetStats(ctx, createdBy)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) RevokeLink(c echo.Context) error {
	ctx := c.Request().Context()
	err := h.svc.Revoke(ctx, c.Param("id"),
		auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx) == "admin")
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "link not found")
		case errors.Is(err, ErrNotOwner):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
