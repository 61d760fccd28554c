package facegate

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/impilo-health/impilo/internal/platform/auth"
	"github.com/impilo-health/impilo/pkg/pagination"
)

// TokenIssuer mints a session token for a user whose face has been
// verified. Wired to the user service in main.
type TokenIssuer func(c echo.Context, userID string) (token string, err error)

type Handler struct {
	service *Service
	issuer  TokenIssuer
}

func NewHandler(service *Service, issuer TokenIssuer) *Handler {
	return &Handler{service: service, issuer: issuer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/face-auth")
	g.POST("/enroll", h.Enroll)
	g.POST("/verify", h.Verify)
	g.GET("/profile", h.GetProfile)
	g.DELETE("/profile", h.Unenroll)
	g.GET("/attempts", h.ListAttempts)

	admin := g.Group("", auth.RequireRole("admin"))
	admin.GET("/settings", h.GetSettings)
	admin.PUT("/settings/:key", h.UpdateSetting)
	admin.DELETE("/users/:userId/profile", h.UnenrollUser)
	admin.GET("/users/:userId/attempts", h.ListUserAttempts)
}

func (h *Handler) Enroll(c echo.Context) error {
	var req EnrollRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	// Users enrol themselves; only admins may enrol on behalf of others.
	userID := auth.UserIDFromContext(c.Request().Context())
	if req.UserID == "" || auth.RoleFromContext(c.Request().Context()) != "admin" {
		req.UserID = userID
	}
	profile, err := h.service.Enroll(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, profile)
}

func (h *Handler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" {
		req.UserID = auth.UserIDFromContext(c.Request().Context())
	}
	req.IPAddress = c.RealIP()
	req.UserAgent = c.Request().UserAgent()

	result, err := h.service.Verify(c.Request().Context(), req)
	if err != nil {
		var rl *RateLimitedError
		switch {
		case errors.As(err, &rl):
			return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
		case errors.Is(err, ErrNotEnrolled):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrDisabled):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	resp := map[string]any{
		"verified":   result.Verified,
		"confidence": result.Confidence,
		"distance":   result.Distance,
	}
	if result.Verified && h.issuer != nil {
		token, err := h.issuer(c, req.UserID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue session token")
		}
		resp["token"] = token
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetProfile(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	profile, err := h.service.GetProfile(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotEnrolled) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load face profile")
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *Handler) Unenroll(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	return h.unenroll(c, userID, userID)
}

func (h *Handler) UnenrollUser(c echo.Context) error {
	actorID := auth.UserIDFromContext(c.Request().Context())
	return h.unenroll(c, c.Param("userId"), actorID)
}

func (h *Handler) unenroll(c echo.Context, userID, actorID string) error {
	if err := h.service.Unenroll(c.Request().Context(), userID, actorID); err != nil {
		if errors.Is(err, ErrNotEnrolled) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to remove face profile")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListAttempts(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	return h.listAttempts(c, userID)
}

func (h *Handler) ListUserAttempts(c echo.Context) error {
	return h.listAttempts(c, c.Param("userId"))
}

func (h *Handler) listAttempts(c echo.Context, userID string) error {
	p := pagination.FromContext(c)
	attempts, total, err := h.service.ListAttempts(c.Request().Context(), userID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list attempts")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(attempts, total, p.Limit, p.Offset))
}

func (h *Handler) GetSettings(c echo.Context) error {
	settings, err := h.service.Settings(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
	}
	return c.JSON(http.StatusOK, settings)
}

func (h *Handler) UpdateSetting(c echo.Context) error {
	var body struct {
		Value string `json:"value"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	if err := h.service.UpdateSetting(c.Request().Context(), actorID, c.Param("key"), body.Value); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{c.Param("key"): body.Value})
}
