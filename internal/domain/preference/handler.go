package preference

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/preferences/theme", h.GetTheme)
	api.PUT("/preferences/theme", h.SetTheme)
	api.POST("/preferences/theme/toggle", h.ToggleTheme)
}

func (h *Handler) GetTheme(c echo.Context) error {
	theme, err := h.svc.Get(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, map[string]string{"message": "internal server error"}).SetInternal(err)
	}
	return c.JSON(http.StatusOK, Theme{Theme: theme})
}

func (h *Handler) SetTheme(c echo.Context) error {
	var in Theme
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}
	theme, err := h.svc.Set(c.Request().Context(), in.Theme)
	if errors.Is(err, ErrInvalidTheme) {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"message": err.Error()})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, map[string]string{"message": "internal server error"}).SetInternal(err)
	}
	return c.JSON(http.StatusOK, Theme{Theme: theme})
}

func (h *Handler) ToggleTheme(c echo.Context) error {
	theme, err := h.svc.Toggle(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, map[string]string{"message": "internal server error"}).SetInternal(err)
	}
	return c.JSON(http.StatusOK, Theme{Theme: theme})
}
