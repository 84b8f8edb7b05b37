package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ixlab/aibox/internal/settings"
)

// ModelsHandler exposes the model catalog.
type ModelsHandler struct {
	Catalog *settings.Catalog
}

func (h *ModelsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.POST("", h.add)
	g.DELETE("/:name", h.remove)
}

func (h *ModelsHandler) list(c echo.Context) error {
	requestsTotal.WithLabelValues("models").Inc()
	models, err := h.Catalog.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models)
}

func (h *ModelsHandler) add(c echo.Context) error {
	var model settings.Model
	if err := c.Bind(&model); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.Catalog.Add(c.Request().Context(), model); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, model)
}

func (h *ModelsHandler) remove(c echo.Context) error {
	if err := h.Catalog.Remove(c.Request().Context(), c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
