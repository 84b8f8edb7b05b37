package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ixlab/aibox/internal/service"
)

// GenRunner is the slice of the one-shot service the handler needs.
type GenRunner interface {
	Generate(ctx context.Context, req service.GenRequest) (*service.GenResult, error)
}

// GenHandler serves the stateless summary/vision/text endpoints.
type GenHandler struct {
	Gen GenRunner
}

func (h *GenHandler) Register(g *echo.Group) {
	g.POST("/summary", h.module("summary"))
	g.POST("/vision", h.module("vision"))
	g.POST("/text", h.module("text"))
}

type genRequest struct {
	Model       string   `json:"model"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments"`
}

func (h *GenHandler) module(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestsTotal.WithLabelValues(name).Inc()
		userID := c.Get("user_id").(string)

		var req genRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		res, err := h.Gen.Generate(c.Request().Context(), service.GenRequest{
			UserID:      userID,
			Module:      name,
			Model:       req.Model,
			Text:        req.Text,
			Attachments: req.Attachments,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, res)
	}
}
