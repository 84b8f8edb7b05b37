package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ixlab/aibox/internal/service"
)

// DrawRunner is the slice of the image service the handler needs.
type DrawRunner interface {
	Draw(ctx context.Context, req service.DrawRequest) (*service.DrawResult, error)
}

// DrawHandler serves text-to-image generation.
type DrawHandler struct {
	Draw DrawRunner
}

func (h *DrawHandler) Register(g *echo.Group) {
	g.POST("", h.draw)
}

type drawRequest struct {
	SessionID      string `json:"session_id"`
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Style          string `json:"style"`
	Seed           int64  `json:"seed"`
}

func (h *DrawHandler) draw(c echo.Context) error {
	requestsTotal.WithLabelValues("draw").Inc()
	userID := c.Get("user_id").(string)

	var req drawRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt required")
	}

	res, err := h.Draw.Draw(c.Request().Context(), service.DrawRequest{
		UserID:         userID,
		SessionID:      req.SessionID,
		Model:          req.Model,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Style:          req.Style,
		Seed:           req.Seed,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session_id": res.Session.SessionID,
		"file_path":  res.FilePath,
		"seed":       res.Seed,
	})
}
