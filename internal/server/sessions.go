package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ixlab/aibox/session"
)

// SessionsHandler exposes the stored conversations.
type SessionsHandler struct {
	Store session.Store
}

func (h *SessionsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.remove)
}

func (h *SessionsHandler) list(c echo.Context) error {
	requestsTotal.WithLabelValues("sessions").Inc()
	userID := c.Get("user_id").(string)
	items, err := h.Store.List(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	if module := c.QueryParam("module"); module != "" {
		filtered := items[:0]
		for _, item := range items {
			if item.Module == module {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	if items == nil {
		items = []session.Summary{}
	}
	return c.JSON(http.StatusOK, items)
}

type createSessionRequest struct {
	SessionName string `json:"session_name"`
	Module      string `json:"module"`
	Model       string `json:"model"`
}

func (h *SessionsHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)

	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Module == "" {
		req.Module = "chat"
	}
	sess := session.New(userID, req.Module, req.Model, req.SessionName)
	if err := h.Store.Put(c.Request().Context(), sess); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *SessionsHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	sess, err := h.Store.Get(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *SessionsHandler) remove(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.Store.Delete(c.Request().Context(), userID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
