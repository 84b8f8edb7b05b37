package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/internal/service"
)

// ChatRunner is the slice of the chat service the handler needs.
type ChatRunner interface {
	Stream(ctx context.Context, req service.ChatRequest, emit service.EmitFunc) (*service.ChatResult, error)
}

// ChatHandler streams conversation turns over SSE.
type ChatHandler struct {
	Chat ChatRunner
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("", h.chat)
}

type chatRequest struct {
	SessionID   string   `json:"session_id"`
	SessionName string   `json:"session_name"`
	Model       string   `json:"model"`
	Message     string   `json:"message"`
	Attachments []string `json:"attachments"`
}

func (h *ChatHandler) chat(c echo.Context) error {
	requestsTotal.WithLabelValues("chat").Inc()
	userID := c.Get("user_id").(string)

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	result, err := h.Chat.Stream(c.Request().Context(), service.ChatRequest{
		UserID:      userID,
		SessionID:   req.SessionID,
		SessionName: req.SessionName,
		Model:       req.Model,
		Text:        req.Message,
		Attachments: req.Attachments,
	}, func(frag llm.Fragment) error {
		streamFragmentsTotal.WithLabelValues(string(frag.Type)).Inc()
		return writeEvent(w, string(frag.Type), fragmentPayload(frag))
	})
	if err != nil {
		// The response already streams; errors become a terminal SSE event.
		_, msg := statusFor(err)
		_ = writeEvent(w, "error", map[string]string{"message": msg})
		return nil
	}

	return writeEvent(w, "done", map[string]any{
		"session_id":  result.Session.SessionID,
		"text":        result.Text,
		"files":       result.Files,
		"stop_reason": result.StopReason,
		"usage":       result.Usage,
	})
}

// fragmentPayload trims a fragment down to what the UI consumes.
func fragmentPayload(frag llm.Fragment) any {
	switch frag.Type {
	case llm.FragmentText:
		return map[string]string{"delta": frag.Text}
	case llm.FragmentThinking:
		return map[string]string{"delta": frag.Thinking}
	case llm.FragmentToolCall:
		name := ""
		if frag.ToolCall != nil {
			name = frag.ToolCall.Name
		}
		return map[string]string{"name": name}
	case llm.FragmentFile:
		return map[string]string{"file_path": frag.FilePath}
	case llm.FragmentFinish:
		return map[string]any{"stop_reason": frag.StopReason, "usage": frag.Usage, "model": frag.Model}
	}
	return map[string]string{}
}

func writeEvent(w *echo.Response, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
