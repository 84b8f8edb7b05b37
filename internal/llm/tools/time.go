package tools

import (
	"context"
	"time"

	"github.com/ixlab/aibox/internal/llm"
)

// CurrentTimeSpec reports the local server time; useful for models without a
// reliable clock.
var CurrentTimeSpec = Spec{
	Name:        "current-time",
	Description: "Get the current date and time, optionally in a named IANA timezone.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name, e.g. Asia/Singapore. Defaults to server local time.",
			},
		},
	},
}

func CurrentTime(_ context.Context, input map[string]any) (llm.ToolResult, error) {
	now := time.Now()
	if tz, ok := input["timezone"].(string); ok && tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return llm.ToolResult{}, err
		}
		now = now.In(loc)
	}
	return llm.ToolResult{
		JSON: map[string]any{
			"iso":      now.Format(time.RFC3339),
			"weekday":  now.Weekday().String(),
			"timezone": now.Location().String(),
		},
	}, nil
}
