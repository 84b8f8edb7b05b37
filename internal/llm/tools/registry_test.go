package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/ixlab/aibox/internal/llm"
)

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(Spec{Name: "echo"}, func(_ context.Context, input map[string]any) (llm.ToolResult, error) {
		return llm.ToolResult{Text: input["msg"].(string)}, nil
	})

	res, err := r.Execute(context.Background(), llm.ToolCall{ID: "t1", Name: "echo", Input: map[string]any{"msg": "hi"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ID != "t1" || res.Text != "hi" || res.IsError {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), llm.ToolCall{Name: "nope"}); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestRegistryExecuteFailureBecomesErrorResult(t *testing.T) {
	r := NewRegistry()
	r.Register(Spec{Name: "boom"}, func(context.Context, map[string]any) (llm.ToolResult, error) {
		return llm.ToolResult{}, errors.New("kaput")
	})

	res, err := r.Execute(context.Background(), llm.ToolCall{ID: "t2", Name: "boom"})
	if err != nil {
		t.Fatalf("tool failure must not error the loop: %v", err)
	}
	if !res.IsError || res.Text != "kaput" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCurrentTimeTool(t *testing.T) {
	res, err := CurrentTime(context.Background(), map[string]any{"timezone": "UTC"})
	if err != nil {
		t.Fatalf("CurrentTime: %v", err)
	}
	if res.JSON["timezone"] != "UTC" {
		t.Fatalf("unexpected timezone: %v", res.JSON["timezone"])
	}
	if _, err := CurrentTime(context.Background(), map[string]any{"timezone": "Nowhere/Land"}); err == nil {
		t.Fatal("expected error for bad timezone")
	}
}
