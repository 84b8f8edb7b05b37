package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ixlab/aibox/internal/llm"
)

// ImageGenerator produces a PNG from a prompt. The Bedrock invoke adapter
// satisfies this; the indirection keeps the registry vendor-agnostic.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, negative, style string, seed int64) ([]byte, int64, error)
}

// DrawSpec exposes text-to-image generation as a tool the chat models can
// call mid-conversation.
var DrawSpec = Spec{
	Name:        "draw-image",
	Description: "Generate an image from a text prompt using a text-to-image model.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Description of the image to generate.",
			},
			"negative_prompt": map[string]any{
				"type":        "string",
				"description": "Elements to avoid in the image.",
			},
			"style": map[string]any{
				"type":        "string",
				"description": "Optional style preset, e.g. photographic, anime, enhance.",
			},
		},
		"required": []any{"prompt"},
	},
}

// SavePNG writes image bytes under dataDir with a timestamped unique name
// and returns the full path.
func SavePNG(dataDir string, png []byte) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("draw-%s-%s.png", time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(dataDir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// NewDrawFunc builds the draw-image tool function. Generated images are
// written under dataDir and referenced by file path in the conversation.
func NewDrawFunc(gen ImageGenerator, dataDir string) Func {
	return func(ctx context.Context, input map[string]any) (llm.ToolResult, error) {
		prompt, _ := input["prompt"].(string)
		if prompt == "" {
			return llm.ToolResult{}, fmt.Errorf("draw-image: prompt is required")
		}
		negative, _ := input["negative_prompt"].(string)
		style, _ := input["style"].(string)

		png, seed, err := gen.GenerateImage(ctx, prompt, negative, style, 0)
		if err != nil {
			return llm.ToolResult{}, err
		}
		path, err := SavePNG(dataDir, png)
		if err != nil {
			return llm.ToolResult{}, fmt.Errorf("draw-image: %w", err)
		}

		return llm.ToolResult{
			PNG: png,
			JSON: map[string]any{
				"file_path": path,
				"seed":      seed,
			},
		}, nil
	}
}
