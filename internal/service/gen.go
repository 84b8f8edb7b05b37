package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/internal/settings"
)

// Module system prompts for the one-shot flows.
var genPrompts = map[string]string{
	"summary": "Summarize the provided content. Keep the summary faithful, concise and in the language of the source.",
	"vision":  "Describe and analyze the provided media. Answer the user's question about it directly.",
	"text":    defaultSystemPrompt,
}

// GenService handles the stateless one-shot flows: summary, vision and plain
// text generation. No session is created or touched.
type GenService struct {
	factory *Factory
	catalog *settings.Catalog
	logger  *log.Logger

	// newProvider is swappable for tests.
	newProvider func(ctx context.Context, model settings.Model) (llm.Provider, error)
}

// GenRequest is one stateless generation call.
type GenRequest struct {
	UserID      string
	Module      string // summary, vision or text
	Model       string
	Text        string
	Attachments []string
}

// GenResult is the completed one-shot response.
type GenResult struct {
	Text       string
	StopReason string
	Usage      llm.Usage
}

func (s *GenService) provider(ctx context.Context, model settings.Model) (llm.Provider, error) {
	if s.newProvider != nil {
		return s.newProvider(ctx, model)
	}
	// One-shot flows never call tools.
	return s.factory.provider(ctx, model, nil)
}

func (s *GenService) Generate(ctx context.Context, req GenRequest) (*GenResult, error) {
	prompt, ok := genPrompts[req.Module]
	if !ok {
		return nil, llm.NewError(llm.CodeInvalidInput, "unknown generation module "+req.Module)
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return nil, llm.NewError(llm.CodeInvalidInput, "nothing to generate from")
	}
	attachments, err := llm.DetectAttachments(req.Attachments)
	if err != nil {
		return nil, err
	}

	model, err := s.catalog.Find(ctx, req.Model)
	if err != nil {
		return nil, llm.NewError(llm.CodeInvalidInput, err.Error())
	}
	provider, err := s.provider(ctx, model)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := provider.Generate(ctx, llm.Request{
		System: prompt,
		Messages: []llm.Message{{
			Role:        llm.RoleUser,
			Text:        req.Text,
			Attachments: attachments,
			Timestamp:   start,
		}},
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("%s via %s took %s", req.Module, model.Name, time.Since(start).Round(time.Millisecond))
	return &GenResult{
		Text:       resp.Text,
		StopReason: resp.StopReason,
		Usage:      resp.Usage,
	}, nil
}
