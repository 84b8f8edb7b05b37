package service

import (
	"context"
	"errors"
	"log"

	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/internal/llm/bedrock"
	"github.com/ixlab/aibox/internal/llm/tools"
	"github.com/ixlab/aibox/session"
)

// DrawService turns prompts into images and records them in a draw session.
type DrawService struct {
	factory *Factory
	store   session.Store
	dataDir string
	logger  *log.Logger

	// newGenerator is swappable for tests.
	newGenerator func(modelID string) tools.ImageGenerator
}

// DrawRequest is one image generation call. SessionID empty starts a new draw
// session.
type DrawRequest struct {
	UserID         string
	SessionID      string
	Model          string
	Prompt         string
	NegativePrompt string
	Style          string
	Seed           int64
}

// DrawResult reports where the image landed and the seed that produced it.
type DrawResult struct {
	Session  *session.Session
	FilePath string
	Seed     int64
}

func (s *DrawService) generator(modelID string) tools.ImageGenerator {
	if s.newGenerator != nil {
		return s.newGenerator(modelID)
	}
	return bedrock.NewInvoke(s.factory.deps.BedrockInvoke, modelID)
}

func (s *DrawService) Draw(ctx context.Context, req DrawRequest) (*DrawResult, error) {
	model, err := s.factory.imageModel(ctx, req.Model)
	if err != nil {
		return nil, llm.NewError(llm.CodeInvalidInput, err.Error())
	}

	gen := s.generator(model.ModelID)
	png, seed, err := gen.GenerateImage(ctx, req.Prompt, req.NegativePrompt, req.Style, req.Seed)
	if err != nil {
		return nil, err
	}
	path, err := tools.SavePNG(s.dataDir, png)
	if err != nil {
		return nil, err
	}

	sess, err := s.loadOrCreate(ctx, req, model.Name)
	if err != nil {
		return nil, err
	}
	err = session.AppendTurns(ctx, s.store, sess,
		session.Turn{Role: llm.RoleUser, Text: req.Prompt},
		session.Turn{Role: llm.RoleAssistant, Files: []string{path}},
	)
	if err != nil {
		return nil, err
	}

	s.logger.Printf("session %s: generated %s (seed %d)", sess.SessionID, path, seed)
	return &DrawResult{Session: sess, FilePath: path, Seed: seed}, nil
}

func (s *DrawService) loadOrCreate(ctx context.Context, req DrawRequest, modelName string) (*session.Session, error) {
	if req.SessionID == "" {
		return session.New(req.UserID, "draw", modelName, ""), nil
	}
	sess, err := s.store.Get(ctx, req.UserID, req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, err
	}
	return sess, err
}
