package service

import (
	"context"
	"fmt"
	"log"

	"github.com/ixlab/aibox/config"
	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/internal/llm/bedrock"
	"github.com/ixlab/aibox/internal/llm/gemini"
	"github.com/ixlab/aibox/internal/llm/tools"
	"github.com/ixlab/aibox/internal/settings"
	"github.com/ixlab/aibox/session"
)

// Deps carries the shared infrastructure the services are composed from.
type Deps struct {
	Store           session.Store
	Catalog         *settings.Catalog
	BedrockConverse bedrock.ConverseAPI
	BedrockInvoke   bedrock.InvokeAPI
	GeminiAPIKey    string
	DataDir         string
	TokenBudget     int

	// Chat supplies inference defaults and the per-request timeout.
	Chat config.ChatConfig
}

// Factory builds the per-module services. Dispatch is keyed by module name so
// the HTTP layer stays free of provider wiring.
type Factory struct {
	deps   Deps
	logger *log.Logger
}

func NewFactory(deps Deps) *Factory {
	if deps.TokenBudget <= 0 {
		deps.TokenBudget = 100_000
	}
	return &Factory{
		deps:   deps,
		logger: log.New(log.Writer(), "[SERVICE] ", log.LstdFlags),
	}
}

// provider builds the conversational adapter for a catalog entry.
func (f *Factory) provider(ctx context.Context, model settings.Model, registry *tools.Registry) (llm.Provider, error) {
	switch llm.APIProvider(model.APIProvider) {
	case llm.BedrockConverse:
		return bedrock.NewConverse(f.deps.BedrockConverse, f.modelConfig(model), registry), nil
	case llm.Gemini:
		return gemini.New(ctx, f.deps.GeminiAPIKey, f.modelConfig(model), registry)
	case llm.BedrockInvoke:
		return nil, fmt.Errorf("model %s is an image model, not conversational", model.Name)
	}
	return nil, fmt.Errorf("unknown api provider %q", model.APIProvider)
}

// modelConfig fills inference values the catalog entry leaves unset from the
// configured chat defaults. Catalog values win.
func (f *Factory) modelConfig(model settings.Model) llm.ModelConfig {
	cfg := model.Config()
	cfg.Params = llm.Params{
		MaxTokens:   f.deps.Chat.MaxTokens,
		Temperature: f.deps.Chat.Temperature,
		TopP:        f.deps.Chat.TopP,
		TopK:        f.deps.Chat.TopK,
	}.Merge(cfg.Params)
	return cfg
}

// chatRegistry assembles the tools chat models may call. The draw tool is
// only present when the catalog has an image model to back it.
func (f *Factory) chatRegistry(ctx context.Context) *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(tools.CurrentTimeSpec, tools.CurrentTime)

	if model, err := f.imageModel(ctx, ""); err == nil {
		gen := bedrock.NewInvoke(f.deps.BedrockInvoke, model.ModelID)
		registry.Register(tools.DrawSpec, tools.NewDrawFunc(gen, f.deps.DataDir))
	}
	return registry
}

// imageModel resolves the image model by name, or the first image entry in
// the catalog when no name is given.
func (f *Factory) imageModel(ctx context.Context, name string) (settings.Model, error) {
	if name != "" {
		model, err := f.deps.Catalog.Find(ctx, name)
		if err != nil {
			return settings.Model{}, err
		}
		if model.ModelType != settings.TypeImage {
			return settings.Model{}, fmt.Errorf("model %s is not an image model", name)
		}
		return model, nil
	}
	models, err := f.deps.Catalog.List(ctx)
	if err != nil {
		return settings.Model{}, err
	}
	for _, m := range models {
		if m.ModelType == settings.TypeImage {
			return m, nil
		}
	}
	return settings.Model{}, fmt.Errorf("no image model in the catalog")
}

// Chat returns the streaming conversation service.
func (f *Factory) Chat() *ChatService {
	return &ChatService{
		factory: f,
		store:   f.deps.Store,
		catalog: f.deps.Catalog,
		budget:  f.deps.TokenBudget,
		timeout: f.deps.Chat.Timeout,
		logger:  log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
}

// Gen returns the one-shot summary/vision service.
func (f *Factory) Gen() *GenService {
	return &GenService{
		factory: f,
		catalog: f.deps.Catalog,
		logger:  log.New(log.Writer(), "[GEN] ", log.LstdFlags),
	}
}

// Draw returns the text-to-image service.
func (f *Factory) Draw() *DrawService {
	return &DrawService{
		factory: f,
		store:   f.deps.Store,
		dataDir: f.deps.DataDir,
		logger:  log.New(log.Writer(), "[DRAW] ", log.LstdFlags),
	}
}
