package llm

import "context"

// APIProvider names one of the capability-tagged provider variants. Dispatch
// happens in a single selection function, not a class hierarchy.
type APIProvider string

const (
	BedrockConverse APIProvider = "bedrock-converse"
	BedrockInvoke   APIProvider = "bedrock-invoke"
	Gemini          APIProvider = "gemini"
)

// Params are the per-request inference parameters shared across vendors.
type Params struct {
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
	StopSequences []string
	Think         bool
}

// Merge overlays non-zero override values on top of the receiver.
func (p Params) Merge(override Params) Params {
	if override.MaxTokens > 0 {
		p.MaxTokens = override.MaxTokens
	}
	if override.Temperature > 0 {
		p.Temperature = override.Temperature
	}
	if override.TopP > 0 {
		p.TopP = override.TopP
	}
	if override.TopK > 0 {
		p.TopK = override.TopK
	}
	if len(override.StopSequences) > 0 {
		p.StopSequences = override.StopSequences
	}
	if override.Think {
		p.Think = true
	}
	return p
}

// ModelConfig selects a model on a provider together with its default
// inference parameters. Loaded at startup; read-only at runtime.
type ModelConfig struct {
	APIProvider APIProvider
	ModelID     string
	Params      Params
}

// Request is a normalized conversation ready for one vendor call.
type Request struct {
	System   string
	Messages []Message
	Params   Params
}

// Response is the non-streaming result of a vendor call.
type Response struct {
	Text       string
	Files      []string
	StopReason string
	Usage      Usage
}

// Capabilities describes what a provider variant supports.
type Capabilities struct {
	Streaming bool
	Tools     bool
	Images    bool
	Documents bool
	Video     bool
	Provider  APIProvider
}

// Provider is the contract every adapter satisfies. Adapters have no side
// effects beyond the outbound vendor call.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	GenerateStream(ctx context.Context, req Request) (*Stream, error)
	Capabilities() Capabilities
}
