package gemini

import (
	"context"
	"iter"
	"log"

	"google.golang.org/genai"

	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/internal/llm/tools"
)

// Provider adapts the Gemini API to the normalized provider contract.
type Provider struct {
	client   *genai.Client
	model    llm.ModelConfig
	registry *tools.Registry
	logger   *log.Logger
}

var _ llm.Provider = (*Provider)(nil)

// New builds a Gemini provider. The API key comes from Secrets Manager; see
// FetchAPIKey.
func New(ctx context.Context, apiKey string, model llm.ModelConfig, registry *tools.Registry) (*Provider, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llm.NewError(llm.CodeInternal, "create gemini client", llm.WithWrapped(err))
	}
	return &Provider{
		client:   gc,
		model:    model,
		registry: registry,
		logger:   log.New(log.Writer(), "[GEMINI] ", log.LstdFlags),
	}, nil
}

func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		Streaming: true,
		Tools:     true,
		Images:    true,
		Documents: true,
		Video:     true,
		Provider:  llm.Gemini,
	}
}

func (p *Provider) buildConfig(req llm.Request) *genai.GenerateContentConfig {
	params := p.model.Params.Merge(req.Params)
	cfg := &genai.GenerateContentConfig{}
	if params.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(params.MaxTokens)
	}
	if params.Temperature > 0 {
		temp := float32(params.Temperature)
		cfg.Temperature = &temp
	}
	if params.TopP > 0 {
		topP := float32(params.TopP)
		cfg.TopP = &topP
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if params.Think {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	if p.registry != nil {
		cfg.Tools = toolDeclarations(p.registry.Specs())
	}
	return cfg
}

// Generate performs a non-streaming call, resolving tool round-trips until
// the model stops calling functions.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	contents, err := convertContents(req.Messages)
	if err != nil {
		return nil, err
	}
	cfg := p.buildConfig(req)

	var text string
	var usage llm.Usage
	var stopReason string

	for {
		resp, err := p.client.Models.GenerateContent(ctx, p.model.ModelID, contents, cfg)
		if err != nil {
			return nil, mapError(err)
		}
		addUsage(&usage, resp.UsageMetadata)

		chunkText, call, finish := splitResponse(resp)
		text += chunkText
		if finish != "" {
			stopReason = finish
		}
		if call == nil || p.registry == nil {
			return &llm.Response{Text: text, StopReason: stopReason, Usage: usage}, nil
		}

		p.logger.Printf("function call requested: %s", call.Name)
		result := p.execTool(ctx, *call)
		contents = append(contents, functionCallContent(*call), functionResponseContent(*call, result))
	}
}

// GenerateStream performs a streaming call with the same tool loop as
// Generate; fragments are pushed as chunks arrive.
func (p *Provider) GenerateStream(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	contents, err := convertContents(req.Messages)
	if err != nil {
		return nil, err
	}
	cfg := p.buildConfig(req)
	stream := llm.NewStream(ctx, 32)

	go func() {
		defer func() { _ = stream.Close() }()
		var usage llm.Usage

		for {
			it := p.client.Models.GenerateContentStream(ctx, p.model.ModelID, contents, cfg)
			call, err := p.pump(it, stream, &usage)
			if err != nil {
				stream.Fail(mapError(err))
				return
			}
			if call == nil || p.registry == nil {
				return
			}

			result := p.execTool(ctx, *call)
			if path, ok := result.JSON["file_path"].(string); ok && path != "" {
				stream.Push(llm.Fragment{Type: llm.FragmentFile, FilePath: path})
			}
			contents = append(contents, functionCallContent(*call), functionResponseContent(*call, result))
		}
	}()

	return stream, nil
}

// pump drains one streaming response, pushing fragments. It returns the first
// function call encountered, or nil when the turn finished without one. usage
// accumulates across tool round-trips so the finish fragment carries the whole
// turn's tokens.
func (p *Provider) pump(it iter.Seq2[*genai.GenerateContentResponse, error], stream *llm.Stream, usage *llm.Usage) (*llm.ToolCall, error) {
	var stopReason string

	next, stop := iter.Pull2(it)
	defer stop()

	for {
		select {
		case <-stream.Done():
			// Request cancelled or the consumer stopped reading.
			return nil, llm.NewError(llm.CodeInternal, "stream cancelled", llm.WithWrapped(context.Canceled))
		default:
		}

		resp, err, ok := next()
		if !ok {
			break
		}
		if err != nil {
			return nil, err
		}
		addUsage(usage, resp.UsageMetadata)

		if len(resp.Candidates) == 0 {
			continue
		}
		cand := resp.Candidates[0]
		if cand.FinishReason != "" {
			stopReason = string(cand.FinishReason)
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				call := &llm.ToolCall{
					ID:    part.FunctionCall.ID,
					Name:  part.FunctionCall.Name,
					Input: part.FunctionCall.Args,
				}
				stream.Push(llm.Fragment{Type: llm.FragmentToolCall, ToolCall: call})
				return call, nil
			case part.Thought && part.Text != "":
				stream.Push(llm.Fragment{Type: llm.FragmentThinking, Thinking: part.Text})
			case part.Text != "":
				stream.Push(llm.Fragment{Type: llm.FragmentText, Text: part.Text})
			}
		}
	}

	stream.Push(llm.Fragment{
		Type:       llm.FragmentFinish,
		StopReason: stopReason,
		Usage:      *usage,
		Model:      p.model.ModelID,
	})
	return nil, nil
}

func (p *Provider) execTool(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	result, err := p.registry.Execute(ctx, call)
	if err != nil {
		return llm.ToolResult{ID: call.ID, Text: err.Error(), IsError: true}
	}
	return result
}

// splitResponse extracts text, the first function call, and the finish reason
// from a non-streaming response.
func splitResponse(resp *genai.GenerateContentResponse) (string, *llm.ToolCall, string) {
	var text string
	var call *llm.ToolCall
	var finish string

	for _, cand := range resp.Candidates {
		if cand.FinishReason != "" {
			finish = string(cand.FinishReason)
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil && call == nil:
				call = &llm.ToolCall{
					ID:    part.FunctionCall.ID,
					Name:  part.FunctionCall.Name,
					Input: part.FunctionCall.Args,
				}
			case part.Thought:
				// thinking is not part of the final text
			case part.Text != "":
				text += part.Text
			}
		}
	}
	return text, call, finish
}

func addUsage(total *llm.Usage, meta *genai.GenerateContentResponseUsageMetadata) {
	if meta == nil {
		return
	}
	total.InputTokens += int(meta.PromptTokenCount)
	total.OutputTokens += int(meta.CandidatesTokenCount)
	total.TotalTokens += int(meta.TotalTokenCount)
}
