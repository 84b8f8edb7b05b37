package bedrock

import (
	"context"
	"encoding/json"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/internal/llm/tools"
)

// ConverseAPI is the slice of the Bedrock runtime client the converse
// adapter needs.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// NewRuntimeClient builds a Bedrock runtime client for the configured region.
func NewRuntimeClient(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, llm.NewError(llm.CodeInternal, "load aws config", llm.WithWrapped(err))
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

// ConverseProvider adapts the Bedrock Converse API to the normalized
// provider contract, including multi-turn tool round-trips.
type ConverseProvider struct {
	client   ConverseAPI
	model    llm.ModelConfig
	registry *tools.Registry
	logger   *log.Logger
}

var _ llm.Provider = (*ConverseProvider)(nil)

// NewConverse builds the converse adapter. registry may be nil when no tools
// are enabled for the module.
func NewConverse(client ConverseAPI, model llm.ModelConfig, registry *tools.Registry) *ConverseProvider {
	return &ConverseProvider{
		client:   client,
		model:    model,
		registry: registry,
		logger:   log.New(log.Writer(), "[BEDROCK] ", log.LstdFlags),
	}
}

func (p *ConverseProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		Streaming: true,
		Tools:     true,
		Images:    true,
		Documents: true,
		Video:     true,
		Provider:  llm.BedrockConverse,
	}
}

// buildInput assembles a ConverseInput from the normalized request plus any
// assistant/tool continuation messages accumulated during a tool loop.
func (p *ConverseProvider) buildInput(req llm.Request, continuation []brtypes.Message) (*bedrockruntime.ConverseInput, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, continuation...)

	params := p.model.Params.Merge(req.Params)
	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(p.model.ModelID),
		Messages:        msgs,
		InferenceConfig: inferenceConfig(params),
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if params.TopK > 0 {
		// topK is model-specific and rides outside the shared inference config.
		input.AdditionalModelRequestFields = document.NewLazyDocument(map[string]any{
			"topK": params.TopK,
		})
	}
	if p.registry != nil {
		if specs := p.registry.Specs(); len(specs) > 0 {
			input.ToolConfig = toolConfig(specs)
		}
	}
	return input, nil
}

// Generate performs a non-streaming call, resolving tool round-trips until
// the model stops asking for tools.
func (p *ConverseProvider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var continuation []brtypes.Message
	var usage llm.Usage

	for {
		input, err := p.buildInput(req, continuation)
		if err != nil {
			return nil, err
		}
		out, err := p.client.Converse(ctx, input)
		if err != nil {
			return nil, mapError(err)
		}

		addUsage(&usage, out.Usage)
		msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
		if !ok {
			return nil, llm.NewError(llm.CodeInternal, "bedrock returned no message output")
		}

		text, toolUse := splitOutput(msg.Value)
		if toolUse == nil || p.registry == nil {
			return &llm.Response{
				Text:       text,
				StopReason: string(out.StopReason),
				Usage:      usage,
			}, nil
		}

		p.logger.Printf("tool use requested: %s", toolUse.Name)
		resultMsg := p.runTool(ctx, *toolUse)
		continuation = append(continuation, msg.Value, resultMsg)
	}
}

// GenerateStream performs a streaming call. Tool calls detected in the stream
// are executed and the conversation continues until a turn completes without
// tool use.
func (p *ConverseProvider) GenerateStream(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	stream := llm.NewStream(ctx, 32)

	go func() {
		defer func() { _ = stream.Close() }()
		var continuation []brtypes.Message
		var usage llm.Usage

		for {
			input, err := p.buildInput(req, continuation)
			if err != nil {
				stream.Fail(err)
				return
			}
			out, err := p.client.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
				ModelId:                      input.ModelId,
				Messages:                     input.Messages,
				System:                       input.System,
				InferenceConfig:              input.InferenceConfig,
				ToolConfig:                   input.ToolConfig,
				AdditionalModelRequestFields: input.AdditionalModelRequestFields,
			})
			if err != nil {
				stream.Fail(mapError(err))
				return
			}

			turn, err := p.pumpStream(out.GetStream(), stream, &usage)
			if err != nil {
				stream.Fail(err)
				return
			}
			if turn.toolUse == nil || p.registry == nil {
				return
			}

			// Preserve any text emitted before the tool call, then loop with
			// the tool result appended as a user message.
			assistant := brtypes.Message{Role: brtypes.ConversationRoleAssistant}
			if turn.text != "" {
				assistant.Content = append(assistant.Content,
					&brtypes.ContentBlockMemberText{Value: turn.text})
			}
			assistant.Content = append(assistant.Content, toolUseBlock(*turn.toolUse))

			resultMsg := p.runTool(ctx, *turn.toolUse)
			if path := toolFilePath(resultMsg); path != "" {
				stream.Push(llm.Fragment{Type: llm.FragmentFile, FilePath: path})
			}
			continuation = append(continuation, assistant, resultMsg)
		}
	}()

	return stream, nil
}

// streamTurn is what one pass over the event stream produced.
type streamTurn struct {
	text    string
	toolUse *llm.ToolCall
}

// converseEvents is the event-stream slice pumpStream consumes; satisfied by
// *bedrockruntime.ConverseStreamEventStream.
type converseEvents interface {
	Events() <-chan brtypes.ConverseStreamOutput
	Close() error
	Err() error
}

// pumpStream drains one ConverseStream response, pushing normalized fragments
// and accumulating tool-use input deltas until the block completes. usage is
// shared across tool round-trips so the finish fragment reports the whole
// conversation turn, not just the last pass.
func (p *ConverseProvider) pumpStream(es converseEvents, stream *llm.Stream, usage *llm.Usage) (streamTurn, error) {
	defer func() { _ = es.Close() }()

	var turn streamTurn
	var pending *llm.ToolCall
	var pendingInput string
	var stopReason string

	for event := range es.Events() {
		select {
		case <-stream.Done():
			// Covers both request-context cancellation and a consumer that
			// stopped reading early.
			return turn, llm.NewError(llm.CodeInternal, "stream cancelled", llm.WithWrapped(context.Canceled))
		default:
		}

		switch ev := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				pending = &llm.ToolCall{
					ID:   aws.ToString(start.Value.ToolUseId),
					Name: aws.ToString(start.Value.Name),
				}
				pendingInput = ""
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				turn.text += delta.Value
				stream.Push(llm.Fragment{Type: llm.FragmentText, Text: delta.Value})
			case *brtypes.ContentBlockDeltaMemberToolUse:
				if pending != nil {
					pendingInput += aws.ToString(delta.Value.Input)
				}
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockStop:
			if pending != nil {
				var input map[string]any
				if err := json.Unmarshal([]byte(pendingInput), &input); err != nil {
					p.logger.Printf("tool input is not valid JSON: %v", err)
					input = map[string]any{}
				}
				pending.Input = input
				stream.Push(llm.Fragment{Type: llm.FragmentToolCall, ToolCall: pending})
				turn.toolUse = pending
				pending = nil
			}
		case *brtypes.ConverseStreamOutputMemberMessageStop:
			stopReason = string(ev.Value.StopReason)
		case *brtypes.ConverseStreamOutputMemberMetadata:
			addUsage(usage, ev.Value.Usage)
		}
	}
	if err := es.Err(); err != nil {
		return turn, mapError(err)
	}

	// Only the turn that ends without tool use carries the finish fragment;
	// tool turns continue the conversation instead.
	if turn.toolUse == nil {
		stream.Push(llm.Fragment{
			Type:       llm.FragmentFinish,
			StopReason: stopReason,
			Usage:      *usage,
			Model:      p.model.ModelID,
		})
	}
	return turn, nil
}

// runTool executes a tool call and wraps its result as the user message the
// Converse API expects back.
func (p *ConverseProvider) runTool(ctx context.Context, call llm.ToolCall) brtypes.Message {
	result, err := p.registry.Execute(ctx, call)
	if err != nil {
		result = llm.ToolResult{ID: call.ID, Text: err.Error(), IsError: true}
	}
	return toolResultMessage(result)
}
