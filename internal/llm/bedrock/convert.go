package bedrock

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/internal/llm/tools"
)

// convertMessages maps normalized history onto Converse messages. Attachments
// become typed content blocks; their bytes are read here so validation errors
// surface before the API call.
func convertMessages(msgs []llm.Message) ([]brtypes.Message, error) {
	out := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		role := brtypes.ConversationRoleUser
		if m.Role == llm.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}

		var content []brtypes.ContentBlock
		if m.Text != "" {
			content = append(content, &brtypes.ContentBlockMemberText{Value: m.Text})
		}
		for _, att := range m.Attachments {
			block, err := attachmentBlock(att)
			if err != nil {
				return nil, err
			}
			content = append(content, block)
		}
		if len(content) == 0 {
			continue
		}
		out = append(out, brtypes.Message{Role: role, Content: content})
	}
	return out, nil
}

func attachmentBlock(att llm.Attachment) (brtypes.ContentBlock, error) {
	data, err := att.Bytes()
	if err != nil {
		return nil, err
	}
	switch att.Kind {
	case llm.AttachmentImage:
		return &brtypes.ContentBlockMemberImage{Value: brtypes.ImageBlock{
			Format: brtypes.ImageFormat(att.Format),
			Source: &brtypes.ImageSourceMemberBytes{Value: data},
		}}, nil
	case llm.AttachmentDocument:
		return &brtypes.ContentBlockMemberDocument{Value: brtypes.DocumentBlock{
			Format: brtypes.DocumentFormat(att.Format),
			Name:   aws.String(att.Name),
			Source: &brtypes.DocumentSourceMemberBytes{Value: data},
		}}, nil
	case llm.AttachmentVideo:
		return &brtypes.ContentBlockMemberVideo{Value: brtypes.VideoBlock{
			Format: brtypes.VideoFormat(att.Format),
			Source: &brtypes.VideoSourceMemberBytes{Value: data},
		}}, nil
	}
	return nil, llm.NewError(llm.CodeInvalidInput, "unsupported attachment kind "+string(att.Kind))
}

func inferenceConfig(p llm.Params) *brtypes.InferenceConfiguration {
	cfg := &brtypes.InferenceConfiguration{}
	if p.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(p.MaxTokens))
	}
	if p.Temperature > 0 {
		cfg.Temperature = aws.Float32(float32(p.Temperature))
	}
	if p.TopP > 0 {
		cfg.TopP = aws.Float32(float32(p.TopP))
	}
	if len(p.StopSequences) > 0 {
		cfg.StopSequences = p.StopSequences
	}
	return cfg
}

func toolConfig(specs []tools.Spec) *brtypes.ToolConfiguration {
	cfg := &brtypes.ToolConfiguration{}
	for _, s := range specs {
		cfg.Tools = append(cfg.Tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(s.Name),
				Description: aws.String(s.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(s.InputSchema),
				},
			},
		})
	}
	return cfg
}

// splitOutput separates the text and the first tool-use block of a response
// message. Converse emits at most one tool use per turn for our tool config.
func splitOutput(msg brtypes.Message) (string, *llm.ToolCall) {
	var text string
	var call *llm.ToolCall
	for _, block := range msg.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			text += b.Value
		case *brtypes.ContentBlockMemberToolUse:
			var input map[string]any
			if b.Value.Input != nil {
				_ = b.Value.Input.UnmarshalSmithyDocument(&input)
			}
			call = &llm.ToolCall{
				ID:    aws.ToString(b.Value.ToolUseId),
				Name:  aws.ToString(b.Value.Name),
				Input: input,
			}
		}
	}
	return text, call
}

func toolUseBlock(call llm.ToolCall) brtypes.ContentBlock {
	return &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
		ToolUseId: aws.String(call.ID),
		Name:      aws.String(call.Name),
		Input:     document.NewLazyDocument(call.Input),
	}}
}

// toolResultMessage wraps a tool result as the user message Converse expects
// to continue the conversation after a tool turn.
func toolResultMessage(result llm.ToolResult) brtypes.Message {
	var content []brtypes.ToolResultContentBlock
	if result.Text != "" {
		content = append(content, &brtypes.ToolResultContentBlockMemberText{Value: result.Text})
	}
	if result.JSON != nil {
		content = append(content, &brtypes.ToolResultContentBlockMemberJson{
			Value: document.NewLazyDocument(result.JSON),
		})
	}
	if len(result.PNG) > 0 {
		content = append(content, &brtypes.ToolResultContentBlockMemberImage{
			Value: brtypes.ImageBlock{
				Format: brtypes.ImageFormatPng,
				Source: &brtypes.ImageSourceMemberBytes{Value: result.PNG},
			},
		})
	}

	block := brtypes.ToolResultBlock{
		ToolUseId: aws.String(result.ID),
		Content:   content,
	}
	if result.IsError {
		block.Status = brtypes.ToolResultStatusError
	}
	return brtypes.Message{
		Role:    brtypes.ConversationRoleUser,
		Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolResult{Value: block}},
	}
}

// toolFilePath extracts a generated file path from a tool result message, if
// the tool produced one.
func toolFilePath(msg brtypes.Message) string {
	for _, block := range msg.Content {
		tr, ok := block.(*brtypes.ContentBlockMemberToolResult)
		if !ok {
			continue
		}
		for _, c := range tr.Value.Content {
			js, ok := c.(*brtypes.ToolResultContentBlockMemberJson)
			if !ok || js.Value == nil {
				continue
			}
			var m map[string]any
			if err := js.Value.UnmarshalSmithyDocument(&m); err != nil {
				continue
			}
			if path, ok := m["file_path"].(string); ok {
				return path
			}
		}
	}
	return ""
}

func addUsage(total *llm.Usage, u *brtypes.TokenUsage) {
	if u == nil {
		return
	}
	total.InputTokens += int(aws.ToInt32(u.InputTokens))
	total.OutputTokens += int(aws.ToInt32(u.OutputTokens))
	total.TotalTokens += int(aws.ToInt32(u.TotalTokens))
}
