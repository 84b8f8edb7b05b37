package gemini

import (
	"google.golang.org/genai"

	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/internal/llm/tools"
)

// mimeTypes maps normalized attachment formats onto the MIME types the Gemini
// API expects for inline data.
var mimeTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"pdf":  "application/pdf",
	"csv":  "text/csv",
	"txt":  "text/plain",
	"md":   "text/markdown",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"mkv":  "video/x-matroska",
	"mov":  "video/quicktime",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"flv":  "video/x-flv",
	"mpeg": "video/mpeg",
	"mpg":  "video/mpeg",
	"wmv":  "video/x-ms-wmv",
	"3gp":  "video/3gpp",
}

// convertContents maps normalized history onto genai contents. Assistant
// turns take the "model" role; attachments ride as inline blobs.
func convertContents(msgs []llm.Message) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}

		var parts []*genai.Part
		if m.Text != "" {
			parts = append(parts, &genai.Part{Text: m.Text})
		}
		for _, att := range m.Attachments {
			part, err := attachmentPart(att)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out, nil
}

func attachmentPart(att llm.Attachment) (*genai.Part, error) {
	mime, ok := mimeTypes[att.Format]
	if !ok {
		return nil, llm.NewError(llm.CodeInvalidInput, "no MIME type for format "+att.Format)
	}
	data, err := att.Bytes()
	if err != nil {
		return nil, err
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}}, nil
}

func toolDeclarations(specs []tools.Spec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 s.Name,
			Description:          s.Description,
			ParametersJsonSchema: s.InputSchema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// functionResponseContent wraps a tool result for the follow-up turn.
func functionResponseContent(call llm.ToolCall, result llm.ToolResult) *genai.Content {
	response := map[string]any{}
	if result.IsError {
		response["error"] = result.Text
	} else {
		if result.Text != "" {
			response["output"] = result.Text
		}
		for k, v := range result.JSON {
			response[k] = v
		}
	}
	return &genai.Content{
		Role: "user",
		Parts: []*genai.Part{{
			FunctionResponse: &genai.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: response,
			},
		}},
	}
}

func functionCallContent(call llm.ToolCall) *genai.Content {
	return &genai.Content{
		Role: "model",
		Parts: []*genai.Part{{
			FunctionCall: &genai.FunctionCall{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Input,
			},
		}},
	}
}
