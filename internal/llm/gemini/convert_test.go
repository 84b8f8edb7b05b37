package gemini

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/internal/llm/tools"
)

func TestConvertContentsRoles(t *testing.T) {
	contents, err := convertContents([]llm.Message{
		llm.UserText("hello"),
		llm.AssistantText("hi"),
	})
	if err != nil {
		t.Fatalf("convertContents: %v", err)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Fatalf("assistant must map to the model role: %s %s", contents[0].Role, contents[1].Role)
	}
	if contents[0].Parts[0].Text != "hello" {
		t.Fatalf("unexpected text: %q", contents[0].Parts[0].Text)
	}
}

func TestConvertContentsInlineData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	att, err := llm.DetectAttachment(path)
	if err != nil {
		t.Fatalf("DetectAttachment: %v", err)
	}

	contents, err := convertContents([]llm.Message{
		{Role: llm.RoleUser, Text: "summarize", Attachments: []llm.Attachment{att}},
	})
	if err != nil {
		t.Fatalf("convertContents: %v", err)
	}
	blob := contents[0].Parts[1].InlineData
	if blob == nil || blob.MIMEType != "application/pdf" {
		t.Fatalf("unexpected inline data: %+v", blob)
	}
}

func TestToolDeclarations(t *testing.T) {
	decls := toolDeclarations([]tools.Spec{tools.CurrentTimeSpec})
	if len(decls) != 1 || len(decls[0].FunctionDeclarations) != 1 {
		t.Fatalf("unexpected tool shape: %+v", decls)
	}
	fd := decls[0].FunctionDeclarations[0]
	if fd.Name != "current-time" || fd.ParametersJsonSchema == nil {
		t.Fatalf("unexpected declaration: %+v", fd)
	}
}

func TestFunctionResponseContent(t *testing.T) {
	call := llm.ToolCall{ID: "fc1", Name: "draw-image"}
	content := functionResponseContent(call, llm.ToolResult{
		ID:   "fc1",
		JSON: map[string]any{"file_path": "/data/x.png"},
	})
	fr := content.Parts[0].FunctionResponse
	if fr == nil || fr.Name != "draw-image" {
		t.Fatalf("unexpected content: %+v", content)
	}
	if fr.Response["file_path"] != "/data/x.png" {
		t.Fatalf("tool JSON not forwarded: %+v", fr.Response)
	}

	errContent := functionResponseContent(call, llm.ToolResult{Text: "kaput", IsError: true})
	if errContent.Parts[0].FunctionResponse.Response["error"] != "kaput" {
		t.Fatalf("error result not flagged: %+v", errContent.Parts[0].FunctionResponse.Response)
	}
}

type fakeSecrets struct {
	value string
	err   error
}

func (f *fakeSecrets) GetSecretValue(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.value)}, nil
}

func TestFetchAPIKey(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  string
	}{
		{"bare key", "AIza-test-key", "AIza-test-key"},
		{"json upper", `{"GEMINI_API_KEY":"k1"}`, "k1"},
		{"json lower", `{"api_key":"k2"}`, "k2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FetchAPIKey(context.Background(), &fakeSecrets{value: tc.value}, "aibox/gemini")
			if err != nil {
				t.Fatalf("FetchAPIKey: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFetchAPIKeyEmptySecret(t *testing.T) {
	if _, err := FetchAPIKey(context.Background(), &fakeSecrets{value: "  "}, "aibox/gemini"); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := FetchAPIKey(context.Background(), &fakeSecrets{}, ""); err == nil {
		t.Fatal("expected error for missing secret id")
	}
}
