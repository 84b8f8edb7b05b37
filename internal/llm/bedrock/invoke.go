package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"math/rand"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ixlab/aibox/internal/llm"
)

// InvokeAPI is the slice of the Bedrock runtime client the invoke adapter
// needs.
type InvokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// InvokeProvider drives the Stability image models through the raw InvokeModel
// API. SDXL and SD3 use different request and response bodies; the model ID
// decides which shape applies.
type InvokeProvider struct {
	client  InvokeAPI
	modelID string
	logger  *log.Logger
}

func NewInvoke(client InvokeAPI, modelID string) *InvokeProvider {
	return &InvokeProvider{
		client:  client,
		modelID: modelID,
		logger:  log.New(log.Writer(), "[BEDROCK] ", log.LstdFlags),
	}
}

// sdxlRequest is the legacy Stability XL body.
type sdxlRequest struct {
	TextPrompts []sdxlPrompt `json:"text_prompts"`
	CfgScale    float64      `json:"cfg_scale"`
	Seed        int64        `json:"seed"`
	Steps       int          `json:"steps"`
	StylePreset string       `json:"style_preset,omitempty"`
}

type sdxlPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type sdxlResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		Seed         int64  `json:"seed"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

// sd3Request is the Stable Diffusion 3 body.
type sd3Request struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Mode           string `json:"mode"`
	Seed           int64  `json:"seed"`
	OutputFormat   string `json:"output_format"`
}

type sd3Response struct {
	Images []string `json:"images"`
	Seeds  []int64  `json:"seeds"`
}

// GenerateImage renders one PNG for the prompt. A zero seed means pick one,
// so the caller can reproduce the image from the returned seed.
func (p *InvokeProvider) GenerateImage(ctx context.Context, prompt, negative, style string, seed int64) ([]byte, int64, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, 0, llm.NewError(llm.CodeInvalidInput, "image prompt is empty")
	}
	if seed == 0 {
		seed = rand.Int63n(4294967294) + 1
	}

	var body []byte
	var err error
	if p.isSDXL() {
		body, err = json.Marshal(sdxlBody(prompt, negative, style, seed))
	} else {
		body, err = json.Marshal(sd3Request{
			Prompt:         prompt,
			NegativePrompt: negative,
			Mode:           "text-to-image",
			Seed:           seed,
			OutputFormat:   "png",
		})
	}
	if err != nil {
		return nil, 0, llm.NewError(llm.CodeInternal, "encode image request", llm.WithWrapped(err))
	}

	p.logger.Printf("invoking %s (seed %d)", p.modelID, seed)
	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, 0, mapError(err)
	}

	if p.isSDXL() {
		return decodeSDXL(out.Body, seed)
	}
	return decodeSD3(out.Body, seed)
}

func (p *InvokeProvider) isSDXL() bool {
	return strings.Contains(p.modelID, "stable-diffusion-xl")
}

func sdxlBody(prompt, negative, style string, seed int64) sdxlRequest {
	req := sdxlRequest{
		TextPrompts: []sdxlPrompt{{Text: prompt, Weight: 1.0}},
		CfgScale:    7,
		Seed:        seed,
		Steps:       30,
		StylePreset: style,
	}
	if negative != "" {
		req.TextPrompts = append(req.TextPrompts, sdxlPrompt{Text: negative, Weight: -1.0})
	}
	return req
}

func decodeSDXL(body []byte, seed int64) ([]byte, int64, error) {
	var resp sdxlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, llm.NewError(llm.CodeInternal, "decode sdxl response", llm.WithWrapped(err))
	}
	if len(resp.Artifacts) == 0 {
		return nil, 0, llm.NewError(llm.CodeModelUnavailable, "sdxl returned no image")
	}
	art := resp.Artifacts[0]
	if art.FinishReason == "CONTENT_FILTERED" {
		return nil, 0, llm.NewError(llm.CodeInvalidInput, "prompt was rejected by the content filter")
	}
	png, err := base64.StdEncoding.DecodeString(art.Base64)
	if err != nil {
		return nil, 0, llm.NewError(llm.CodeInternal, "decode sdxl image", llm.WithWrapped(err))
	}
	if art.Seed != 0 {
		seed = art.Seed
	}
	return png, seed, nil
}

func decodeSD3(body []byte, seed int64) ([]byte, int64, error) {
	var resp sd3Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, llm.NewError(llm.CodeInternal, "decode sd3 response", llm.WithWrapped(err))
	}
	if len(resp.Images) == 0 {
		return nil, 0, llm.NewError(llm.CodeModelUnavailable, "sd3 returned no image")
	}
	png, err := base64.StdEncoding.DecodeString(resp.Images[0])
	if err != nil {
		return nil, 0, llm.NewError(llm.CodeInternal, "decode sd3 image", llm.WithWrapped(err))
	}
	if len(resp.Seeds) > 0 && resp.Seeds[0] != 0 {
		seed = resp.Seeds[0]
	}
	return png, seed, nil
}
