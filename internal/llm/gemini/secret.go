package gemini

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/ixlab/aibox/internal/llm"
)

// SecretsAPI is the slice of the Secrets Manager client the key fetch needs.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretsClient builds a Secrets Manager client for the configured region.
func NewSecretsClient(ctx context.Context, region string) (*secretsmanager.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, llm.NewError(llm.CodeInternal, "load aws config", llm.WithWrapped(err))
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

// FetchAPIKey reads the Gemini API key from Secrets Manager. The secret value
// may be the bare key or a JSON object holding it under GEMINI_API_KEY or
// api_key.
func FetchAPIKey(ctx context.Context, api SecretsAPI, secretID string) (string, error) {
	if secretID == "" {
		return "", llm.NewError(llm.CodeInternal, "gemini secret id is not configured")
	}
	out, err := api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", llm.NewError(llm.CodeInternal, "fetch gemini api key", llm.WithWrapped(err))
	}

	value := aws.ToString(out.SecretString)
	if key := parseSecret(value); key != "" {
		return key, nil
	}
	return "", llm.NewError(llm.CodeInternal, "gemini secret holds no api key")
}

func parseSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(value, "{") {
		return value
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		return ""
	}
	for _, k := range []string{"GEMINI_API_KEY", "api_key", "apiKey"} {
		if v, ok := fields[k]; ok && v != "" {
			return v
		}
	}
	return ""
}
